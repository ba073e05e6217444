package supportdesk

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/real-rm/supportdesk/internal/agent"
	"github.com/real-rm/supportdesk/internal/chat"
	"github.com/real-rm/supportdesk/internal/constants"
	chaterrors "github.com/real-rm/supportdesk/internal/errors"
	"github.com/real-rm/supportdesk/internal/escalation"
	"github.com/real-rm/supportdesk/internal/httperrors"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/util"
)

type startChatRequest struct {
	AIFirst bool `json:"aiFirst"`
}

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type escalateRequest struct {
	Reason string `json:"reason"`
}

type aiChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message" binding:"required"`
}

type aiChatResponse struct {
	SessionID string `json:"sessionId"`
	*escalation.Turn
}

type reassignRequest struct {
	AgentID string `json:"agentId" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// participant returns the caller. authMiddleware guarantees the claims.
func participant(c *gin.Context) session.Participant {
	claims, _ := claimsFrom(c)
	return claims.Participant()
}

// viewable loads the session and checks the caller may read it.
func (s *Service) viewable(c *gin.Context, check func(*session.ChatSession, session.Participant) bool) (*session.ChatSession, bool) {
	id := c.Param("sessionID")
	if id == "" {
		httperrors.RespondBadRequest(c, constants.ErrMsgSessionIDRequired)
		return nil, false
	}
	sess, err := s.coord.Session(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err, "load session")
		return nil, false
	}
	if !check(sess, participant(c)) {
		httperrors.RespondForbidden(c)
		return nil, false
	}
	return sess, true
}

func (s *Service) respondError(c *gin.Context, err error, operation string) {
	var chatErr *chaterrors.ChatError
	if errors.As(err, &chatErr) && chatErr.Category != chaterrors.CategoryService {
		s.logger.Debug("Request rejected",
			"operation", operation,
			"endpoint", c.FullPath(),
			"code", chatErr.Code)
	} else {
		util.LogError(s.logger, "http", operation, err, "endpoint", c.FullPath())
	}
	httperrors.RespondChatError(c, err)
}

func (s *Service) handleStartChat(c *gin.Context) {
	var req startChatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httperrors.RespondBadRequest(c, "Invalid request body")
			return
		}
	}
	sess, err := s.coord.Start(c.Request.Context(), participant(c), req.AIFirst)
	if err != nil {
		s.respondError(c, err, "start chat")
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Service) handleListChats(c *gin.Context) {
	sessions, err := s.coord.List(c.Request.Context(), participant(c))
	if err != nil {
		s.respondError(c, err, "list chats")
		return
	}
	if sessions == nil {
		sessions = []*session.ChatSession{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Service) handleGetChat(c *gin.Context) {
	if _, ok := s.viewable(c, chat.CanView); !ok {
		return
	}
	sess, err := s.coord.Get(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		s.respondError(c, err, "get chat")
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Service) handlePostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperrors.RespondBadRequest(c, "content is required")
		return
	}
	sess, ok := s.viewable(c, chat.CanPost)
	if !ok {
		return
	}
	p := participant(c)
	msg, err := s.coord.PostMessage(c.Request.Context(), sess.ID, chat.SenderTypeFor(p), p.ID, req.Content)
	if err != nil {
		s.respondError(c, err, "post message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Service) handleEndChat(c *gin.Context) {
	sess, ok := s.viewable(c, chat.CanPost)
	if !ok {
		return
	}
	ended, err := s.coord.EndChat(c.Request.Context(), sess.ID)
	if err != nil {
		s.respondError(c, err, "end chat")
		return
	}
	c.JSON(http.StatusOK, ended)
}

func (s *Service) handleClaim(c *gin.Context) {
	sess, err := s.coord.Claim(c.Request.Context(), c.Param("sessionID"), participant(c))
	if err != nil {
		s.respondError(c, err, "claim chat")
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Service) handleAutoAssign(c *gin.Context) {
	res, err := s.coord.AutoAssign(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		s.respondError(c, err, "assign chat")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) handleConvert(c *gin.Context) {
	sess, ok := s.viewable(c, chat.CanView)
	if !ok {
		return
	}
	t, converted, err := s.coord.ConvertToTicket(c.Request.Context(), sess.ID, participant(c))
	if err != nil {
		s.respondError(c, err, "convert chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":      t,
		"chatSession": converted,
	})
}

func (s *Service) handleEscalate(c *gin.Context) {
	var req escalateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httperrors.RespondBadRequest(c, "Invalid request body")
			return
		}
	}
	sess, ok := s.viewable(c, chat.CanPost)
	if !ok {
		return
	}
	res, err := s.bridge.Escalate(c.Request.Context(), sess.ID, req.Reason)
	if err != nil {
		s.respondError(c, err, "escalate chat")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) handleAIChat(c *gin.Context) {
	var req aiChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperrors.RespondBadRequest(c, "message is required")
		return
	}
	ctx := c.Request.Context()
	customer := participant(c)

	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := s.coord.Start(ctx, customer, true)
		if err != nil {
			s.respondError(c, err, "start ai chat")
			return
		}
		sessionID = sess.ID
	}

	turn, err := s.bridge.HandleAIMessage(ctx, sessionID, customer, req.Message)
	if err != nil {
		s.respondError(c, err, "ai chat")
		return
	}
	c.JSON(http.StatusOK, aiChatResponse{SessionID: sessionID, Turn: turn})
}

func (s *Service) handleAssignTicket(c *gin.Context) {
	res, err := s.bridge.AssignTicket(c.Request.Context(), c.Param("ticketID"))
	if err != nil {
		s.respondError(c, err, "assign ticket")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) handleReassignTicket(c *gin.Context) {
	var req reassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperrors.RespondBadRequest(c, "agentId is required")
		return
	}
	t, err := s.bridge.ReassignTicket(c.Request.Context(), c.Param("ticketID"), req.AgentID)
	if err != nil {
		s.respondError(c, err, "reassign ticket")
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Service) handleAgentStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperrors.RespondBadRequest(c, "status is required")
		return
	}
	status, err := agent.ParseStatus(req.Status)
	if err != nil {
		httperrors.RespondBadRequest(c, err.Error())
		return
	}
	p := participant(c)
	assigned, err := s.coord.SetAgentStatus(c.Request.Context(), p, status)
	if err != nil {
		s.respondError(c, err, "set agent status")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agentId":  p.ID,
		"status":   status,
		"assigned": assigned,
	})
}

func (s *Service) handleOnlineAgents(c *gin.Context) {
	candidates, err := s.coord.Candidates(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "list online agents")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agents": candidates,
		"count":  len(candidates),
	})
}

// handleHealthCheck is the liveness probe.
func handleHealthCheck(c *gin.Context) {
	c.JSON(constants.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadyCheck reports 503 until storage answers a ping.
func (s *Service) handleReadyCheck(c *gin.Context) {
	checks := make(map[string]interface{})
	ready := true

	ctx, cancel := util.NewTimeoutContext(constants.HealthCheckTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Storage health check failed",
			"error", err,
			"component", "health")
		checks["mongodb"] = gin.H{
			"status": "not ready",
			"reason": "Database connectivity check failed",
		}
		ready = false
	} else {
		checks["mongodb"] = gin.H{"status": "ready"}
	}

	checks["ai"] = gin.H{"configured": s.assistant.Configured()}
	switch {
	case s.bus == nil:
		checks["bus"] = gin.H{"enabled": false}
	case s.bus.Connected():
		checks["bus"] = gin.H{"enabled": true, "status": "ready"}
	default:
		checks["bus"] = gin.H{
			"enabled": true,
			"status":  "not ready",
			"reason":  "Message bus disconnected, reconnecting",
		}
		ready = false
	}
	checks["connections"] = s.registry.Count()

	status, code := "ready", constants.StatusOK
	if !ready {
		status, code = "not ready", constants.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
