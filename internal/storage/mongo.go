package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/real-rm/golog"
	"github.com/real-rm/gomongo"
	"github.com/real-rm/supportdesk/internal/agent"
	"github.com/real-rm/supportdesk/internal/assign"
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/ticket"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ticketCounterID = "ticket"

// SessionDocument is a chat session as stored in MongoDB
type SessionDocument struct {
	ID           string     `bson:"_id"`
	Status       string     `bson:"status"`
	CustomerID   string     `bson:"custId"`
	CustomerName string     `bson:"custNm,omitempty"`
	AgentID      string     `bson:"agentId,omitempty"`
	AgentName    string     `bson:"agentNm,omitempty"`
	AIOriginated bool       `bson:"ai"`
	TicketID     string     `bson:"ticketId,omitempty"`
	TicketNumber int64      `bson:"ticketNo,omitempty"`
	Seq          int64      `bson:"seq"`
	StartedAt    time.Time  `bson:"ts"`
	EndedAt      *time.Time `bson:"endTs,omitempty"`
}

// MessageDocument is one chat message as stored in MongoDB
type MessageDocument struct {
	ID         string    `bson:"_id"`
	SessionID  string    `bson:"sid"`
	Content    string    `bson:"content"`
	SenderType string    `bson:"sender"`
	SenderID   string    `bson:"senderId,omitempty"`
	Seq        int64     `bson:"seq"`
	CreatedAt  time.Time `bson:"ts"`
}

// TicketDocument is a ticket as stored in MongoDB
type TicketDocument struct {
	ID            string           `bson:"_id"`
	Number        int64            `bson:"no"`
	Subject       string           `bson:"subject"`
	Description   string           `bson:"desc"`
	Status        string           `bson:"status"`
	Channel       string           `bson:"channel"`
	CustomerID    string           `bson:"custId"`
	AgentID       string           `bson:"agentId,omitempty"`
	Locked        bool             `bson:"locked"`
	ChatSessionID string           `bson:"sid,omitempty"`
	Day           int              `bson:"day,omitempty"`
	Messages      []ticket.Message `bson:"msgs,omitempty"`
	CreatedAt     time.Time        `bson:"ts"`
	UpdatedAt     time.Time        `bson:"updTs"`
}

// AgentDocument is agent presence as stored in MongoDB
type AgentDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"nm"`
	Role      string    `bson:"role"`
	Status    string    `bson:"status"`
	UpdatedAt time.Time `bson:"updTs"`
}

type counterDocument struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// MongoStore implements Store on gomongo collections.
type MongoStore struct {
	mongo    *gomongo.Mongo
	sessions *gomongo.MongoCollection
	messages *gomongo.MongoCollection
	tickets  *gomongo.MongoCollection
	agents   *gomongo.MongoCollection
	counters *gomongo.MongoCollection
	logger   *golog.Logger
	cipher   *contentCipher
	retry    retryConfig
	now      func() time.Time
}

// NewMongoStore opens the collections of dbName. encryptionKey may be empty;
// otherwise it must be 32 bytes and message content is encrypted at rest.
func NewMongoStore(m *gomongo.Mongo, dbName string, logger *golog.Logger, encryptionKey []byte) (*MongoStore, error) {
	c, err := newContentCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &MongoStore{
		mongo:    m,
		sessions: m.Coll(dbName, constants.CollSessions),
		messages: m.Coll(dbName, constants.CollMessages),
		tickets:  m.Coll(dbName, constants.CollTickets),
		agents:   m.Coll(dbName, constants.CollAgents),
		counters: m.Coll(dbName, constants.CollCounters),
		logger:   logger.WithGroup("storage"),
		cipher:   c,
		retry:    defaultRetryConfig,
		now:      time.Now,
	}, nil
}

func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.MongoDBOperationDuration.With(prometheus.Labels{"operation": operation}).Observe(time.Since(start).Seconds())
	}
}

func (s *MongoStore) do(ctx context.Context, operation string, fn func() error) error {
	return retryOperation(ctx, s.logger, s.retry, operation, fn)
}

// doGuarded is do for compare-and-set writes.
func (s *MongoStore) doGuarded(ctx context.Context, operation string, fn func() error) error {
	return retryOperation(ctx, s.logger, s.retry.guarded(), operation, fn)
}

// EnsureIndexes creates the indexes used by listing, assignment and history.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	sessionIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: constants.MongoFieldStatus, Value: 1}, {Key: constants.MongoFieldStartedAt, Value: 1}},
			Options: options.Index().SetName(constants.IndexSessionStatus),
		},
		{
			Keys:    bson.D{{Key: constants.MongoFieldCustomerID, Value: 1}, {Key: constants.MongoFieldStartedAt, Value: -1}},
			Options: options.Index().SetName(constants.IndexSessionCustomer),
		},
		{
			Keys:    bson.D{{Key: constants.MongoFieldAgentID, Value: 1}, {Key: constants.MongoFieldStatus, Value: 1}},
			Options: options.Index().SetName(constants.IndexSessionAgent),
		},
	}
	if _, err := s.sessions.CreateIndexes(ctx, sessionIndexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	messageIndex := []mongo.IndexModel{{
		Keys:    bson.D{{Key: constants.MongoFieldSessionID, Value: 1}, {Key: constants.MongoFieldSeq, Value: 1}},
		Options: options.Index().SetName(constants.IndexMessageSession).SetUnique(true),
	}}
	if _, err := s.messages.CreateIndexes(ctx, messageIndex); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	ticketIndex := []mongo.IndexModel{{
		Keys:    bson.D{{Key: constants.MongoFieldAgentID, Value: 1}, {Key: constants.MongoFieldStatus, Value: 1}},
		Options: options.Index().SetName(constants.IndexTicketAgent),
	}}
	if _, err := s.tickets.CreateIndexes(ctx, ticketIndex); err != nil {
		return fmt.Errorf("failed to create ticket indexes: %w", err)
	}

	agentIndex := []mongo.IndexModel{{
		Keys:    bson.D{{Key: constants.MongoFieldRole, Value: 1}, {Key: constants.MongoFieldStatus, Value: 1}},
		Options: options.Index().SetName(constants.IndexAgentPresence),
	}}
	if _, err := s.agents.CreateIndexes(ctx, agentIndex); err != nil {
		return fmt.Errorf("failed to create agent indexes: %w", err)
	}

	s.logger.Info("MongoDB indexes created successfully",
		"indexes", []string{
			constants.IndexSessionStatus, constants.IndexSessionCustomer, constants.IndexSessionAgent,
			constants.IndexMessageSession, constants.IndexTicketAgent, constants.IndexAgentPresence,
		})
	return nil
}

// Ping checks connectivity with a cheap read.
func (s *MongoStore) Ping(ctx context.Context) error {
	var doc counterDocument
	err := s.counters.FindOne(ctx, bson.M{constants.MongoFieldID: ticketCounterID}).Decode(&doc)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

// CreateSession inserts a new session document.
func (s *MongoStore) CreateSession(ctx context.Context, sess *session.ChatSession) error {
	if sess.ID == "" {
		return ErrInvalidSessionID
	}
	defer observe("create_session")()

	doc := sessionToDocument(sess)
	err := s.do(ctx, "CreateSession", func() error {
		_, err := s.sessions.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads a session without its messages.
func (s *MongoStore) GetSession(ctx context.Context, id string) (*session.ChatSession, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	defer observe("get_session")()

	var doc SessionDocument
	err := s.do(ctx, "GetSession", func() error {
		return s.sessions.FindOne(ctx, bson.M{constants.MongoFieldID: id}).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return documentToSession(&doc), nil
}

// ListSessions returns sessions matching q ordered by start time.
func (s *MongoStore) ListSessions(ctx context.Context, q SessionQuery) ([]*session.ChatSession, error) {
	defer observe("list_sessions")()

	filter := bson.M{}
	if len(q.Statuses) > 0 {
		filter[constants.MongoFieldStatus] = bson.M{"$in": q.Statuses}
	}
	if q.CustomerID != "" {
		filter[constants.MongoFieldCustomerID] = q.CustomerID
	}
	if q.AgentID != "" {
		if q.IncludeUnassigned {
			filter["$or"] = bson.A{
				bson.M{constants.MongoFieldAgentID: q.AgentID},
				bson.M{constants.MongoFieldAgentID: bson.M{"$exists": false}},
			}
		} else {
			filter[constants.MongoFieldAgentID] = q.AgentID
		}
	}

	order := -1
	if q.OldestFirst {
		order = 1
	}
	queryOpts := gomongo.QueryOptions{
		Sort:  bson.D{{Key: constants.MongoFieldStartedAt, Value: order}},
		Limit: int64(clampLimit(q.Limit)),
	}

	cursor, err := s.sessions.Find(ctx, filter, queryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*session.ChatSession
	for cursor.Next(ctx) {
		var doc SessionDocument
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Warn("Failed to decode session document", "error", err)
			continue
		}
		out = append(out, documentToSession(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

// TransitionSession applies t atomically with FindOneAndUpdate filtered on
// the allowed source statuses.
func (s *MongoStore) TransitionSession(ctx context.Context, id string, t Transition) (*session.ChatSession, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	defer observe("transition_session")()

	set := bson.M{constants.MongoFieldStatus: t.To}
	unset := bson.M{}
	if t.AgentID != "" {
		set[constants.MongoFieldAgentID] = t.AgentID
		set[constants.MongoFieldAgentName] = t.AgentName
	} else if t.To == session.StatusWaiting || t.To == session.StatusAIActive {
		unset[constants.MongoFieldAgentID] = ""
		unset[constants.MongoFieldAgentName] = ""
	}
	if t.EndedAt != nil {
		set[constants.MongoFieldEndedAt] = *t.EndedAt
	}
	if t.TicketID != "" {
		set[constants.MongoFieldTicketID] = t.TicketID
		set[constants.MongoFieldTicketNumber] = t.TicketNumber
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	filter := bson.M{
		constants.MongoFieldID:     id,
		constants.MongoFieldStatus: bson.M{"$in": t.From},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc SessionDocument
	err := s.doGuarded(ctx, "TransitionSession", func() error {
		return s.sessions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	})
	if err == nil {
		metrics.SessionTransitions.WithLabelValues(string(t.To)).Inc()
		return documentToSession(&doc), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to transition session: %w", err)
	}
	if _, getErr := s.GetSession(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusConflict
}

// AppendMessage reserves the next sequence number on the session document
// and inserts the message.
func (s *MongoStore) AppendMessage(ctx context.Context, msg *session.Message, openOnly bool) error {
	if msg.SessionID == "" {
		return ErrInvalidSessionID
	}
	defer observe("append_message")()

	filter := bson.M{constants.MongoFieldID: msg.SessionID}
	if openOnly {
		filter[constants.MongoFieldStatus] = bson.M{"$nin": []session.Status{session.StatusEnded, session.StatusConverted}}
	}
	update := bson.M{"$inc": bson.M{constants.MongoFieldSeq: 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc SessionDocument
	err := s.do(ctx, "AppendMessage.seq", func() error {
		return s.sessions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	})
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("failed to reserve message sequence: %w", err)
		}
		if _, getErr := s.GetSession(ctx, msg.SessionID); getErr != nil {
			return getErr
		}
		return ErrStatusConflict
	}
	msg.Seq = doc.Seq

	content, err := s.cipher.encrypt(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encrypt message content: %w", err)
	}
	mdoc := MessageDocument{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		Content:    content,
		SenderType: string(msg.SenderType),
		SenderID:   msg.SenderID,
		Seq:        msg.Seq,
		CreatedAt:  msg.CreatedAt,
	}
	err = s.do(ctx, "AppendMessage.insert", func() error {
		_, err := s.messages.InsertOne(ctx, mdoc)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	metrics.MessagesStored.WithLabelValues(string(msg.SenderType)).Inc()
	return nil
}

// ListMessages returns a session's history in sequence order.
func (s *MongoStore) ListMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	defer observe("list_messages")()

	queryOpts := gomongo.QueryOptions{
		Sort: bson.D{{Key: constants.MongoFieldSeq, Value: 1}},
	}
	cursor, err := s.messages.Find(ctx, bson.M{constants.MongoFieldSessionID: sessionID}, queryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*session.Message
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		content, err := s.cipher.decrypt(doc.Content)
		if err != nil {
			// Rows written before encryption was enabled are plaintext.
			content = doc.Content
		}
		out = append(out, &session.Message{
			ID:         doc.ID,
			SessionID:  doc.SessionID,
			Content:    content,
			SenderType: session.SenderType(doc.SenderType),
			SenderID:   doc.SenderID,
			Seq:        doc.Seq,
			CreatedAt:  doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

// CreateTicket numbers the ticket from the counters collection and inserts it.
func (s *MongoStore) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	defer observe("create_ticket")()

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter counterDocument
	err := s.do(ctx, "CreateTicket.counter", func() error {
		return s.counters.FindOneAndUpdate(ctx,
			bson.M{constants.MongoFieldID: ticketCounterID},
			bson.M{"$inc": bson.M{constants.MongoFieldSeq: 1}},
			opts,
		).Decode(&counter)
	})
	if err != nil {
		return fmt.Errorf("failed to allocate ticket number: %w", err)
	}
	t.Number = counter.Seq

	doc := ticketToDocument(t)
	err = s.do(ctx, "CreateTicket.insert", func() error {
		_, err := s.tickets.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetTicket loads a ticket by id.
func (s *MongoStore) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	defer observe("get_ticket")()

	var doc TicketDocument
	err := s.do(ctx, "GetTicket", func() error {
		return s.tickets.FindOne(ctx, bson.M{constants.MongoFieldID: id}).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return documentToTicket(&doc), nil
}

// AssignTicket sets the agent, marks the ticket ASSIGNED and locks it.
func (s *MongoStore) AssignTicket(ctx context.Context, id, agentID string) (*ticket.Ticket, error) {
	defer observe("assign_ticket")()

	update := bson.M{"$set": bson.M{
		constants.MongoFieldAgentID:   agentID,
		constants.MongoFieldStatus:    ticket.StatusAssigned,
		constants.MongoFieldLocked:    true,
		constants.MongoFieldUpdatedAt: s.now(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc TicketDocument
	err := s.do(ctx, "AssignTicket", func() error {
		return s.tickets.FindOneAndUpdate(ctx, bson.M{constants.MongoFieldID: id}, update, opts).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to assign ticket: %w", err)
	}
	return documentToTicket(&doc), nil
}

// DeleteTicket removes a ticket by id. The ticket number stays consumed.
func (s *MongoStore) DeleteTicket(ctx context.Context, id string) error {
	defer observe("delete_ticket")()

	var deleted int64
	err := s.do(ctx, "DeleteTicket", func() error {
		res, err := s.tickets.DeleteOne(ctx, bson.M{constants.MongoFieldID: id})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if deleted == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// SaveAgentStatus upserts an agent's presence record.
func (s *MongoStore) SaveAgentStatus(ctx context.Context, a *agent.Agent) error {
	defer observe("save_agent_status")()

	set := bson.M{
		constants.MongoFieldStatus:    a.Status,
		constants.MongoFieldRole:      a.Role,
		constants.MongoFieldUpdatedAt: a.UpdatedAt,
	}
	if a.Name != "" {
		set[constants.MongoFieldName] = a.Name
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc AgentDocument
	err := s.do(ctx, "SaveAgentStatus", func() error {
		return s.agents.FindOneAndUpdate(ctx, bson.M{constants.MongoFieldID: a.ID}, bson.M{"$set": set}, opts).Decode(&doc)
	})
	if err != nil {
		return fmt.Errorf("failed to save agent status: %w", err)
	}
	a.Name = doc.Name
	return nil
}

// GetAgent loads an agent by id.
func (s *MongoStore) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	var doc AgentDocument
	err := s.do(ctx, "GetAgent", func() error {
		return s.agents.FindOne(ctx, bson.M{constants.MongoFieldID: id}).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return documentToAgent(&doc), nil
}

// ListAgents returns agents with status, or all agents when status is empty.
func (s *MongoStore) ListAgents(ctx context.Context, status agent.Status) ([]*agent.Agent, error) {
	filter := bson.M{}
	if status != "" {
		filter[constants.MongoFieldStatus] = status
	}
	cursor, err := s.agents.Find(ctx, filter, gomongo.QueryOptions{
		Sort: bson.D{{Key: constants.MongoFieldID, Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*agent.Agent
	for cursor.Next(ctx) {
		var doc AgentDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode agent: %w", err)
		}
		out = append(out, documentToAgent(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

// Candidates computes every online agent's workload in one aggregate: open
// tickets and active chats are counted with $lookup sub-pipelines.
func (s *MongoStore) Candidates(ctx context.Context) ([]assign.Candidate, error) {
	defer observe("candidates")()

	countLookup := func(from string, statuses interface{}, as string) bson.D {
		return bson.D{{Key: "$lookup", Value: bson.M{
			"from": from,
			"let":  bson.M{"aid": "$" + constants.MongoFieldID},
			"pipeline": mongo.Pipeline{
				{{Key: "$match", Value: bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$" + constants.MongoFieldAgentID, "$$aid"}},
					bson.M{"$in": bson.A{"$" + constants.MongoFieldStatus, statuses}},
				}}}}},
				{{Key: "$count", Value: "n"}},
			},
			"as": as,
		}}}
	}
	firstCount := func(field string) bson.M {
		return bson.M{"$ifNull": bson.A{bson.M{"$arrayElemAt": bson.A{"$" + field + ".n", 0}}, 0}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			constants.MongoFieldStatus: agent.StatusOnline,
			constants.MongoFieldRole:   constants.RoleAgent,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: constants.MongoFieldID, Value: 1}}}},
		countLookup(constants.CollTickets, ticket.WorkloadStatuses, "tickets"),
		countLookup(constants.CollSessions, bson.A{session.StatusActive}, "chats"),
		{{Key: "$project", Value: bson.M{
			constants.MongoFieldName: 1,
			"openTickets":            firstCount("tickets"),
			"activeChats":            firstCount("chats"),
		}}},
	}

	cursor, err := s.agents.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate workloads: %w", err)
	}
	defer cursor.Close(ctx)

	var out []assign.Candidate
	for cursor.Next(ctx) {
		var row struct {
			ID          string `bson:"_id"`
			Name        string `bson:"nm"`
			OpenTickets int    `bson:"openTickets"`
			ActiveChats int    `bson:"activeChats"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode workload: %w", err)
		}
		out = append(out, assign.Candidate{
			AgentID:     row.ID,
			Name:        row.Name,
			OpenTickets: row.OpenTickets,
			ActiveChats: row.ActiveChats,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

func sessionToDocument(s *session.ChatSession) *SessionDocument {
	return &SessionDocument{
		ID:           s.ID,
		Status:       string(s.Status),
		CustomerID:   s.CustomerID,
		CustomerName: s.CustomerName,
		AgentID:      s.AgentID,
		AgentName:    s.AgentName,
		AIOriginated: s.AIOriginated,
		TicketID:     s.TicketID,
		TicketNumber: s.TicketNumber,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
	}
}

func documentToSession(d *SessionDocument) *session.ChatSession {
	return &session.ChatSession{
		ID:           d.ID,
		Status:       session.Status(d.Status),
		CustomerID:   d.CustomerID,
		CustomerName: d.CustomerName,
		AgentID:      d.AgentID,
		AgentName:    d.AgentName,
		AIOriginated: d.AIOriginated,
		TicketID:     d.TicketID,
		TicketNumber: d.TicketNumber,
		StartedAt:    d.StartedAt,
		EndedAt:      d.EndedAt,
	}
}

func ticketToDocument(t *ticket.Ticket) *TicketDocument {
	return &TicketDocument{
		ID:            t.ID,
		Number:        t.Number,
		Subject:       t.Subject,
		Description:   t.Description,
		Status:        string(t.Status),
		Channel:       string(t.Channel),
		CustomerID:    t.CustomerID,
		AgentID:       t.AgentID,
		Locked:        t.Locked,
		ChatSessionID: t.ChatSessionID,
		Day:           t.Day,
		Messages:      t.Messages,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func documentToTicket(d *TicketDocument) *ticket.Ticket {
	return &ticket.Ticket{
		ID:            d.ID,
		Number:        d.Number,
		Subject:       d.Subject,
		Description:   d.Description,
		Status:        ticket.Status(d.Status),
		Channel:       ticket.Channel(d.Channel),
		CustomerID:    d.CustomerID,
		AgentID:       d.AgentID,
		Locked:        d.Locked,
		ChatSessionID: d.ChatSessionID,
		Day:           d.Day,
		Messages:      d.Messages,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func documentToAgent(d *AgentDocument) *agent.Agent {
	return &agent.Agent{
		ID:        d.ID,
		Name:      d.Name,
		Role:      d.Role,
		Status:    agent.Status(d.Status),
		UpdatedAt: d.UpdatedAt,
	}
}
