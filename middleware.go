package supportdesk

import (
	"net"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/real-rm/golog"

	"github.com/real-rm/supportdesk/internal/auth"
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/httperrors"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/ratelimit"
	"github.com/real-rm/supportdesk/internal/util"
)

const claimsKey = "claims"

// securityHeadersMiddleware adds standard HTTP security headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// metricsMiddleware records HTTP request duration.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.HTTPRequestDuration.With(prometheus.Labels{
			"endpoint": c.FullPath(),
			"method":   c.Request.Method,
		}).Observe(time.Since(start).Seconds())
	}
}

// authMiddleware validates the bearer token and stores the claims.
func authMiddleware(validator *auth.JWTValidator, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := util.ExtractBearerToken(c.GetHeader(constants.HeaderAuthorization))
		if err != nil {
			httperrors.RespondUnauthorized(c, httperrors.MsgInvalidAuthHeader)
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			logger.Warn("Token validation failed",
				"error", err,
				"component", "auth")
			httperrors.RespondInvalidToken(c)
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireRole rejects callers whose token carries none of roles. A token
// with no roles counts as a customer.
func requireRole(logger *golog.Logger, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			httperrors.RespondUnauthorized(c, "")
			c.Abort()
			return
		}
		role := claims.Participant().Role
		for _, r := range roles {
			if r == role || claims.HasRole(r) {
				c.Next()
				return
			}
		}
		logger.Warn("Insufficient permissions",
			"user_id", claims.UserID,
			"roles", claims.Roles,
			"endpoint", c.FullPath(),
			"component", "auth")
		httperrors.RespondForbidden(c)
		c.Abort()
	}
}

// apiRateLimitMiddleware limits authenticated requests per user.
func apiRateLimitMiddleware(limiter *ratelimit.WindowLimiter, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			c.Next()
			return
		}
		if limiter.Allow(claims.UserID) {
			c.Next()
			return
		}
		retryAfter := limiter.RetryAfter(claims.UserID)
		logger.Warn("API rate limit exceeded",
			"user_id", claims.UserID,
			"endpoint", c.Request.URL.Path,
			"retry_after_ms", retryAfter.Milliseconds(),
			"component", "api_rate_limit")
		respondRateLimited(c, retryAfter)
	}
}

// publicRateLimitMiddleware limits probes and metrics by client IP.
func publicRateLimitMiddleware(limiter *ratelimit.WindowLimiter, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if limiter.Allow(clientIP) {
			c.Next()
			return
		}
		logger.Debug("Public endpoint rate limit exceeded", "client_ip", clientIP)
		respondRateLimited(c, limiter.RetryAfter(clientIP))
	}
}

func respondRateLimited(c *gin.Context, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < constants.MinRetryAfterSeconds {
		seconds = constants.MinRetryAfterSeconds
	}
	c.Header(constants.HeaderRetryAfter, strconv.Itoa(seconds))
	c.JSON(constants.StatusTooManyRequests, gin.H{
		"error":          "rate_limit_exceeded",
		"message":        constants.ErrMsgRateLimitExceeded,
		"retry_after_ms": retryAfter.Milliseconds(),
	})
	c.Abort()
}

// parseNetworks parses CIDR strings, skipping invalid ones.
func parseNetworks(cidrs []string, logger *golog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("Invalid CIDR in metrics_allowed_networks", "cidr", cidr, "error", err)
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// metricsNetworkMiddleware restricts the metrics endpoint to allowedNets. An
// empty list allows everyone.
func metricsNetworkMiddleware(allowedNets []*net.IPNet, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(allowedNets) == 0 {
			c.Next()
			return
		}

		clientIP := net.ParseIP(c.ClientIP())
		if clientIP != nil {
			for _, ipNet := range allowedNets {
				if ipNet.Contains(clientIP) {
					c.Next()
					return
				}
			}
		}

		logger.Warn("Metrics access denied from unauthorized network",
			"client_ip", c.ClientIP(),
			"component", "metrics")
		httperrors.RespondForbidden(c)
		c.Abort()
	}
}

func claimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
