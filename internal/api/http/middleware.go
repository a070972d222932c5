package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/auth"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/metrics"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/ratelimit"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	identityKey     = "identity"
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

type Middleware struct {
	identities service.IdentityInteractor
	limiter    *ratelimit.KeyedLimiter
	metrics    *metrics.Metrics
	log        *slog.Logger
	maxBody    int64
}

func NewMiddleware(identities service.IdentityInteractor, limiter *ratelimit.KeyedLimiter, m *metrics.Metrics, log *slog.Logger, maxBody int64) *Middleware {
	if log == nil {
		log = slog.Default()
	}
	return &Middleware{
		identities: identities,
		limiter:    limiter,
		metrics:    m,
		log:        log,
		maxBody:    maxBody,
	}
}

// RequestID reuses the caller's X-Request-ID or generates one.
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		ctx.Set(requestIDKey, id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

func (m *Middleware) Logger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		level := slog.LevelDebug
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		m.log.Log(ctx.Request.Context(), level, "http request",
			"method", ctx.Request.Method,
			"path", ctx.FullPath(),
			"status", ctx.Writer.Status(),
			"duration", time.Since(start).String(),
			"request_id", ctx.GetString(requestIDKey),
		)
	}
}

// Authenticate resolves the caller from the Authorization header, or from
// the token query parameter for websocket upgrades, and aborts with 401
// when no valid identity is present.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := auth.BearerToken(ctx.GetHeader("Authorization"))
		if err != nil {
			token = ctx.Query("token")
		}

		identity, err := m.identities.Authenticate(token)
		if err != nil {
			m.log.Debug("authentication failed",
				"request_id", ctx.GetString(requestIDKey),
				"error", err.Error(),
			)
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": service.ErrUnauthenticated.Error()})
			return
		}

		ctx.Set(identityKey, identity)
		ctx.Next()
	}
}

// RateLimit must run after Authenticate; it budgets requests per subject.
func (m *Middleware) RateLimit() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		identity := identityFrom(ctx)
		if identity != nil && !m.limiter.Allow(identity.Subject) {
			m.metrics.IncRateLimited()
			status, body := errorResponse(errRateLimited)
			ctx.AbortWithStatusJSON(status, body)
			return
		}
		ctx.Next()
	}
}

func (m *Middleware) MaxBody() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if m.maxBody > 0 && ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, m.maxBody)
		}
		ctx.Next()
	}
}

func identityFrom(ctx *gin.Context) *domain.Identity {
	value, ok := ctx.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := value.(*domain.Identity)
	return identity
}
