package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/api/http/converter"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/metrics"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/ratelimit"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/service"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/lib/logger/sl"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

const wsIdleTimeout = 2 * time.Minute

type signalRequest struct {
	RequestID  string          `json:"requestId,omitempty"`
	Action     string          `json:"action"`
	SessionID  string          `json:"sessionId"`
	Signal     json.RawMessage `json:"signal"`
	SignalData json.RawMessage `json:"signalData"`
	Role       string          `json:"role"`
}

func (r signalRequest) toDomain() domain.SignalRequest {
	signal := r.Signal
	if domain.IsEmptyPayload(signal) {
		signal = r.SignalData
	}
	return domain.SignalRequest{
		Action:    r.Action,
		SessionID: r.SessionID,
		Signal:    signal,
		Role:      r.Role,
	}
}

type SignalController struct {
	signals    service.SignalInteractor
	iceServers []webrtc.ICEServer
	limiter    *ratelimit.KeyedLimiter
	metrics    *metrics.Metrics
	log        *slog.Logger
	maxMessage int64
	upgrader   websocket.Upgrader
}

func NewSignalController(
	signals service.SignalInteractor,
	stunServers []string,
	allowedOrigins []string,
	limiter *ratelimit.KeyedLimiter,
	m *metrics.Metrics,
	log *slog.Logger,
	maxMessage int64,
) *SignalController {
	if log == nil {
		log = slog.Default()
	}
	iceServers := make([]webrtc.ICEServer, 0, 1)
	if len(stunServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stunServers})
	}
	return &SignalController{
		signals:    signals,
		iceServers: iceServers,
		limiter:    limiter,
		metrics:    m,
		log:        log,
		maxMessage: maxMessage,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Handle serves one JSON action envelope.
func (c *SignalController) Handle(ctx *gin.Context) {
	var req signalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	status, body := c.dispatch(ctx, identityFrom(ctx), req)
	ctx.JSON(status, body)
}

func (c *SignalController) ICEServers(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"iceServers": c.iceServers})
}

// Socket carries the same envelopes as Handle over a websocket. Every
// message gets exactly one reply, tagged with the message's requestId.
func (c *SignalController) Socket(ctx *gin.Context) {
	const op = "api.http.signal.socket"
	identity := identityFrom(ctx)
	log := c.log.With("op", op, "caller", identity.Subject)

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", sl.Err(err))
		return
	}
	defer conn.Close()

	c.metrics.WSOpened()
	defer c.metrics.WSClosed()

	if c.maxMessage > 0 {
		conn.SetReadLimit(c.maxMessage)
	}

	log.Info("websocket opened")
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		var req signalRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			// An empty or blank frame decodes as io.ErrUnexpectedEOF.
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				if err := conn.WriteJSON(gin.H{"error": "invalid request body"}); err != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed unexpectedly", sl.Err(err))
				return
			}
			log.Info("websocket closed")
			return
		}

		var body gin.H
		if !c.limiter.Allow(identity.Subject) {
			c.metrics.IncRateLimited()
			_, body = errorResponse(errRateLimited)
		} else {
			_, body = c.dispatch(ctx, identity, req)
		}
		if req.RequestID != "" {
			body["requestId"] = req.RequestID
		}

		if err := conn.WriteJSON(body); err != nil {
			log.Debug("websocket write failed", sl.Err(err))
			return
		}
	}
}

func (c *SignalController) dispatch(ctx *gin.Context, identity *domain.Identity, req signalRequest) (int, gin.H) {
	result, err := c.signals.Dispatch(ctx.Request.Context(), identity, req.toDomain())
	if err != nil {
		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			c.log.Error("signal action failed",
				"action", req.Action,
				"session_id", req.SessionID,
				"request_id", ctx.GetString(requestIDKey),
				sl.Err(err),
			)
		}
		return status, body
	}

	body := gin.H{"success": true}
	if result.Snapshot != nil {
		body[result.SnapshotKey()] = converter.SnapshotToApi(result.Snapshot)
	}
	return http.StatusOK, body
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin. A "*" entry allows
// every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
