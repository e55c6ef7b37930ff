package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/middleware"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
	ws "github.com/scoutexam/exam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live exam session to the taker's device.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            logger.Component(log, "ws_handler"),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/exam/sessions/:id/stream
// Pushes the session's notices (ticks, warnings, completion) and accepts the
// same commands as the REST endpoints. Every command is answered with the
// resulting state.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID := c.Param("id")
	if _, err := uuid.Parse(attemptID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	takerID := claims.UserID
	wsLog := h.log.With().
		Int("taker_id", takerID).
		Str("attempt_id", attemptID).
		Logger()

	// Subscribe checks ownership and restores the session if needed.
	notices, unsubscribe, err := h.sessionService.Subscribe(ctx, takerID, attemptID)
	if err != nil {
		writeSessionError(conn, err)
		return
	}
	defer unsubscribe()

	view, err := h.sessionService.State(ctx, takerID, attemptID)
	if err != nil {
		writeSessionError(conn, err)
		return
	}
	if err := conn.WriteEvent(ws.EventState, view); err != nil {
		return
	}

	wsLog.Info().Msg("Taker connected")

	go h.forward(ctx, conn, notices, wsLog)

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(ctx, conn, takerID, attemptID, &msg, wsLog)
	}
}

// forward pushes hub notices to the client until the connection ends.
func (h *WSHandler) forward(ctx context.Context, conn *ws.Conn, notices <-chan engine.Notice, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			if err := conn.WriteEvent(ws.EventForNotice(n.Kind), n); err != nil {
				log.Debug().Err(err).Msg("Notice write failed")
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, takerID int, attemptID string, msg *ws.RequestPayload, log zerolog.Logger) {
	var (
		view *service.SessionView
		err  error
	)

	switch msg.Action {
	case ws.ActionPing:
		conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	case ws.ActionState:
		view, err = h.sessionService.State(ctx, takerID, attemptID)
	case ws.ActionAnswer:
		if msg.QuestionID == "" {
			conn.WriteError(string(response.ErrValidation), "question_id is required")
			return
		}
		var v engine.Value
		if msg.Answer != nil {
			v = *msg.Answer
		}
		view, err = h.sessionService.Answer(ctx, takerID, attemptID, msg.QuestionID, v)
	case ws.ActionNext:
		view, err = h.sessionService.Next(ctx, takerID, attemptID)
	case ws.ActionPrevious:
		view, err = h.sessionService.Previous(ctx, takerID, attemptID)
	case ws.ActionSubmit:
		view, err = h.sessionService.Submit(ctx, takerID, attemptID)
	case ws.ActionFocusLost:
		view, err = h.sessionService.FocusLost(ctx, takerID, attemptID)
	case ws.ActionRestricted:
		view, err = h.sessionService.Restricted(ctx, takerID, attemptID, msg.Restricted)
	case ws.ActionKey:
		view, _, err = h.sessionService.Key(ctx, takerID, attemptID, msg.Key, msg.Ctrl, msg.Shift)
	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return
	}

	if err != nil {
		status, _ := classifySessionError(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("action", string(msg.Action)).Msg("Session command failed")
		}
		writeSessionError(conn, err)
		return
	}
	conn.WriteEvent(ws.EventState, view)
}

func writeSessionError(conn *ws.Conn, err error) {
	_, code := classifySessionError(err)
	conn.WriteError(string(code), response.GetMessage(code))
}
