package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/game"
	"github.com/stemsi/quizroom/internal/middleware"
	"github.com/stemsi/quizroom/internal/response"
	"github.com/stemsi/quizroom/internal/service"
	"github.com/stemsi/quizroom/internal/validator"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

// disconnectTimeout bounds the Disconnect call made after the socket is gone,
// when the request context can no longer be relied on.
const disconnectTimeout = 5 * time.Second

var (
	errUnknownEvent = errors.New("unknown event")
	errRateLimited  = errors.New("rate limited")
)

// payloadError carries translated field errors of an inbound payload.
type payloadError struct {
	fields map[string]string
}

func (e *payloadError) Error() string { return validator.Summary(e.fields) }

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

// WSHandler serves the play socket: it decodes inbound events, hands them
// to the engine and reports failures back on the same connection.
type WSHandler struct {
	engine   *game.Engine
	limiter  *middleware.RateLimiter
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter may be nil.
func NewWSHandler(engine *game.Engine, limiter *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   engine,
		limiter:  limiter,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Play godoc
// WS /ws/v1/play?token=...
// Upgrades to WebSocket and runs the read loop until the socket closes.
func (h *WSHandler) Play(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, h.log)
	go client.WritePump()

	wsLog := h.log.With().
		Str("player_id", claims.PlayerID).
		Str("conn_id", client.ID()).
		Logger()
	wsLog.Info().Msg("Player connected")

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		h.engine.Disconnect(ctx, client)
		if h.limiter != nil {
			h.limiter.Forget(client.ID())
		}
		client.Close()
		wsLog.Info().Msg("Player disconnected")
	}()

	ctx := c.Request.Context()
	for {
		var env ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Err(err).Msg("Connection closed")
			}
			return
		}

		var err error
		if h.limiter != nil && !h.limiter.Allow(client.ID()) {
			err = errRateLimited
		} else {
			err = h.dispatch(ctx, client, claims, env)
		}
		h.reply(wsLog, client, env, err)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *ws.Client, claims *service.Claims, env ws.RequestEnvelope) error {
	switch env.Event {
	case ws.ActionJoinRoom:
		var req ws.JoinRoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		if req.PlayerID != claims.PlayerID {
			return game.ErrForbidden
		}
		return h.engine.Join(ctx, client, req.RoomCode, req.PlayerID)

	case ws.ActionLeaveRoom:
		var req ws.RoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return h.engine.Leave(ctx, client, req.RoomCode)

	case ws.ActionPlayerReady:
		var req ws.RoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return h.engine.Ready(ctx, client, req.RoomCode)

	case ws.ActionAnswerQuestion:
		var req ws.AnswerQuestionRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return h.engine.SubmitAnswer(ctx, client, game.AnswerInput{
			RoomCode:       req.RoomCode,
			QuestionID:     req.QuestionID,
			SelectedAnswer: req.SelectedAnswer,
			TimeSpent:      time.Duration(req.TimeSpent) * time.Millisecond,
		})

	case ws.ActionRequestQuestion:
		var req ws.RequestQuestionRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return h.engine.RequestQuestion(ctx, client, req.RoomCode, req.QuestionIndex)

	case ws.ActionRequestGameState:
		var req ws.RoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return h.engine.RequestState(ctx, client, req.RoomCode)

	case ws.ActionAdminForceStart:
		var req ws.RoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return h.engine.ForceStart(ctx, req.RoomCode, game.Actor{
			PlayerID: claims.PlayerID,
			Host:     claims.Role == service.RoleHost,
		})

	case ws.ActionHeartbeat:
		client.Send(ws.Message{
			Event: ws.EventHeartbeat,
			Data:  ws.HeartbeatResponse{ServerTime: time.Now().UnixMilli()},
		})
		return nil

	default:
		return errUnknownEvent
	}
}

// reply sends the ack when one was requested and an error event on failure.
func (h *WSHandler) reply(log zerolog.Logger, client *ws.Client, env ws.RequestEnvelope, err error) {
	var body *ws.ErrorResponse
	if err != nil {
		code, msg := describe(err)
		if code == response.ErrInternal {
			log.Error().Err(err).Str("event", string(env.Event)).Msg("Event handling failed")
		} else {
			log.Debug().Err(err).Str("event", string(env.Event)).Msg("Event rejected")
		}
		body = &ws.ErrorResponse{Code: string(code), Message: msg}
		client.Send(ws.Message{Event: ws.EventError, Data: *body})
	}

	if env.AckID != "" {
		client.Send(ws.Message{
			Event: ws.EventAck,
			Data:  ws.AckResponse{AckID: env.AckID, OK: err == nil, Error: body},
		})
	}
}

// decode unmarshals and validates an inbound payload.
func decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &payloadError{fields: map[string]string{"detail": "malformed payload"}}
	}
	if fields := validator.Struct(dst); fields != nil {
		return &payloadError{fields: fields}
	}
	return nil
}

func describe(err error) (response.ErrCode, string) {
	var pe *payloadError
	switch {
	case errors.As(err, &pe):
		return response.ErrValidation, pe.Error()
	case errors.Is(err, errUnknownEvent):
		return response.ErrUnknownEvent, response.GetMessage(response.ErrUnknownEvent)
	case errors.Is(err, errRateLimited):
		return response.ErrRateLimitExceeded, response.GetMessage(response.ErrRateLimitExceeded)
	}
	code, _ := response.FromGameError(err)
	return code, response.GetMessage(code)
}
