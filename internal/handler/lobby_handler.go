package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/response"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

const keepAliveInterval = 30 * time.Second

// LobbySubscriber opens a subscription to the global room-update channel.
type LobbySubscriber interface {
	Subscribe(ctx context.Context) *redis.PubSub
}

// LobbyHandler streams global room updates to lobby screens over SSE.
type LobbyHandler struct {
	lobby LobbySubscriber
	log   zerolog.Logger
}

// NewLobbyHandler creates a new LobbyHandler. A nil lobby disables the feed.
func NewLobbyHandler(lobby LobbySubscriber, log zerolog.Logger) *LobbyHandler {
	return &LobbyHandler{
		lobby: lobby,
		log:   log.With().Str("component", "lobby_handler").Logger(),
	}
}

// Stream godoc
// GET /api/v1/lobby/stream
// Each room-update-global event carries one room summary as published by any
// server instance.
func (h *LobbyHandler) Stream(c *gin.Context) {
	if h.lobby == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable)
		return
	}
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	pubsub := h.lobby.Subscribe(reqCtx)
	defer pubsub.Close()

	// Surface subscription failures before streaming.
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Warn().Err(err).Msg("Lobby subscription failed")
		c.SSEvent("error", gin.H{"type": "unavailable"})
		c.Writer.Flush()
		return
	}
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Debug().Msg("Lobby listener attached")

	c.SSEvent("ready", gin.H{"type": "ready"})
	c.Writer.Flush()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Debug().Msg("Lobby listener detached")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward the published JSON as-is.
			c.SSEvent(string(ws.EventRoomUpdateGlobal), json.RawMessage(msg.Payload))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}
