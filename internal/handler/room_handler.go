package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/game"
	"github.com/stemsi/quizroom/internal/middleware"
	"github.com/stemsi/quizroom/internal/model"
	"github.com/stemsi/quizroom/internal/response"
	"github.com/stemsi/quizroom/internal/service"
	"github.com/stemsi/quizroom/internal/validator"
)

// CacheRefresher re-warms a room's question cache.
type CacheRefresher interface {
	RefreshCache(ctx context.Context, room *model.Room) error
}

type roomURI struct {
	Code string `uri:"code" binding:"required,max=32"`
}

// RoomHandler serves room snapshots and host controls.
type RoomHandler struct {
	engine    *game.Engine
	questions CacheRefresher
	log       zerolog.Logger
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(engine *game.Engine, questions CacheRefresher, log zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		engine:    engine,
		questions: questions,
		log:       log.With().Str("component", "room_handler").Logger(),
	}
}

// GetRoom godoc
// GET /api/v1/rooms/:code
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code, ok := bindCode(c)
	if !ok {
		return
	}

	room, err := h.engine.Room(c.Request.Context(), code)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"room": room})
}

// GetLeaderboard godoc
// GET /api/v1/rooms/:code/leaderboard
// Final standings for a finished room, live standings otherwise.
func (h *RoomHandler) GetLeaderboard(c *gin.Context) {
	code, ok := bindCode(c)
	if !ok {
		return
	}

	board, err := h.engine.Leaderboard(c.Request.Context(), code)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"room_code": code, "leaderboard": board})
}

// ForceStart godoc
// POST /api/v1/host/rooms/:code/force-start
// Starts the countdown without waiting for every player to be ready.
func (h *RoomHandler) ForceStart(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	code, ok := bindCode(c)
	if !ok {
		return
	}

	actor := game.Actor{PlayerID: claims.PlayerID, Host: claims.Role == service.RoleHost}
	if err := h.engine.ForceStart(c.Request.Context(), code, actor); err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info().Str("room_code", code).Str("host", claims.PlayerID).Msg("Game force-started")
	response.Success(c, http.StatusAccepted, gin.H{"message": "Countdown started"})
}

// RefreshCache godoc
// POST /api/v1/host/rooms/:code/refresh-cache
// Reloads the room's questions from the corpus into Redis.
func (h *RoomHandler) RefreshCache(c *gin.Context) {
	code, ok := bindCode(c)
	if !ok {
		return
	}

	room, err := h.engine.Room(c.Request.Context(), code)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.questions.RefreshCache(c.Request.Context(), room); err != nil {
		if errors.Is(err, service.ErrNoQuestions) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
			return
		}
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Cache refreshed"})
}

// EndGame godoc
// POST /api/v1/host/rooms/:code/end
// Settles the room immediately.
func (h *RoomHandler) EndGame(c *gin.Context) {
	code, ok := bindCode(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	room, err := h.engine.Room(ctx, code)
	if err != nil {
		h.fail(c, err)
		return
	}
	if room.State == model.RoomStateFinished {
		response.Fail(c, http.StatusConflict, response.ErrGameFinished)
		return
	}

	if err := h.engine.Settle(ctx, code, game.ReasonAdmin); err != nil {
		h.fail(c, err)
		return
	}

	room, err = h.engine.Room(ctx, code)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"room": room})
}

func (h *RoomHandler) fail(c *gin.Context, err error) {
	code, status := response.FromGameError(err)
	if code == response.ErrInternal {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Room request failed")
	}
	response.Fail(c, status, code)
}

func bindCode(c *gin.Context) (string, bool) {
	var uri roomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return "", false
	}
	return uri.Code, true
}
