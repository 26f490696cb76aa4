package response

import (
	"errors"
	"net/http"

	"github.com/stemsi/quizroom/internal/game"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired   ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid    ErrCode = "TOKEN_INVALID"
	ErrSessionReplaced ErrCode = "SESSION_REPLACED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation      ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload  ErrCode = "INVALID_PAYLOAD"
	ErrUnknownEvent    ErrCode = "UNKNOWN_EVENT"
	ErrUnknownQuestion ErrCode = "UNKNOWN_QUESTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrRoomNotFound    ErrCode = "ROOM_NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"
	ErrNoQuestions     ErrCode = "NO_QUESTIONS"

	// ─── Game state ────────────────────────────────────────────────────
	ErrRoomFull         ErrCode = "ROOM_FULL"
	ErrGameFinished     ErrCode = "GAME_FINISHED"
	ErrGameInProgress   ErrCode = "GAME_IN_PROGRESS"
	ErrNotInRoom        ErrCode = "NOT_IN_ROOM"
	ErrNotPlaying       ErrCode = "NOT_PLAYING"
	ErrNotEnoughPlayers ErrCode = "NOT_ENOUGH_PLAYERS"
	ErrStaleAnswer      ErrCode = "STALE_ANSWER"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrUnavailable ErrCode = "SERVICE_UNAVAILABLE"
	ErrInternal    ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."
	case ErrSessionReplaced:
		return "This connection was replaced by a newer one for the same player."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to perform this action."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Request payload is invalid."
	case ErrUnknownEvent:
		return "Unknown event."
	case ErrUnknownQuestion:
		return "Question is not part of this game."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrRoomNotFound:
		return "Room not found."
	case ErrSessionNotFound:
		return "No game session for this player."
	case ErrNoQuestions:
		return "Room has no questions."

	// ─── Game state ────────────────────────────────────────────────────
	case ErrRoomFull:
		return "Room is full."
	case ErrGameFinished:
		return "Game has already finished."
	case ErrGameInProgress:
		return "Game is already in progress."
	case ErrNotInRoom:
		return "You are not in this room."
	case ErrNotPlaying:
		return "Game is not in progress."
	case ErrNotEnoughPlayers:
		return "Not enough players to start."
	case ErrStaleAnswer:
		return "Answer was already recorded or is out of order."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrUnavailable:
		return "Service is temporarily unavailable. Please retry."
	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}

// FromGameError maps an engine error to its code and HTTP status.
// Unrecognized errors are internal.
func FromGameError(err error) (ErrCode, int) {
	switch {
	case errors.Is(err, game.ErrInvalidPayload):
		return ErrInvalidPayload, http.StatusBadRequest
	case errors.Is(err, game.ErrUnknownQuestion):
		return ErrUnknownQuestion, http.StatusBadRequest
	case errors.Is(err, game.ErrRoomNotFound):
		return ErrRoomNotFound, http.StatusNotFound
	case errors.Is(err, game.ErrSessionNotFound):
		return ErrSessionNotFound, http.StatusNotFound
	case errors.Is(err, game.ErrRoomFull):
		return ErrRoomFull, http.StatusConflict
	case errors.Is(err, game.ErrGameFinished):
		return ErrGameFinished, http.StatusConflict
	case errors.Is(err, game.ErrGameInProgress):
		return ErrGameInProgress, http.StatusConflict
	case errors.Is(err, game.ErrNotInRoom):
		return ErrNotInRoom, http.StatusConflict
	case errors.Is(err, game.ErrNotPlaying):
		return ErrNotPlaying, http.StatusConflict
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return ErrNotEnoughPlayers, http.StatusConflict
	case errors.Is(err, game.ErrForbidden):
		return ErrForbidden, http.StatusForbidden
	case errors.Is(err, game.ErrStaleAnswer):
		return ErrStaleAnswer, http.StatusConflict
	case errors.Is(err, game.ErrEngineStopped):
		return ErrUnavailable, http.StatusServiceUnavailable
	default:
		return ErrInternal, http.StatusInternalServerError
	}
}
