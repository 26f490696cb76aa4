package game

import "errors"

var (
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownQuestion = errors.New("question is not part of this game")

	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")

	ErrRoomFull         = errors.New("room is full")
	ErrGameFinished     = errors.New("game already finished")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrNotInRoom        = errors.New("not a member of this room")
	ErrNotPlaying       = errors.New("game is not in progress")
	ErrNotEnoughPlayers = errors.New("room has no players")
	ErrForbidden        = errors.New("not allowed to control this room")

	ErrStaleAnswer = errors.New("answer is stale or duplicate")

	ErrEngineStopped = errors.New("engine stopped")
)

// ErrorKind groups engine errors by how a caller should react.
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStale
)

// Kind classifies err. Unknown errors are internal.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrUnknownQuestion):
		return KindValidation
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrRoomFull), errors.Is(err, ErrGameFinished),
		errors.Is(err, ErrGameInProgress), errors.Is(err, ErrNotInRoom),
		errors.Is(err, ErrNotPlaying), errors.Is(err, ErrNotEnoughPlayers),
		errors.Is(err, ErrForbidden):
		return KindConflict
	case errors.Is(err, ErrStaleAnswer):
		return KindStale
	default:
		return KindInternal
	}
}
