package game

import (
	"context"
	"fmt"

	"github.com/stemsi/quizroom/internal/model"
)

// resumeActive re-arms every unfinished room, e.g. after a restart.
func (e *Engine) resumeActive(ctx context.Context) error {
	rooms, err := e.active.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active rooms: %w", err)
	}
	for i := range rooms {
		e.resumeRoom(ctx, &rooms[i])
	}
	e.log.Info().Int("rooms", len(rooms)).Msg("Active rooms resumed")
	return nil
}

// resumeRoom arms the timers room needs in its current state when this
// process holds none, and starts a grace period for every member without a
// local connection. It reports whether a session timer was armed.
func (e *Engine) resumeRoom(ctx context.Context, room *model.Room) bool {
	code := room.Code
	armed := false

	switch room.State {
	case model.RoomStateWaiting:
		if room.IsFull() {
			e.scheduleAutoStart(code)
		}
	case model.RoomStateStarting:
		t := e.roomTimers(code)
		if t.countdown == nil {
			e.log.Info().Str("room", code).Msg("Resuming countdown")
			e.countdownTick(ctx, code, e.cfg.CountdownTicks)
		}
	case model.RoomStatePlaying:
		t := e.roomTimers(code)
		if t.session == nil {
			if deadline, ok := room.SessionDeadline(); ok {
				e.log.Info().Str("room", code).Time("deadline", deadline).Msg("Resuming session timer")
				e.sessionTick(code, deadline)
				armed = true
			}
		}
		if t.question == nil && t.advance == nil {
			e.armQuestionTimer(room)
		}
	default:
		return false
	}

	for _, p := range room.Players {
		if len(e.conns.ForPlayer(code, p.PlayerID)) > 0 {
			continue
		}
		if _, ok := e.grace[graceKey{playerID: p.PlayerID, roomCode: code}]; ok {
			continue
		}
		e.startGrace(p.PlayerID, code)
	}
	return armed
}
