package game

import (
	"context"

	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

// Settlement triggers.
const (
	ReasonAllPlayersDone     = "all_players_done"
	ReasonTimeUp             = "time_up"
	ReasonQuestionsExhausted = "questions_exhausted"
	ReasonNoQuestions        = "no_questions"
	ReasonAdmin              = "admin"
)

// Settle ends roomCode's game now. Settling a finished room is a no-op.
func (e *Engine) Settle(ctx context.Context, roomCode, reason string) error {
	return e.exec(ctx, func(ctx context.Context) error {
		return e.settle(ctx, roomCode, reason)
	})
}

// settle finalizes sessions, ranks them and moves the room to finished.
// At most one settlement per room runs at a time: the ending marker guards
// this process and the optional locker guards other instances.
func (e *Engine) settle(ctx context.Context, code, reason string) error {
	if _, busy := e.ending[code]; busy {
		e.log.Debug().Str("room", code).Msg("Settlement already running")
		return nil
	}
	e.ending[code] = struct{}{}
	defer delete(e.ending, code)

	if e.locker != nil {
		release, ok, err := e.locker.Acquire(ctx, code)
		switch {
		case err != nil:
			e.log.Warn().Err(err).Str("room", code).Msg("Settlement lock unavailable, relying on conditional write")
		case !ok:
			e.log.Debug().Str("room", code).Msg("Room is being settled elsewhere")
			return nil
		default:
			defer release()
		}
	}

	room, err := e.findRoom(ctx, code)
	if err != nil {
		e.log.Error().Err(err).Str("room", code).Msg("Settlement could not load room")
		return err
	}
	if room.State == model.RoomStateFinished {
		return nil
	}

	sessions, err := e.roomSessions(ctx, room.ID)
	if err != nil {
		e.log.Error().Err(err).Str("room", code).Msg("Settlement could not load sessions")
		return err
	}

	now := e.clock.Now()
	for i := range sessions {
		e.finalizeSession(ctx, &sessions[i])
	}

	board := BuildLeaderboard(sessions, now)
	var winner *model.LeaderboardEntry
	if len(board) > 0 {
		w := board[0]
		winner = &w
	}

	updated, outcome, err := e.transition(ctx, code, activeStates, model.RoomStateFinished,
		model.RoomUpdate{EndedAt: &now, Leaderboard: board, Winner: winner})
	if err != nil {
		e.log.Error().Err(err).Str("room", code).Msg("Settlement write failed")
		return err
	}
	if outcome == model.NoMatch {
		e.raceLoss("settle", code)
		return nil
	}

	e.stopRoomTimers(code)
	e.cancelRoomGrace(code)
	e.metrics.Settled(reason)

	ev := e.log.Info().Str("room", code).Str("reason", reason).Int("players", len(board))
	if winner != nil {
		ev = ev.Str("winner", winner.PlayerID)
	}
	ev.Msg("Game settled")

	e.broadcast(code, ws.Message{Event: ws.EventGameEnded, Data: ws.GameEndedResponse{
		RoomCode:    code,
		Reason:      reason,
		Leaderboard: board,
		Winner:      winner,
	}})
	e.publishRoom(ctx, updated)

	if e.results != nil {
		if err := e.results.EnqueueResults(ctx, updated); err != nil {
			e.log.Warn().Err(err).Str("room", code).Msg("Results not queued")
		}
	}
	return nil
}

// finalizeSession completes an active session. Disconnected and completed
// sessions keep their status. A lost save is resolved by re-reading.
func (e *Engine) finalizeSession(ctx context.Context, s *model.Session) {
	if s.Status != model.SessionStatusActive {
		return
	}
	s.Complete(e.clock.Now())
	outcome, err := e.sessions.SaveSession(ctx, s)
	if err != nil {
		e.log.Warn().Err(err).Str("player", s.PlayerID).Msg("Session not finalized")
		return
	}
	if outcome == model.Updated {
		return
	}

	e.raceLoss("finalize_session", s.PlayerID)
	fresh, err := e.findSession(ctx, s.RoomID, s.PlayerID)
	if err != nil || fresh == nil {
		return
	}
	if fresh.Status == model.SessionStatusActive {
		fresh.Complete(e.clock.Now())
		if _, err := e.sessions.SaveSession(ctx, fresh); err != nil {
			e.log.Warn().Err(err).Str("player", s.PlayerID).Msg("Session not finalized")
		}
	}
	*s = *fresh
}
