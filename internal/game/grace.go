package game

import (
	"context"

	"github.com/stemsi/quizroom/internal/model"
)

func (e *Engine) startGrace(playerID, code string) {
	key := graceKey{playerID: playerID, roomCode: code}
	e.grace[key].stop()

	e.grace[key] = e.schedule(e.cfg.DisconnectGrace, func(ctx context.Context, self *scheduled) {
		if e.grace[key] != self {
			return
		}
		delete(e.grace, key)
		e.graceExpired(ctx, playerID, code)
	})
	e.log.Debug().Str("room", code).Str("player", playerID).Dur("grace", e.cfg.DisconnectGrace).Msg("Grace period started")
}

func (e *Engine) cancelGrace(playerID, code string) {
	key := graceKey{playerID: playerID, roomCode: code}
	if s, ok := e.grace[key]; ok {
		s.stop()
		delete(e.grace, key)
	}
}

func (e *Engine) cancelRoomGrace(code string) {
	for key, s := range e.grace {
		if key.roomCode == code {
			s.stop()
			delete(e.grace, key)
		}
	}
}

func (e *Engine) graceExpired(ctx context.Context, playerID, code string) {
	if len(e.conns.ForPlayer(code, playerID)) > 0 {
		return
	}
	room, err := e.findRoom(ctx, code)
	if err != nil {
		e.log.Warn().Err(err).Str("room", code).Msg("Grace expiry could not load room")
		return
	}
	if room.State == model.RoomStateFinished || !room.HasPlayer(playerID) {
		return
	}
	e.log.Info().Str("room", code).Str("player", playerID).Msg("Grace period expired")
	if err := e.removePlayer(ctx, code, playerID); err != nil {
		e.log.Warn().Err(err).Str("room", code).Str("player", playerID).Msg("Grace removal failed")
	}
}
