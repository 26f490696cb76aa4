package game

import (
	"context"
	"fmt"
	"slices"

	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

var activeStates = []model.RoomState{model.RoomStateWaiting, model.RoomStateStarting, model.RoomStatePlaying}

// Actor identifies the caller of a host-only operation.
type Actor struct {
	PlayerID string
	Host     bool
}

// Join binds conn to playerID in roomCode, creating or resuming the
// player's session.
func (e *Engine) Join(ctx context.Context, conn Conn, roomCode, playerID string) error {
	if roomCode == "" || playerID == "" {
		return fmt.Errorf("%w: roomCode and playerId are required", ErrInvalidPayload)
	}
	return e.exec(ctx, func(ctx context.Context) error {
		return e.join(ctx, conn, roomCode, playerID)
	})
}

func (e *Engine) join(ctx context.Context, conn Conn, code, playerID string) error {
	room, err := e.findRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.State == model.RoomStateFinished {
		return ErrGameFinished
	}

	session, err := e.findSession(ctx, room.ID, playerID)
	if err != nil {
		return err
	}
	reconnecting := room.HasPlayer(playerID) || session != nil
	if room.State != model.RoomStateWaiting && !reconnecting {
		return ErrGameInProgress
	}

	questions, err := e.roomQuestions(ctx, room)
	if err != nil {
		return err
	}

	e.cancelGrace(playerID, code)
	e.releaseConn(ctx, conn, code, playerID)
	e.evictDuplicates(code, playerID, conn)

	room, err = e.ensureMember(ctx, room, conn.ID(), playerID, reconnecting)
	if err != nil {
		return err
	}

	session, err = e.ensureSession(ctx, room, session, playerID, questions)
	if err != nil {
		return err
	}

	e.conns.Attach(Binding{Conn: conn, RoomCode: code, PlayerID: playerID, SessionID: session.ID})
	e.metrics.SetConnections(e.conns.Len())

	e.log.Info().Str("room", code).Str("player", playerID).Bool("reconnect", reconnecting).Msg("Player joined")

	conn.Send(ws.Message{Event: ws.EventJoinedRoom, Data: ws.JoinedRoomResponse{
		Room:        room,
		Session:     session,
		Reconnected: reconnecting,
	}})
	e.publishRoom(ctx, room)

	// Timers may be missing when another process ran this room before.
	resumed := e.resumeRoom(ctx, room)

	if room.State == model.RoomStatePlaying {
		if !session.Status.Done() {
			e.deliverCurrent(ws.EventNewQuestion, room, session, indexQuestions(questions))
		}
		if !resumed {
			conn.Send(ws.Message{Event: ws.EventSessionTimerUpdate, Data: ws.SessionTimerResponse{
				RoomCode:         code,
				RemainingSeconds: e.remainingSeconds(room),
			}})
		}
	}
	return nil
}

// ensureMember adds playerID to the room or refreshes its connection ref.
// A lost conditional write is resolved by re-reading the room once.
func (e *Engine) ensureMember(ctx context.Context, room *model.Room, connID, playerID string, reconnecting bool) (*model.Room, error) {
	allowed := []model.RoomState{model.RoomStateWaiting}
	if reconnecting {
		allowed = activeStates
	}

	for attempt := 0; attempt < 2; attempt++ {
		var (
			updated *model.Room
			outcome model.Outcome
			err     error
		)
		if room.HasPlayer(playerID) {
			ref := connID
			updated, outcome, err = e.rooms.UpdatePlayer(ctx, room.Code, playerID, model.PlayerPatch{ConnectionRef: &ref}, activeStates)
		} else {
			updated, outcome, err = e.rooms.AddPlayer(ctx, room.Code, model.PlayerEntry{
				PlayerID:      playerID,
				ConnectionRef: connID,
				JoinedAt:      e.clock.Now(),
			}, allowed)
		}
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", room.Code, err)
		}
		if outcome == model.Updated {
			return updated, nil
		}

		e.raceLoss("join", room.Code)
		room, err = e.findRoom(ctx, room.Code)
		if err != nil {
			return nil, err
		}
		if room.State == model.RoomStateFinished {
			return nil, ErrGameFinished
		}
		if !room.HasPlayer(playerID) {
			if room.IsFull() {
				return nil, ErrRoomFull
			}
			if !slices.Contains(allowed, room.State) {
				return nil, ErrGameInProgress
			}
		}
	}
	if !room.HasPlayer(playerID) {
		return nil, ErrGameInProgress
	}
	return room, nil
}

// ensureSession finds or creates the player's session and reactivates it.
func (e *Engine) ensureSession(ctx context.Context, room *model.Room, session *model.Session, playerID string, questions []model.Question) (*model.Session, error) {
	if session == nil {
		order := ids(questions)
		e.shuffle(order)
		seed := &model.Session{
			RoomID:            room.ID,
			PlayerID:          playerID,
			TotalQuestions:    len(order),
			ShuffledQuestions: order,
			Answers:           []model.Answer{},
			Status:            model.SessionStatusActive,
			CreatedAt:         e.clock.Now(),
		}
		if room.State == model.RoomStatePlaying {
			now := e.clock.Now()
			seed.StartedAt = &now
		}
		created, _, err := e.sessions.FindOrCreateSession(ctx, seed)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		session = created
	}

	changed := false
	if len(session.ShuffledQuestions) == 0 && len(questions) > 0 {
		order := ids(questions)
		e.shuffle(order)
		session.ShuffledQuestions = order
		session.TotalQuestions = len(order)
		changed = true
	}
	if session.Status == model.SessionStatusDisconnected && session.Status.CanTransitionTo(model.SessionStatusActive) {
		session.Status = model.SessionStatusActive
		changed = true
	}
	if room.State == model.RoomStatePlaying && session.StartedAt == nil {
		session.StartedAt = room.StartedAt
		changed = true
	}
	if !changed {
		return session, nil
	}

	outcome, err := e.sessions.SaveSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if outcome == model.NoMatch {
		e.raceLoss("session_resume", room.Code)
		fresh, err := e.findSession(ctx, room.ID, playerID)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, ErrSessionNotFound
		}
		return fresh, nil
	}
	return session, nil
}

// evictDuplicates force-disconnects other connections of the same player in
// the same room.
func (e *Engine) evictDuplicates(code, playerID string, keep Conn) {
	for _, b := range e.conns.ForPlayer(code, playerID) {
		if b.Conn.ID() == keep.ID() {
			continue
		}
		e.conns.Detach(b.Conn.ID())
		b.Conn.Send(ws.ErrorMessage("SESSION_REPLACED", "session replaced by a newer connection"))
		b.Conn.Close()
		e.log.Info().Str("room", code).Str("player", playerID).Str("conn", b.Conn.ID()).Msg("Evicted duplicate connection")
	}
}

// releaseConn drops a binding of conn to a different room or player, as if
// that connection had closed.
func (e *Engine) releaseConn(ctx context.Context, conn Conn, code, playerID string) {
	prev, ok := e.conns.Lookup(conn.ID())
	if !ok || (prev.RoomCode == code && prev.PlayerID == playerID) {
		return
	}
	e.conns.Detach(conn.ID())
	e.orphaned(prev)
}

// Leave removes the player bound to conn from roomCode immediately.
func (e *Engine) Leave(ctx context.Context, conn Conn, roomCode string) error {
	return e.exec(ctx, func(ctx context.Context) error {
		b, ok := e.conns.Lookup(conn.ID())
		if !ok || b.RoomCode != roomCode {
			return ErrNotInRoom
		}
		for _, other := range e.conns.ForPlayer(roomCode, b.PlayerID) {
			e.conns.Detach(other.Conn.ID())
		}
		e.metrics.SetConnections(e.conns.Len())
		e.cancelGrace(b.PlayerID, roomCode)

		conn.Send(ws.Message{Event: ws.EventLeftRoom, Data: ws.LeftRoomResponse{RoomCode: roomCode, PlayerID: b.PlayerID}})
		return e.removePlayer(ctx, roomCode, b.PlayerID)
	})
}

// removePlayer takes playerID out of the member list, closes out its
// session and notifies the room.
func (e *Engine) removePlayer(ctx context.Context, code, playerID string) error {
	room, outcome, err := e.rooms.RemovePlayer(ctx, code, playerID)
	if err != nil {
		return fmt.Errorf("remove player: %w", err)
	}
	if outcome == model.NoMatch {
		e.raceLoss("remove_player", code)
		return nil
	}

	if err := e.closeOutSession(ctx, room, playerID); err != nil {
		e.log.Warn().Err(err).Str("room", code).Str("player", playerID).Msg("Session close-out failed")
	}

	e.log.Info().Str("room", code).Str("player", playerID).Msg("Player removed")
	e.broadcast(code, ws.Message{Event: ws.EventLeftRoom, Data: ws.LeftRoomResponse{RoomCode: code, PlayerID: playerID}})
	e.publishRoom(ctx, room)

	if room.State == model.RoomStatePlaying {
		e.publishLeaderboard(ctx, room)
		e.checkAllDone(ctx, room)
	}
	return nil
}

// closeOutSession completes a session that has answers and marks an empty
// one disconnected.
func (e *Engine) closeOutSession(ctx context.Context, room *model.Room, playerID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		s, err := e.findSession(ctx, room.ID, playerID)
		if err != nil {
			return err
		}
		if s == nil || s.Status == model.SessionStatusCompleted {
			return nil
		}
		if len(s.Answers) > 0 {
			s.Complete(e.clock.Now())
		} else if s.Status.CanTransitionTo(model.SessionStatusDisconnected) {
			s.Status = model.SessionStatusDisconnected
		} else {
			return nil
		}
		s.IsReady = false

		outcome, err := e.sessions.SaveSession(ctx, s)
		if err != nil {
			return err
		}
		if outcome == model.Updated {
			return nil
		}
		e.raceLoss("session_close", room.Code)
	}
	return nil
}

// Ready marks the player bound to conn as ready and starts the countdown
// once every member is ready and enough have joined.
func (e *Engine) Ready(ctx context.Context, conn Conn, roomCode string) error {
	return e.exec(ctx, func(ctx context.Context) error {
		b, ok := e.conns.Lookup(conn.ID())
		if !ok || b.RoomCode != roomCode {
			return ErrNotInRoom
		}

		ready := true
		room, outcome, err := e.rooms.UpdatePlayer(ctx, roomCode, b.PlayerID, model.PlayerPatch{IsReady: &ready}, []model.RoomState{model.RoomStateWaiting})
		if err != nil {
			return fmt.Errorf("mark ready: %w", err)
		}
		if outcome == model.NoMatch {
			room, err = e.findRoom(ctx, roomCode)
			if err != nil {
				return err
			}
			switch {
			case room.State == model.RoomStateFinished:
				return ErrGameFinished
			case room.State != model.RoomStateWaiting:
				return ErrGameInProgress
			default:
				return ErrNotInRoom
			}
		}

		if s, err := e.findSession(ctx, room.ID, b.PlayerID); err == nil && s != nil && !s.IsReady {
			s.IsReady = true
			outcome, err := e.sessions.SaveSession(ctx, s)
			switch {
			case err != nil:
				e.log.Warn().Err(err).Str("room", roomCode).Msg("Session ready flag not saved")
			case outcome == model.NoMatch:
				e.raceLoss("session_ready", roomCode)
			}
		}

		e.publishRoom(ctx, room)

		if room.AllReady() && len(room.Players) >= e.minPlayers(room) {
			return e.beginCountdown(ctx, roomCode)
		}
		return nil
	})
}

// minPlayers is the member count required before readiness starts a game.
func (e *Engine) minPlayers(room *model.Room) int {
	n := e.cfg.MinPlayersToStart
	if n < 1 {
		n = 1
	}
	return min(n, room.Capacity)
}

// ForceStart begins the countdown regardless of readiness.
func (e *Engine) ForceStart(ctx context.Context, roomCode string, actor Actor) error {
	if !actor.Host {
		return ErrForbidden
	}
	return e.exec(ctx, func(ctx context.Context) error {
		room, err := e.findRoom(ctx, roomCode)
		if err != nil {
			return err
		}
		switch room.State {
		case model.RoomStateFinished:
			return ErrGameFinished
		case model.RoomStateWaiting:
		default:
			return ErrGameInProgress
		}
		if len(room.Players) == 0 {
			return ErrNotEnoughPlayers
		}
		e.log.Info().Str("room", roomCode).Str("actor", actor.PlayerID).Msg("Force start")
		return e.beginCountdown(ctx, roomCode)
	})
}

// Disconnect is called when a transport connection closes.
func (e *Engine) Disconnect(ctx context.Context, conn Conn) {
	err := e.exec(ctx, func(ctx context.Context) error {
		b, ok := e.conns.Detach(conn.ID())
		if !ok {
			return nil
		}
		e.metrics.SetConnections(e.conns.Len())
		e.orphaned(b)
		return nil
	})
	if err != nil {
		e.log.Debug().Err(err).Str("conn", conn.ID()).Msg("Disconnect not processed")
	}
}

// orphaned starts the grace timer when b was the player's last connection.
func (e *Engine) orphaned(b Binding) {
	if len(e.conns.ForPlayer(b.RoomCode, b.PlayerID)) > 0 {
		return
	}
	e.startGrace(b.PlayerID, b.RoomCode)
}
