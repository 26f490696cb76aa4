package game

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

const (
	defaultQuestionTime = 30 * time.Second
	settleRetryDelay    = 2 * time.Second
)

// scheduleAutoStart starts the countdown once a full room has settled.
func (e *Engine) scheduleAutoStart(code string) {
	t := e.roomTimers(code)
	if t.autoStart != nil || t.countdown != nil {
		return
	}
	t.autoStart = e.schedule(e.cfg.FullRoomSettle, func(ctx context.Context, self *scheduled) {
		if t != e.timers[code] || t.autoStart != self {
			return
		}
		t.autoStart = nil

		room, err := e.findRoom(ctx, code)
		if err != nil {
			e.log.Warn().Err(err).Str("room", code).Msg("Auto-start could not load room")
			return
		}
		if room.State != model.RoomStateWaiting || !room.IsFull() {
			return
		}
		if err := e.beginCountdown(ctx, code); err != nil {
			e.log.Warn().Err(err).Str("room", code).Msg("Auto-start failed")
		}
	})
}

// beginCountdown moves waiting to starting and broadcasts the countdown.
func (e *Engine) beginCountdown(ctx context.Context, code string) error {
	room, outcome, err := e.transition(ctx, code,
		[]model.RoomState{model.RoomStateWaiting}, model.RoomStateStarting, model.RoomUpdate{})
	if err != nil {
		return err
	}
	if outcome == model.NoMatch {
		e.raceLoss("begin_countdown", code)
		return nil
	}

	t := e.roomTimers(code)
	t.autoStart.stop()
	t.autoStart = nil

	e.log.Info().Str("room", code).Int("players", len(room.Players)).Msg("Countdown started")
	e.broadcast(code, ws.Message{Event: ws.EventGameStarting, Data: ws.GameStartingResponse{
		RoomCode:  code,
		Countdown: e.cfg.CountdownTicks,
	}})
	e.publishRoom(ctx, room)
	e.countdownTick(ctx, code, e.cfg.CountdownTicks)
	return nil
}

// countdownTick broadcasts remaining and schedules the next tick. At zero
// the game starts.
func (e *Engine) countdownTick(ctx context.Context, code string, remaining int) {
	if remaining <= 0 {
		e.startPlaying(ctx, code)
		return
	}
	e.broadcast(code, ws.Message{Event: ws.EventGameCountdown, Data: ws.CountdownResponse{RoomCode: code, Remaining: remaining}})

	t := e.roomTimers(code)
	t.countdown = e.schedule(e.cfg.CountdownInterval, func(ctx context.Context, self *scheduled) {
		if t != e.timers[code] || t.countdown != self {
			return
		}
		t.countdown = nil
		e.countdownTick(ctx, code, remaining-1)
	})
}

// startPlaying moves starting to playing and hands every member their
// first question.
func (e *Engine) startPlaying(ctx context.Context, code string) {
	now := e.clock.Now()
	first := 0
	room, outcome, err := e.transition(ctx, code,
		[]model.RoomState{model.RoomStateStarting}, model.RoomStatePlaying,
		model.RoomUpdate{StartedAt: &now, CurrentQuestionIndex: &first})
	if err != nil {
		e.log.Error().Err(err).Str("room", code).Msg("Failed to start game")
		return
	}
	if outcome == model.NoMatch {
		e.raceLoss("start_playing", code)
		return
	}

	questions, err := e.roomQuestions(ctx, room)
	if err != nil {
		e.log.Error().Err(err).Str("room", code).Msg("Failed to load questions at start")
		return
	}
	if len(questions) == 0 {
		e.settle(ctx, code, ReasonNoQuestions)
		return
	}
	byID := indexQuestions(questions)

	for _, p := range room.Players {
		existing, err := e.findSession(ctx, room.ID, p.PlayerID)
		if err != nil {
			e.log.Warn().Err(err).Str("room", code).Str("player", p.PlayerID).Msg("Session unavailable at start")
			continue
		}
		s, err := e.ensureSession(ctx, room, existing, p.PlayerID, questions)
		if err != nil {
			e.log.Warn().Err(err).Str("room", code).Str("player", p.PlayerID).Msg("Session unavailable at start")
			continue
		}
		e.deliverCurrent(ws.EventNewQuestion, room, s, byID)
	}

	e.log.Info().Str("room", code).Int("questions", len(questions)).Msg("Game started")
	e.publishRoom(ctx, room)
	e.publishLeaderboard(ctx, room)

	deadline, _ := room.SessionDeadline()
	e.sessionTick(code, deadline)
	e.armQuestionTimer(room)

	// Everyone may have left during the countdown.
	e.checkAllDone(ctx, room)
}

// sessionTick broadcasts the remaining match time and schedules the next
// update, or ends the game at the deadline.
func (e *Engine) sessionTick(code string, deadline time.Time) {
	remaining := deadline.Sub(e.clock.Now())
	e.broadcast(code, ws.Message{Event: ws.EventSessionTimerUpdate, Data: ws.SessionTimerResponse{
		RoomCode:         code,
		RemainingSeconds: ceilSeconds(remaining),
	}})

	wait := e.cfg.SessionTick
	if wait <= 0 || remaining < wait {
		wait = remaining
	}
	e.armSessionTimer(code, deadline, wait)
}

// armSessionTimer schedules the session timer check after wait. A failed
// time-up settlement is retried after settleRetryDelay.
func (e *Engine) armSessionTimer(code string, deadline time.Time, wait time.Duration) {
	t := e.roomTimers(code)
	t.session = e.schedule(wait, func(ctx context.Context, self *scheduled) {
		if t != e.timers[code] || t.session != self {
			return
		}
		t.session = nil

		room, err := e.findRoom(ctx, code)
		if err != nil {
			e.log.Warn().Err(err).Str("room", code).Msg("Session timer could not load room")
			if !errors.Is(err, ErrRoomNotFound) {
				e.armSessionTimer(code, deadline, settleRetryDelay)
			}
			return
		}
		if room.State != model.RoomStatePlaying {
			e.log.Debug().Str("room", code).Str("state", room.State.String()).Msg("Session timer fired outside play")
			return
		}
		if e.clock.Now().Before(deadline) {
			e.sessionTick(code, deadline)
			return
		}

		if !t.timeUp {
			t.timeUp = true
			e.broadcast(code, ws.Message{Event: ws.EventSessionTimeUp, Data: ws.SessionTimerResponse{RoomCode: code}})
		}
		if err := e.settle(ctx, code, ReasonTimeUp); err != nil {
			e.log.Warn().Err(err).Str("room", code).Dur("retry_in", settleRetryDelay).Msg("Time-up settlement failed")
			e.armSessionTimer(code, deadline, settleRetryDelay)
		}
	})
}

// armQuestionTimer (re)starts the per-question timer for the room's
// current index.
func (e *Engine) armQuestionTimer(room *model.Room) {
	d := time.Duration(room.TimePerQuestion) * time.Second
	if d <= 0 {
		d = defaultQuestionTime
	}
	code := room.Code
	t := e.roomTimers(code)
	t.question.stop()
	t.question = e.schedule(d, func(ctx context.Context, self *scheduled) {
		if t != e.timers[code] || t.question != self {
			return
		}
		t.question = nil
		e.questionTimerFired(ctx, code)
	})
}

func (e *Engine) questionTimerFired(ctx context.Context, code string) {
	room, err := e.findRoom(ctx, code)
	if err != nil {
		e.log.Warn().Err(err).Str("room", code).Msg("Question timer could not load room")
		return
	}
	if room.State != model.RoomStatePlaying {
		e.log.Debug().Str("room", code).Str("state", room.State.String()).Msg("Question timer fired outside play")
		return
	}

	sessions, err := e.memberSessions(ctx, room)
	if err != nil {
		e.log.Warn().Err(err).Str("room", code).Msg("Question timer could not load sessions")
		e.armQuestionTimer(room)
		return
	}
	index := room.CurrentQuestionIndex
	for _, s := range sessions {
		if s.Status == model.SessionStatusActive && len(s.Answers) <= index {
			e.armQuestionTimer(room)
			return
		}
	}

	e.broadcast(code, ws.Message{Event: ws.EventQuestionComplete, Data: ws.QuestionCompleteResponse{RoomCode: code, QuestionIndex: index}})

	t := e.roomTimers(code)
	t.advance = e.schedule(e.cfg.QuestionAdvanceDelay, func(ctx context.Context, self *scheduled) {
		if t != e.timers[code] || t.advance != self {
			return
		}
		t.advance = nil
		e.advanceQuestion(ctx, code, index)
	})
}

// advanceQuestion moves the room index past from, or settles the room when
// no question is left.
func (e *Engine) advanceQuestion(ctx context.Context, code string, from int) {
	room, err := e.findRoom(ctx, code)
	if err != nil {
		e.log.Warn().Err(err).Str("room", code).Msg("Advance could not load room")
		return
	}
	if room.State != model.RoomStatePlaying {
		return
	}
	questions, err := e.roomQuestions(ctx, room)
	if err != nil {
		e.log.Warn().Err(err).Str("room", code).Msg("Advance could not load questions")
		e.armQuestionTimer(room)
		return
	}

	next := from + 1
	if next >= len(questions) {
		e.settle(ctx, code, ReasonQuestionsExhausted)
		return
	}

	updated, outcome, err := e.rooms.UpdateRoomFields(ctx, code,
		model.RoomCondition{States: []model.RoomState{model.RoomStatePlaying}, QuestionIndex: &from},
		model.RoomUpdate{CurrentQuestionIndex: &next})
	if err != nil {
		e.log.Warn().Err(err).Str("room", code).Msg("Advance write failed")
		return
	}
	if outcome == model.NoMatch {
		e.raceLoss("advance_question", code)
		return
	}

	e.publishRoom(ctx, updated)

	sessions, err := e.memberSessions(ctx, updated)
	if err == nil {
		byID := indexQuestions(questions)
		for i := range sessions {
			s := &sessions[i]
			if s.Status == model.SessionStatusActive && !s.Finished() {
				e.deliverCurrent(ws.EventQuestionLoaded, updated, s, byID)
			}
		}
	}
	e.armQuestionTimer(updated)
}

// memberSessions returns the sessions of the room's current members.
func (e *Engine) memberSessions(ctx context.Context, room *model.Room) ([]model.Session, error) {
	all, err := e.roomSessions(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if room.HasPlayer(s.PlayerID) {
			out = append(out, s)
		}
	}
	return out, nil
}

// checkAllDone settles a playing room once every member's session is done.
func (e *Engine) checkAllDone(ctx context.Context, room *model.Room) {
	if room.State != model.RoomStatePlaying {
		return
	}
	sessions, err := e.memberSessions(ctx, room)
	if err != nil {
		e.log.Warn().Err(err).Str("room", room.Code).Msg("All-done check could not load sessions")
		return
	}
	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		if !s.Status.Done() {
			return
		}
		seen[s.PlayerID] = true
	}
	for _, p := range room.Players {
		if !seen[p.PlayerID] {
			return
		}
	}
	e.settle(ctx, room.Code, ReasonAllPlayersDone)
}
