package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

func TestJoin_CreatesMembershipAndSession(t *testing.T) {
	h := newHarness(t, withCapacity(3))
	c1 := newConn("c1")

	h.join(c1, "p1")

	room := h.roomNow()
	require.Len(t, room.Players, 1)
	assert.Equal(t, "p1", room.Players[0].PlayerID)
	assert.Equal(t, "c1", room.Players[0].ConnectionRef)
	assert.Equal(t, model.RoomStateWaiting, room.State)

	s := h.session("p1")
	assert.Equal(t, model.SessionStatusActive, s.Status)
	assert.Len(t, s.ShuffledQuestions, 3)
	assert.ElementsMatch(t, room.QuestionIDs, s.ShuffledQuestions)

	joined := c1.last(t, ws.EventJoinedRoom).Data.(ws.JoinedRoomResponse)
	assert.False(t, joined.Reconnected)
	assert.Equal(t, 1, c1.count(ws.EventRoomUpdate))
}

func TestJoin_Rejections(t *testing.T) {
	t.Run("unknown room", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.Join(context.Background(), newConn("c1"), "NOPE", "p1")
		require.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("missing player id", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.Join(context.Background(), newConn("c1"), testRoom, "")
		require.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("game in progress", func(t *testing.T) {
		h := newHarness(t, withCapacity(3))
		h.startGame(map[string]*fakeConn{"p1": newConn("c1"), "p2": newConn("c2")})

		err := h.engine.Join(context.Background(), newConn("c3"), testRoom, "p3")
		require.ErrorIs(t, err, ErrGameInProgress)
	})

	t.Run("game finished", func(t *testing.T) {
		h := newHarness(t)
		h.startGame(map[string]*fakeConn{"p1": newConn("c1"), "p2": newConn("c2")})
		require.NoError(t, h.engine.Settle(context.Background(), testRoom, ReasonAdmin))

		err := h.engine.Join(context.Background(), newConn("c9"), testRoom, "p1")
		require.ErrorIs(t, err, ErrGameFinished)
	})
}

func TestJoin_CapacityHoldsUnderConcurrentJoins(t *testing.T) {
	h := newHarness(t, withCapacity(3))

	const players = 10
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		full   int
	)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := h.engine.Join(context.Background(), newConn(fmt.Sprintf("c%d", i)), testRoom, fmt.Sprintf("p%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case assert.ErrorIs(t, err, ErrRoomFull):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, joined)
	assert.Equal(t, players-3, full)
	assert.Len(t, h.roomNow().Players, 3)
}

func TestJoin_NewConnectionReplacesOld(t *testing.T) {
	h := newHarness(t, withCapacity(3))
	old, fresh := newConn("old"), newConn("fresh")

	h.join(old, "p1")
	h.join(fresh, "p1")

	assert.True(t, old.isClosed())
	errMsg := old.last(t, ws.EventError).Data.(ws.ErrorResponse)
	assert.Equal(t, "SESSION_REPLACED", errMsg.Code)

	bindings := h.engine.Conns().ForPlayer(testRoom, "p1")
	require.Len(t, bindings, 1)
	assert.Equal(t, "fresh", bindings[0].Conn.ID())

	room := h.roomNow()
	require.Len(t, room.Players, 1)
	assert.Equal(t, "fresh", room.Players[0].ConnectionRef)

	// The evicted transport closing later must not start a grace timer.
	h.engine.Disconnect(context.Background(), old)
	h.clock.Advance(time.Minute)
	assert.True(t, h.roomNow().HasPlayer("p1"))
}

func TestGrace_ReconnectCancelsRemoval(t *testing.T) {
	h := newHarness(t, withCapacity(3))
	c1, c2 := newConn("c1"), newConn("c2")
	h.join(c1, "p1")
	h.join(c2, "p2")

	h.engine.Disconnect(context.Background(), c1)
	h.clock.Advance(5 * time.Second)

	back := newConn("c1b")
	h.join(back, "p1")
	joined := back.last(t, ws.EventJoinedRoom).Data.(ws.JoinedRoomResponse)
	assert.True(t, joined.Reconnected)

	h.clock.Advance(time.Minute)
	assert.True(t, h.roomNow().HasPlayer("p1"))
	assert.Zero(t, c2.count(ws.EventLeftRoom))
}

func TestGrace_ExpiryRemovesPlayerOnce(t *testing.T) {
	h := newHarness(t, withCapacity(3))
	c1, c2 := newConn("c1"), newConn("c2")
	h.join(c1, "p1")
	h.join(c2, "p2")

	h.engine.Disconnect(context.Background(), c1)
	h.clock.Advance(9 * time.Second)
	assert.True(t, h.roomNow().HasPlayer("p1"))

	h.clock.Advance(time.Second)
	assert.False(t, h.roomNow().HasPlayer("p1"))
	assert.Equal(t, model.SessionStatusDisconnected, h.session("p1").Status)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, c2.count(ws.EventLeftRoom))
	left := c2.last(t, ws.EventLeftRoom).Data.(ws.LeftRoomResponse)
	assert.Equal(t, "p1", left.PlayerID)
}

func TestGrace_ExpiryDuringPlayUnblocksSettlement(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))
	h.engine.Disconnect(context.Background(), c1)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.answerCurrent(c2, "p2", "A", time.Second))
	}
	assert.Equal(t, model.RoomStatePlaying, h.roomNow().State, "p1 is still within grace")

	h.clock.Advance(10 * time.Second)

	assert.Equal(t, model.SessionStatusCompleted, h.session("p1").Status)
	room := h.roomNow()
	assert.Equal(t, model.RoomStateFinished, room.State)
	assert.Equal(t, 1, c2.count(ws.EventGameEnded))
	ended := c2.last(t, ws.EventGameEnded).Data.(ws.GameEndedResponse)
	assert.Equal(t, ReasonAllPlayersDone, ended.Reason)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, "p2", ended.Winner.PlayerID)
}

func TestLeave(t *testing.T) {
	h := newHarness(t, withCapacity(3))
	c1, c2 := newConn("c1"), newConn("c2")
	h.join(c1, "p1")
	h.join(c2, "p2")

	require.NoError(t, h.engine.Leave(context.Background(), c1, testRoom))

	assert.False(t, h.roomNow().HasPlayer("p1"))
	assert.Equal(t, 1, c1.count(ws.EventLeftRoom))
	assert.Equal(t, 1, c2.count(ws.EventLeftRoom))

	err := h.engine.Leave(context.Background(), c1, testRoom)
	require.ErrorIs(t, err, ErrNotInRoom)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, c2.count(ws.EventLeftRoom))
}

func TestReady_StartsCountdownWhenAllReady(t *testing.T) {
	h := newHarness(t, withCapacity(3))
	c1, c2 := newConn("c1"), newConn("c2")
	h.join(c1, "p1")

	h.ready(c1)
	assert.Equal(t, model.RoomStateWaiting, h.roomNow().State, "one player is below the start minimum")

	h.join(c2, "p2")
	h.ready(c2)
	assert.Equal(t, model.RoomStateStarting, h.roomNow().State)
	assert.Equal(t, 1, c1.count(ws.EventGameStarting))
	assert.True(t, h.session("p2").IsReady)

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 3, c1.count(ws.EventGameCountdown))
	assert.Equal(t, model.RoomStatePlaying, h.roomNow().State)

	err := h.engine.Ready(context.Background(), c1, testRoom)
	require.ErrorIs(t, err, ErrGameInProgress)
}

func TestForceStart(t *testing.T) {
	h := newHarness(t, withCapacity(4))
	ctx := context.Background()

	require.ErrorIs(t, h.engine.ForceStart(ctx, testRoom, Actor{PlayerID: "p1"}), ErrForbidden)
	require.ErrorIs(t, h.engine.ForceStart(ctx, testRoom, Actor{PlayerID: "host", Host: true}), ErrNotEnoughPlayers)

	c1 := newConn("c1")
	h.join(c1, "p1")
	require.NoError(t, h.engine.ForceStart(ctx, testRoom, Actor{PlayerID: "host", Host: true}))
	assert.Equal(t, model.RoomStateStarting, h.roomNow().State)

	require.ErrorIs(t, h.engine.ForceStart(ctx, testRoom, Actor{Host: true}), ErrGameInProgress)

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, model.RoomStatePlaying, h.roomNow().State)
	assert.Equal(t, 1, c1.count(ws.EventNewQuestion))
}

func TestSubmitAnswer(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	ctx := context.Background()

	h.join(c1, "p1")
	err := h.answerCurrent(c1, "p1", "A", time.Second)
	require.ErrorIs(t, err, ErrNotPlaying)

	h.join(c2, "p2")
	h.ready(c1)
	h.ready(c2)
	h.clock.Advance(3 * time.Second)

	first := h.session("p1").ShuffledQuestions[0]
	require.NoError(t, h.answerCurrent(c1, "p1", "A", 2*time.Second))

	res := c1.last(t, ws.EventAnswerResult).Data.(ws.AnswerResultResponse)
	assert.True(t, res.Correct)
	assert.Equal(t, 10, res.Points)
	assert.Equal(t, 10, res.Score)
	assert.Equal(t, 1, c2.count(ws.EventPlayerProgress))
	assert.GreaterOrEqual(t, c2.count(ws.EventLiveLeaderboardUpdate), 1)

	next := c1.last(t, ws.EventNewQuestion).Data.(ws.QuestionResponse)
	assert.Equal(t, 1, next.QuestionIndex)
	assert.Equal(t, h.session("p1").ShuffledQuestions[1], next.Question.ID)

	err = h.engine.SubmitAnswer(ctx, c1, AnswerInput{RoomCode: testRoom, QuestionID: first, SelectedAnswer: "A"})
	require.ErrorIs(t, err, ErrStaleAnswer)

	err = h.engine.SubmitAnswer(ctx, c1, AnswerInput{RoomCode: testRoom, QuestionID: uuid.New(), SelectedAnswer: "A"})
	require.ErrorIs(t, err, ErrUnknownQuestion)

	require.NoError(t, h.answerCurrent(c1, "p1", "B", time.Second))
	wrong := c1.last(t, ws.EventAnswerResult).Data.(ws.AnswerResultResponse)
	assert.False(t, wrong.Correct)
	assert.Zero(t, wrong.Points)

	s := h.session("p1")
	assert.Equal(t, 10, s.Score)
	assert.Equal(t, 1, s.CorrectCount)
	assert.Equal(t, 2, s.CurrentQuestionIndex)
	assert.Len(t, s.Answers, 2)
}

func TestSubmitAnswer_SequencesAreIndependent(t *testing.T) {
	var calls int
	h := newHarness(t, withDeps(func(d *Deps) {
		d.Shuffle = func(ids []uuid.UUID) {
			calls++
			if calls%2 == 0 {
				reverse(ids)
			}
		}
	}))
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	p1, p2 := h.session("p1"), h.session("p2")
	require.NotEqual(t, p1.ShuffledQuestions, p2.ShuffledQuestions)

	require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))
	require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))

	assert.Equal(t, 2, h.session("p1").CurrentQuestionIndex)
	assert.Equal(t, 0, h.session("p2").CurrentQuestionIndex)
	assert.Equal(t, 0, h.roomNow().CurrentQuestionIndex)

	q := c2.last(t, ws.EventNewQuestion).Data.(ws.QuestionResponse)
	assert.Equal(t, p2.ShuffledQuestions[0], q.Question.ID)
	assert.Equal(t, 0, q.QuestionIndex)

	err := h.engine.SubmitAnswer(context.Background(), c2, AnswerInput{
		RoomCode:       testRoom,
		QuestionID:     p2.ShuffledQuestions[2],
		SelectedAnswer: "A",
	})
	require.ErrorIs(t, err, ErrStaleAnswer, "answering ahead of the own sequence")
}

func TestRequestQuestion(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})
	ctx := context.Background()

	require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))

	require.NoError(t, h.engine.RequestQuestion(ctx, c1, testRoom, 0))
	loaded := c1.last(t, ws.EventQuestionLoaded).Data.(ws.QuestionResponse)
	assert.Equal(t, h.session("p1").ShuffledQuestions[0], loaded.Question.ID)

	err := h.engine.RequestQuestion(ctx, c1, testRoom, 2)
	require.ErrorIs(t, err, ErrInvalidPayload)

	err = h.engine.RequestQuestion(ctx, newConn("stranger"), testRoom, 0)
	require.ErrorIs(t, err, ErrNotInRoom)
}

func TestRequestState(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})
	require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))

	require.NoError(t, h.engine.RequestState(context.Background(), c1, testRoom))

	state := c1.last(t, ws.EventGameState).Data.(ws.GameStateResponse)
	assert.Equal(t, model.RoomStatePlaying, state.Room.State)
	require.NotNil(t, state.Session)
	assert.Equal(t, 1, state.Session.CurrentQuestionIndex)
	require.NotNil(t, state.Question)
	assert.Equal(t, 1, state.Question.QuestionIndex)
	assert.Equal(t, 300, state.RemainingSeconds)
	require.Len(t, state.Leaderboard, 2)
	assert.Equal(t, "p1", state.Leaderboard[0].PlayerID)
}

func TestQuestionTimer(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))
	h.clock.Advance(20 * time.Second)
	assert.Zero(t, c1.count(ws.EventQuestionComplete), "p2 has not answered")

	require.NoError(t, h.answerCurrent(c2, "p2", "A", time.Second))
	h.clock.Advance(20 * time.Second)
	require.Equal(t, 1, c1.count(ws.EventQuestionComplete))
	assert.Equal(t, 0, h.roomNow().CurrentQuestionIndex)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, h.roomNow().CurrentQuestionIndex)
	loaded := c2.last(t, ws.EventQuestionLoaded).Data.(ws.QuestionResponse)
	assert.Equal(t, 1, loaded.QuestionIndex)
}

func TestAdvancePastLastQuestionSettles(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	err := h.engine.exec(context.Background(), func(ctx context.Context) error {
		h.engine.advanceQuestion(ctx, testRoom, 2)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.RoomStateFinished, h.roomNow().State)
	ended := c1.last(t, ws.EventGameEnded).Data.(ws.GameEndedResponse)
	assert.Equal(t, ReasonQuestionsExhausted, ended.Reason)
}

func TestSessionTimer_TimeUpSettles(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})
	require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))

	h.clock.Advance(10 * time.Second)
	updates := c1.all(ws.EventSessionTimerUpdate)
	require.Len(t, updates, 3)
	assert.Equal(t, 300, updates[0].Data.(ws.SessionTimerResponse).RemainingSeconds)
	assert.Equal(t, 290, updates[2].Data.(ws.SessionTimerResponse).RemainingSeconds)

	h.clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, c1.count(ws.EventSessionTimeUp))
	assert.Equal(t, 1, c1.count(ws.EventGameEnded))
	ended := c1.last(t, ws.EventGameEnded).Data.(ws.GameEndedResponse)
	assert.Equal(t, ReasonTimeUp, ended.Reason)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, "p1", ended.Winner.PlayerID)

	assert.Equal(t, model.SessionStatusCompleted, h.session("p2").Status)
	assert.Zero(t, h.clock.pending(), "settlement cancels every room timer")
}

func TestSettle_Idempotent(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.engine.Settle(context.Background(), testRoom, ReasonAdmin))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c1.count(ws.EventGameEnded))
	assert.Equal(t, 1, c2.count(ws.EventGameEnded))

	room := h.roomNow()
	assert.Equal(t, model.RoomStateFinished, room.State)
	assert.Len(t, room.Leaderboard, 2)
	require.NotNil(t, room.EndedAt)
}

func TestSettle_ExactlyOnceAcrossEngines(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	other := NewEngine(Deps{Rooms: h.store, Sessions: h.store, Questions: h.store, Clock: h.clock}, h.cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go other.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-other.stopped
	})
	watcher := newConn("watcher")
	other.Conns().Attach(Binding{Conn: watcher, RoomCode: testRoom, PlayerID: "spectator"})

	var wg sync.WaitGroup
	for _, e := range []*Engine{h.engine, other, h.engine, other} {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			assert.NoError(t, e.Settle(context.Background(), testRoom, ReasonAdmin))
		}(e)
	}
	wg.Wait()

	assert.Equal(t, 1, c1.count(ws.EventGameEnded)+watcher.count(ws.EventGameEnded))
	assert.Equal(t, model.RoomStateFinished, h.roomNow().State)
}

func TestSettle_DuplicateSessionsUseFirst(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	h.store.InsertSession(&model.Session{
		RoomID:   h.roomNow().ID,
		PlayerID: "p1",
		Score:    999,
		Status:   model.SessionStatusCompleted,
	})
	require.NoError(t, h.engine.Settle(context.Background(), testRoom, ReasonAdmin))

	room := h.roomNow()
	require.Len(t, room.Leaderboard, 2)
	for _, e := range room.Leaderboard {
		assert.NotEqual(t, 999, e.Score)
	}
}

func TestTimersAfterFinishAreNoops(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	// A stale question timer whose registry entry has been replaced.
	err := h.engine.exec(context.Background(), func(ctx context.Context) error {
		h.engine.settle(ctx, testRoom, ReasonAdmin)
		h.engine.questionTimerFired(ctx, testRoom)
		return nil
	})
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	assert.Zero(t, c1.count(ws.EventQuestionComplete))
	assert.Equal(t, 1, c1.count(ws.EventGameEnded))
}

// Room of two: first join waits, second join fills the room and starts the
// game, both finish and the room settles once with a deterministic winner.
func TestEndToEnd_TwoPlayers(t *testing.T) {
	h := newHarness(t)
	c1, c2 := newConn("c1"), newConn("c2")

	h.join(c1, "p1")
	room := h.roomNow()
	assert.Equal(t, model.RoomStateWaiting, room.State)
	assert.Len(t, room.Players, 1)

	h.join(c2, "p2")
	assert.Equal(t, model.RoomStateWaiting, h.roomNow().State)

	h.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, model.RoomStateStarting, h.roomNow().State)
	assert.Equal(t, 1, c2.count(ws.EventGameStarting))

	h.clock.Advance(3 * time.Second)
	room = h.roomNow()
	require.Equal(t, model.RoomStatePlaying, room.State)
	require.NotNil(t, room.StartedAt)
	assert.Equal(t, 1, c1.count(ws.EventNewQuestion))
	assert.Equal(t, 1, c2.count(ws.EventNewQuestion))

	for i := 0; i < 3; i++ {
		require.NoError(t, h.answerCurrent(c1, "p1", "A", time.Second))
	}
	assert.Equal(t, 1, c1.count(ws.EventPlayerCompletionConfirmed))
	assert.Equal(t, 1, c2.count(ws.EventPlayerCompleted))
	assert.Equal(t, model.RoomStatePlaying, h.roomNow().State)

	h.clock.Advance(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.answerCurrent(c2, "p2", "A", time.Second))
	}

	room = h.roomNow()
	require.Equal(t, model.RoomStateFinished, room.State)
	require.Len(t, room.Leaderboard, 2)
	require.NotNil(t, room.Winner)
	assert.Equal(t, "p1", room.Winner.PlayerID)
	assert.Equal(t, 1, room.Leaderboard[0].Rank)
	assert.Equal(t, "p2", room.Leaderboard[1].PlayerID)
	assert.Equal(t, int64(1000), room.Leaderboard[1].TimeToCompleteMs)

	assert.Equal(t, 1, c1.count(ws.EventGameEnded))
	assert.Equal(t, 1, c2.count(ws.EventGameEnded))
	assert.Equal(t, model.SessionStatusCompleted, h.session("p1").Status)
	assert.Equal(t, model.SessionStatusCompleted, h.session("p2").Status)
	assert.Zero(t, h.clock.pending())
}

func TestKind(t *testing.T) {
	tests := map[string]struct {
		err  error
		want ErrorKind
	}{
		"validation":         {err: fmt.Errorf("%w: bad", ErrInvalidPayload), want: KindValidation},
		"unknown question":   {err: ErrUnknownQuestion, want: KindValidation},
		"room not found":     {err: ErrRoomNotFound, want: KindNotFound},
		"room full":          {err: ErrRoomFull, want: KindConflict},
		"not playing":        {err: ErrNotPlaying, want: KindConflict},
		"stale answer":       {err: ErrStaleAnswer, want: KindStale},
		"unclassified error": {err: fmt.Errorf("boom"), want: KindInternal},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Kind(tc.err))
		})
	}
}

func TestStartPlaying_RoomEmptiedDuringCountdownSettles(t *testing.T) {
	h := newHarness(t, withCapacity(3))
	c1, c2 := newConn("c1"), newConn("c2")
	h.join(c1, "p1")
	h.join(c2, "p2")
	h.ready(c1)
	h.ready(c2)
	require.Equal(t, model.RoomStateStarting, h.roomNow().State)

	ctx := context.Background()
	require.NoError(t, h.engine.Leave(ctx, c1, testRoom))
	require.NoError(t, h.engine.Leave(ctx, c2, testRoom))

	h.clock.Advance(time.Duration(h.cfg.CountdownTicks) * h.cfg.CountdownInterval)

	room := h.roomNow()
	assert.Equal(t, model.RoomStateFinished, room.State)
	assert.Empty(t, room.Players)
	assert.Zero(t, h.clock.pending(), "no question or session timer outlives the room")
}
