package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/model"
	"github.com/stemsi/quizroom/internal/repository/memstore"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

// ─── fake clock ─────────────────────────────────────────────────────

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	seq   int
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward by d, firing due timers in order. Callbacks
// run on the caller's goroutine with the clock unlocked.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

// pending counts armed timers.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// ─── fake connection ────────────────────────────────────────────────

type fakeConn struct {
	id     string
	mu     sync.Mutex
	msgs   []ws.Message
	closed bool
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg ws.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count(event ws.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) all(event ws.Event) []ws.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ws.Message
	for _, m := range c.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) last(t *testing.T, event ws.Event) ws.Message {
	t.Helper()
	msgs := c.all(event)
	require.NotEmpty(t, msgs, "conn %s received no %s", c.id, event)
	return msgs[len(msgs)-1]
}

// ─── harness ────────────────────────────────────────────────────────

const testRoom = "ROOM42"

type harness struct {
	t         *testing.T
	engine    *Engine
	store     *memstore.Store
	clock     *fakeClock
	room      *model.Room
	questions []model.Question
	cfg       config.GameConfig
}

type option func(*harness, *Deps)

func withCapacity(n int) option {
	return func(h *harness, _ *Deps) { h.room.Capacity = n }
}

func withQuestions(n int) option {
	return func(h *harness, _ *Deps) { h.questions = makeQuestions(n) }
}

func withConfig(fn func(*config.GameConfig)) option {
	return func(h *harness, _ *Deps) { fn(&h.cfg) }
}

func withDeps(fn func(*Deps)) option {
	return func(_ *harness, d *Deps) { fn(d) }
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		DisconnectGrace:      10 * time.Second,
		CountdownTicks:       3,
		CountdownInterval:    time.Second,
		FullRoomSettle:       1500 * time.Millisecond,
		QuestionAdvanceDelay: 2 * time.Second,
		SessionTick:          5 * time.Second,
		StoreTimeout:         5 * time.Second,
		MinPlayersToStart:    2,
	}
}

func makeQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            uuid.New(),
			QuestionText:  fmt.Sprintf("Question %d", i+1),
			Options:       []byte(`["A","B","C","D"]`),
			CorrectOption: "A",
			ScoreValue:    10,
		}
	}
	return qs
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		store:     memstore.New(),
		clock:     newFakeClock(),
		cfg:       testGameConfig(),
		questions: makeQuestions(3),
		room: &model.Room{
			Code:            testRoom,
			Title:           "Friday quiz",
			Capacity:        2,
			TimePerQuestion: 20,
			TotalTime:       5,
		},
	}
	deps := Deps{}
	for _, opt := range opts {
		opt(h, &deps)
	}

	for _, q := range h.questions {
		h.store.PutQuestion(q)
		h.room.QuestionIDs = append(h.room.QuestionIDs, q.ID)
	}
	h.store.CreateRoom(h.room)

	if deps.Rooms == nil {
		deps.Rooms = h.store
	}
	if deps.Sessions == nil {
		deps.Sessions = h.store
	}
	deps.Questions = h.store
	deps.Clock = h.clock
	if deps.Shuffle == nil {
		deps.Shuffle = func([]uuid.UUID) {}
	}
	h.engine = NewEngine(deps, h.cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go h.engine.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.engine.stopped
	})
	return h
}

func (h *harness) join(conn *fakeConn, playerID string) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Join(context.Background(), conn, testRoom, playerID))
}

func (h *harness) ready(conn *fakeConn) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Ready(context.Background(), conn, testRoom))
}

func (h *harness) roomNow() *model.Room {
	h.t.Helper()
	r, err := h.store.FindRoomByCode(context.Background(), testRoom)
	require.NoError(h.t, err)
	return r
}

func (h *harness) session(playerID string) *model.Session {
	h.t.Helper()
	r := h.roomNow()
	s, err := h.store.FindSession(context.Background(), r.ID, playerID)
	require.NoError(h.t, err)
	return s
}

// startGame joins and readies every player, then runs the countdown.
func (h *harness) startGame(players map[string]*fakeConn) {
	h.t.Helper()
	names := make([]string, 0, len(players))
	for p := range players {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		h.join(players[p], p)
	}
	for _, p := range names {
		h.ready(players[p])
	}
	h.clock.Advance(time.Duration(h.cfg.CountdownTicks) * h.cfg.CountdownInterval)
	require.Equal(h.t, model.RoomStatePlaying, h.roomNow().State)
}

// answerCurrent answers the player's current question.
func (h *harness) answerCurrent(conn *fakeConn, playerID, selected string, spent time.Duration) error {
	h.t.Helper()
	return h.answerOn(h.engine, conn, playerID, selected, spent)
}

func (h *harness) answerOn(e *Engine, conn *fakeConn, playerID, selected string, spent time.Duration) error {
	h.t.Helper()
	s := h.session(playerID)
	qid, ok := s.CurrentQuestionID()
	require.True(h.t, ok, "player %s has no current question", playerID)
	return e.SubmitAnswer(context.Background(), conn, AnswerInput{
		RoomCode:       testRoom,
		QuestionID:     qid,
		SelectedAnswer: selected,
		TimeSpent:      spent,
	})
}

// crash stops every timer and connection of e the way a process exit
// would, leaving the store untouched.
func (h *harness) crash(e *Engine) {
	h.t.Helper()
	require.NoError(h.t, e.exec(context.Background(), func(context.Context) error {
		e.shutdown()
		return nil
	}))
}

// peer starts a second engine over the harness store and clock.
func (h *harness) peer(resumeOnStart bool) *Engine {
	h.t.Helper()
	cfg := h.cfg
	cfg.ResumeOnStart = resumeOnStart
	e := NewEngine(Deps{
		Rooms:     h.store,
		Sessions:  h.store,
		Questions: h.store,
		Active:    h.store,
		Clock:     h.clock,
		Shuffle:   func([]uuid.UUID) {},
	}, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	h.t.Cleanup(func() {
		cancel()
		<-e.stopped
	})
	// Commands queue behind startup.
	require.NoError(h.t, e.exec(context.Background(), func(context.Context) error { return nil }))
	return e
}

func reverse(ids []uuid.UUID) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
