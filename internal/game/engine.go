// Package game runs quiz rooms: membership, readiness, countdown, question
// progression, timers and settlement.
//
// All mutating work, including timer callbacks, runs on a single loop
// goroutine started by Run. Public methods enqueue a closure and wait for
// its result, so per-connection ordering is preserved and the timer
// registries need no locking.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/metrics"
	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

// Deps are the collaborators of an Engine. Active, Lobby, Locker, Results
// and Metrics are optional.
type Deps struct {
	Rooms     RoomStore
	Sessions  SessionStore
	Questions QuestionSource
	Active    ActiveRooms
	Lobby     LobbyPublisher
	Locker    SettlementLocker
	Results   ResultSink
	Policy    ScoringPolicy
	Clock     Clock
	Metrics   *metrics.Metrics
	// Shuffle permutes a fresh question order in place.
	Shuffle func([]uuid.UUID)
}

type command struct {
	fn   func(ctx context.Context) error
	done chan error
}

type graceKey struct {
	playerID string
	roomCode string
}

// scheduled is a pending timer callback. Registries hold the pointer so a
// callback can tell whether it is still the current one.
type scheduled struct {
	timer Timer
}

func (s *scheduled) stop() {
	if s != nil && s.timer != nil {
		s.timer.Stop()
	}
}

type roomTimers struct {
	autoStart *scheduled
	countdown *scheduled
	question  *scheduled
	advance   *scheduled
	session   *scheduled
	// timeUp is set once session-time-up has been broadcast.
	timeUp    bool
}

func (t *roomTimers) stopAll() {
	t.autoStart.stop()
	t.countdown.stop()
	t.question.stop()
	t.advance.stop()
	t.session.stop()
}

// Engine owns the live state of every room hosted by this process.
type Engine struct {
	rooms     RoomStore
	sessions  SessionStore
	questions QuestionSource
	active    ActiveRooms
	lobby     LobbyPublisher
	locker    SettlementLocker
	results   ResultSink
	policy    ScoringPolicy
	clock     Clock
	metrics   *metrics.Metrics
	shuffle   func([]uuid.UUID)
	cfg       config.GameConfig
	log       zerolog.Logger

	conns *ConnTable

	cmds    chan command
	stopped chan struct{}

	// Owned by the loop goroutine.
	grace  map[graceKey]*scheduled
	timers map[string]*roomTimers
	ending map[string]struct{}
}

// NewEngine creates an Engine. Call Run before using it.
func NewEngine(deps Deps, cfg config.GameConfig, log zerolog.Logger) *Engine {
	e := &Engine{
		rooms:     deps.Rooms,
		sessions:  deps.Sessions,
		questions: deps.Questions,
		active:    deps.Active,
		lobby:     deps.Lobby,
		locker:    deps.Locker,
		results:   deps.Results,
		policy:    deps.Policy,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		shuffle:   deps.Shuffle,
		cfg:       cfg,
		log:       log.With().Str("component", "game_engine").Logger(),
		conns:     NewConnTable(),
		cmds:      make(chan command),
		stopped:   make(chan struct{}),
		grace:     make(map[graceKey]*scheduled),
		timers:    make(map[string]*roomTimers),
		ending:    make(map[string]struct{}),
	}
	if e.policy == nil {
		e.policy = BasePolicy{}
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.shuffle == nil {
		e.shuffle = func(ids []uuid.UUID) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		}
	}
	if e.cfg.StoreTimeout <= 0 {
		e.cfg.StoreTimeout = 3 * time.Second
	}
	return e
}

// Conns exposes the live connection table.
func (e *Engine) Conns() *ConnTable { return e.conns }

// Run processes commands until ctx is cancelled. Pending timers are
// stopped and attached connections closed on exit.
//
// With ResumeOnStart, unfinished rooms get their timers back before the
// first command runs. Room events only reach connections held by this
// process, so every player of a room must be routed to the same instance.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info().Msg("Engine started")
	defer close(e.stopped)

	if e.active != nil && e.cfg.ResumeOnStart {
		if err := e.call(ctx, e.resumeActive); err != nil {
			e.log.Warn().Err(err).Msg("Active rooms not resumed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			e.log.Info().Msg("Engine stopped")
			return
		case c := <-e.cmds:
			c.done <- e.call(ctx, c.fn)
		}
	}
}

func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("Recovered panic in engine command")
			err = fmt.Errorf("engine command panicked: %v", r)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return fn(cctx)
}

// exec runs fn on the loop and waits for it.
func (e *Engine) exec(ctx context.Context, fn func(ctx context.Context) error) error {
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case e.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
	return <-c.done
}

func (e *Engine) shutdown() {
	for key, s := range e.grace {
		s.stop()
		delete(e.grace, key)
	}
	for code, t := range e.timers {
		t.stopAll()
		delete(e.timers, code)
	}
	clear(e.ending)
	for _, b := range e.conns.All() {
		b.Conn.Close()
	}
}

// schedule arms fn to run on the loop after d. fn receives its own handle
// so it can verify it is still the registered timer.
func (e *Engine) schedule(d time.Duration, fn func(ctx context.Context, self *scheduled)) *scheduled {
	s := &scheduled{}
	s.timer = e.clock.AfterFunc(d, func() {
		err := e.exec(context.Background(), func(ctx context.Context) error {
			fn(ctx, s)
			return nil
		})
		if err != nil && !errors.Is(err, ErrEngineStopped) {
			e.log.Warn().Err(err).Msg("Timer callback failed")
		}
	})
	return s
}

func (e *Engine) roomTimers(code string) *roomTimers {
	t, ok := e.timers[code]
	if !ok {
		t = &roomTimers{}
		e.timers[code] = t
	}
	return t
}

func (e *Engine) stopRoomTimers(code string) {
	if t, ok := e.timers[code]; ok {
		t.stopAll()
		delete(e.timers, code)
	}
}

func (e *Engine) raceLoss(op, code string) {
	e.metrics.RaceLoss(op)
	e.log.Debug().Str("op", op).Str("room", code).Msg("Conditional write found no match")
}

// ─── Store helpers ──────────────────────────────────────────────────

// transition moves the room to "to" if it is currently in one of from.
func (e *Engine) transition(ctx context.Context, code string, from []model.RoomState, to model.RoomState, upd model.RoomUpdate) (*model.Room, model.Outcome, error) {
	for _, s := range from {
		if !s.CanTransitionTo(to) {
			return nil, model.NoMatch, fmt.Errorf("illegal room transition %s -> %s", s, to)
		}
	}
	upd.State = &to
	return e.rooms.UpdateRoomFields(ctx, code, model.RoomCondition{States: from}, upd)
}

func (e *Engine) findRoom(ctx context.Context, code string) (*model.Room, error) {
	room, err := e.rooms.FindRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room %s: %w", code, err)
	}
	return room, nil
}

// findSession returns nil without error when the player has no session.
func (e *Engine) findSession(ctx context.Context, roomID uuid.UUID, playerID string) (*model.Session, error) {
	s, err := e.sessions.FindSession(ctx, roomID, playerID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// roomSessions returns one session per player, first created wins.
func (e *Engine) roomSessions(ctx context.Context, roomID uuid.UUID) ([]model.Session, error) {
	all, err := e.sessions.FindSessionsByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return dedupeSessions(all), nil
}

func (e *Engine) roomQuestions(ctx context.Context, room *model.Room) ([]model.Question, error) {
	qs, err := e.questions.GetQuestionsForRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("load questions for %s: %w", room.Code, err)
	}
	return qs, nil
}

// ─── Fan-out helpers ────────────────────────────────────────────────

func (e *Engine) broadcast(code string, msg ws.Message) {
	for _, b := range e.conns.InRoom(code) {
		if !b.Conn.Send(msg) {
			e.log.Warn().Str("conn", b.Conn.ID()).Str("event", string(msg.Event)).Msg("Send buffer full, dropping message")
		}
	}
}

func (e *Engine) sendToPlayer(code, playerID string, msg ws.Message) {
	for _, b := range e.conns.ForPlayer(code, playerID) {
		b.Conn.Send(msg)
	}
}

// publishRoom sends room-update to the room and the lobby.
func (e *Engine) publishRoom(ctx context.Context, room *model.Room) {
	e.broadcast(room.Code, ws.Message{Event: ws.EventRoomUpdate, Data: ws.RoomUpdateResponse{Room: room}})
	if e.lobby == nil {
		return
	}
	if err := e.lobby.PublishRoomUpdate(ctx, room.Summary()); err != nil {
		e.log.Warn().Err(err).Str("room", room.Code).Msg("Lobby publish failed")
	}
}

func (e *Engine) publishLeaderboard(ctx context.Context, room *model.Room) {
	sessions, err := e.roomSessions(ctx, room.ID)
	if err != nil {
		e.log.Warn().Err(err).Str("room", room.Code).Msg("Live leaderboard skipped")
		return
	}
	e.broadcast(room.Code, ws.Message{
		Event: ws.EventLiveLeaderboardUpdate,
		Data: ws.LeaderboardResponse{
			RoomCode:    room.Code,
			Leaderboard: BuildLeaderboard(sessions, e.clock.Now()),
		},
	})
}

// questionMessage builds the frame for the question at index in the
// player's own order.
func questionMessage(event ws.Event, room *model.Room, s *model.Session, index int, byID map[uuid.UUID]*model.Question) (ws.Message, bool) {
	if index < 0 || index >= len(s.ShuffledQuestions) {
		return ws.Message{}, false
	}
	q, ok := byID[s.ShuffledQuestions[index]]
	if !ok {
		return ws.Message{}, false
	}
	return ws.Message{Event: event, Data: ws.QuestionResponse{
		RoomCode:      room.Code,
		QuestionIndex: index,
		Total:         len(s.ShuffledQuestions),
		TimeLimit:     room.TimePerQuestion,
		Question:      q.ForPlayer(),
	}}, true
}

func indexQuestions(qs []model.Question) map[uuid.UUID]*model.Question {
	m := make(map[uuid.UUID]*model.Question, len(qs))
	for i := range qs {
		m[qs[i].ID] = &qs[i]
	}
	return m
}

// deliverCurrent sends the player's current question to their connections.
func (e *Engine) deliverCurrent(event ws.Event, room *model.Room, s *model.Session, byID map[uuid.UUID]*model.Question) {
	msg, ok := questionMessage(event, room, s, s.CurrentQuestionIndex, byID)
	if !ok {
		return
	}
	e.sendToPlayer(room.Code, s.PlayerID, msg)
}

func (e *Engine) remainingSeconds(room *model.Room) int {
	deadline, ok := room.SessionDeadline()
	if !ok {
		return room.TotalTime * 60
	}
	return ceilSeconds(deadline.Sub(e.clock.Now()))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func ids(qs []model.Question) []uuid.UUID {
	out := make([]uuid.UUID, len(qs))
	for i := range qs {
		out[i] = qs[i].ID
	}
	return out
}
