// Package memstore is an in-process room, session and question store with the
// same conditional-write semantics as the PostgreSQL repositories. It backs
// STORE_DRIVER=memory and the engine tests.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizroom/internal/model"
)

// Store keeps rooms, sessions and questions in memory.
type Store struct {
	mu        sync.Mutex
	rooms     map[string]*model.Room
	sessions  []*model.Session
	questions map[uuid.UUID]model.Question
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rooms:     make(map[string]*model.Room),
		questions: make(map[uuid.UUID]model.Question),
		now:       time.Now,
	}
}

// PutQuestion adds or replaces a question in the corpus.
func (s *Store) PutQuestion(q model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	s.questions[q.ID] = q
}

// CreateRoom inserts a room in the waiting state.
func (s *Store) CreateRoom(room *model.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	room.State = model.RoomStateWaiting
	room.CreatedAt = s.now()
	if room.Players == nil {
		room.Players = []model.PlayerEntry{}
	}
	s.rooms[room.Code] = cloneRoom(room)
}

// InsertSession stores a raw session row, bypassing the (room, player)
// uniqueness FindOrCreateSession enforces.
func (s *Store) InsertSession(sess *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	sess.CreatedAt = s.now()
	s.sessions = append(s.sessions, cloneSession(sess))
}

// ListByIDs returns the questions for ids, in ids order.
func (s *Store) ListByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *Store) FindRoomByCode(_ context.Context, code string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneRoom(r), nil
}

func (s *Store) AddPlayer(_ context.Context, code string, entry model.PlayerEntry, allowed []model.RoomState) (*model.Room, model.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok || !slices.Contains(allowed, r.State) || r.IsFull() || r.HasPlayer(entry.PlayerID) {
		return nil, model.NoMatch, nil
	}
	r.Players = append(r.Players, entry)
	return cloneRoom(r), model.Updated, nil
}

func (s *Store) RemovePlayer(_ context.Context, code, playerID string) (*model.Room, model.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok || r.State == model.RoomStateFinished {
		return nil, model.NoMatch, nil
	}
	i := r.PlayerIndex(playerID)
	if i < 0 {
		return nil, model.NoMatch, nil
	}
	r.Players = slices.Delete(r.Players, i, i+1)
	return cloneRoom(r), model.Updated, nil
}

func (s *Store) UpdatePlayer(_ context.Context, code, playerID string, patch model.PlayerPatch, allowed []model.RoomState) (*model.Room, model.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok || !slices.Contains(allowed, r.State) {
		return nil, model.NoMatch, nil
	}
	i := r.PlayerIndex(playerID)
	if i < 0 {
		return nil, model.NoMatch, nil
	}
	patch.Apply(&r.Players[i])
	return cloneRoom(r), model.Updated, nil
}

func (s *Store) UpdateRoomFields(_ context.Context, code string, cond model.RoomCondition, upd model.RoomUpdate) (*model.Room, model.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok || !cond.Matches(r) {
		return nil, model.NoMatch, nil
	}
	upd.Apply(r)
	return cloneRoom(r), model.Updated, nil
}

func (s *Store) FindSession(_ context.Context, roomID uuid.UUID, playerID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(roomID, playerID); sess != nil {
		return cloneSession(sess), nil
	}
	return nil, model.ErrNotFound
}

func (s *Store) FindOrCreateSession(_ context.Context, seed *model.Session) (*model.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(seed.RoomID, seed.PlayerID); sess != nil {
		return cloneSession(sess), false, nil
	}
	created := cloneSession(seed)
	created.ID = uuid.New()
	created.CreatedAt = s.now()
	created.Version = 0
	if created.Answers == nil {
		created.Answers = []model.Answer{}
	}
	s.sessions = append(s.sessions, created)
	return cloneSession(created), true, nil
}

func (s *Store) SaveSession(_ context.Context, sess *model.Session) (model.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.sessions {
		if cur.ID != sess.ID {
			continue
		}
		if cur.Version != sess.Version {
			return model.NoMatch, nil
		}
		next := cloneSession(sess)
		next.Version = cur.Version + 1
		next.CreatedAt = cur.CreatedAt
		s.sessions[i] = next
		sess.Version = next.Version
		return model.Updated, nil
	}
	return model.NoMatch, nil
}

func (s *Store) FindSessionsByRoom(_ context.Context, roomID uuid.UUID) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Session
	for _, sess := range s.sessions {
		if sess.RoomID == roomID {
			out = append(out, *cloneSession(sess))
		}
	}
	return out, nil
}

func (s *Store) findLocked(roomID uuid.UUID, playerID string) *model.Session {
	for _, sess := range s.sessions {
		if sess.RoomID == roomID && sess.PlayerID == playerID {
			return sess
		}
	}
	return nil
}

func cloneRoom(r *model.Room) *model.Room {
	c := *r
	c.Players = slices.Clone(r.Players)
	c.QuestionIDs = slices.Clone(r.QuestionIDs)
	c.Leaderboard = slices.Clone(r.Leaderboard)
	if r.Winner != nil {
		w := *r.Winner
		c.Winner = &w
	}
	c.StartedAt = cloneTime(r.StartedAt)
	c.EndedAt = cloneTime(r.EndedAt)
	return &c
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	c.ShuffledQuestions = slices.Clone(s.ShuffledQuestions)
	c.Answers = slices.Clone(s.Answers)
	c.StartedAt = cloneTime(s.StartedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// GetQuestionsForRoom returns the room's questions in canonical order.
func (s *Store) GetQuestionsForRoom(ctx context.Context, room *model.Room) ([]model.Question, error) {
	return s.ListByIDs(ctx, room.QuestionIDs)
}

// ListActive returns every room that has not finished.
func (s *Store) ListActive(_ context.Context) ([]model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Room
	for _, r := range s.rooms {
		if r.State != model.RoomStateFinished {
			out = append(out, *cloneRoom(r))
		}
	}
	return out, nil
}
