package game

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizroom/internal/metrics"
	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

// flakyRooms fails every conditional room write while down is set.
type flakyRooms struct {
	RoomStore
	down atomic.Bool
}

func (r *flakyRooms) UpdateRoomFields(ctx context.Context, code string, cond model.RoomCondition, upd model.RoomUpdate) (*model.Room, model.Outcome, error) {
	if r.down.Load() {
		return nil, model.NoMatch, errors.New("store unavailable")
	}
	return r.RoomStore.UpdateRoomFields(ctx, code, cond, upd)
}

// staleReadySessions loses every write that marks a session ready.
type staleReadySessions struct {
	SessionStore
}

func (s staleReadySessions) SaveSession(ctx context.Context, sess *model.Session) (model.Outcome, error) {
	if sess.IsReady {
		return model.NoMatch, nil
	}
	return s.SessionStore.SaveSession(ctx, sess)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSessionTimer_RetriesFailedTimeUpSettlement(t *testing.T) {
	rooms := &flakyRooms{}
	h := newHarness(t, func(h *harness, d *Deps) {
		rooms.RoomStore = h.store
		d.Rooms = rooms
	})
	c1, c2 := newConn("c1"), newConn("c2")
	h.startGame(map[string]*fakeConn{"p1": c1, "p2": c2})

	rooms.down.Store(true)
	h.clock.Advance(5*time.Minute + time.Second)

	assert.Equal(t, model.RoomStatePlaying, h.roomNow().State)
	assert.Equal(t, 1, c1.count(ws.EventSessionTimeUp))
	assert.Zero(t, c1.count(ws.EventGameEnded))

	h.clock.Advance(settleRetryDelay)
	assert.Equal(t, model.RoomStatePlaying, h.roomNow().State, "store still down")

	rooms.down.Store(false)
	h.clock.Advance(settleRetryDelay)

	assert.Equal(t, model.RoomStateFinished, h.roomNow().State)
	assert.Equal(t, 1, c1.count(ws.EventSessionTimeUp))
	assert.Equal(t, 1, c1.count(ws.EventGameEnded))
	ended := c1.last(t, ws.EventGameEnded).Data.(ws.GameEndedResponse)
	assert.Equal(t, ReasonTimeUp, ended.Reason)
	assert.Zero(t, h.clock.pending())
}

func TestReady_LostSessionWriteCountsRaceLoss(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t, withCapacity(3), func(h *harness, d *Deps) {
		d.Sessions = staleReadySessions{SessionStore: h.store}
		d.Metrics = metrics.New(reg)
	})
	c1 := newConn("c1")
	h.join(c1, "p1")

	h.ready(c1)

	room := h.roomNow()
	require.Len(t, room.Players, 1)
	assert.True(t, room.Players[0].IsReady)
	assert.False(t, h.session("p1").IsReady)
	assert.Equal(t, 1.0, counterValue(t, reg, "quizroom_race_losses_total", "op", "session_ready"))
}
