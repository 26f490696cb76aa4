package game

import (
	"sync"

	"github.com/google/uuid"
)

// Binding ties a live connection to the room and player it joined as.
type Binding struct {
	Conn      Conn
	RoomCode  string
	PlayerID  string
	SessionID uuid.UUID
}

// ConnTable maps live connections to bindings. It is never persisted.
type ConnTable struct {
	mu     sync.RWMutex
	byConn map[string]Binding
	byRoom map[string]map[string]struct{}
}

func NewConnTable() *ConnTable {
	return &ConnTable{
		byConn: make(map[string]Binding),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Attach binds conn, replacing any earlier binding of the same connection.
func (t *ConnTable) Attach(b Binding) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := b.Conn.ID()
	if prev, ok := t.byConn[id]; ok {
		t.unindex(prev.RoomCode, id)
	}
	t.byConn[id] = b
	room, ok := t.byRoom[b.RoomCode]
	if !ok {
		room = make(map[string]struct{})
		t.byRoom[b.RoomCode] = room
	}
	room[id] = struct{}{}
}

// Detach removes the binding of connID and returns it.
func (t *ConnTable) Detach(connID string) (Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	delete(t.byConn, connID)
	t.unindex(b.RoomCode, connID)
	return b, true
}

func (t *ConnTable) Lookup(connID string) (Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.byConn[connID]
	return b, ok
}

// InRoom returns every binding in roomCode.
func (t *ConnTable) InRoom(roomCode string) []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := t.byRoom[roomCode]
	out := make([]Binding, 0, len(ids))
	for id := range ids {
		out = append(out, t.byConn[id])
	}
	return out
}

// ForPlayer returns the bindings of playerID in roomCode.
func (t *ConnTable) ForPlayer(roomCode, playerID string) []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Binding
	for id := range t.byRoom[roomCode] {
		if b := t.byConn[id]; b.PlayerID == playerID {
			out = append(out, b)
		}
	}
	return out
}

// All returns every binding.
func (t *ConnTable) All() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Binding, 0, len(t.byConn))
	for _, b := range t.byConn {
		out = append(out, b)
	}
	return out
}

func (t *ConnTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byConn)
}

func (t *ConnTable) unindex(roomCode, connID string) {
	room := t.byRoom[roomCode]
	delete(room, connID)
	if len(room) == 0 {
		delete(t.byRoom, roomCode)
	}
}
