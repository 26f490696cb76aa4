package model

import "fmt"

// RoomState is the lifecycle position of a room. States only move forward:
// waiting → starting → playing → finished.
type RoomState uint8

const (
	RoomStateWaiting RoomState = iota
	RoomStateStarting
	RoomStatePlaying
	RoomStateFinished
)

var roomStateNames = [...]string{
	RoomStateWaiting:  "waiting",
	RoomStateStarting: "starting",
	RoomStatePlaying:  "playing",
	RoomStateFinished: "finished",
}

func (s RoomState) String() string {
	if int(s) < len(roomStateNames) {
		return roomStateNames[s]
	}
	return fmt.Sprintf("RoomState(%d)", uint8(s))
}

// CanTransitionTo reports whether next is a legal successor of s.
// Force-start still passes through starting, so there is no shortcut edge.
func (s RoomState) CanTransitionTo(next RoomState) bool {
	switch s {
	case RoomStateWaiting:
		return next == RoomStateStarting || next == RoomStateFinished
	case RoomStateStarting:
		return next == RoomStatePlaying || next == RoomStateFinished
	case RoomStatePlaying:
		return next == RoomStateFinished
	case RoomStateFinished:
		return false
	default:
		return false
	}
}

// Active reports whether the room still accepts mutations.
func (s RoomState) Active() bool { return s != RoomStateFinished }

// ParseRoomState maps the persisted name back to a RoomState.
func ParseRoomState(v string) (RoomState, error) {
	for i, name := range roomStateNames {
		if name == v {
			return RoomState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown room state %q", v)
}

func (s RoomState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RoomState) UnmarshalText(b []byte) error {
	v, err := ParseRoomState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// RoomStateNames returns the persisted names of states, in order.
func RoomStateNames(states []RoomState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.String()
	}
	return out
}
