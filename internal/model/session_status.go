package model

import "fmt"

// SessionStatus is the lifecycle position of a player's session in a room.
type SessionStatus uint8

const (
	SessionStatusActive SessionStatus = iota
	SessionStatusCompleted
	SessionStatusDisconnected
)

var sessionStatusNames = [...]string{
	SessionStatusActive:       "active",
	SessionStatusCompleted:    "completed",
	SessionStatusDisconnected: "disconnected",
}

func (s SessionStatus) String() string {
	if int(s) < len(sessionStatusNames) {
		return sessionStatusNames[s]
	}
	return fmt.Sprintf("SessionStatus(%d)", uint8(s))
}

// Done reports whether the session no longer blocks settlement.
func (s SessionStatus) Done() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusDisconnected:
		return true
	case SessionStatusActive:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
// A completed session is final; a disconnected one may resume.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusActive:
		return next == SessionStatusCompleted || next == SessionStatusDisconnected
	case SessionStatusDisconnected:
		return next == SessionStatusActive || next == SessionStatusCompleted
	case SessionStatusCompleted:
		return false
	default:
		return false
	}
}

func (s SessionStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SessionStatus) UnmarshalText(b []byte) error {
	for i, name := range sessionStatusNames {
		if name == string(b) {
			*s = SessionStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", string(b))
}

