package domain

import "time"

type SessionID string

func (id SessionID) String() string { return string(id) }

type SessionState int

const (
	SessionActive SessionState = iota
	SessionEnding
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionEnding:
		return "ending"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one two-party call.
type Session struct {
	ID           SessionID
	Participants [2]ConnID
	CreatedAt    time.Time
	State        SessionState
}

func (s Session) Has(c ConnID) bool {
	return s.Participants[0] == c || s.Participants[1] == c
}

// Partner returns the participant that is not c.
func (s Session) Partner(c ConnID) (ConnID, bool) {
	switch c {
	case s.Participants[0]:
		return s.Participants[1], true
	case s.Participants[1]:
		return s.Participants[0], true
	}
	return "", false
}
