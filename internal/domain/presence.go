package domain

import "time"

// ConnID identifies one live client link. Assigned by the transport.
type ConnID string

func (id ConnID) String() string { return string(id) }

// PresenceEntry binds a live connection to the user it registered as.
type PresenceEntry struct {
	Conn  ConnID
	User  UserID
	Since time.Time
}

// WaitingTicket marks a connection that asked for a partner and has none yet.
type WaitingTicket struct {
	Conn       ConnID
	User       UserID
	EnqueuedAt time.Time
}
