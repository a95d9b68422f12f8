package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Converse/internal/domain"
)

// EventType names a server to client message.
type EventType string

const (
	EventRegistered      EventType = "registered"
	EventPaired          EventType = "paired"
	EventWaiting         EventType = "waiting"
	EventNoPartner       EventType = "no-partner"
	EventMatchCancelled  EventType = "match-cancelled"
	EventSignalOffer     EventType = "signal-offer"
	EventSignalAnswer    EventType = "signal-answer"
	EventSignalCandidate EventType = "signal-candidate"
	EventCallEnded       EventType = "call-ended"
	EventReplaced        EventType = "presence-replaced"
	EventWhoAmI          EventType = "whoami"
	EventPong            EventType = "pong"
	EventError           EventType = "error"
)

// SignalEvent maps a relayed signal kind to the event delivered to the partner.
func SignalEvent(k domain.SignalKind) EventType {
	switch k {
	case domain.SignalOffer:
		return EventSignalOffer
	case domain.SignalAnswer:
		return EventSignalAnswer
	default:
		return EventSignalCandidate
	}
}

// Event is what the core hands to a SignalConnection.
// The transport decides how it is framed.
type Event struct {
	Type          EventType
	UserID        domain.UserID
	SessionID     domain.SessionID
	PartnerUserID domain.UserID
	FromUserID    domain.UserID
	Partner       *domain.Profile
	Profile       *domain.Profile
	Initiator     bool
	Waiting       bool
	Payload       []byte
	BinaryPayload bool
	ICEServers    []webrtc.ICEServer
	Reason        string
	Error         string
	Ref           string
}

type MatchOutcome int

const (
	MatchPaired MatchOutcome = iota
	MatchWaiting
	MatchNoPartner
)

func (o MatchOutcome) String() string {
	switch o {
	case MatchPaired:
		return "paired"
	case MatchWaiting:
		return "waiting"
	case MatchNoPartner:
		return "no-partner"
	default:
		return "unknown"
	}
}

// MatchResult is the typed answer to a match request.
// Session, Partner and PartnerUser are set only when Outcome is MatchPaired.
type MatchResult struct {
	Outcome     MatchOutcome
	Session     domain.Session
	Partner     domain.ConnID
	PartnerUser domain.UserID
	User        domain.UserID
}

// Departure describes what a connection left behind when it went away.
type Departure struct {
	User       domain.UserID
	Registered bool
	WasWaiting bool
	// Ended is set when the connection was in a session; Partner is the survivor.
	Ended   *domain.Session
	Partner domain.ConnID
}
