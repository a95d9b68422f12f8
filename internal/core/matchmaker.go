package core

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/domain"
)

type MatchPolicy string

const (
	// PolicyFIFO pairs a requester with the oldest waiting connection, or queues it.
	PolicyFIFO MatchPolicy = "fifo"
	// PolicyRandom pairs a requester with a uniformly chosen idle online connection and never queues.
	PolicyRandom MatchPolicy = "random"
)

func ParsePolicy(s string) (MatchPolicy, error) {
	switch p := MatchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFIFO, PolicyRandom:
		return p, nil
	case "":
		return PolicyFIFO, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownPolicy)
	}
}

// Matchmaker serializes every transition that touches more than one table.
// Pairing, cancellation, registration and departure all take mu, so two
// requests never claim the same partner and a departing connection is
// ineligible before anyone can pick it.
type Matchmaker struct {
	mu       sync.Mutex
	policy   MatchPolicy
	presence *PresenceRegistry
	sessions *SessionTable
	queue    *WaitQueue
	rnd      *rand.Rand
	now      func() time.Time
}

// NewMatchmaker wires the three tables. seed 0 means time seeded.
func NewMatchmaker(policy MatchPolicy, presence *PresenceRegistry, sessions *SessionTable, queue *WaitQueue, seed int64) *Matchmaker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Matchmaker{
		policy:   policy,
		presence: presence,
		sessions: sessions,
		queue:    queue,
		rnd:      rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1)),
		now:      time.Now,
	}
}

func (m *Matchmaker) Policy() MatchPolicy { return m.policy }

// Register binds conn to user. When user was live on another connection,
// that connection loses its presence, its ticket and its session.
// A connection already in a session cannot be rebound to another user.
func (m *Matchmaker) Register(conn domain.ConnID, user domain.UserID) (displaced domain.ConnID, dep Departure, replaced bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.presence.Lookup(conn); ok && prev != user && m.sessions.InSession(conn) {
		return "", Departure{}, false, fmt.Errorf("rebind %s to %s: %w", prev, user, ErrAlreadyInSession)
	}
	displaced, replaced = m.presence.Register(conn, user)
	if !replaced {
		return "", Departure{}, false, nil
	}
	dep = Departure{User: user, Registered: true}
	m.releaseLocked(displaced, &dep)
	return displaced, dep, true, nil
}

func (m *Matchmaker) RequestMatch(conn domain.ConnID) (MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.presence.Lookup(conn)
	if !ok {
		return MatchResult{}, ErrNotRegistered
	}
	if m.sessions.InSession(conn) {
		return MatchResult{User: user}, ErrAlreadyInSession
	}

	var partner domain.ConnID
	switch m.policy {
	case PolicyRandom:
		partner, ok = m.pickRandomLocked(conn)
		if !ok {
			return MatchResult{Outcome: MatchNoPartner, User: user}, nil
		}
	default:
		if m.queue.Contains(conn) {
			return MatchResult{Outcome: MatchWaiting, User: user}, nil
		}
		partner, ok = m.popEligibleLocked(conn)
		if !ok {
			m.queue.Push(domain.WaitingTicket{Conn: conn, User: user, EnqueuedAt: m.now()})
			log.Debug().Str("module", "core.match").Str("conn", string(conn)).Int("queue", m.queue.Len()).Msg("waiting")
			return MatchResult{Outcome: MatchWaiting, User: user}, nil
		}
	}

	sess, err := m.sessions.Create(conn, partner)
	if err != nil {
		return MatchResult{User: user}, err
	}
	m.queue.Remove(conn)
	m.queue.Remove(partner)
	partnerUser, _ := m.presence.Lookup(partner)
	log.Info().Str("module", "core.match").Str("policy", string(m.policy)).Str("conn", string(conn)).Str("partner", string(partner)).Str("session", string(sess.ID)).Msg("paired")
	return MatchResult{
		Outcome:     MatchPaired,
		Session:     sess,
		Partner:     partner,
		PartnerUser: partnerUser,
		User:        user,
	}, nil
}

// popEligibleLocked pops tickets until one belongs to a registered, idle connection.
func (m *Matchmaker) popEligibleLocked(self domain.ConnID) (domain.ConnID, bool) {
	for {
		t, ok := m.queue.Pop()
		if !ok {
			return "", false
		}
		if t.Conn == self {
			continue
		}
		if _, ok := m.presence.Lookup(t.Conn); !ok || m.sessions.InSession(t.Conn) {
			log.Warn().Str("module", "core.match").Str("conn", string(t.Conn)).Msg("dropping stale ticket")
			continue
		}
		return t.Conn, true
	}
}

func (m *Matchmaker) pickRandomLocked(self domain.ConnID) (domain.ConnID, bool) {
	online := m.presence.ListOnline()
	candidates := online[:0]
	for _, c := range online {
		if c == self || m.sessions.InSession(c) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[m.rnd.IntN(len(candidates))], true
}

// CancelWait drops the ticket of conn. A ticket already claimed by a
// pairing is gone, so cancelling afterwards is a no-op.
func (m *Matchmaker) CancelWait(conn domain.ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Remove(conn)
}

func (m *Matchmaker) Waiting(conn domain.ConnID) bool {
	return m.queue.Contains(conn)
}

// Depart removes conn from every table: ticket, session, presence, in that order.
func (m *Matchmaker) Depart(conn domain.ConnID) Departure {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dep Departure
	dep.User, dep.Registered = m.presence.Lookup(conn)
	m.releaseLocked(conn, &dep)
	m.presence.Unregister(conn)
	return dep
}

func (m *Matchmaker) releaseLocked(conn domain.ConnID, dep *Departure) {
	dep.WasWaiting = m.queue.Remove(conn)
	if s, ok := m.sessions.SessionOf(conn); ok {
		if closed, ok := m.sessions.Close(s.ID); ok {
			dep.Ended = &closed
			dep.Partner, _ = closed.Partner(conn)
		}
	}
}

// EndSession closes id on behalf of initiator. Unknown sessions are a no-op
// reported as ended=false; an initiator outside the session is refused.
func (m *Matchmaker) EndSession(id domain.SessionID, initiator domain.ConnID) (sess domain.Session, partner domain.ConnID, ended bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions.Get(id)
	if !ok {
		return domain.Session{}, "", false, nil
	}
	if !s.Has(initiator) {
		return domain.Session{}, "", false, fmt.Errorf("end %s by %s: %w", id, initiator, ErrNotParticipant)
	}
	closed, ok := m.sessions.Close(id)
	if !ok {
		return domain.Session{}, "", false, nil
	}
	partner, _ = closed.Partner(initiator)
	return closed, partner, true, nil
}

// ExpireWaiting drops tickets enqueued before cutoff.
func (m *Matchmaker) ExpireWaiting(cutoff time.Time) []domain.WaitingTicket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.RemoveOlderThan(cutoff)
}

func (m *Matchmaker) WaitingCount() int { return m.queue.Len() }
