package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/idgen"
)

// SessionTable tracks live two-party sessions.
// A connection appears in at most one session until that session is closed.
type SessionTable struct {
	mu     sync.RWMutex
	byID   map[domain.SessionID]*domain.Session
	byConn map[domain.ConnID]domain.SessionID
	newID  func() domain.SessionID
	now    func() time.Time
}

func NewSessionTable() *SessionTable {
	return &SessionTable{
		byID:   make(map[domain.SessionID]*domain.Session),
		byConn: make(map[domain.ConnID]domain.SessionID),
		newID:  idgen.NewSessionID,
		now:    time.Now,
	}
}

// Create inserts an Active session for a and b.
// It refuses to touch a connection that already belongs to a session.
func (t *SessionTable) Create(a, b domain.ConnID) (domain.Session, error) {
	if a == b {
		return domain.Session{}, fmt.Errorf("create session %s: %w", a, ErrSameParticipant)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range []domain.ConnID{a, b} {
		if sid, ok := t.byConn[c]; ok {
			log.Error().Str("module", "core.sessions").Str("conn", string(c)).Str("session", string(sid)).Msg("session conflict")
			return domain.Session{}, fmt.Errorf("create session: conn %s in %s: %w", c, sid, ErrSessionConflict)
		}
	}
	s := &domain.Session{
		ID:           t.newID(),
		Participants: [2]domain.ConnID{a, b},
		CreatedAt:    t.now(),
		State:        domain.SessionActive,
	}
	t.byID[s.ID] = s
	t.byConn[a] = s.ID
	t.byConn[b] = s.ID
	log.Info().Str("module", "core.sessions").Str("session", string(s.ID)).Str("a", string(a)).Str("b", string(b)).Msg("session created")
	return *s, nil
}

// ResolvePartner is valid only while the session is Active.
func (t *SessionTable) ResolvePartner(c domain.ConnID) (domain.SessionID, domain.ConnID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sid, ok := t.byConn[c]
	if !ok {
		return "", "", false
	}
	s := t.byID[sid]
	if s.State != domain.SessionActive {
		return "", "", false
	}
	partner, _ := s.Partner(c)
	return sid, partner, true
}

func (t *SessionTable) SessionOf(c domain.ConnID) (domain.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sid, ok := t.byConn[c]
	if !ok {
		return domain.Session{}, false
	}
	return *t.byID[sid], true
}

func (t *SessionTable) Get(id domain.SessionID) (domain.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[id]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// MarkEnding stops the session from resolving while teardown is pending.
func (t *SessionTable) MarkEnding(id domain.SessionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	if !ok || s.State != domain.SessionActive {
		return false
	}
	s.State = domain.SessionEnding
	log.Debug().Str("module", "core.sessions").Str("session", string(id)).Msg("session ending")
	return true
}

// Close removes the session and returns its final snapshot.
// Closing an unknown or already closed session is a no-op.
func (t *SessionTable) Close(id domain.SessionID) (domain.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	if !ok {
		return domain.Session{}, false
	}
	s.State = domain.SessionClosed
	delete(t.byID, id)
	for _, c := range s.Participants {
		if t.byConn[c] == id {
			delete(t.byConn, c)
		}
	}
	log.Info().Str("module", "core.sessions").Str("session", string(id)).Dur("lasted", t.now().Sub(s.CreatedAt)).Msg("session closed")
	return *s, true
}

func (t *SessionTable) InSession(c domain.ConnID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byConn[c]
	return ok
}

func (t *SessionTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// Snapshot returns all sessions ordered by id.
func (t *SessionTable) Snapshot() []domain.Session {
	t.mu.RLock()
	out := make([]domain.Session, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, *s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
