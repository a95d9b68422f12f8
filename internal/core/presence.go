package core

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/domain"
)

// PresenceRegistry is a threadsafe in-memory connection -> user table.
// A user is bound to at most one connection at a time.
type PresenceRegistry struct {
	mu     sync.RWMutex
	byConn map[domain.ConnID]domain.PresenceEntry
	byUser map[domain.UserID]domain.ConnID
	now    func() time.Time
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		byConn: make(map[domain.ConnID]domain.PresenceEntry),
		byUser: make(map[domain.UserID]domain.ConnID),
		now:    time.Now,
	}
}

// Register binds conn to user, replacing any previous binding of conn.
// If user was bound to another connection that binding is dropped and
// the other connection is returned as displaced.
func (p *PresenceRegistry) Register(conn domain.ConnID, user domain.UserID) (displaced domain.ConnID, replaced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.byConn[conn]; ok && prev.User != user {
		delete(p.byUser, prev.User)
	}
	if other, ok := p.byUser[user]; ok && other != conn {
		delete(p.byConn, other)
		displaced, replaced = other, true
	}
	p.byConn[conn] = domain.PresenceEntry{Conn: conn, User: user, Since: p.now()}
	p.byUser[user] = conn

	ev := log.Info().Str("module", "core.presence").Str("conn", string(conn)).Str("user", string(user))
	if replaced {
		ev = ev.Str("displaced", string(displaced))
	}
	ev.Msg("registered")
	return displaced, replaced
}

func (p *PresenceRegistry) Unregister(conn domain.ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byConn[conn]
	if !ok {
		return false
	}
	delete(p.byConn, conn)
	if p.byUser[e.User] == conn {
		delete(p.byUser, e.User)
	}
	log.Info().Str("module", "core.presence").Str("conn", string(conn)).Str("user", string(e.User)).Msg("unregistered")
	return true
}

func (p *PresenceRegistry) Lookup(conn domain.ConnID) (domain.UserID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byConn[conn]
	return e.User, ok
}

func (p *PresenceRegistry) ConnOf(user domain.UserID) (domain.ConnID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byUser[user]
	return c, ok
}

// ListOnline returns a sorted snapshot of registered connections.
func (p *PresenceRegistry) ListOnline() []domain.ConnID {
	p.mu.RLock()
	out := make([]domain.ConnID, 0, len(p.byConn))
	for c := range p.byConn {
		out = append(out, c)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *PresenceRegistry) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byConn)
}
