package orch

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/directory"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/metrics"
)

// Orchestrator owns the lifecycle of a connection: registration, matching,
// relaying and the single cleanup path on disconnect. Transports call into it;
// it talks back to connections only through Conns.
type Orchestrator struct {
	Matchmaker *core.Matchmaker
	Presence   *core.PresenceRegistry
	Sessions   *core.SessionTable
	Conns      *app.Registry
	Relay      *app.SignalRelay
	Policy     app.Policy
	Directory  directory.Directory
	Metrics    *metrics.Metrics
	ICEServers []webrtc.ICEServer

	RequireKnownUsers bool
	LookupTimeout     time.Duration
	WaitTimeout       time.Duration

	profiles profileCache
}

type Stats struct {
	Online      int    `json:"online"`
	Waiting     int    `json:"waiting"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
	Policy      string `json:"policy"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Online:      o.Presence.Count(),
		Waiting:     o.Matchmaker.WaitingCount(),
		Sessions:    o.Sessions.Count(),
		Connections: o.Conns.Count(),
		Policy:      string(o.Matchmaker.Policy()),
	}
}

// Connect binds a fresh transport. The connection is not registered yet.
func (o *Orchestrator) Connect(conn domain.ConnID, sc core.SignalConnection, cancel context.CancelFunc) {
	o.Conns.BindSignal(conn, sc, cancel)
}

// DropPeer force-closes conn and runs the disconnect cleanup for it.
func (o *Orchestrator) DropPeer(conn domain.ConnID) {
	sc, ok := o.Conns.GetSignal(conn)
	o.Conns.Cancel(conn)
	if ok {
		sc.Close()
	}
	o.OnDisconnect(conn)
}

// notify never blocks. A failed delivery goes through Policy like a failed relay.
func (o *Orchestrator) notify(conn domain.ConnID, ev core.Event) {
	sc, ok := o.Conns.GetSignal(conn)
	if !ok {
		log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("event", string(ev.Type)).Msg("no transport, event dropped")
		return
	}
	err := sc.TrySend(ev)
	if err == nil {
		return
	}
	log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("event", string(ev.Type)).Msg("notify failed")
	if o.Policy == nil || o.Policy.OnBackPressure(conn, err) == app.DisconnectPeer {
		o.DropPeer(conn)
	}
}

func (o *Orchestrator) lookupProfile(ctx context.Context, user domain.UserID) (domain.Profile, error) {
	if o.Directory == nil {
		return domain.BareProfile(user), nil
	}
	if o.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.LookupTimeout)
		defer cancel()
	}
	p, err := o.Directory.Lookup(ctx, user)
	if err == nil {
		return p, nil
	}
	if o.RequireKnownUsers {
		return domain.Profile{}, err
	}
	log.Debug().Err(err).Str("module", "orch").Str("user", string(user)).Msg("profile unavailable, using bare identity")
	return domain.BareProfile(user), nil
}

func (o *Orchestrator) profileOf(conn domain.ConnID, user domain.UserID) domain.Profile {
	if p, ok := o.profiles.get(conn); ok && p.UserID == user {
		return p
	}
	return domain.BareProfile(user)
}

type profileCache struct {
	mu sync.RWMutex
	m  map[domain.ConnID]domain.Profile
}

func (c *profileCache) put(conn domain.ConnID, p domain.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[domain.ConnID]domain.Profile)
	}
	c.m[conn] = p
}

func (c *profileCache) get(conn domain.ConnID) (domain.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.m[conn]
	return p, ok
}

func (c *profileCache) drop(conn domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, conn)
}
