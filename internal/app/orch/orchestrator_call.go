package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

func (o *Orchestrator) RelaySignal(conn domain.ConnID, kind domain.SignalKind, sid domain.SessionID, payload []byte, binary bool) error {
	return o.Relay.Relay(domain.SignalingMessage{
		Kind:    kind,
		From:    conn,
		Session: sid,
		Payload: payload,
		Binary:  binary,
	})
}

// EndCall closes sid on behalf of conn and tells only the partner.
// An empty sid means the session conn is in. Unknown sessions are a no-op.
func (o *Orchestrator) EndCall(conn domain.ConnID, sid domain.SessionID) error {
	if sid == "" {
		s, ok := o.Sessions.SessionOf(conn)
		if !ok {
			return nil
		}
		sid = s.ID
	}
	sess, partner, ended, err := o.Matchmaker.EndSession(sid, conn)
	if err != nil {
		return err
	}
	if !ended {
		log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("session", string(sid)).Msg("end-call for unknown session")
		return nil
	}
	o.Metrics.CallEnded("hangup")
	o.notify(partner, core.Event{Type: core.EventCallEnded, SessionID: sess.ID, Reason: "hangup"})
	return nil
}

// OnDisconnect is the one cleanup path for a connection that went away,
// whatever the cause. Calling it again for the same conn does nothing.
func (o *Orchestrator) OnDisconnect(conn domain.ConnID) {
	dep := o.Matchmaker.Depart(conn)
	unbound := o.Conns.Unbind(conn)
	o.profiles.drop(conn)
	if unbound || dep.Registered {
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("user", string(dep.User)).Bool("was_waiting", dep.WasWaiting).Msg("disconnected")
	}
	o.afterDeparture(dep, "disconnect")
}

func (o *Orchestrator) afterDeparture(dep core.Departure, reason string) {
	if dep.Ended == nil {
		return
	}
	o.Metrics.CallEnded(reason)
	o.notify(dep.Partner, core.Event{Type: core.EventCallEnded, SessionID: dep.Ended.ID, Reason: reason})
}

// ExpireWaiting drops tickets older than WaitTimeout and tells their owners.
func (o *Orchestrator) ExpireWaiting(now time.Time) int {
	if o.WaitTimeout <= 0 {
		return 0
	}
	expired := o.Matchmaker.ExpireWaiting(now.Add(-o.WaitTimeout))
	for _, t := range expired {
		o.notify(t.Conn, core.Event{Type: core.EventNoPartner, Reason: "timeout"})
	}
	if len(expired) > 0 {
		log.Info().Str("module", "orch").Int("expired", len(expired)).Msg("wait timeout")
	}
	o.Metrics.WaitExpired(len(expired))
	return len(expired)
}

// RunJanitor expires waiting tickets until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) error {
	if o.WaitTimeout <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			o.ExpireWaiting(now)
		}
	}
}
