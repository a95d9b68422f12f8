package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

// Register makes conn discoverable as user and answers with registered.
// The directory is consulted before any table lock is taken, so the
// in-session check is repeated by the matchmaker under its lock.
func (o *Orchestrator) Register(ctx context.Context, conn domain.ConnID, user domain.UserID) error {
	if prev, ok := o.Presence.Lookup(conn); ok && prev != user && o.Sessions.InSession(conn) {
		return fmt.Errorf("rebind %s to %s: %w", prev, user, core.ErrAlreadyInSession)
	}
	profile, err := o.lookupProfile(ctx, user)
	if err != nil {
		return fmt.Errorf("register %s: %w", user, err)
	}

	displaced, dep, replaced, err := o.Matchmaker.Register(conn, user)
	if err != nil {
		return err
	}
	o.profiles.put(conn, profile)
	log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("user", string(user)).Str("name", profile.DisplayName()).Msg("profile bound")
	o.notify(conn, core.Event{
		Type:       core.EventRegistered,
		UserID:     user,
		Profile:    &profile,
		ICEServers: o.ICEServers,
	})

	if replaced {
		log.Info().Str("module", "orch").Str("user", string(user)).Str("conn", string(conn)).Str("displaced", string(displaced)).Msg("presence moved to new connection")
		o.profiles.drop(displaced)
		o.notify(displaced, core.Event{Type: core.EventReplaced, UserID: user})
		o.afterDeparture(dep, "replaced")
	}
	return nil
}

// RequestMatch answers the requester and, on a pair, tells the partner.
// The requester is the initiator and sends the offer.
func (o *Orchestrator) RequestMatch(conn domain.ConnID) error {
	res, err := o.Matchmaker.RequestMatch(conn)
	if err != nil {
		return err
	}
	o.Metrics.MatchRequested(res.Outcome.String())

	switch res.Outcome {
	case core.MatchWaiting:
		o.notify(conn, core.Event{Type: core.EventWaiting, Waiting: true})
	case core.MatchNoPartner:
		o.notify(conn, core.Event{Type: core.EventNoPartner})
	case core.MatchPaired:
		o.Metrics.SessionCreated()
		o.announcePair(conn, res)
	}
	return nil
}

// announcePair sends paired to both sides while the session is still open.
// A side that left in between has already produced call-ended, so the
// requester gets no-partner instead of a stale pairing.
func (o *Orchestrator) announcePair(conn domain.ConnID, res core.MatchResult) {
	self := o.profileOf(conn, res.User)
	partner := o.profileOf(res.Partner, res.PartnerUser)
	if _, ok := o.Sessions.Get(res.Session.ID); !ok {
		o.notify(conn, core.Event{Type: core.EventNoPartner, Reason: "partner-left"})
		return
	}
	o.notify(conn, core.Event{
		Type:          core.EventPaired,
		SessionID:     res.Session.ID,
		PartnerUserID: res.PartnerUser,
		Partner:       &partner,
		Initiator:     true,
		ICEServers:    o.ICEServers,
	})
	if _, ok := o.Sessions.Get(res.Session.ID); !ok {
		// requester was dropped while being answered
		return
	}
	o.notify(res.Partner, core.Event{
		Type:          core.EventPaired,
		SessionID:     res.Session.ID,
		PartnerUserID: res.User,
		Partner:       &self,
		Initiator:     false,
		ICEServers:    o.ICEServers,
	})
}

// CancelWait is idempotent; the answer is sent even if no ticket existed.
func (o *Orchestrator) CancelWait(conn domain.ConnID) error {
	if _, ok := o.Presence.Lookup(conn); !ok {
		return core.ErrNotRegistered
	}
	removed := o.Matchmaker.CancelWait(conn)
	log.Debug().Str("module", "orch").Str("conn", string(conn)).Bool("removed", removed).Msg("cancel wait")
	o.notify(conn, core.Event{Type: core.EventMatchCancelled})
	return nil
}

func (o *Orchestrator) WhoAmI(conn domain.ConnID) {
	ev := core.Event{Type: core.EventWhoAmI}
	ev.UserID, _ = o.Presence.Lookup(conn)
	ev.SessionID, _, _ = o.Sessions.ResolvePartner(conn)
	ev.Waiting = o.Matchmaker.Waiting(conn)
	o.notify(conn, ev)
}
