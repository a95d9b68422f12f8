package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/metrics"
)

var (
	ErrInvalidSignal      = errors.New("invalid signal kind")
	ErrNotInSession       = errors.New("sender is not in a live session")
	ErrSessionMismatch    = errors.New("signal addressed to another session")
	ErrPartnerUnreachable = errors.New("partner unreachable")
	errNoTransport        = errors.New("no transport bound")
)

// SignalRelay forwards offer/answer/candidate to the sender's session partner.
// Destination comes from the session table only, never from the message.
//
// Relay must be called sequentially per sender (the sender's read loop does);
// together with the partner's single ordered send queue this keeps per-sender
// order intact.
type SignalRelay struct {
	Sessions *core.SessionTable
	Presence *core.PresenceRegistry
	Conns    *Registry
	Policy   Policy
	Metrics  *metrics.Metrics
	// OnPeerLost runs when delivery failed and the policy gave up on the partner.
	OnPeerLost func(domain.ConnID)
}

func (r *SignalRelay) Relay(msg domain.SignalingMessage) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("%q: %w", msg.Kind, ErrInvalidSignal)
	}
	sid, partner, ok := r.Sessions.ResolvePartner(msg.From)
	if !ok {
		r.Metrics.RelayDropped("not_in_session")
		log.Warn().Str("module", "app.relay").Str("conn", string(msg.From)).Str("kind", string(msg.Kind)).Msg("signal from connection outside any session")
		return ErrNotInSession
	}
	if msg.Session != "" && msg.Session != sid {
		r.Metrics.RelayDropped("session_mismatch")
		log.Warn().Str("module", "app.relay").Str("conn", string(msg.From)).Str("claimed", string(msg.Session)).Str("session", string(sid)).Msg("signal for foreign session")
		return fmt.Errorf("claimed %s, member of %s: %w", msg.Session, sid, ErrSessionMismatch)
	}

	fromUser, _ := r.Presence.Lookup(msg.From)
	ev := core.Event{
		Type:          core.SignalEvent(msg.Kind),
		SessionID:     sid,
		FromUserID:    fromUser,
		Payload:       msg.Payload,
		BinaryPayload: msg.Binary,
	}

	var err error
	if sc, ok := r.Conns.GetSignal(partner); ok {
		err = sc.TrySend(ev)
	} else {
		err = errNoTransport
	}
	if err != nil {
		return r.deliveryFailed(sid, partner, err)
	}
	r.Metrics.Relayed(string(msg.Kind))
	log.Debug().Str("module", "app.relay").Str("session", string(sid)).Str("from", string(msg.From)).Str("to", string(partner)).Str("kind", string(msg.Kind)).Int("bytes", len(msg.Payload)).Msg("relayed")
	return nil
}

func (r *SignalRelay) deliveryFailed(sid domain.SessionID, partner domain.ConnID, cause error) error {
	action := DisconnectPeer
	if r.Policy != nil {
		action = r.Policy.OnBackPressure(partner, cause)
	}
	log.Warn().Err(cause).Str("module", "app.relay").Str("session", string(sid)).Str("to", string(partner)).Int("action", int(action)).Msg("delivery failed")

	switch action {
	case DisconnectPeer:
		r.Metrics.RelayDropped("partner_lost")
		r.Sessions.MarkEnding(sid)
		if r.OnPeerLost != nil {
			r.OnPeerLost(partner)
		}
	case DropMessage, NoAction:
		r.Metrics.RelayDropped("backpressure")
	}
	return fmt.Errorf("deliver to %s: %w: %w", partner, ErrPartnerUnreachable, cause)
}
