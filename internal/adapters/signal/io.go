package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Limits.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(ctl.Limits.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Limits.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(c.codec.MessageType(), data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Limits.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.limiter.Forget(c.id)
		ctl.Orch.OnDisconnect(c.id)
	}()

	c.conn.SetReadLimit(ctl.Limits.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
		ctl.handleMessage(ctx, c, data)
	}
}

// handleMessage isolates one inbound message: a panic is answered with an
// internal error and the connection keeps running.
func (ctl *SignalWSController) handleMessage(ctx context.Context, c *WsSignalConn, data []byte) {
	var env envelope
	var catcher panics.Catcher
	catcher.Try(func() { ctl.dispatch(ctx, c, data, &env) })
	if r := catcher.Recovered(); r != nil {
		log.Error().Err(r.AsError()).Str("module", "signal").Str("conn", string(c.id)).Str("type", env.Type).Msg("handler panic")
		ctl.sendError(c, env.Type, codeInternal)
	}
}

func (ctl *SignalWSController) dispatch(ctx context.Context, c *WsSignalConn, data []byte, env *envelope) {
	if err := c.codec.Unmarshal(data, env); err != nil || env.Type == "" {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad envelope")
		ctl.sendError(c, "", codeBadPayload)
		return
	}
	if env.Type != "ping" && !ctl.limiter.Allow(c.id) {
		ctl.sendError(c, env.Type, codeRateLimited)
		return
	}

	switch env.Type {
	case "register-presence":
		ctl.handleRegister(ctx, c, data)
	case "request-match":
		ctl.handleRequestMatch(c)
	case "cancel-match":
		ctl.handleCancelMatch(c)
	case "signal-offer":
		ctl.handleSignal(c, domain.SignalOffer, env.Type, data)
	case "signal-answer":
		ctl.handleSignal(c, domain.SignalAnswer, env.Type, data)
	case "signal-candidate":
		ctl.handleSignal(c, domain.SignalCandidate, env.Type, data)
	case "end-call":
		ctl.handleEndCall(c, data)
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.Orch.WhoAmI(c.id)
	default:
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, env.Type, codeUnknownType)
	}
}

// decode reads the typed request and runs its validation tags.
func (ctl *SignalWSController) decode(c *WsSignalConn, ref string, data []byte, v any) bool {
	if err := c.codec.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("type", ref).Msg("bad payload")
		ctl.sendError(c, ref, codeBadPayload)
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("type", ref).Msg("invalid payload")
		ctl.sendError(c, ref, codeBadPayload)
		return false
	}
	return true
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, ref, code string) {
	_ = c.TrySend(core.Event{Type: core.EventError, Error: code, Ref: ref})
}

// reply maps a failed operation to its wire error. Nothing is sent when the
// failure was already reported some other way.
func (ctl *SignalWSController) reply(c *WsSignalConn, ref string, err error) {
	if err == nil {
		return
	}
	code := errorCode(err)
	if code == "" {
		return
	}
	if code == codeInternal {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("type", ref).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("type", ref).Msg("request refused")
	}
	ctl.sendError(c, ref, code)
}
