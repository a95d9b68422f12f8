package signal

import (
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	_ = conn.TrySend(core.Event{Type: core.EventPong})
}

func (ctl *SignalWSController) handleEndCall(conn *WsSignalConn, data []byte) {
	const ref = "end-call"
	var p endCallRequest
	if !ctl.decode(conn, ref, data, &p) {
		return
	}
	ctl.reply(conn, ref, ctl.Orch.EndCall(conn.id, domain.SessionID(p.SessionID)))
}
