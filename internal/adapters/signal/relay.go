package signal

import "github.com/dkeye/Converse/internal/domain"

// handleSignal forwards offer, answer and candidate messages. The payload
// is never inspected.
func (ctl *SignalWSController) handleSignal(conn *WsSignalConn, kind domain.SignalKind, ref string, data []byte) {
	var p signalRequest
	if !ctl.decode(conn, ref, data, &p) {
		return
	}
	err := ctl.Orch.RelaySignal(conn.id, kind, domain.SessionID(p.SessionID), p.Payload, conn.codec.Binary())
	ctl.reply(conn, ref, err)
}
