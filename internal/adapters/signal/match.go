package signal

func (ctl *SignalWSController) handleRequestMatch(conn *WsSignalConn) {
	ctl.reply(conn, "request-match", ctl.Orch.RequestMatch(conn.id))
}

func (ctl *SignalWSController) handleCancelMatch(conn *WsSignalConn) {
	ctl.reply(conn, "cancel-match", ctl.Orch.CancelWait(conn.id))
}
