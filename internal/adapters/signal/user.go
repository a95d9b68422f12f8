package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/domain"
)

func (ctl *SignalWSController) handleRegister(ctx context.Context, conn *WsSignalConn, data []byte) {
	const ref = "register-presence"
	var p registerRequest
	if !ctl.decode(conn, ref, data, &p) {
		return
	}
	uid, err := domain.ParseUserID(p.UserID)
	if err != nil {
		ctl.reply(conn, ref, err)
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("user", string(uid)).Msg("register")
	ctl.reply(conn, ref, ctl.Orch.Register(ctx, conn.id, uid))
}
