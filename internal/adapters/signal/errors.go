package signal

import (
	"errors"

	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/directory"
	"github.com/dkeye/Converse/internal/domain"
)

const (
	codeBadPayload       = "bad-payload"
	codeUnknownType      = "unknown-type"
	codeNotRegistered    = "not-registered"
	codeAlreadyInSession = "already-in-session"
	codeNotInSession     = "not-in-session"
	codeSessionMismatch  = "session-mismatch"
	codeNotParticipant   = "not-participant"
	codeUnknownUser      = "unknown-user"
	codeRateLimited      = "rate-limited"
	codeInternal         = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrPartnerUnreachable):
		// the sender already got call-ended
		return ""
	case errors.Is(err, core.ErrNotRegistered):
		return codeNotRegistered
	case errors.Is(err, core.ErrAlreadyInSession):
		return codeAlreadyInSession
	case errors.Is(err, app.ErrNotInSession):
		return codeNotInSession
	case errors.Is(err, app.ErrSessionMismatch):
		return codeSessionMismatch
	case errors.Is(err, core.ErrNotParticipant):
		return codeNotParticipant
	case errors.Is(err, directory.ErrUnknownUser):
		return codeUnknownUser
	case errors.Is(err, domain.ErrUserIDEmpty),
		errors.Is(err, domain.ErrUserIDTooLong),
		errors.Is(err, app.ErrInvalidSignal):
		return codeBadPayload
	default:
		return codeInternal
	}
}
