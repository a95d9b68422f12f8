package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/dkeye/Converse/internal/domain"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// NewSessionID returns a lexically time-ordered session id.
func NewSessionID() domain.SessionID {
	return domain.SessionID(NewULID())
}

func NewConnID() domain.ConnID {
	return domain.ConnID(uuid.NewString())
}
