package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Converse/internal/app/orch"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/idgen"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Limits struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	RateLimit    int
	RateInterval time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		ReadLimit:    64 * 1024,
		PingPeriod:   54 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		SendBuffer:   64,
		RateLimit:    50,
		RateInterval: time.Second,
	}
}

type SignalWSController struct {
	Orch   *orch.Orchestrator
	Limits Limits

	limiter  *RateLimiter
	validate *validator.Validate
	upgrader websocket.Upgrader
	pumps    conc.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, limits Limits) *SignalWSController {
	return &SignalWSController{
		Orch:     o,
		Limits:   limits,
		limiter:  NewRateLimiter(limits.RateLimit, limits.RateInterval),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{SubprotocolJSON, SubprotocolMsgpack},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
}

// Wait blocks until every pump has exited.
func (ctl *SignalWSController) Wait() {
	ctl.pumps.Wait()
}

// WsSignalConn is the core.SignalConnection of one websocket.
type WsSignalConn struct {
	id    domain.ConnID
	conn  *websocket.Conn
	codec codec
	send  chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(ev core.Event) error {
	data, err := c.codec.Marshal(toWire(ev, c.codec))
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := idgen.NewConnID()

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:    id,
		conn:  ws,
		codec: codecFor(ws.Subprotocol()),
		send:  make(chan core.Frame, ctl.Limits.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", c.GetString("client_token")).Str("proto", conn.codec.Name()).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(id, conn, cancel)

	ctl.pumps.Go(func() { ctl.writePump(ctx, conn) })
	ctl.pumps.Go(func() { ctl.readPump(ctx, cancel, conn) })
}
