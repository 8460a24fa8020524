package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/RandomVoice/internal/app/orch"
	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	SendBuffer           int
	ReadLimit            int64
	PingPeriod           time.Duration
	PongWait             time.Duration
	WriteWait            time.Duration
	MaxMessagesPerSecond float64
	// AllowedOrigins is the upgrade allow-list; empty allows every origin.
	AllowedOrigins []string
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	upgrader websocket.Upgrader
	limiter  *RateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 32
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	return &SignalWSController{
		Orch: o,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
		limiter: NewRateLimiter(opts.MaxMessagesPerSecond),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// WsSignalConn is the connection handle users reference. Frames queue in a
// bounded channel drained by one writer, so per-connection order is kept.
type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   core.NewConnID(),
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close stops accepting frames. The writer flushes a close frame and tears
// down the socket, which ends the reader and runs disconnect cleanup.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// HandleSignal upgrades the request. id is the connect-mode identity, or
// empty when identities are issued by Login.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, id domain.UserID) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	ctl.Orch.OnConnect(conn, id)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(conn)
}
