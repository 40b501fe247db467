package signal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// pongWait must exceed the ping period so one lost pong is not fatal.
func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

type ChatWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	upgrader websocket.Upgrader
}

func NewChatWSController(o *orch.Orchestrator, opts Options) *ChatWSController {
	opts = opts.withDefaults()
	return &ChatWSController{
		Orch: o,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from a configured origin. "*" allows all.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if u, err := url.Parse(o); err == nil && u.Scheme != "" && u.Host != "" {
			set[strings.ToLower(u.Scheme)+"://"+strings.ToLower(u.Host)] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme)+"://"+strings.ToLower(u.Host)]
	}
}

// WsSignalConn is the websocket end of a member. Frames are queued without
// blocking and written by writePump.
type WsSignalConn struct {
	conn         *websocket.Conn
	send         chan core.Frame
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, opts Options) *WsSignalConn {
	return &WsSignalConn{
		conn:         ws,
		send:         make(chan core.Frame, opts.SendBuffer),
		writeTimeout: opts.WriteTimeout,
	}
}

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

func (c *WsSignalConn) CloseWithReason(code int, reason string) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if !closed {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout)); err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("close frame not written")
		}
	}
	c.Close()
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

// HandleChat upgrades the request and runs admission. The admission
// parameters come from the router.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context, room domain.RoomID, id domain.Identity, token string) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := newWsSignalConn(ws, ctl.opts)
	connID := uuid.NewString()
	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)

	ms, err := ctl.Orch.Admit(connCtx, orch.AdmitRequest{
		Room:     room,
		Identity: id,
		Token:    token,
		Addr:     c.ClientIP(),
		ConnID:   connID,
		Conn:     conn,
		Cancel:   cancel,
	})
	if err != nil {
		cancel()
		return
	}
	log.Info().Str("module", "signal").Str("room", string(room)).Str("user", string(id)).
		Str("conn", connID).Msg("ws connection admitted")
	go ctl.readPump(connCtx, cancel, ms, conn)
}
