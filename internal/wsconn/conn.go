// Package wsconn owns the duplex websocket channel to the media backend.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mediagrab/internal/clock"
	"mediagrab/internal/models"
)

const (
	defaultReconnectDelay = time.Second
	dialTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

// Options configures a Conn.
type Options struct {
	URL            string
	Header         http.Header
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
	Clock          clock.Clock
	Logger         *slog.Logger

	OnOpen    func()
	OnClose   func(err error)
	OnMessage func(models.Inbound)
}

// Conn is a self-healing websocket client. Every abnormal close schedules a
// single reconnect after a fixed delay, forever. Handlers are invoked from
// the connection's own goroutines and never while Conn holds its lock.
type Conn struct {
	opts   Options
	logger *slog.Logger
	clock  clock.Clock
	dialer *websocket.Dialer

	mu        sync.Mutex
	ws        *websocket.Conn
	dialing   bool
	closed    bool
	reconnect clock.Timer
	attempts  int

	writeMu sync.Mutex
}

// New builds a Conn. It does not dial until Connect is called.
func New(opts Options) *Conn {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	c := &Conn{
		opts:   opts,
		logger: opts.Logger,
		clock:  opts.Clock,
		dialer: opts.Dialer,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: dialTimeout}
	}
	return c
}

// Connect starts a connection attempt unless one is open or already in flight.
func (c *Conn) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws != nil || c.dialing {
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.dialing = true
	c.attempts++
	go c.dial(c.attempts)
}

func (c *Conn) dial(attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.logger.Warn("websocket dial failed", "url", c.opts.URL, "attempt", attempt, "error", err)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		if c.opts.OnClose != nil {
			c.opts.OnClose(fmt.Errorf("dial %s: %w", c.opts.URL, err))
		}
		return
	}
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("websocket connected", "url", c.opts.URL, "attempt", attempt)
	if c.opts.OnOpen != nil {
		c.opts.OnOpen()
	}
	go c.readLoop(ws)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(ws, err)
			return
		}
		var msg models.Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignoring malformed message", "error", err)
			continue
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(msg)
		}
	}
}

func (c *Conn) handleClose(ws *websocket.Conn, err error) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	requested := c.closed
	if !requested {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()
	_ = ws.Close()

	if requested {
		return
	}
	c.logger.Warn("websocket closed", "url", c.opts.URL, "error", err)
	if c.opts.OnClose != nil {
		c.opts.OnClose(err)
	}
}

func (c *Conn) scheduleReconnectLocked() {
	if c.closed || c.reconnect != nil {
		return
	}
	var t clock.Timer
	t = c.clock.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		if c.reconnect != t {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		c.mu.Unlock()
		c.Connect()
	})
	c.reconnect = t
}

// Send writes v as one JSON message.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// IsOpen reports whether a connection is currently established.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Close shuts the connection down for good. No reconnect is scheduled.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return ws.Close()
}
