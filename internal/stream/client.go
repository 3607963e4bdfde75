// Package stream keeps a site's push connection alive and feeds its frames
// into a telemetry accumulator.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/retry"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectBase        = 5 * time.Second
	defaultReconnectMax         = 40 * time.Second
	defaultHeartbeat            = 30 * time.Second
)

// Config tunes a Client. Zero values take the defaults.
type Config struct {
	MaxReconnectAttempts int
	// Reconnect supplies the backoff delays; its MaxAttempts is ignored in
	// favour of MaxReconnectAttempts.
	Reconnect retry.Policy
	Heartbeat time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect = retry.Policy{BaseDelay: defaultReconnectBase, Multiplier: 2, MaxDelay: defaultReconnectMax}
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = defaultHeartbeat
	}
	return c
}

// Option customises a Client.
type Option func(*Client)

// WithClock replaces the system clock used for reconnect and heartbeat timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithReconnectHook registers a callback for every scheduled reconnect.
func WithReconnectHook(fn func(attempt int, delay time.Duration)) Option {
	return func(c *Client) { c.onReconnect = fn }
}

type subscribeFrame struct {
	Action      string `json:"action"`
	Destination string `json:"destination"`
	SiteID      string `json:"siteId"`
}

type pingFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Client drives the connection state machine of one site:
//
//	disconnected -> connecting -> connected -> disconnected | error -> connecting ...
//
// Unexpected closures schedule a reconnect with exponential backoff until
// MaxReconnectAttempts reconnects in a row have failed. Disconnect is
// deliberate and stops all automatic reconnects.
type Client struct {
	cfg         Config
	transport   Transport
	acc         *telemetry.Accumulator
	clock       clock.Clock
	logger      *slog.Logger
	onReconnect func(attempt int, delay time.Duration)

	mu        sync.Mutex
	ctx       context.Context
	status    telemetry.ConnectionStatus
	gen       uint64
	conn      Conn
	attempts  int
	manual    bool
	reconnect clock.Timer
	heartbeat clock.Timer
}

// NewClient binds a connection state machine to acc.
func NewClient(transport Transport, acc *telemetry.Accumulator, cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		transport: transport,
		acc:       acc,
		clock:     clock.System{},
		logger:    slog.With("component", "stream", "site_id", acc.SiteID()),
		ctx:       context.Background(),
		status:    telemetry.StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current connection status.
func (c *Client) Status() telemetry.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Attempts returns the number of reconnects scheduled since the last open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect starts a connection attempt with a fresh reconnect budget. It is
// a no-op while one is already connecting or connected. ctx only bounds the
// dial; reconnects scheduled later use a context detached from its
// cancellation.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == telemetry.StatusConnecting || c.status == telemetry.StatusConnected {
		c.mu.Unlock()
		return nil
	}
	c.manual = false
	c.attempts = 0
	c.ctx = context.WithoutCancel(ctx)
	c.stopTimersLocked()
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.setStatusLocked(telemetry.StatusConnecting)
	c.mu.Unlock()
	c.acc.SetConnectionStatus(telemetry.StatusConnecting)

	err := c.transport.Dial(ctx, &connHandler{client: c, gen: gen})
	if err == nil {
		return nil
	}

	c.logger.Warn("[Stream] Dial failed", "error", err)
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return err
	}
	c.setStatusLocked(telemetry.StatusError)
	c.maybeScheduleReconnectLocked(gen)
	c.mu.Unlock()
	c.acc.SetConnectionStatus(telemetry.StatusError)
	return fmt.Errorf("stream: connect site %s: %w", c.acc.SiteID(), err)
}

// Disconnect closes the connection deliberately, cancels any pending
// reconnect and prevents further automatic reconnects until Connect is
// called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.gen++
	c.stopTimersLocked()
	conn := c.conn
	c.conn = nil
	c.setStatusLocked(telemetry.StatusDisconnected)
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(CloseNormal, "Manual disconnect"); err != nil {
			c.logger.Debug("[Stream] Close failed", "error", err)
		}
	}
	c.acc.SetConnectionStatus(telemetry.StatusDisconnected)
	c.logger.Info("[Stream] Disconnected")
}

func (c *Client) handleOpen(gen uint64, conn Conn) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		// A Disconnect raced the dial.
		_ = conn.Close(CloseNormal, "Manual disconnect")
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStatusLocked(telemetry.StatusConnected)
	c.scheduleHeartbeatLocked(gen)
	c.mu.Unlock()

	c.acc.SetConnectionStatus(telemetry.StatusConnected)
	c.logger.Info("[Stream] Connected")

	frame, _ := json.Marshal(subscribeFrame{
		Action:      "SUBSCRIBE",
		Destination: fmt.Sprintf("/topic/sites/%s/dashboard", c.acc.SiteID()),
		SiteID:      c.acc.SiteID(),
	})
	if err := conn.Send(frame); err != nil {
		c.logger.Warn("[Stream] Subscribe failed", "error", err)
	}
}

func (c *Client) handleMessage(gen uint64, payload []byte) {
	c.mu.Lock()
	current := gen == c.gen
	c.mu.Unlock()
	if current {
		c.acc.HandleRaw(payload)
	}
}

func (c *Client) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(telemetry.StatusError)
	c.mu.Unlock()

	c.acc.SetConnectionStatus(telemetry.StatusError)
	c.logger.Warn("[Stream] Transport error", "error", err)
}

func (c *Client) handleClose(gen uint64, code int, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	c.setStatusLocked(telemetry.StatusDisconnected)
	if code != CloseNormal {
		c.maybeScheduleReconnectLocked(gen)
	}
	c.mu.Unlock()

	c.acc.SetConnectionStatus(telemetry.StatusDisconnected)
	c.logger.Info("[Stream] Connection closed", "code", code, "reason", reason)
}

// maybeScheduleReconnectLocked arms the reconnect timer while the attempt
// budget lasts. Must hold c.mu.
func (c *Client) maybeScheduleReconnectLocked(gen uint64) {
	if c.manual {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Warn("[Stream] Reconnect attempts exhausted", "attempts", c.attempts)
		return
	}

	delay := c.cfg.Reconnect.Delay(c.attempts)
	c.attempts++
	attempt := c.attempts
	c.logger.Info("[Stream] Scheduling reconnect", "attempt", attempt, "max", c.cfg.MaxReconnectAttempts, "delay", delay)
	if c.onReconnect != nil {
		c.onReconnect(attempt, delay)
	}

	c.reconnect = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.gen || c.manual {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		ctx := c.ctx
		c.mu.Unlock()

		_ = c.dial(ctx)
	})
}

// scheduleHeartbeatLocked arms the next ping. Must hold c.mu.
func (c *Client) scheduleHeartbeatLocked(gen uint64) {
	c.heartbeat = c.clock.AfterFunc(c.cfg.Heartbeat, func() {
		c.mu.Lock()
		if gen != c.gen || c.conn == nil {
			c.mu.Unlock()
			return
		}
		conn := c.conn
		c.scheduleHeartbeatLocked(gen)
		c.mu.Unlock()

		frame, _ := json.Marshal(pingFrame{Type: "ping", Timestamp: c.clock.Now().Format(time.RFC3339)})
		if err := conn.Send(frame); err != nil {
			c.logger.Debug("[Stream] Heartbeat failed", "error", err)
		}
	})
}

// stopTimersLocked cancels the reconnect and heartbeat timers. Must hold c.mu.
func (c *Client) stopTimersLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
}

func (c *Client) setStatusLocked(s telemetry.ConnectionStatus) {
	c.status = s
}

type connHandler struct {
	client *Client
	gen    uint64
}

func (h *connHandler) HandleOpen(conn Conn)         { h.client.handleOpen(h.gen, conn) }
func (h *connHandler) HandleMessage(payload []byte) { h.client.handleMessage(h.gen, payload) }
func (h *connHandler) HandleError(err error)        { h.client.handleError(h.gen, err) }
func (h *connHandler) HandleClose(code int, reason string) {
	h.client.handleClose(h.gen, code, reason)
}
