// Package realtime keeps a WebSocket connection to the Tag-Flow
// notification server and turns its pushes into cache updates.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/event"
	tflog "github.com/mmcdole/tagflow/internal/log"
)

const (
	DefaultHeartbeat      = 30 * time.Second
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMaxAttempts    = 10
)

var errHeartbeatTimeout = errors.New("no message since last heartbeat")

// ConnState is the connection state machine
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MaxReconnectsEvent is emitted once the client gives up
type MaxReconnectsEvent struct {
	Attempts int
	LastErr  error
}

// Options configures a Client
type Options struct {
	URL               string
	Dialer            Dialer
	HeartbeatInterval time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	MaxAttempts       int // Consecutive failed reconnects before giving up
	Logger            *slog.Logger
}

// Client is a reconnecting realtime client. Build one per process and
// inject it where needed.
type Client struct {
	url       string
	dialer    Dialer
	heartbeat time.Duration
	initial   time.Duration
	maxDelay  time.Duration
	attempts  int
	logger    *slog.Logger

	// sleep waits d or until ctx ends; replaced in tests
	sleep func(ctx context.Context, d time.Duration) bool

	mu     sync.Mutex
	state  ConnState
	conn   Conn
	subs   map[string]struct{}
	gaveUp bool
	cancel context.CancelFunc
	done   chan struct{}

	notifications event.Emitter[Notification]
	messages      event.Emitter[Envelope]
	states        event.Emitter[ConnState]
	maxReconnects event.Emitter[MaxReconnectsEvent]
}

// NewClient creates a disconnected client
func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer(10 * time.Second)
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeat
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.InitialBackoff)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		url:       opts.URL,
		dialer:    opts.Dialer,
		heartbeat: opts.HeartbeatInterval,
		initial:   opts.InitialBackoff,
		maxDelay:  opts.MaxBackoff,
		attempts:  opts.MaxAttempts,
		logger:    tflog.Component(opts.Logger, "realtime"),
		sleep:     sleepCtx,
		subs:      make(map[string]struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Notifications fires for every parsed notification
func (c *Client) Notifications() *event.Emitter[Notification] { return &c.notifications }

// Messages fires for every envelope, notifications included
func (c *Client) Messages() *event.Emitter[Envelope] { return &c.messages }

// States fires on every state transition
func (c *Client) States() *event.Emitter[ConnState] { return &c.states }

// MaxReconnects fires once when reconnecting is abandoned
func (c *Client) MaxReconnects() *event.Emitter[MaxReconnectsEvent] { return &c.maxReconnects }

// State returns the current connection state
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GaveUp reports whether the last connection loop ended by exhausting its
// reconnect attempts. Connect clears it.
func (c *Client) GaveUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gaveUp
}

// newBackOff yields initial, 2x, 4x ... capped at maxDelay, without jitter,
// and Stop after the configured number of retries
func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.maxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.attempts))
}

// Connect starts the connection loop in the background. It is a no-op
// while a loop is already running.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gaveUp = false
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Disconnect stops the loop, closes the socket and waits for shutdown
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the connection loop exits
func (c *Client) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()
		c.setState(Disconnected)
		close(done)
	}()

	b := c.newBackOff()
	failures := 0
	for {
		c.setState(Connecting)
		conn, err := c.dialer.Dial(ctx, c.url)
		if err == nil {
			c.attach(conn)
			c.logger.Info("realtime connected", "url", c.url)

			var healthy bool
			healthy, err = c.serve(ctx, conn)
			c.detach(conn)
			if ctx.Err() != nil {
				return
			}

			// Only a connection the server actually talked on earns a fresh retry budget
			if healthy {
				b.Reset()
				failures = 0
				if errors.Is(err, errHeartbeatTimeout) {
					continue
				}
			}
			c.logger.Warn("realtime connection lost", "error", err, "healthy", healthy)
		} else if ctx.Err() != nil {
			return
		}

		failures++
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.logger.Error("giving up on realtime server", "attempts", failures, "error", err)
			c.mu.Lock()
			c.gaveUp = true
			c.mu.Unlock()
			c.setState(Disconnected)
			c.maxReconnects.Emit(MaxReconnectsEvent{Attempts: failures, LastErr: err})
			return
		}
		c.logger.Warn("realtime reconnect scheduled", "error", err, "attempt", failures, "retry_in", delay)
		c.setState(Disconnected)
		if !c.sleep(ctx, delay) {
			return
		}
	}
}

func (c *Client) attach(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	subs := slices.Sorted(maps.Keys(c.subs))
	c.mu.Unlock()

	c.setState(Connected)
	for _, op := range subs {
		if err := c.write(conn, request{Action: "subscribe", OperationID: op}); err != nil {
			c.logger.Warn("failed to restore subscription", "operation_id", op, "error", err)
		}
	}
}

func (c *Client) detach(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// serve pumps messages until the connection fails, the heartbeat lapses or ctx ends.
// healthy reports whether at least one message arrived.
func (c *Client) serve(ctx context.Context, conn Conn) (healthy bool, err error) {
	var seen, received atomic.Bool
	defer func() { healthy = received.Load() }()
	readErr := make(chan error, 1)

	go func() {
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			seen.Store(true)
			received.Store(true)
			c.dispatch(data)
		}
	}()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	awaiting := false

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-readErr
			return false, ctx.Err()
		case err := <-readErr:
			return false, err
		case <-ticker.C:
			if awaiting && !seen.Load() {
				c.logger.Warn("heartbeat timed out, reconnecting")
				conn.Close()
				<-readErr
				return false, errHeartbeatTimeout
			}
			seen.Store(false)
			awaiting = true
			if err := c.write(conn, request{Action: "ping"}); err != nil {
				conn.Close()
				<-readErr
				return false, err
			}
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping malformed realtime message", "error", err)
		return
	}
	c.messages.Emit(env)

	switch env.Type {
	case TypeNotification:
		n, err := ParseNotification(env)
		if err != nil {
			c.logger.Warn("dropping malformed notification", "error", err, "message_id", env.MessageID)
			return
		}
		c.notifications.Emit(n)
	case TypePong:
	case TypeError:
		c.logger.Warn("realtime server error", "data", string(env.Data))
	default:
		c.logger.Debug("realtime message", "type", env.Type, "message_id", env.MessageID)
	}
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("realtime state", "state", s.String())
	c.states.Emit(s)
}

func (c *Client) write(conn Conn, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return conn.WriteMessage(data)
}

func (c *Client) send(req request) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}
	return c.write(conn, req)
}

// Subscribe follows progress for an operation. The subscription is kept
// across reconnects; when offline it is sent on the next connect.
func (c *Client) Subscribe(operationID string) error {
	c.mu.Lock()
	c.subs[operationID] = struct{}{}
	c.mu.Unlock()

	err := c.send(request{Action: "subscribe", OperationID: operationID})
	if errors.Is(err, domain.ErrNotConnected) {
		return nil
	}
	return err
}

// Unsubscribe stops following an operation
func (c *Client) Unsubscribe(operationID string) error {
	c.mu.Lock()
	delete(c.subs, operationID)
	c.mu.Unlock()

	err := c.send(request{Action: "unsubscribe", OperationID: operationID})
	if errors.Is(err, domain.ErrNotConnected) {
		return nil
	}
	return err
}

// Subscriptions returns the active operation ids
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.subs))
}

// RequestStatus asks the server for its status message
func (c *Client) RequestStatus() error {
	return c.send(request{Action: "get_status"})
}
