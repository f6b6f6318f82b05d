// Package channel maintains the realtime connection to the notification
// service and fans its events out to registered listeners.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/api"
	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
)

// Event names used on the wire.
const (
	EventAuthenticate = "authenticate"
	EventSubscribe    = "subscribe"
	EventNewCall      = "new_call"
	EventResponse     = "response"
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

var (
	ErrClosed           = errors.New("channel closed")
	ErrAlreadyConnected = errors.New("channel already connected")
	ErrNotConnected     = errors.New("channel not connected")
)

// Status is the connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Identity is who the connection speaks for. Token may be empty.
type Identity struct {
	UserID string
	Token  string
}

// Connection is a snapshot of the channel's state.
type Connection struct {
	Status            Status
	Identity          Identity
	ReconnectAttempts int
}

// Frame is the JSON envelope for every message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type authenticatePayload struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type subscribePayload struct {
	UserID string `json:"userId"`
}

// Event is delivered to listeners. Only the field matching Name is set:
// Trigger for new_call, Text for response and disconnect, Err for
// connect_error.
type Event struct {
	Name    string
	Trigger model.Trigger
	Text    string
	Err     error
}

// Listener handles a single event. Listeners run on the channel's read
// goroutine and must not call Close.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Options configures a Channel.
type Options struct {
	MaxReconnectAttempts int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	Dialer               *websocket.Dialer
	Logger               *zap.Logger
}

// OptionsFromConfig maps the channel config section onto Options.
func OptionsFromConfig(cfg model.ChannelConfig, logger *zap.Logger) Options {
	return Options{
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		InitialDelay:         time.Duration(cfg.ReconnectDelayMs) * time.Millisecond,
		MaxDelay:             time.Duration(cfg.ReconnectDelayMaxMs) * time.Millisecond,
		Logger:               logger,
	}
}

// writeWait bounds every outbound write.
const writeWait = 5 * time.Second

// Channel is one websocket connection per user session. It reconnects with
// exponential backoff up to MaxReconnectAttempts and then stays
// disconnected.
type Channel struct {
	url    string
	opts   Options
	dialer *websocket.Dialer
	logger *zap.Logger

	mu        sync.Mutex
	identity  Identity
	status    Status
	attempts  int
	conn      *websocket.Conn
	listeners map[string][]listenerEntry
	nextID    uint64
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex
}

// New creates a Channel for the given websocket URL. Nothing is dialed
// until Connect.
func New(url string, opts Options) *Channel {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay < opts.InitialDelay {
		opts.MaxDelay = opts.InitialDelay
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	return &Channel{
		url:       url,
		opts:      opts,
		dialer:    dialer,
		logger:    logging.OrNop(opts.Logger).Named("channel"),
		listeners: make(map[string][]listenerEntry),
		done:      make(chan struct{}),
	}
}

// On registers fn for the named event and returns a function that removes
// it. Removing twice is harmless.
func (c *Channel) On(name string, fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.listeners[name] = append(c.listeners[name], listenerEntry{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.listeners[name]
		for i, e := range entries {
			if e.id == id {
				c.listeners[name] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnNewCall registers a listener for decoded new_call triggers.
func (c *Channel) OnNewCall(fn func(model.Trigger)) (unsubscribe func()) {
	return c.On(EventNewCall, func(e Event) { fn(e.Trigger) })
}

// Connect starts the connection loop for identity and returns immediately.
// Dial failures are retried in the background.
func (c *Channel) Connect(ctx context.Context, identity Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyConnected
	}
	c.started = true
	c.identity = identity
	c.status = StatusConnecting

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

// Emit sends an outbound event on the live connection.
func (c *Channel) Emit(name string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, name, payload)
}

// Status returns the current connection status.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Attempts returns the number of consecutive failed reconnect attempts.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Snapshot returns the connection state.
func (c *Channel) Snapshot() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Connection{
		Status:            c.status,
		Identity:          c.identity,
		ReconnectAttempts: c.attempts,
	}
}

// Done is closed when the connection loop has exited, either because the
// channel was closed or because reconnect attempts ran out.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down and releases every listener. No listener
// fires after Close returns. Close must not be called from a listener.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	if started {
		cancel()
		<-c.done
	} else {
		close(c.done)
	}

	c.mu.Lock()
	c.listeners = make(map[string][]listenerEntry)
	c.status = StatusDisconnected
	c.mu.Unlock()
	return nil
}

// run owns the connection for its whole life. Listeners are only ever
// invoked from here.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialDelay
	exp.MaxInterval = c.opts.MaxDelay
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(c.opts.MaxReconnectAttempts)),
		ctx,
	)

	for {
		c.setStatus(StatusConnecting)

		conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				c.setStatus(StatusDisconnected)
				return
			}
			c.logger.Debug("dial failed", zap.String("url", c.url), zap.Error(err))
			c.dispatch(ctx, Event{Name: EventConnectError, Err: err})
			if !c.wait(ctx, policy) {
				return
			}
			continue
		}

		policy.Reset()
		c.mu.Lock()
		c.conn = conn
		c.attempts = 0
		c.status = StatusConnected
		c.mu.Unlock()
		c.logger.Info("connected", zap.String("url", c.url))
		c.dispatch(ctx, Event{Name: EventConnect})

		reason := c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.status = StatusDisconnected
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Info("disconnected", zap.String("reason", reason))
		c.dispatch(ctx, Event{Name: EventDisconnect, Text: reason})
		if !c.wait(ctx, policy) {
			return
		}
	}
}

// wait sleeps for the next backoff interval. It returns false once the
// reconnect budget is spent or ctx is done; the status is then left
// disconnected.
func (c *Channel) wait(ctx context.Context, policy backoff.BackOff) bool {
	next := policy.NextBackOff()
	if next == backoff.Stop {
		c.setStatus(StatusDisconnected)
		if ctx.Err() == nil {
			c.logger.Warn("reconnect attempts exhausted",
				zap.Int("max_attempts", c.opts.MaxReconnectAttempts))
		}
		return false
	}

	c.mu.Lock()
	c.attempts++
	c.status = StatusConnecting
	c.mu.Unlock()

	timer := time.NewTimer(next)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		return false
	case <-timer.C:
		return true
	}
}

// serve greets the server and reads frames until the connection drops.
// It returns the disconnect reason.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) string {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
			time.Now().Add(time.Second),
		)
		conn.Close()
	})
	defer stop()

	if err := c.greet(conn); err != nil {
		return fmt.Sprintf("greeting failed: %v", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Sprintf("server closed: %d %s", closeErr.Code, closeErr.Text)
			}
			return err.Error()
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("dropping unparseable frame", zap.Error(err))
			continue
		}
		c.handle(ctx, frame)
	}
}

// greet authenticates when a token is available and subscribes otherwise.
func (c *Channel) greet(conn *websocket.Conn) error {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()

	if id.Token != "" {
		if err := c.write(conn, EventAuthenticate, authenticatePayload{Token: id.Token, UserID: id.UserID}); err != nil {
			return err
		}
		c.setStatus(StatusAuthenticated)
		return nil
	}
	return c.write(conn, EventSubscribe, subscribePayload{UserID: id.UserID})
}

func (c *Channel) handle(ctx context.Context, frame Frame) {
	switch frame.Event {
	case EventNewCall:
		t, err := api.DecodeTrigger(frame.Data, model.TriggerSourceRealtime)
		if err != nil {
			c.logger.Warn("dropping malformed new_call", zap.Error(err))
			return
		}
		c.dispatch(ctx, Event{Name: EventNewCall, Trigger: t})
	case EventResponse:
		var text string
		if err := json.Unmarshal(frame.Data, &text); err != nil {
			text = string(frame.Data)
		}
		c.dispatch(ctx, Event{Name: EventResponse, Text: text})
	default:
		c.logger.Debug("ignoring event", zap.String("event", frame.Event))
	}
}

func (c *Channel) dispatch(ctx context.Context, e Event) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	entries := append([]listenerEntry(nil), c.listeners[e.Name]...)
	c.mu.Unlock()

	for _, entry := range entries {
		entry.fn(e)
	}
}

func (c *Channel) write(conn *websocket.Conn, name string, payload interface{}) error {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling %s payload: %w", name, err)
		}
		data = raw
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Frame{Event: name, Data: data}); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
