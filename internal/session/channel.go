package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope is the wire frame of the event channel: a named event with a
// raw JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Conn is the minimal surface a Run needs from its transport. Channel is
// the production implementation; tests substitute fakes.
type Conn interface {
	Emit(event string, payload any) error
	Close() error
}

// ReconnectPolicy bounds the redial loop after the channel drops.
// MaxRetries counts attempts per disconnect; 0 means the default.
type ReconnectPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	MaxRetries     int
}

func defaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		MaxRetries:     5,
	}
}

func normalizeReconnectPolicy(policy ReconnectPolicy) ReconnectPolicy {
	def := defaultReconnectPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = def.MaxRetries
	}
	return policy
}

// Hooks let callers observe transport and dispatch faults. The SDK carries
// no logger; these callbacks are the visibility surface. All fields are
// optional.
type Hooks struct {
	OnReconnect    func(attempt int, err error)
	OnDisconnect   func(err error)
	OnHandlerError func(event string, err error)
}

// ChannelConfig configures a dialed event channel. OnEvent receives every
// inbound envelope from a single reader goroutine, in arrival order.
type ChannelConfig struct {
	URL     string
	Header  http.Header
	Policy  ReconnectPolicy
	Hooks   Hooks
	OnEvent func(event string, payload json.RawMessage)
}

// Channel is a persistent bidirectional event connection. One goroutine
// reads and dispatches; writes are serialized by a mutex. On a read fault
// the channel redials under its policy and replays the rejoin envelope so
// the server puts the connection back into the run room.
type Channel struct {
	cfg ChannelConfig

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	rejoin  *Envelope
	closed  bool
	done    chan struct{}
}

// DialChannel connects the websocket and starts the read loop.
func DialChannel(ctx context.Context, cfg ChannelConfig) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("channel url is required")
	}
	cfg.Policy = normalizeReconnectPolicy(cfg.Policy)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("event channel connect to %s failed: %w", cfg.URL, err)
	}
	ch := &Channel{cfg: cfg, conn: conn, done: make(chan struct{})}
	go ch.readLoop()
	return ch, nil
}

// SetRejoin records the envelope replayed after every successful
// reconnect, typically the run:join event.
func (ch *Channel) SetRejoin(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	ch.rejoin = &Envelope{Event: event, Payload: raw}
	ch.mu.Unlock()
	return nil
}

func (ch *Channel) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	ch.mu.Lock()
	conn := ch.conn
	closed := ch.closed
	ch.mu.Unlock()
	if closed || conn == nil {
		return fmt.Errorf("emit %s: channel closed", event)
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return conn.WriteJSON(Envelope{Event: event, Payload: raw})
}

func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	conn := ch.conn
	ch.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	<-ch.done
	return err
}

// Done is closed once the read loop has exited for good.
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

func (ch *Channel) readLoop() {
	defer close(ch.done)
	for {
		ch.mu.Lock()
		conn := ch.conn
		closed := ch.closed
		ch.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			ch.mu.Lock()
			closed := ch.closed
			ch.mu.Unlock()
			if closed {
				return
			}
			if !ch.reconnect(err) {
				return
			}
			continue
		}
		if env.Event == "" || ch.cfg.OnEvent == nil {
			continue
		}
		ch.cfg.OnEvent(env.Event, env.Payload)
	}
}

// reconnect redials with exponential backoff. Returns false once the
// policy is exhausted or the channel was closed; the read loop then exits
// and the disconnect hook fires with the final cause.
func (ch *Channel) reconnect(cause error) bool {
	backoff := ch.cfg.Policy.InitialBackoff
	var lastErr error = cause
	for attempt := 1; attempt <= ch.cfg.Policy.MaxRetries; attempt++ {
		time.Sleep(backoff)
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			return false
		}
		ch.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(ch.cfg.URL, ch.cfg.Header)
		if err != nil {
			lastErr = err
			if ch.cfg.Hooks.OnReconnect != nil {
				ch.cfg.Hooks.OnReconnect(attempt, err)
			}
			backoff = time.Duration(float64(backoff) * ch.cfg.Policy.BackoffFactor)
			if backoff > ch.cfg.Policy.MaxBackoff {
				backoff = ch.cfg.Policy.MaxBackoff
			}
			continue
		}

		ch.mu.Lock()
		old := ch.conn
		ch.conn = conn
		rejoin := ch.rejoin
		ch.mu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		if ch.cfg.Hooks.OnReconnect != nil {
			ch.cfg.Hooks.OnReconnect(attempt, nil)
		}
		if rejoin != nil {
			ch.writeMu.Lock()
			_ = conn.WriteJSON(*rejoin)
			ch.writeMu.Unlock()
		}
		return true
	}
	if ch.cfg.Hooks.OnDisconnect != nil {
		ch.cfg.Hooks.OnDisconnect(fmt.Errorf("event channel lost after %d attempts: %w",
			ch.cfg.Policy.MaxRetries, lastErr))
	}
	return false
}
