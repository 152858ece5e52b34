package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
)

// ErrNotConnected is returned by Send while the platform connection is down.
var ErrNotConnected = errors.New("ws: not connected")

// ErrAlreadySubscribed is returned when Subscribe is called twice.
var ErrAlreadySubscribed = errors.New("ws: feed already subscribed")

const readLimit = 1 << 20

// ClientConfig configures the platform connection.
type ClientConfig struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client reads the platform's agent-status stream and writes control intents
// back over the same connection. It reconnects with capped exponential
// backoff until the subscription is cancelled.
type Client struct {
	cfg ClientConfig
	log *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	handler    feed.Handler
	ackHandler control.AckHandler
	started    bool
	done       chan struct{}
}

var (
	_ feed.Feed         = (*Client)(nil)
	_ control.Sink      = (*Client)(nil)
	_ control.AckSource = (*Client)(nil)
)

// NewClient creates a client; no connection is made until Subscribe.
func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	return &Client{cfg: cfg, log: log.With("component", "ws_client", "url", cfg.URL), done: make(chan struct{})}
}

// Subscribe starts the connection loop, delivering status updates to h.
func (c *Client) Subscribe(ctx context.Context, h feed.Handler) (func(), error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	c.started = true
	c.handler = h
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		c.run(ctx)
	}()
	return cancel, nil
}

// SubscribeAcks registers h for control acknowledgements. Acks arrive on the
// status connection, so they flow once Subscribe has started it.
func (c *Client) SubscribeAcks(_ context.Context, h control.AckHandler) (func(), error) {
	c.mu.Lock()
	c.ackHandler = h
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.ackHandler = nil
		c.mu.Unlock()
	}, nil
}

// Send writes a control intent to the platform.
func (c *Client) Send(ctx context.Context, in control.Intent) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	msg, err := NewMessage(EventControl, in)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal control envelope: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write control intent: %w", err)
	}
	return nil
}

// Connected reports whether the platform connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Done is closed once the connection loop has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) run(ctx context.Context) {
	backoff := c.cfg.ReconnectMin
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = c.cfg.ReconnectMin
		}
		c.log.Warn("platform connection lost, reconnecting", "error", err, "backoff", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, c.cfg.ReconnectMax)
	}
}

// session dials once and reads until the connection fails or ctx ends.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil) //nolint:bodyclose // coder/websocket closes the handshake body
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("connected to platform")

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("malformed platform message", "error", err)
		return
	}

	c.mu.Lock()
	h, ah := c.handler, c.ackHandler
	c.mu.Unlock()

	if msg.Type == EventControlAck {
		ack, err := decodeAck(msg)
		if err != nil {
			c.log.Warn("malformed control ack", "error", err)
			return
		}
		if ah != nil {
			if err := ah(ctx, ack); err != nil {
				c.log.Warn("handle control ack", "intent_id", ack.IntentID, "error", err)
			}
		}
		return
	}

	u, ok, err := decodeUpdate(msg)
	switch {
	case !ok:
		c.log.Debug("ignoring platform message", "type", msg.Type)
	case err != nil:
		c.log.Warn("malformed status update", "type", msg.Type, "error", err)
	default:
		if err := h(ctx, u); err != nil {
			c.log.Warn("handle status update", "agent_id", u.AgentID(), "error", err)
		}
	}
}
