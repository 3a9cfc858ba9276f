package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrNotOpen is returned by Send when the connection is not in the open
// state.
var ErrNotOpen = errors.New("connection not open")

// State is the connection lifecycle of a Client.
type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosed       State = "closed"
	StateReconnecting State = "reconnecting"
)

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// backoffDelay is min(1s * 2^attempt, 30s).
func backoffDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return backoffCap
	}
	d := backoffBase << attempt
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// wireConn abstracts the WebSocket connection so the reconnect machinery is
// testable without a real socket.
type wireConn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc establishes one connection attempt.
type DialFunc func(ctx context.Context) (wireConn, error)

// Client is the UI side of the transport: a WebSocket connection that
// redials automatically with exponential backoff and exposes inbound frames
// as a lazy sequence. An interrupted turn is not replayed after a reconnect;
// the caller simply sees a fresh connected frame.
type Client struct {
	dial  DialFunc
	sleep func(ctx context.Context, d time.Duration) bool

	mu      sync.Mutex
	conn    wireConn
	state   State
	attempt int
	closed  bool
}

// Dial creates a client for the chat endpoint at url.
func Dial(url string) *Client {
	return NewClient(func(ctx context.Context) (wireConn, error) {
		ws, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return &wsConn{ws: ws}, nil
	})
}

// NewClient creates a client over a custom dialer. Tests inject both the
// dialer and the sleep function.
func NewClient(dial DialFunc) *Client {
	return &Client{
		dial:  dial,
		sleep: sleepCtx,
		state: StateConnecting,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the current reconnect attempt counter, for connectivity
// indicators.
func (c *Client) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Send writes a frame on the open connection.
func (c *Client) Send(ctx context.Context, frame Frame) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateOpen || conn == nil {
		return fmt.Errorf("%w: state is %s", ErrNotOpen, state)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return conn.Write(ctx, data)
}

// Close shuts the client down permanently; Frames terminates.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.state = StateClosed
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Frames returns the inbound frame sequence. The sequence spans reconnects:
// when the connection drops unexpectedly the client backs off
// (min(1s*2^attempt, 30s), attempt incremented per failed cycle, reset on a
// successful open) and redials. Failed cycles surface as error entries so a
// UI can render connectivity state; iteration ends when ctx is cancelled or
// Close is called.
func (c *Client) Frames(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			if c.done(ctx) {
				return
			}
			c.setState(StateConnecting)

			conn, err := c.dial(ctx)
			if err != nil {
				delay := c.failCycle()
				if !yield(Frame{}, fmt.Errorf("connect failed: %w", err)) {
					return
				}
				if !c.sleep(ctx, delay) {
					c.setState(StateClosed)
					return
				}
				continue
			}

			c.opened(conn)
			if !c.readConn(ctx, conn, yield) {
				return
			}

			// Unexpected close: back off before the next dial.
			if c.done(ctx) {
				return
			}
			delay := c.failCycle()
			if !yield(Frame{}, errors.New("connection lost")) {
				return
			}
			if !c.sleep(ctx, delay) {
				c.setState(StateClosed)
				return
			}
		}
	}
}

// readConn pumps frames from one connection until it drops. It returns
// false when iteration should stop entirely.
func (c *Client) readConn(ctx context.Context, conn wireConn, yield func(Frame, error) bool) bool {
	defer func() {
		_ = conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if c.done(ctx) {
				return false
			}
			return true
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("Dropping undecodable frame", "error", err)
			continue
		}
		if !yield(frame, nil) {
			return false
		}
	}
}

func (c *Client) done(ctx context.Context) bool {
	if ctx.Err() != nil {
		c.setState(StateClosed)
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.state = StateClosed
		return true
	}
	return false
}

// failCycle records a failed connection cycle and returns the delay to wait
// before the next attempt.
func (c *Client) failCycle() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	delay := backoffDelay(c.attempt)
	c.attempt++
	c.state = StateReconnecting
	return delay
}

func (c *Client) opened(conn wireConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.state = StateClosed
		return
	}
	c.state = s
}

// wsConn adapts *websocket.Conn to wireConn.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "client closed")
}
