// Package chatclient maintains one logical realtime connection to the
// gateway on behalf of a client application. It owns the reconnect loop,
// remembers room subscriptions across drops, and fails outbound calls fast
// while offline so callers can roll back optimistic UI state.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by outbound calls while the connection is
// down. Nothing is queued; the caller decides whether to retry.
var ErrNotConnected = errors.New("chatclient: not connected")

// State describes the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Operation names understood by the gateway.
const (
	opJoinRoom  = "join_room"
	opLeaveRoom = "leave_room"
	opSend      = "send"
	opTyping    = "typing"
	opMarkRead  = "mark_read"
	opPresence  = "presence"
	opPing      = "ping"
)

// Frame is the client→server envelope, mirroring the gateway wire shape.
type Frame struct {
	Op        string `json:"op"`
	Room      string `json:"room,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID uint   `json:"message_id,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
	Online    *bool  `json:"online,omitempty"`
}

// Event is the server→client envelope. Data is left raw for the caller to
// decode against the event type.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host/api/v1/ws.
	URL string
	// Token is appended as the access_token query parameter.
	Token string

	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int

	// AnnounceOnline sends a presence frame after every (re)connect.
	AnnounceOnline bool

	OnEvent       func(Event)
	OnStateChange func(State)

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

// Client is the reconnection manager. One instance maintains one logical
// connection; all methods are safe for concurrent use.
type Client struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	rooms map[string]struct{}

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// New constructs a client. Call Start to open the connection.
func New(opts Options) *Client {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	return &Client{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "chatclient").Logger(),
		rooms:  make(map[string]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the connection manager until ctx is cancelled or Close is
// called.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

// Close tears the connection down permanently.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WakeForeground requests an immediate reconnect attempt because the host
// application regained foreground visibility. No-op while connected or
// connecting.
func (c *Client) WakeForeground() { c.nudge() }

// WakeNetwork requests an immediate reconnect attempt because network
// connectivity returned. No-op while connected or connecting.
func (c *Client) WakeNetwork() { c.nudge() }

func (c *Client) nudge() {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateConnected || state == StateConnecting {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// JoinRoom subscribes to a room and remembers it for rejoin after a drop.
func (c *Client) JoinRoom(room string) error {
	if err := c.writeFrame(Frame{Op: opJoinRoom, Room: room}); err != nil {
		return err
	}
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
	return nil
}

// LeaveRoom unsubscribes and forgets the room.
func (c *Client) LeaveRoom(room string) error {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	return c.writeFrame(Frame{Op: opLeaveRoom, Room: room})
}

// Send issues a plain-text quick send to a conversation room.
func (c *Client) Send(room, content string) error {
	return c.writeFrame(Frame{Op: opSend, Room: room, Content: content})
}

// Typing reports the local typing state to a room.
func (c *Client) Typing(room string, isTyping bool) error {
	return c.writeFrame(Frame{Op: opTyping, Room: room, IsTyping: isTyping})
}

// MarkRead marks a message read and lets the gateway fan the receipt out.
func (c *Client) MarkRead(room string, messageID uint) error {
	return c.writeFrame(Frame{Op: opMarkRead, Room: room, MessageID: messageID})
}

// Announce reports an explicit online/offline transition, e.g. on tab
// visibility changes.
func (c *Client) Announce(online bool) error {
	return c.writeFrame(Frame{Op: opPresence, Online: &online})
}

// Ping probes liveness. The server answers with a pong event.
func (c *Client) Ping() error {
	return c.writeFrame(Frame{Op: opPing})
}

func (c *Client) writeFrame(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(frame)
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state)
	}
}

func (c *Client) run(ctx context.Context) {
	attempt := 0
	first := true

	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateDisconnected)
			return
		}
		select {
		case <-c.done:
			c.setState(StateDisconnected)
			return
		default:
		}

		if first {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			if attempt >= c.opts.MaxAttempts {
				// Retry budget exhausted. Stay down until an external
				// wake signal resets the budget.
				c.logger.Warn().Int("attempts", attempt).Msg("reconnect attempts exhausted")
				c.setState(StateDisconnected)
				if !c.waitForWake(ctx) {
					return
				}
				attempt = 0
				continue
			}
			if !c.sleep(ctx, c.backoff(attempt)) {
				c.setState(StateDisconnected)
				return
			}
			continue
		}

		attempt = 0
		first = false
		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		rooms := make([]string, 0, len(c.rooms))
		for room := range c.rooms {
			rooms = append(rooms, room)
		}
		c.mu.Unlock()
		if c.opts.OnStateChange != nil {
			c.opts.OnStateChange(StateConnected)
		}

		c.resubscribe(conn, rooms)
		c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	url := c.opts.URL
	token := c.opts.Token
	c.mu.Unlock()

	if token != "" {
		separator := "?"
		for _, r := range url {
			if r == '?' {
				separator = "&"
				break
			}
		}
		url += separator + "access_token=" + token
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// resubscribe rejoins every remembered room, then optionally announces
// online. Runs before the read loop so no inbound event races the rejoin.
func (c *Client) resubscribe(conn *websocket.Conn, rooms []string) {
	for _, room := range rooms {
		if err := conn.WriteJSON(Frame{Op: opJoinRoom, Room: room}); err != nil {
			c.logger.Warn().Err(err).Str("room", room).Msg("failed to rejoin room")
			return
		}
	}
	if c.opts.AnnounceOnline {
		online := true
		if err := conn.WriteJSON(Frame{Op: opPresence, Online: &online}); err != nil {
			c.logger.Warn().Err(err).Msg("failed to announce online")
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			select {
			case <-c.done:
			case <-ctx.Done():
			default:
				c.logger.Debug().Err(err).Msg("connection dropped")
			}
			return
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(event)
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.BackoffCap {
			return c.opts.BackoffCap
		}
	}
	if delay > c.opts.BackoffCap {
		delay = c.opts.BackoffCap
	}
	return delay
}

// sleep waits for the backoff delay, a wake signal, or shutdown. Returns
// false when the manager should stop.
func (c *Client) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.wake:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// waitForWake blocks until an external signal asks for another attempt.
func (c *Client) waitForWake(ctx context.Context) bool {
	select {
	case <-c.wake:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}
