package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sparringhq/sparring/internal/protocol"
)

// State is a channel's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ChannelKind distinguishes the two logical channels.
type ChannelKind string

const (
	KindDirectory ChannelKind = "directory"
	KindSession   ChannelKind = "session"
)

const (
	// DefaultRetryAttempts is the number of connection attempts before a
	// channel surfaces a persistent error state.
	DefaultRetryAttempts = 5
	// DefaultRetryInterval is the fixed delay between attempts.
	DefaultRetryInterval = time.Second

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 1 << 20
)

// StateHandler is notified on every channel state transition. reason is
// non-empty only for StateError.
type StateHandler func(kind ChannelKind, conversationID string, state State, reason string)

// Channel is one logical WebSocket channel: either the process-wide
// directory channel or a per-conversation session channel.
type Channel struct {
	kind           ChannelKind
	conversationID string

	conn   *websocket.Conn
	send   chan []byte
	events chan *protocol.Envelope
	done   chan struct{}

	arrivals uint64 // local stamp for snapshots the server left unsequenced

	mu      sync.Mutex
	state   State
	closed  bool
	onState StateHandler
}

// Kind returns the channel kind.
func (ch *Channel) Kind() ChannelKind { return ch.kind }

// ConversationID returns the conversation a session channel is joined
// to; empty for the directory channel.
func (ch *Channel) ConversationID() string { return ch.conversationID }

// Events returns the channel's inbound event stream. The channel closes
// it when the connection is torn down.
func (ch *Channel) Events() <-chan *protocol.Envelope { return ch.events }

// State returns the channel's current connection state.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *Channel) setState(state State, reason string) {
	ch.mu.Lock()
	if ch.state == state {
		ch.mu.Unlock()
		return
	}
	ch.state = state
	handler := ch.onState
	ch.mu.Unlock()

	if handler != nil {
		handler(ch.kind, ch.conversationID, state, reason)
	}
}

// Send marshals the envelope and queues it for delivery.
func (ch *Channel) Send(env *protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return fmt.Errorf("channel closed")
	}
	select {
	case ch.send <- data:
		return nil
	case <-ch.done:
		return fmt.Errorf("channel closed")
	}
}

// SendEvent is a convenience wrapper around Send.
func (ch *Channel) SendEvent(eventType protocol.EventType, data interface{}) error {
	env, err := protocol.NewEnvelope(eventType, data)
	if err != nil {
		return err
	}
	return ch.Send(env)
}

// NextArrival returns a monotonically increasing local sequence number
// for stamping unsequenced snapshot pushes on this connection.
func (ch *Channel) NextArrival() uint64 {
	return atomic.AddUint64(&ch.arrivals, 1)
}

// Close tears the channel down. Safe to call more than once. A channel
// already in StateError keeps it, so the failure reason stays visible
// after the pumps wind down.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	inError := ch.state == StateError
	ch.mu.Unlock()

	close(ch.done)
	ch.conn.Close()
	if !inError {
		ch.setState(StateDisconnected, "")
	}
}

// Manager owns the directory and session channels and their retry
// policy. Connection errors are retried up to a fixed cap and then
// surfaced persistently; it never retries on its own after that.
type Manager struct {
	wsBase string
	token  string
	dialer *websocket.Dialer

	retryAttempts int
	retryInterval time.Duration

	onState StateHandler
}

// NewManager creates a connection manager for the given WebSocket base
// URL, authenticating every handshake with the stored token.
func NewManager(wsBase, token string) *Manager {
	return &Manager{
		wsBase: wsBase,
		token:  token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		retryAttempts: DefaultRetryAttempts,
		retryInterval: DefaultRetryInterval,
	}
}

// SetStateHandler sets the callback for channel state transitions.
func (m *Manager) SetStateHandler(handler StateHandler) {
	m.onState = handler
}

// SetRetryPolicy overrides the retry cap and interval.
func (m *Manager) SetRetryPolicy(attempts int, interval time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	m.retryAttempts = attempts
	m.retryInterval = interval
}

// ConnectDirectory opens the long-lived directory channel.
func (m *Manager) ConnectDirectory(ctx context.Context) (*Channel, error) {
	return m.connect(ctx, KindDirectory, "")
}

// ConnectSession opens a session channel and joins the conversation.
// The caller must tear down any prior session channel first so stream
// events for a stale conversation id are never delivered.
func (m *Manager) ConnectSession(ctx context.Context, conversationID string) (*Channel, error) {
	ch, err := m.connect(ctx, KindSession, conversationID)
	if err != nil {
		return nil, err
	}
	if err := ch.SendEvent(protocol.TypeJoin, protocol.JoinEvent{DebateID: conversationID}); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to join conversation %s: %w", conversationID, err)
	}
	return ch, nil
}

func (m *Manager) connect(ctx context.Context, kind ChannelKind, conversationID string) (*Channel, error) {
	ch := &Channel{
		kind:           kind,
		conversationID: conversationID,
		send:           make(chan []byte, 256),
		events:         make(chan *protocol.Envelope, 256),
		done:           make(chan struct{}),
		state:          StateDisconnected,
		onState:        m.onState,
	}

	header := http.Header{}
	if m.token != "" {
		header.Set("token", m.token)
	}

	ch.setState(StateConnecting, "")

	var lastErr error
	for attempt := 1; attempt <= m.retryAttempts; attempt++ {
		conn, _, err := m.dialer.DialContext(ctx, m.wsBase+"/ws", header)
		if err == nil {
			ch.conn = conn
			ch.setState(StateConnected, "")

			go ch.writePump()
			go ch.readPump()

			return ch, nil
		}
		lastErr = err
		log.Printf("%s channel connect attempt %d/%d failed: %v", kind, attempt, m.retryAttempts, err)

		if attempt == m.retryAttempts {
			break
		}
		select {
		case <-time.After(m.retryInterval):
		case <-ctx.Done():
			ch.setState(StateError, ctx.Err().Error())
			return nil, ctx.Err()
		}
	}

	ch.setState(StateError, lastErr.Error())
	return nil, fmt.Errorf("failed to connect %s channel after %d attempts: %w", kind, m.retryAttempts, lastErr)
}

// Disconnect tears down a channel.
func (m *Manager) Disconnect(ch *Channel) {
	if ch == nil {
		return
	}
	ch.Close()
}

func (ch *Channel) readPump() {
	defer func() {
		ch.Close()
		close(ch.events)
	}()

	ch.conn.SetReadLimit(maxMsgSize)
	ch.conn.SetReadDeadline(time.Now().Add(pongWait))
	ch.conn.SetPongHandler(func(string) error {
		ch.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("%s channel read error: %v", ch.kind, err)
				ch.setState(StateError, err.Error())
			}
			return
		}

		env, err := protocol.ParseEnvelope(message)
		if err != nil {
			log.Printf("%s channel: failed to parse event: %v", ch.kind, err)
			continue
		}

		select {
		case ch.events <- env:
		case <-ch.done:
			return
		}
	}
}

func (ch *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ch.conn.Close()
	}()

	for {
		select {
		case message, ok := <-ch.send:
			ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ch.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ch.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ch.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ch.done:
			return
		}
	}
}
