package engine

import (
	"sync"
	"time"
)

// DefaultTypingIdle is the idle window after the last keystroke before
// a stopTyping signal is emitted.
const DefaultTypingIdle = 1000 * time.Millisecond

// TypingSignal emits a local typing or stopTyping signal for the active
// conversation over the session channel.
type TypingSignal func(conversationID string, typing bool)

// RemoteTypingHandler is notified when the remote peer's typing flag
// changes.
type RemoteTypingHandler func(conversationID string, typing bool)

// Typing coordinates the debounced local typing signal and the remote
// typing indicator for the active conversation. The first keystroke of
// an idle period emits immediately; each subsequent keystroke resets
// the idle timer, and expiry emits stopTyping. Remote events are
// trusted as already debounced by their sender.
type Typing struct {
	mu             sync.Mutex
	conversationID string
	localTyping    bool
	remoteTyping   bool
	idle           time.Duration
	timer          *time.Timer

	emit     TypingSignal
	onRemote RemoteTypingHandler
}

// NewTyping creates a typing coordinator with the default idle window.
func NewTyping(emit TypingSignal) *Typing {
	return &Typing{
		idle: DefaultTypingIdle,
		emit: emit,
	}
}

// SetIdle overrides the idle window.
func (t *Typing) SetIdle(idle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.idle = idle
}

// SetRemoteHandler sets the remote-indicator callback.
func (t *Typing) SetRemoteHandler(handler RemoteTypingHandler) {
	t.onRemote = handler
}

// Reset rebinds the coordinator to a new active conversation, clearing
// both flags and any pending idle timer. An empty id detaches it.
func (t *Typing) Reset(conversationID string) {
	t.mu.Lock()
	t.conversationID = conversationID
	t.localTyping = false
	t.remoteTyping = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}

// OnLocalInput records a keystroke. No signal is emitted when no
// conversation is active.
func (t *Typing) OnLocalInput() {
	t.mu.Lock()
	id := t.conversationID
	if id == "" {
		t.mu.Unlock()
		return
	}

	first := !t.localTyping
	t.localTyping = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.idleExpired)
	t.mu.Unlock()

	if first && t.emit != nil {
		t.emit(id, true)
	}
}

func (t *Typing) idleExpired() {
	t.mu.Lock()
	if !t.localTyping {
		t.mu.Unlock()
		return
	}
	t.localTyping = false
	t.timer = nil
	id := t.conversationID
	t.mu.Unlock()

	if id != "" && t.emit != nil {
		t.emit(id, false)
	}
}

// OnRemoteTyping sets the remote typing flag from a server event.
func (t *Typing) OnRemoteTyping(typing bool) {
	t.mu.Lock()
	t.remoteTyping = typing
	id := t.conversationID
	t.mu.Unlock()

	if t.onRemote != nil {
		t.onRemote(id, typing)
	}
}

// LocalTyping reports whether the local user is mid-burst.
func (t *Typing) LocalTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.localTyping
}

// RemoteTyping reports whether the remote peer is typing.
func (t *Typing) RemoteTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteTyping
}
