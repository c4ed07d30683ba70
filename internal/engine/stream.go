package engine

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sparringhq/sparring/internal/models"
)

// ChangeHandler is notified whenever the displayed message list changes.
// force reports whether the change should scroll the view regardless of
// the viewer's position (local sends, history loads).
type ChangeHandler func(conversationID string, messages []models.Message, force bool)

// RevealHandler receives AI messages diverted from a snapshot push so
// they render through the incremental reveal instead of appearing
// at once.
type RevealHandler func(conversationID string, msg models.Message)

// Stream is the authoritative message log for the active conversation.
// Server snapshot pushes replace the list wholesale; optimistic local
// entries ride at the tail until the next push supersedes them.
type Stream struct {
	mu             sync.Mutex
	conversationID string
	messages       []models.Message
	lastSeq        uint64
	inReveal       *models.Message

	onChange ChangeHandler
	onReveal RevealHandler
}

// NewStream creates an empty message stream.
func NewStream() *Stream {
	return &Stream{}
}

// SetChangeHandler sets the callback for display-list changes.
func (s *Stream) SetChangeHandler(handler ChangeHandler) {
	s.onChange = handler
}

// SetRevealHandler sets the callback for diverted AI messages.
func (s *Stream) SetRevealHandler(handler RevealHandler) {
	s.onReveal = handler
}

// Reset clears the stream for a newly selected conversation.
func (s *Stream) Reset(conversationID string) {
	s.mu.Lock()
	s.conversationID = conversationID
	s.messages = nil
	s.lastSeq = 0
	s.inReveal = nil
	s.mu.Unlock()
	s.notify(true)
}

// ConversationID returns the conversation the stream is bound to.
func (s *Stream) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// LoadHistory replaces the in-memory list with a freshly fetched
// snapshot. It is a full replacement, not a merge, and re-baselines the
// sequence guard.
func (s *Stream) LoadHistory(conversationID string, history []models.Message) {
	s.mu.Lock()
	s.conversationID = conversationID
	s.messages = confirmAll(history)
	s.lastSeq = 0
	s.inReveal = nil
	s.mu.Unlock()
	s.notify(true)
}

// ApplyPush applies a full-stream snapshot push. Snapshots whose
// sequence number is not greater than the last applied one are
// discarded, so a stale push delivered after a reconnect can never
// regress the displayed state. When the snapshot's tail entry was not
// authored by the local user it is diverted to the reveal handler and
// the rest of the snapshot replaces the list; otherwise the whole
// snapshot replaces the list verbatim.
func (s *Stream) ApplyPush(conversationID string, seq uint64, stream []models.Message) {
	s.mu.Lock()
	if conversationID != s.conversationID {
		s.mu.Unlock()
		log.Printf("discarding push for stale conversation %s", conversationID)
		return
	}
	if seq <= s.lastSeq {
		s.mu.Unlock()
		log.Printf("discarding stale snapshot seq=%d (last applied %d)", seq, s.lastSeq)
		return
	}
	s.lastSeq = seq

	incoming := confirmAll(stream)

	var divert *models.Message
	if n := len(incoming); n > 0 {
		tail := incoming[n-1]
		if !tail.FromUser() && !s.displayedLocked(tail) && !s.revealingLocked(tail) {
			divert = &tail
			incoming = incoming[:n-1]
			s.inReveal = &tail
		}
	}
	s.messages = incoming
	s.mu.Unlock()

	s.notify(false)
	if divert != nil && s.onReveal != nil {
		s.onReveal(conversationID, *divert)
	}
}

// displayedLocked reports whether the message is already at the display
// tail, which makes a duplicate push a no-op rather than a re-reveal.
func (s *Stream) displayedLocked(msg models.Message) bool {
	if len(s.messages) == 0 {
		return false
	}
	tail := s.messages[len(s.messages)-1]
	if msg.ID != "" && tail.ID == msg.ID {
		return true
	}
	return tail.Sender == msg.Sender && tail.Body == msg.Body
}

// containsLocked reports whether the message already appears anywhere
// in the displayed list. A snapshot applied mid-reveal can land the
// revealing message in the body of the list rather than at its tail.
func (s *Stream) containsLocked(msg models.Message) bool {
	for _, m := range s.messages {
		if msg.ID != "" && m.ID == msg.ID {
			return true
		}
		if m.Sender == msg.Sender && m.Body == msg.Body {
			return true
		}
	}
	return false
}

func (s *Stream) revealingLocked(msg models.Message) bool {
	if s.inReveal == nil {
		return false
	}
	if msg.ID != "" && s.inReveal.ID == msg.ID {
		return true
	}
	return s.inReveal.Sender == msg.Sender && s.inReveal.Body == msg.Body
}

// SendOptimistic appends a provisional entry at the tail and returns it
// together with its correlation key. The caller issues the underlying
// send; on request failure it must call Rollback with the key.
func (s *Stream) SendOptimistic(body string) (models.Message, string) {
	key := uuid.New().String()
	msg := models.Message{
		ID:             key,
		Sender:         models.SenderUser,
		Body:           body,
		SentAt:         time.Now().UTC(),
		Pending:        true,
		DeliveryState:  models.DeliveryOptimistic,
		CorrelationKey: key,
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify(true)
	return msg, key
}

// Reconcile replaces the optimistic entry carrying the correlation key
// with its confirmed form, keeping its logical position.
func (s *Stream) Reconcile(key string, confirmed models.Message) {
	confirmed.Pending = false
	confirmed.DeliveryState = models.DeliveryConfirmed
	s.mu.Lock()
	replaced := false
	for i := range s.messages {
		if s.messages[i].CorrelationKey == key {
			s.messages[i] = confirmed
			replaced = true
			break
		}
	}
	s.mu.Unlock()
	if replaced {
		s.notify(false)
	}
}

// Rollback removes the optimistic entry carrying the correlation key.
func (s *Stream) Rollback(key string) {
	s.mu.Lock()
	removed := false
	for i := range s.messages {
		if s.messages[i].CorrelationKey == key {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if removed {
		s.notify(false)
	}
}

// RollbackLatest removes the newest optimistic entry. Used for failure
// events that arrive without a correlation key.
func (s *Stream) RollbackLatest() {
	s.mu.Lock()
	removed := false
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Pending {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if removed {
		s.notify(false)
	}
}

// AppendConfirmed appends a finalized message, normally the output of a
// completed reveal.
func (s *Stream) AppendConfirmed(conversationID string, msg models.Message) {
	msg.Pending = false
	msg.DeliveryState = models.DeliveryConfirmed
	s.mu.Lock()
	if conversationID != s.conversationID {
		s.mu.Unlock()
		return
	}
	if s.revealingLocked(msg) {
		s.inReveal = nil
	}
	if s.containsLocked(msg) {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify(false)
}

// Messages returns a copy of the displayed list.
func (s *Stream) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// PendingCount returns the number of outstanding optimistic entries.
func (s *Stream) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Pending {
			n++
		}
	}
	return n
}

func (s *Stream) notify(force bool) {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	id := s.conversationID
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	s.mu.Unlock()
	s.onChange(id, out, force)
}

func confirmAll(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		m.Pending = false
		if m.DeliveryState == "" {
			m.DeliveryState = models.DeliveryConfirmed
		}
		out[i] = m
	}
	return out
}
