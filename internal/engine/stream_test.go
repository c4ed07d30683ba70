package engine

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sparringhq/sparring/internal/models"
)

func confirmed(id, body string, sender models.Sender) models.Message {
	return models.Message{
		ID:            id,
		Sender:        sender,
		Body:          body,
		SentAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		DeliveryState: models.DeliveryConfirmed,
	}
}

func history3() []models.Message {
	return []models.Message{
		confirmed("m1", "Opening statement", models.SenderUser),
		confirmed("m2", "Counterpoint", models.SenderAI),
		confirmed("m3", "Rebuttal", models.SenderUser),
	}
}

func TestOptimisticSupersededByPush(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", history3())

	msg, key := s.SendOptimistic("Hello")
	if !msg.Pending || msg.DeliveryState != models.DeliveryOptimistic {
		t.Fatalf("optimistic entry not pending: %+v", msg)
	}
	if key == "" || msg.CorrelationKey != key {
		t.Fatalf("missing correlation key")
	}
	if got := len(s.Messages()); got != 4 {
		t.Fatalf("expected 4 messages after optimistic send, got %d", got)
	}

	push := append(history3(), confirmed("m4", "Hello", models.SenderUser))
	s.ApplyPush("a", 1, push)

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after push, got %d", len(msgs))
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending flag survived the confirming push")
	}
	hellos := 0
	for _, m := range msgs {
		if m.Body == "Hello" {
			hellos++
		}
	}
	if hellos != 1 {
		t.Fatalf("expected exactly one Hello, got %d", hellos)
	}
}

func TestPushIdempotent(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", history3())

	push := append(history3(), confirmed("m4", "Hello", models.SenderUser))
	s.ApplyPush("a", 1, push)
	first := s.Messages()

	// Same snapshot again: the sequence guard discards it.
	s.ApplyPush("a", 1, push)
	second := s.Messages()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-applied push changed the displayed list")
	}
}

func TestStaleSnapshotDiscarded(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", nil)

	s.ApplyPush("a", 5, history3())
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}

	// An older snapshot delivered late must not regress the view.
	s.ApplyPush("a", 4, history3()[:1])
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("stale snapshot regressed the view to %d messages", got)
	}
}

func TestPushForStaleConversationIgnored(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", history3())

	s.ApplyPush("b", 1, []models.Message{confirmed("x1", "wrong room", models.SenderUser)})
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("push for another conversation was applied, got %d messages", got)
	}
}

func TestAITailDivertedToReveal(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", history3())

	var mu sync.Mutex
	var diverted []models.Message
	s.SetRevealHandler(func(conversationID string, msg models.Message) {
		mu.Lock()
		diverted = append(diverted, msg)
		mu.Unlock()
	})

	tail := confirmed("m4", "As the AI, I disagree.", models.SenderAI)
	s.ApplyPush("a", 1, append(history3(), tail))

	mu.Lock()
	defer mu.Unlock()
	if len(diverted) != 1 || diverted[0].ID != "m4" {
		t.Fatalf("AI tail not diverted: %+v", diverted)
	}
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("diverted tail should not display yet, got %d messages", got)
	}

	// Completion hands the finalized message back.
	s.AppendConfirmed("a", tail)
	if got := len(s.Messages()); got != 4 {
		t.Fatalf("expected 4 messages after reveal completion, got %d", got)
	}
}

func TestRevealSupersededByPushNotDuplicated(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", history3())

	var mu sync.Mutex
	var diverted []models.Message
	s.SetRevealHandler(func(conversationID string, msg models.Message) {
		mu.Lock()
		diverted = append(diverted, msg)
		mu.Unlock()
	})

	aiMsg := confirmed("m4", "As the AI, I disagree.", models.SenderAI)
	s.ApplyPush("a", 1, append(history3(), aiMsg))

	// While the reveal animates, the user sends a follow-up and the next
	// snapshot confirms both messages.
	followUp := confirmed("m5", "And yet.", models.SenderUser)
	s.ApplyPush("a", 2, append(history3(), aiMsg, followUp))

	mu.Lock()
	if len(diverted) != 1 || diverted[0].ID != "m4" {
		t.Fatalf("expected one diverted AI tail, got %+v", diverted)
	}
	mu.Unlock()

	// The reveal now completes for a message the list already holds.
	s.AppendConfirmed("a", aiMsg)

	msgs := s.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d: %+v", len(msgs), msgs)
	}
	seen := 0
	for _, m := range msgs {
		if m.ID == "m4" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("AI message appears %d times", seen)
	}
	if msgs[4].ID != "m5" {
		t.Fatalf("follow-up no longer at the tail: %+v", msgs[4])
	}
}

func TestUserTailNotDiverted(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", nil)

	called := false
	s.SetRevealHandler(func(string, models.Message) { called = true })

	s.ApplyPush("a", 1, history3()) // tail is the user's rebuttal
	if called {
		t.Fatalf("user-authored tail was diverted to reveal")
	}
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
}

func TestRollbackRemovesOptimisticEntry(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", history3())

	_, key := s.SendOptimistic("doomed")
	s.Rollback(key)

	if got := len(s.Messages()); got != 3 {
		t.Fatalf("rollback left %d messages", got)
	}
	for _, m := range s.Messages() {
		if m.Body == "doomed" {
			t.Fatalf("rolled-back entry still displayed")
		}
	}
}

func TestReconcileReplacesInPlace(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", history3())

	_, key := s.SendOptimistic("Hello")
	s.Reconcile(key, confirmed("m4", "Hello", models.SenderUser))

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	last := msgs[3]
	if last.ID != "m4" || last.Pending || last.DeliveryState != models.DeliveryConfirmed {
		t.Fatalf("reconcile did not confirm in place: %+v", last)
	}
}

func TestConcurrentOptimisticSendsKeyed(t *testing.T) {
	s := NewStream()
	s.LoadHistory("a", nil)

	_, key1 := s.SendOptimistic("first")
	_, key2 := s.SendOptimistic("second")
	if key1 == key2 {
		t.Fatalf("correlation keys collide")
	}

	// Rolling back the first must leave the second untouched.
	s.Rollback(key1)
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Body != "second" {
		t.Fatalf("wrong entry removed: %+v", msgs)
	}
}
