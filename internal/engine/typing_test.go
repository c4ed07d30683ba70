package engine

import (
	"sync"
	"testing"
	"time"
)

type signalRecorder struct {
	mu      sync.Mutex
	signals []bool
}

func (r *signalRecorder) record(conversationID string, typing bool) {
	r.mu.Lock()
	r.signals = append(r.signals, typing)
	r.mu.Unlock()
}

func (r *signalRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.signals))
	copy(out, r.signals)
	return out
}

func TestKeystrokeBurstEmitsOnePair(t *testing.T) {
	rec := &signalRecorder{}
	ty := NewTyping(rec.record)
	ty.SetIdle(50 * time.Millisecond)
	ty.Reset("a")

	// A burst of keystrokes, each within the idle window of the last.
	for i := 0; i < 10; i++ {
		ty.OnLocalInput()
		time.Sleep(5 * time.Millisecond)
	}

	// Let the idle window elapse after the last keystroke.
	time.Sleep(150 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected [typing stopTyping], got %v", got)
	}
}

func TestSecondBurstEmitsAgain(t *testing.T) {
	rec := &signalRecorder{}
	ty := NewTyping(rec.record)
	ty.SetIdle(30 * time.Millisecond)
	ty.Reset("a")

	ty.OnLocalInput()
	time.Sleep(100 * time.Millisecond)
	ty.OnLocalInput()
	time.Sleep(100 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 4 {
		t.Fatalf("expected two typing/stopTyping pairs, got %v", got)
	}
}

func TestNoSignalWithoutActiveConversation(t *testing.T) {
	rec := &signalRecorder{}
	ty := NewTyping(rec.record)
	ty.SetIdle(10 * time.Millisecond)

	ty.OnLocalInput()
	time.Sleep(50 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("emitted signals with no active conversation: %v", got)
	}
}

func TestResetClearsPendingStopTyping(t *testing.T) {
	rec := &signalRecorder{}
	ty := NewTyping(rec.record)
	ty.SetIdle(30 * time.Millisecond)
	ty.Reset("a")

	ty.OnLocalInput()
	ty.Reset("b") // conversation switch mid-burst

	time.Sleep(100 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != true {
		t.Fatalf("expected only the initial typing signal, got %v", got)
	}
	if ty.LocalTyping() || ty.RemoteTyping() {
		t.Fatalf("typing state survived the reset")
	}
}

func TestRemoteTypingFlag(t *testing.T) {
	ty := NewTyping(nil)
	ty.Reset("a")

	var mu sync.Mutex
	var seen []bool
	ty.SetRemoteHandler(func(conversationID string, typing bool) {
		mu.Lock()
		seen = append(seen, typing)
		mu.Unlock()
	})

	ty.OnRemoteTyping(true)
	if !ty.RemoteTyping() {
		t.Fatalf("remote flag not set")
	}
	ty.OnRemoteTyping(false)
	if ty.RemoteTyping() {
		t.Fatalf("remote flag not cleared")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != true || seen[1] != false {
		t.Fatalf("remote handler got %v", seen)
	}
}
