package engine

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sparringhq/sparring/internal/models"
)

// RevealState is the animator's lifecycle state.
type RevealState int

const (
	RevealIdle RevealState = iota
	RevealRevealing
	RevealCompleted
	RevealInterrupted
)

// ErrRevealActive is returned by Begin while a reveal is in progress.
// Callers must interrupt or await the active reveal first.
var ErrRevealActive = errors.New("reveal already in progress")

const (
	// Per-character delay bounds, emulating natural typing cadence.
	minRevealDelay = 30 * time.Millisecond
	maxRevealDelay = 70 * time.Millisecond
)

// StepHandler receives the currently revealed prefix after each step.
type StepHandler func(conversationID string, prefix string)

// CompleteHandler receives the finalized message exactly once per
// Begin, whether completion was natural or forced by Interrupt.
type CompleteHandler func(conversationID string, msg models.Message)

// Animator reveals an incoming AI message one character at a time. The
// reveal runs as a cancelable timer loop: interruption takes effect
// before the next scheduled character, never after the whole message.
type Animator struct {
	mu             sync.Mutex
	state          RevealState
	conversationID string
	msg            models.Message
	runes          []rune
	revealed       int
	ctrl           chan revealCtrl
	finished       chan struct{}

	minDelay time.Duration
	maxDelay time.Duration

	onStep     StepHandler
	onComplete CompleteHandler
}

type revealCtrl int

const (
	ctrlInterrupt revealCtrl = iota
	ctrlCancel
)

// NewAnimator creates an idle animator.
func NewAnimator() *Animator {
	return &Animator{
		state:    RevealIdle,
		minDelay: minRevealDelay,
		maxDelay: maxRevealDelay,
	}
}

// SetStepHandler sets the per-character callback.
func (a *Animator) SetStepHandler(handler StepHandler) {
	a.onStep = handler
}

// SetCompleteHandler sets the finalization callback.
func (a *Animator) SetCompleteHandler(handler CompleteHandler) {
	a.onComplete = handler
}

// SetDelayBounds overrides the per-character delay range.
func (a *Animator) SetDelayBounds(min, max time.Duration) {
	a.minDelay = min
	a.maxDelay = max
}

// State returns the animator's current state. Completed and Interrupted
// are transient; the animator returns to Idle once the finalized
// message has been handed off.
func (a *Animator) State() RevealState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Begin starts revealing the message. Only one reveal may be active at
// a time; Begin returns ErrRevealActive otherwise.
func (a *Animator) Begin(conversationID string, msg models.Message) error {
	a.mu.Lock()
	if a.state == RevealRevealing {
		a.mu.Unlock()
		return ErrRevealActive
	}
	a.state = RevealRevealing
	a.conversationID = conversationID
	a.msg = msg
	a.runes = []rune(msg.Body)
	a.revealed = 0
	a.ctrl = make(chan revealCtrl, 1)
	a.finished = make(chan struct{})
	ctrl, finished := a.ctrl, a.finished
	a.mu.Unlock()

	go a.run(conversationID, msg, ctrl, finished)
	return nil
}

// Interrupt short-circuits an active reveal: the revealed length jumps
// to the full message and the completion callback fires before
// Interrupt returns. A no-op when nothing is revealing.
func (a *Animator) Interrupt() {
	if finished := a.signal(ctrlInterrupt); finished != nil {
		<-finished
	}
}

// Cancel aborts an active reveal without finalizing the message. Used
// when the active conversation changes mid-reveal. Blocks until the
// reveal loop has stopped.
func (a *Animator) Cancel() {
	if finished := a.signal(ctrlCancel); finished != nil {
		<-finished
	}
}

func (a *Animator) signal(c revealCtrl) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != RevealRevealing || a.ctrl == nil {
		return nil
	}
	select {
	case a.ctrl <- c:
	default:
	}
	return a.finished
}

func (a *Animator) run(conversationID string, msg models.Message, ctrl chan revealCtrl, finished chan struct{}) {
	defer close(finished)

	runes := []rune(msg.Body)
	revealed := 0

	for revealed < len(runes) {
		timer := time.NewTimer(a.stepDelay())
		select {
		case <-timer.C:
			revealed++
			a.mu.Lock()
			a.revealed = revealed
			a.mu.Unlock()
			if a.onStep != nil {
				a.onStep(conversationID, string(runes[:revealed]))
			}

		case c := <-ctrl:
			timer.Stop()
			switch c {
			case ctrlInterrupt:
				a.finish(conversationID, msg, RevealInterrupted)
			case ctrlCancel:
				a.mu.Lock()
				a.state = RevealIdle
				a.ctrl = nil
				a.mu.Unlock()
			}
			return
		}
	}

	a.finish(conversationID, msg, RevealCompleted)
}

// finish transitions through the terminal state, hands the full message
// to the completion handler, and returns the animator to Idle. Both the
// natural and interrupted paths converge here, so the handler fires
// exactly once per Begin and always with the complete body.
func (a *Animator) finish(conversationID string, msg models.Message, terminal RevealState) {
	a.mu.Lock()
	a.state = terminal
	a.revealed = len(a.runes)
	a.ctrl = nil
	a.mu.Unlock()

	if a.onComplete != nil {
		a.onComplete(conversationID, msg)
	}

	a.mu.Lock()
	if a.state == terminal {
		a.state = RevealIdle
	}
	a.mu.Unlock()
}

func (a *Animator) stepDelay() time.Duration {
	if a.maxDelay <= a.minDelay {
		return a.minDelay
	}
	return a.minDelay + time.Duration(rand.Int63n(int64(a.maxDelay-a.minDelay)))
}
