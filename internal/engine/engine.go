package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/sparringhq/sparring/internal/api"
	"github.com/sparringhq/sparring/internal/db"
	"github.com/sparringhq/sparring/internal/models"
	"github.com/sparringhq/sparring/internal/protocol"
)

// NoticeKind classifies user-visible failures.
type NoticeKind string

const (
	NoticeConnectionError NoticeKind = "connection_error"
	NoticeSendFailure     NoticeKind = "send_failure"
	NoticeFetchError      NoticeKind = "fetch_error"
	NoticeStreamError     NoticeKind = "stream_error"
)

// NoticeHandler surfaces failures as inline banners/alerts in the UI.
type NoticeHandler func(kind NoticeKind, text string)

// Engine is the coordinator for the real-time conversation sync engine.
// It owns the single active-conversation id and drives channel teardown
// and setup whenever it changes: the previous session channel is always
// detached and closed before the next one is opened, so stream events
// for a stale conversation id are never applied.
type Engine struct {
	api   *api.Client
	conns *Manager
	cache *db.ClientDB

	stream    *Stream
	typing    *Typing
	reveal    *Animator
	scroll    *ScrollPolicy
	directory *Directory

	mu          sync.Mutex
	activeID    string
	directoryCh *Channel
	sessionCh   *Channel

	onNotice NoticeHandler
}

// New wires up an engine from its collaborators. cache may be nil.
func New(apiClient *api.Client, conns *Manager, cache *db.ClientDB) *Engine {
	e := &Engine{
		api:       apiClient,
		conns:     conns,
		cache:     cache,
		stream:    NewStream(),
		reveal:    NewAnimator(),
		scroll:    NewScrollPolicy(),
		directory: NewDirectory(apiClient, cache),
	}
	e.typing = NewTyping(e.emitTyping)
	e.stream.SetRevealHandler(e.beginReveal)
	e.reveal.SetCompleteHandler(e.revealComplete)
	return e
}

// Stream returns the message stream.
func (e *Engine) Stream() *Stream { return e.stream }

// Typing returns the typing coordinator.
func (e *Engine) Typing() *Typing { return e.typing }

// Reveal returns the reveal animator.
func (e *Engine) Reveal() *Animator { return e.reveal }

// Scroll returns the scroll policy.
func (e *Engine) Scroll() *ScrollPolicy { return e.scroll }

// Directory returns the conversation directory.
func (e *Engine) Directory() *Directory { return e.directory }

// SetNoticeHandler sets the user-visible failure callback.
func (e *Engine) SetNoticeHandler(handler NoticeHandler) {
	e.onNotice = handler
}

// ActiveConversation returns the currently selected conversation id.
func (e *Engine) ActiveConversation() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// Start opens the long-lived directory channel and performs the initial
// directory refresh. When the list is non-empty the most recent
// conversation is selected automatically.
func (e *Engine) Start(ctx context.Context) error {
	ch, err := e.conns.ConnectDirectory(ctx)
	if err != nil {
		e.notice(NoticeConnectionError, err.Error())
		return err
	}
	e.mu.Lock()
	e.directoryCh = ch
	e.mu.Unlock()
	go e.directoryLoop(ch)

	convs, err := e.directory.Refresh(ctx)
	if err != nil {
		log.Printf("initial directory refresh failed: %v", err)
		return nil
	}
	if len(convs) > 0 {
		if err := e.Select(ctx, convs[0].ID); err != nil {
			log.Printf("auto-select failed: %v", err)
		}
	}
	return nil
}

// Select makes a conversation active. The previous session channel is
// torn down first, any in-flight reveal is canceled, and typing state
// resets; then the history snapshot is fetched and a fresh session
// channel is joined. An empty id clears the selection.
func (e *Engine) Select(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	if e.activeID == conversationID {
		e.mu.Unlock()
		return nil
	}
	e.activeID = conversationID
	old := e.sessionCh
	e.sessionCh = nil
	e.mu.Unlock()

	e.reveal.Cancel()
	e.typing.Reset(conversationID)
	if old != nil {
		e.conns.Disconnect(old)
	}
	e.stream.Reset(conversationID)

	if conversationID == "" {
		return nil
	}

	debate, err := e.api.GetDebate(ctx, conversationID)
	if err != nil {
		e.notice(NoticeFetchError, fmt.Sprintf("could not load conversation: %v", err))
		log.Printf("history fetch for %s failed: %v", conversationID, err)
	} else {
		e.stream.LoadHistory(conversationID, debate.Stream)
	}

	ch, err := e.conns.ConnectSession(ctx, conversationID)
	if err != nil {
		e.notice(NoticeConnectionError, err.Error())
		return err
	}

	e.mu.Lock()
	if e.activeID != conversationID {
		// Selection moved on while we were connecting.
		e.mu.Unlock()
		ch.Close()
		return nil
	}
	e.sessionCh = ch
	e.mu.Unlock()

	go e.sessionLoop(ch)
	return nil
}

// Send posts a message to the active conversation. The entry appears
// optimistically before the send is issued; if the send itself fails
// the entry is rolled back and a failure notice raised. Confirmation
// arrives via the next snapshot push.
func (e *Engine) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	e.mu.Lock()
	id := e.activeID
	ch := e.sessionCh
	e.mu.Unlock()

	if id == "" {
		return fmt.Errorf("no active conversation")
	}
	if ch == nil || ch.State() != StateConnected {
		return fmt.Errorf("session channel not connected")
	}

	msg, key := e.stream.SendOptimistic(body)

	conv, ok := e.directory.Get(id)
	if !ok {
		debate, err := e.api.GetDebate(ctx, id)
		if err != nil {
			e.stream.Rollback(key)
			e.notice(NoticeSendFailure, fmt.Sprintf("message not sent: %v", err))
			return fmt.Errorf("failed to load conversation details: %w", err)
		}
		conv = debate.Conversation
	}

	event := protocol.DebateMessageEvent{
		DebateID:       id,
		Msg:            strings.ReplaceAll(msg.Body, "\n", "<br>"),
		Mood:           conv.MoodTags,
		Topic:          conv.TopicSummary,
		Stand:          string(conv.Stance),
		CorrelationKey: key,
	}
	if err := ch.SendEvent(protocol.TypeDebateMessage, event); err != nil {
		e.stream.Rollback(key)
		e.notice(NoticeSendFailure, fmt.Sprintf("message not sent: %v", err))
		return err
	}

	// Nudge other clients' sidebars.
	e.nudgeDirectory(protocol.TypeChatUpdated)
	return nil
}

// CreateConversation creates a debate and nudges other clients'
// directory channels.
func (e *Engine) CreateConversation(ctx context.Context, params api.CreateParams) (*models.Conversation, error) {
	conv, err := e.directory.Create(ctx, params)
	if err != nil {
		e.notice(NoticeFetchError, err.Error())
		return nil, err
	}
	e.nudgeDirectory(protocol.TypeChatCreated)
	return conv, nil
}

// DeleteConversation deletes a debate. Deleting the active conversation
// clears the selection and the stream.
func (e *Engine) DeleteConversation(ctx context.Context, id string) error {
	if err := e.directory.Delete(ctx, id); err != nil {
		e.notice(NoticeFetchError, err.Error())
		return err
	}
	if e.ActiveConversation() == id {
		if err := e.Select(ctx, ""); err != nil {
			log.Printf("clearing selection failed: %v", err)
		}
	}
	e.nudgeDirectory(protocol.TypeChatDeleted)
	return nil
}

func (e *Engine) nudgeDirectory(eventType protocol.EventType) {
	e.mu.Lock()
	dir := e.directoryCh
	e.mu.Unlock()
	if dir == nil {
		return
	}
	if err := dir.SendEvent(eventType, nil); err != nil {
		log.Printf("%s nudge failed: %v", eventType, err)
	}
}

// InputActivity records a local keystroke for the typing coordinator.
func (e *Engine) InputActivity() {
	e.typing.OnLocalInput()
}

// SkipReveal short-circuits the in-flight reveal, if any.
func (e *Engine) SkipReveal() {
	e.reveal.Interrupt()
}

// Close tears down both channels and any in-flight reveal.
func (e *Engine) Close() {
	e.mu.Lock()
	session := e.sessionCh
	dir := e.directoryCh
	e.sessionCh = nil
	e.directoryCh = nil
	e.activeID = ""
	e.mu.Unlock()

	e.reveal.Cancel()
	e.typing.Reset("")
	if session != nil {
		session.Close()
	}
	if dir != nil {
		dir.Close()
	}
}

func (e *Engine) emitTyping(conversationID string, typing bool) {
	e.mu.Lock()
	ch := e.sessionCh
	e.mu.Unlock()
	if ch == nil || ch.State() != StateConnected || ch.ConversationID() != conversationID {
		return
	}

	eventType := protocol.TypeTyping
	if !typing {
		eventType = protocol.TypeStopTyping
	}
	if err := ch.SendEvent(eventType, protocol.TypingEvent{DebateID: conversationID}); err != nil {
		log.Printf("typing signal failed: %v", err)
	}
}

func (e *Engine) beginReveal(conversationID string, msg models.Message) {
	if err := e.reveal.Begin(conversationID, msg); err == ErrRevealActive {
		e.reveal.Interrupt()
		if err := e.reveal.Begin(conversationID, msg); err != nil {
			log.Printf("reveal begin failed: %v", err)
		}
	}
}

func (e *Engine) revealComplete(conversationID string, msg models.Message) {
	e.stream.AppendConfirmed(conversationID, msg)
	if e.cache != nil && msg.ID != "" {
		if err := e.cache.CacheMessage(conversationID, msg); err != nil {
			log.Printf("failed to cache revealed message: %v", err)
		}
	}
}

// isCurrentSession reports whether the channel is still the active one.
func (e *Engine) isCurrentSession(ch *Channel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionCh == ch && e.activeID == ch.ConversationID()
}

func (e *Engine) sessionLoop(ch *Channel) {
	for env := range ch.Events() {
		if !e.isCurrentSession(ch) {
			continue
		}

		switch env.Type {
		case protocol.TypeMessages:
			var ev protocol.MessagesEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				log.Printf("failed to parse messages event: %v", err)
				continue
			}
			if ev.DebateID == "" {
				ev.DebateID = ch.ConversationID()
			}
			seq := ev.Seq
			if seq == 0 {
				seq = ch.NextArrival()
			}
			e.stream.ApplyPush(ev.DebateID, seq, ev.Stream)
			e.cacheConfirmed(ev.DebateID, ev.Stream)

		case protocol.TypeTyping:
			e.typing.OnRemoteTyping(true)

		case protocol.TypeStopTyping:
			e.typing.OnRemoteTyping(false)

		case protocol.TypeError:
			var ev protocol.ErrorEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				ev.Reason = "unknown stream error"
			}
			log.Printf("stream error: %s", ev.Reason)
			e.notice(NoticeStreamError, ev.Reason)

		case protocol.TypeMessageFailed:
			var ev protocol.MessageFailedEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				ev.Reason = "message rejected"
			}
			if ev.CorrelationKey != "" {
				e.stream.Rollback(ev.CorrelationKey)
			} else {
				e.stream.RollbackLatest()
			}
			e.notice(NoticeSendFailure, ev.Reason)
		}
	}
}

func (e *Engine) directoryLoop(ch *Channel) {
	for env := range ch.Events() {
		switch env.Type {
		case protocol.TypeChatCreated, protocol.TypeChatUpdated, protocol.TypeChatDeleted:
			if _, err := e.directory.Refresh(context.Background()); err != nil {
				log.Printf("directory refresh failed: %v", err)
			}
		}
	}
}

func (e *Engine) cacheConfirmed(conversationID string, msgs []models.Message) {
	if e.cache == nil {
		return
	}
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if err := e.cache.CacheMessage(conversationID, m); err != nil {
			log.Printf("failed to cache message %s: %v", m.ID, err)
			return
		}
	}
}

func (e *Engine) notice(kind NoticeKind, text string) {
	if e.onNotice != nil {
		e.onNotice(kind, text)
	}
}
