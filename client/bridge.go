package client

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sparringhq/sparring/internal/api"
	"github.com/sparringhq/sparring/internal/db"
	"github.com/sparringhq/sparring/internal/engine"
	"github.com/sparringhq/sparring/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge fans engine state out to browser UI connections over a local
// WebSocket and turns UI commands into engine calls.
type Bridge struct {
	engine    *engine.Engine
	db        *db.ClientDB
	uiClients map[*websocket.Conn]bool
	uiMu      sync.RWMutex
	broadcast chan []byte
}

// NewBridge creates a bridge and wires it into the engine's callbacks.
func NewBridge(eng *engine.Engine, conns *engine.Manager, database *db.ClientDB) *Bridge {
	b := &Bridge{
		engine:    eng,
		db:        database,
		uiClients: make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}

	eng.Stream().SetChangeHandler(func(conversationID string, messages []models.Message, force bool) {
		b.broadcastToUI(mustMarshal(map[string]interface{}{
			"type":            "messages",
			"conversation_id": conversationID,
			"stream":          messages,
			"scroll":          eng.Scroll().OnContentAppended(force),
		}))
	})

	eng.Reveal().SetStepHandler(func(conversationID string, prefix string) {
		b.broadcastToUI(mustMarshal(map[string]interface{}{
			"type":            "reveal",
			"conversation_id": conversationID,
			"prefix":          prefix,
			"scroll":          eng.Scroll().OnContentAppended(false),
		}))
	})

	eng.Typing().SetRemoteHandler(func(conversationID string, typing bool) {
		b.broadcastToUI(mustMarshal(map[string]interface{}{
			"type":            "typing",
			"conversation_id": conversationID,
			"typing":          typing,
		}))
	})

	eng.Directory().SetUpdateHandler(func(previews []models.Preview) {
		b.broadcastToUI(mustMarshal(map[string]interface{}{
			"type":          "conversations",
			"conversations": previews,
			"active":        eng.ActiveConversation(),
		}))
	})

	conns.SetStateHandler(func(kind engine.ChannelKind, conversationID string, state engine.State, reason string) {
		b.broadcastToUI(mustMarshal(map[string]interface{}{
			"type":            "connection",
			"channel":         kind,
			"conversation_id": conversationID,
			"state":           state,
			"reason":          reason,
		}))
	})

	eng.SetNoticeHandler(func(kind engine.NoticeKind, text string) {
		b.broadcastToUI(mustMarshal(map[string]interface{}{
			"type": "notice",
			"kind": kind,
			"text": text,
		}))
	})

	go b.runBroadcast()
	return b
}

func (b *Bridge) runBroadcast() {
	for data := range b.broadcast {
		var dead []*websocket.Conn
		b.uiMu.RLock()
		for conn := range b.uiClients {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				dead = append(dead, conn)
			}
		}
		b.uiMu.RUnlock()

		if len(dead) == 0 {
			continue
		}
		b.uiMu.Lock()
		for _, conn := range dead {
			conn.Close()
			delete(b.uiClients, conn)
		}
		b.uiMu.Unlock()
	}
}

func (b *Bridge) broadcastToUI(data []byte) {
	select {
	case b.broadcast <- data:
	default:
		// Drop if buffer full
	}
}

// HandleIndex serves the main client UI.
func (b *Bridge) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, "web/index.html")
}

// HandleWebSocket handles WebSocket connections from the browser UI.
func (b *Bridge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	b.uiMu.Lock()
	b.uiClients[conn] = true
	b.uiMu.Unlock()

	b.sendInitialState(conn)

	go b.handleUIMessages(conn)
}

func (b *Bridge) sendInitialState(conn *websocket.Conn) {
	previews := b.engine.Directory().Previews()
	if len(previews) == 0 && b.db != nil {
		// Offline sidebar from the local cache until a refresh lands.
		if cached, err := b.db.GetCachedConversations(); err == nil {
			for _, c := range cached {
				p := models.Preview{Conversation: c}
				if msgs, err := b.db.GetCachedMessages(c.ID, 1); err == nil && len(msgs) > 0 {
					p.LastMessage = msgs[0].Body
				}
				previews = append(previews, p)
			}
		}
	}
	conn.WriteJSON(map[string]interface{}{
		"type":          "conversations",
		"conversations": previews,
		"active":        b.engine.ActiveConversation(),
	})
	conn.WriteJSON(map[string]interface{}{
		"type":            "messages",
		"conversation_id": b.engine.ActiveConversation(),
		"stream":          b.engine.Stream().Messages(),
		"scroll":          true,
	})
}

func (b *Bridge) handleUIMessages(conn *websocket.Conn) {
	defer func() {
		b.uiMu.Lock()
		delete(b.uiClients, conn)
		b.uiMu.Unlock()
		conn.Close()
	}()

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("UI WebSocket error: %v", err)
			}
			return
		}

		b.handleUIMessage(conn, msg)
	}
}

func (b *Bridge) handleUIMessage(conn *websocket.Conn, msg map[string]interface{}) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case "select":
		id, _ := msg["conversation_id"].(string)
		if err := b.engine.Select(context.Background(), id); err != nil {
			b.sendError(conn, err)
		}

	case "send":
		body, _ := msg["body"].(string)
		if err := b.engine.Send(context.Background(), body); err != nil {
			b.sendError(conn, err)
		}

	case "input":
		b.engine.InputActivity()

	case "skip_reveal":
		b.engine.SkipReveal()

	case "metrics":
		var m engine.Metrics
		if raw, err := json.Marshal(msg["metrics"]); err == nil {
			json.Unmarshal(raw, &m)
		}
		b.engine.Scroll().UpdateMetrics(m)

	case "create":
		params := createParams(msg)
		if _, err := b.engine.CreateConversation(context.Background(), params); err != nil {
			b.sendError(conn, err)
		}

	case "delete":
		id, _ := msg["conversation_id"].(string)
		if id == "" {
			return
		}
		if err := b.engine.DeleteConversation(context.Background(), id); err != nil {
			b.sendError(conn, err)
		}

	case "refresh":
		if _, err := b.engine.Directory().Refresh(context.Background()); err != nil {
			b.sendError(conn, err)
		}
	}
}

func (b *Bridge) sendError(conn *websocket.Conn, err error) {
	conn.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": err.Error(),
	})
}

func createParams(msg map[string]interface{}) api.CreateParams {
	var params api.CreateParams
	params.Topic, _ = msg["topic"].(string)
	params.AIInclination, _ = msg["stance"].(string)
	if moods, ok := msg["mood"].([]interface{}); ok {
		for _, m := range moods {
			if s, ok := m.(string); ok {
				params.Mood = append(params.Mood, s)
			}
		}
	}
	return params
}

func mustMarshal(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
