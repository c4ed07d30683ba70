package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sparringhq/sparring/internal/models"
)

// ClientDB handles client-side database operations: the stored
// credential, preferences, and a cache of conversation summaries and
// confirmed messages for offline sidebar rendering.
type ClientDB struct {
	db *sql.DB
}

// NewClientDB opens or creates the client database.
func NewClientDB(path string) (*ClientDB, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cdb := &ClientDB{db: db}
	if err := cdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (c *ClientDB) Close() error {
	return c.db.Close()
}

func (c *ClientDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			server_url TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			stored_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cached_conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			topic_summary TEXT NOT NULL,
			mood_tags TEXT NOT NULL,
			stance TEXT NOT NULL,
			last_activity DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cached_messages (
			conversation_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at DATETIME NOT NULL,
			PRIMARY KEY (conversation_id, message_id)
		);

		CREATE INDEX IF NOT EXISTS idx_cached_messages_conversation
			ON cached_messages(conversation_id, sent_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// SetCredential stores the auth token for a server.
func (c *ClientDB) SetCredential(serverURL, token string) error {
	_, err := c.db.Exec(`
		INSERT INTO credentials (server_url, token, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(server_url) DO UPDATE SET
			token = excluded.token,
			stored_at = excluded.stored_at
	`, serverURL, token, time.Now().UTC())
	return err
}

// GetCredential retrieves the stored auth token for a server.
// Returns empty string if none is stored.
func (c *ClientDB) GetCredential(serverURL string) (string, error) {
	var token string
	err := c.db.QueryRow(`SELECT token FROM credentials WHERE server_url = ?`, serverURL).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return token, err
}

// GetPreference retrieves a preference value.
func (c *ClientDB) GetPreference(key string) (string, error) {
	var value string
	err := c.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetPreference sets a preference value.
func (c *ClientDB) SetPreference(key, value string) error {
	_, err := c.db.Exec(`
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// CacheConversations replaces the cached conversation list.
func (c *ClientDB) CacheConversations(convs []models.Conversation) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cached_conversations`); err != nil {
		return err
	}
	for _, conv := range convs {
		_, err := tx.Exec(`
			INSERT INTO cached_conversations (id, title, topic_summary, mood_tags, stance, last_activity)
			VALUES (?, ?, ?, ?, ?, ?)
		`, conv.ID, conv.Title, conv.TopicSummary, strings.Join(conv.MoodTags, ","), string(conv.Stance), conv.LastActivityAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetCachedConversations returns cached conversations, most recent first.
func (c *ClientDB) GetCachedConversations() ([]models.Conversation, error) {
	rows, err := c.db.Query(`
		SELECT id, title, topic_summary, mood_tags, stance, last_activity
		FROM cached_conversations ORDER BY last_activity DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var tags, stance string
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.TopicSummary, &tags, &stance, &conv.LastActivityAt); err != nil {
			return nil, err
		}
		if tags != "" {
			conv.MoodTags = strings.Split(tags, ",")
		}
		conv.Stance = models.Stance(stance)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CacheMessage caches a confirmed message locally.
func (c *ClientDB) CacheMessage(conversationID string, msg models.Message) error {
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO cached_messages
			(conversation_id, message_id, sender, body, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, conversationID, msg.ID, string(msg.Sender), msg.Body, msg.SentAt)
	return err
}

// GetCachedMessages retrieves cached messages for a conversation in
// chronological order.
func (c *ClientDB) GetCachedMessages(conversationID string, limit int) ([]models.Message, error) {
	rows, err := c.db.Query(`
		SELECT message_id, sender, body, sent_at
		FROM cached_messages
		WHERE conversation_id = ?
		ORDER BY sent_at DESC LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var sender string
		if err := rows.Scan(&m.ID, &sender, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		m.Sender = models.Sender(sender)
		m.DeliveryState = models.DeliveryConfirmed
		messages = append(messages, m)
	}
	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, rows.Err()
}

// ClearCachedMessages clears cached messages for a conversation.
func (c *ClientDB) ClearCachedMessages(conversationID string) error {
	_, err := c.db.Exec(`DELETE FROM cached_messages WHERE conversation_id = ?`, conversationID)
	return err
}
