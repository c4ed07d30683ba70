package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sparringhq/sparring/internal/api"
	"github.com/sparringhq/sparring/internal/db"
	"github.com/sparringhq/sparring/internal/models"
)

// DirectoryHandler is notified with the freshly sorted sidebar previews
// after every refresh.
type DirectoryHandler func(previews []models.Preview)

// Directory maintains the ordered conversation list. Directory-channel
// push events trigger a full refresh rather than incremental patching.
type Directory struct {
	mu            sync.Mutex
	api           *api.Client
	cache         *db.ClientDB
	conversations []models.Conversation

	onUpdate DirectoryHandler
}

// NewDirectory creates a directory backed by the REST client. cache may
// be nil; when present, refreshed lists are persisted for offline
// sidebar rendering.
func NewDirectory(apiClient *api.Client, cache *db.ClientDB) *Directory {
	return &Directory{
		api:   apiClient,
		cache: cache,
	}
}

// SetUpdateHandler sets the sidebar refresh callback.
func (d *Directory) SetUpdateHandler(handler DirectoryHandler) {
	d.onUpdate = handler
}

// Refresh refetches the conversation list and re-sorts it by most
// recent activity, descending; ties keep arrival order.
func (d *Directory) Refresh(ctx context.Context) ([]models.Conversation, error) {
	convs, err := d.api.ListDebates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh conversations: %w", err)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
	})

	d.mu.Lock()
	d.conversations = convs
	d.mu.Unlock()

	if d.cache != nil {
		if err := d.cache.CacheConversations(convs); err != nil {
			log.Printf("failed to cache conversations: %v", err)
		}
	}

	d.notify()
	return d.Conversations(), nil
}

// Create creates a conversation and refreshes the list.
func (d *Directory) Create(ctx context.Context, params api.CreateParams) (*models.Conversation, error) {
	conv, err := d.api.CreateDebate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if _, err := d.Refresh(ctx); err != nil {
		log.Printf("refresh after create failed: %v", err)
	}
	return conv, nil
}

// Delete deletes a conversation and refreshes the list.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if err := d.api.DeleteDebate(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if _, err := d.Refresh(ctx); err != nil {
		log.Printf("refresh after delete failed: %v", err)
	}
	return nil
}

// Conversations returns a copy of the current sorted list.
func (d *Directory) Conversations() []models.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Conversation, len(d.conversations))
	copy(out, d.conversations)
	return out
}

// Get returns the conversation with the given id, if listed.
func (d *Directory) Get(id string) (models.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return models.Conversation{}, false
}

// Previews returns the sidebar view of the current list: each
// conversation with its humanized last-activity time.
func (d *Directory) Previews() []models.Preview {
	d.mu.Lock()
	defer d.mu.Unlock()
	previews := make([]models.Preview, len(d.conversations))
	for i, c := range d.conversations {
		previews[i] = models.Preview{
			Conversation: c,
			RelativeTime: humanize.Time(c.LastActivityAt),
		}
		if d.cache != nil {
			if msgs, err := d.cache.GetCachedMessages(c.ID, 1); err == nil && len(msgs) > 0 {
				previews[i].LastMessage = msgs[0].Body
			}
		}
	}
	return previews
}

func (d *Directory) notify() {
	if d.onUpdate != nil {
		d.onUpdate(d.Previews())
	}
}
