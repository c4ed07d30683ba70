package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sparringhq/sparring/internal/models"
)

func TestListDebatesAttachesToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("token"); got != "secret" {
			t.Errorf("token header = %q, want secret", got)
		}
		if r.URL.Path != "/debates" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"debates": []models.Conversation{
				{ID: "d1", Title: "Remote work", Stance: models.StanceFor, LastActivityAt: time.Now().UTC()},
			},
		})
	}))
	defer ts.Close()

	c, err := New(ts.URL, "secret")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	debates, err := c.ListDebates(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(debates) != 1 || debates[0].ID != "d1" {
		t.Fatalf("unexpected debates: %+v", debates)
	}
}

func TestGetDebateIncludesStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/debates/d1" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"debate": map[string]interface{}{
				"id":    "d1",
				"title": "Remote work",
				"stream": []models.Message{
					{ID: "m1", Sender: models.SenderUser, Body: "Offices are obsolete"},
					{ID: "m2", Sender: models.SenderAI, Body: "Hallway conversations disagree"},
				},
			},
		})
	}))
	defer ts.Close()

	c, _ := New(ts.URL, "secret")
	debate, err := c.GetDebate(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if debate.ID != "d1" || len(debate.Stream) != 2 {
		t.Fatalf("unexpected debate: %+v", debate)
	}
}

func TestNon2xxBecomesTypedError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()

	c, _ := New(ts.URL, "")
	_, err := c.ListDebates(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
}

func TestUnsuccessfulDeleteIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "not yours",
		})
	}))
	defer ts.Close()

	c, _ := New(ts.URL, "secret")
	if err := c.DeleteDebate(context.Background(), "d1"); err == nil {
		t.Fatal("expected error for success=false")
	}
}

func TestCreateDebatePostsParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params CreateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode params: %v", err)
		}
		if params.Topic != "school uniforms" || params.AIInclination != "for" {
			t.Errorf("params = %+v", params)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"debate":  models.Conversation{ID: "d9", Title: "school uniforms"},
		})
	}))
	defer ts.Close()

	c, _ := New(ts.URL, "secret")
	conv, err := c.CreateDebate(context.Background(), CreateParams{
		Mood:          []string{"formal"},
		Topic:         "school uniforms",
		AIInclination: "for",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID != "d9" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}
