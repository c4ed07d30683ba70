package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sparringhq/sparring/internal/models"
)

const (
	// DefaultTimeout is the default HTTP timeout used by the client.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client is a debate-server REST client. The auth token is attached to
// every request in the token header the server expects.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new client for the given server base URL.
func New(baseURL, token string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("api: http %d: %s", e.StatusCode, e.Body)
}

// CreateParams are the inputs for creating a debate.
type CreateParams struct {
	Mood          []string `json:"mood,omitempty"`
	Topic         string   `json:"topic"`
	AIInclination string   `json:"aiInclination"`
}

type listResponse struct {
	Success bool                  `json:"success"`
	Debates []models.Conversation `json:"debates"`
	Message string                `json:"message,omitempty"`
}

// Debate is a conversation together with its full message stream.
type Debate struct {
	models.Conversation
	Stream []models.Message `json:"stream"`
}

type debateResponse struct {
	Success bool   `json:"success"`
	Debate  Debate `json:"debate"`
	Message string `json:"message,omitempty"`
}

type createResponse struct {
	Success bool                `json:"success"`
	Debate  models.Conversation `json:"debate"`
	Message string              `json:"message,omitempty"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListDebates fetches all conversations for the authenticated user.
func (c *Client) ListDebates(ctx context.Context) ([]models.Conversation, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/debates", nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("list debates: %s", out.Message)
	}
	return out.Debates, nil
}

// GetDebate fetches one conversation and its full message stream.
func (c *Client) GetDebate(ctx context.Context, id string) (*Debate, error) {
	var out debateResponse
	if err := c.do(ctx, http.MethodGet, "/debates/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("get debate %s: %s", id, out.Message)
	}
	return &out.Debate, nil
}

// CreateDebate creates a new conversation.
func (c *Client) CreateDebate(ctx context.Context, params CreateParams) (*models.Conversation, error) {
	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/debates", params, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("create debate: %s", out.Message)
	}
	return &out.Debate, nil
}

// DeleteDebate deletes a conversation.
func (c *Client) DeleteDebate(ctx context.Context, id string) error {
	var out deleteResponse
	if err := c.do(ctx, http.MethodDelete, "/debates/"+url.PathEscape(id), nil, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("delete debate %s: %s", id, out.Message)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
