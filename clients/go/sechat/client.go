// Package sechat provides a client for the SeChat counseling relay: the
// HTTP API, the realtime subscription and the viewer-side message
// reconciliation.
package sechat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a SeChat API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	// SessionID identifies the joined participant; sent as X-Session-ID.
	SessionID string
	// AdminToken authenticates admin calls.
	AdminToken string
}

// NewClient creates a new client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("SECHAT_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".sechat")
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Dialer:     websocket.DefaultDialer,
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sechat error %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status of an APIError, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// doRequest performs a JSON request and decodes the response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.SessionID != "" {
		req.Header.Set("X-Session-ID", c.SessionID)
	}
	if c.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Participant is a joined counselor or client.
type Participant struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Room is a room's status as reported by the server.
type Room struct {
	ID           string        `json:"id"`
	Code         string        `json:"code"`
	AdminLabel   string        `json:"admin_label"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

// Active reports whether the room still accepts messages.
func (r *Room) Active() bool {
	return r.Status == "active"
}

// JoinResult is the session granted by Join.
type JoinResult struct {
	RoomID      string `json:"roomId"`
	SessionID   string `json:"sessionId"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
	Reentry     bool   `json:"reentry"`
}

// Join enters a room by code. The session is kept on the client.
func (c *Client) Join(ctx context.Context, code, role, displayName string) (*JoinResult, error) {
	var res JoinResult
	_, err := c.doRequest(ctx, http.MethodPost, "/join", map[string]string{
		"code": code, "role": role, "displayName": displayName,
	}, &res)
	if err != nil {
		return nil, err
	}
	c.SessionID = res.SessionID
	return &res, nil
}

// Leave posts the departure notice of the current session.
func (c *Client) Leave(ctx context.Context, roomID, role string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/leave", map[string]string{
		"role": role,
	}, nil)
	return err
}

// RoomInfo fetches a room's status and participants.
func (c *Client) RoomInfo(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if _, err := c.doRequest(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/info", nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListMessages fetches every committed message of a room in ascending order.
func (c *Client) ListMessages(ctx context.Context, roomID string) ([]Message, error) {
	var msgs []Message
	if _, err := c.doRequest(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SubmitRequest is the body of a message submission.
type SubmitRequest struct {
	SenderRole      string `json:"senderRole"`
	SenderName      string `json:"senderName"`
	Content         string `json:"content"`
	SessionID       string `json:"sessionId,omitempty"`
	ClientMessageID string `json:"clientMessageId"`
}

// SubmitResult is the committed row. Created is false for a replay of an
// already committed key.
type SubmitResult struct {
	Message Message
	Created bool
}

// SubmitMessage sends a message. Retrying with the same ClientMessageID
// never creates a second row.
func (c *Client) SubmitMessage(ctx context.Context, roomID string, req SubmitRequest) (*SubmitResult, error) {
	if req.SessionID == "" {
		req.SessionID = c.SessionID
	}
	var msg Message
	status, err := c.doRequest(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", req, &msg)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Message: msg, Created: status == http.StatusCreated}, nil
}

// Login authenticates as admin and keeps the token on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var res struct {
		Token string `json:"token"`
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": password,
	}, &res); err != nil {
		return err
	}
	c.AdminToken = res.Token
	return nil
}

// CreateRoom opens a new room (admin).
func (c *Client) CreateRoom(ctx context.Context, adminLabel string) (*Room, error) {
	var room Room
	if _, err := c.doRequest(ctx, http.MethodPost, "/rooms", map[string]string{"adminLabel": adminLabel}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// CloseRoom closes a room (admin).
func (c *Client) CloseRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if _, err := c.doRequest(ctx, http.MethodPatch, "/rooms/"+url.PathEscape(roomID), map[string]string{"status": "closed"}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if _, err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Config is the joined session persisted between CLI invocations.
type Config struct {
	BaseURL     string `json:"base_url"`
	RoomID      string `json:"room_id"`
	SessionID   string `json:"session_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	AdminToken  string `json:"admin_token,omitempty"`
}

// LoadConfig loads the saved session from disk.
func (c *Client) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	c.SessionID = cfg.SessionID
	if cfg.AdminToken != "" {
		c.AdminToken = cfg.AdminToken
	}
	return &cfg, nil
}

// SaveConfig saves the session to disk.
func (c *Client) SaveConfig(cfg *Config) error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}
