package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/notifyd/internal/feed"
)

var (
	// ErrUnauthorized means the session credential was rejected.
	ErrUnauthorized = errors.New("backend: unauthorized")
)

const defaultTimeout = 15 * time.Second

// Client talks to the dashboard backend's notification endpoints. Every
// request carries the session credential as a bearer token. Callers treat
// both endpoints as best effort.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a backend client. A non-positive timeout falls back to the
// default.
func New(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *errorInfo      `json:"error,omitempty"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FetchNotifications performs the bulk fetch of all persisted notifications
// for the authenticated user, in the order the backend returns them.
func (c *Client) FetchNotifications(ctx context.Context) ([]feed.BulkRecord, error) {
	var records []feed.BulkRecord
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/notifications", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// MarkRead asks the backend to persist read state for one durable identity.
// The endpoint is idempotent on the backend side; repeated calls are
// harmless.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	path := "/api/v1/notifications/" + url.PathEscape(id) + "/read"
	return c.doJSON(ctx, http.MethodPost, path, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("backend: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend: %s %s: status %d: %s", method, path, resp.StatusCode, string(body))
	}

	// The backend envelopes every response, so a 2xx status alone is not
	// success: the envelope's success flag is checked even when the caller
	// wants no payload back.
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("backend: decoding response: %w", err)
	}
	if !env.Success {
		msg := "request failed"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return fmt.Errorf("backend: %s %s: %s", method, path, msg)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("backend: decoding payload: %w", err)
	}
	return nil
}
