// Package rest fetches the initial room state and registers users over the
// Sets HTTP API. Live updates arrive through the broker session instead.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Client provides REST API access to the Sets server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "http://localhost:8080/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// Register creates a new user profile.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	var resp model.User
	if err := c.post(ctx, "/users/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRoom returns the lobby view of a room. A missing room yields
// sets.ErrRoomNotFound.
func (c *Client) GetRoom(ctx context.Context, code string) (*model.RoomSnapshot, error) {
	return c.snapshot(ctx, "/rooms/", code)
}

// GetGame returns the in-game view of a room, hands included.
func (c *Client) GetGame(ctx context.Context, code string) (*model.RoomSnapshot, error) {
	return c.snapshot(ctx, "/rooms/game/", code)
}

func (c *Client) snapshot(ctx context.Context, prefix, code string) (*model.RoomSnapshot, error) {
	code, err := model.NormalizeRoomCode(code)
	if err != nil {
		return nil, err
	}
	var resp model.RoomSnapshot
	if err := c.get(ctx, prefix+url.PathEscape(code), &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, sets.WrapError(sets.ErrorRoomNotFound, "room "+code+" not found", err)
		}
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sets.WrapError(sets.ErrorConnection, "server not reachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			switch {
			case errResp.Message != "":
				apiErr.Message = errResp.Message
			case errResp.Error != "":
				apiErr.Message = errResp.Error
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return sets.WrapError(sets.ErrorSerialization, "unmarshal response", err)
		}
	}
	return nil
}
