// Package api implements the Open Rooms Chat HTTP API client. It covers
// guest authentication, room listing and joining, forward and backfill
// message fetches, sending, and read-receipt acknowledgment. The sync
// engine consumes it through its Fetcher and Sender interfaces.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openrooms/chat-client/internal/protocol"
)

// DefaultTimeout bounds each request, matching the original client's 15s
// request timeout.
const DefaultTimeout = 15 * time.Second

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client with
	// DefaultTimeout is used.
	HTTPClient *http.Client
	// Logger is used for request-level debug logging.
	Logger zerolog.Logger
}

// Client is an Open Rooms Chat API client. It is safe for concurrent use;
// the bearer token is guarded for the login-then-poll handoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the given server.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		log:        cfg.Logger,
	}, nil
}

// SetToken installs the bearer token used for authenticated requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token, or empty if not logged in.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// doRequest performs one JSON round trip. Non-2xx responses are decoded
// into *Error when the body carries the server's error envelope.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any, headers http.Header) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var envelope protocol.ErrorEnvelope
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		c.log.Debug().Str("method", method).Str("path", path).
			Int("status", resp.StatusCode).Str("code", apiErr.Code).Msg("request failed")
		return nil, apiErr
	}
	return data, nil
}

// GuestLogin authenticates as a guest and installs the returned token.
func (c *Client) GuestLogin(ctx context.Context) (*protocol.AuthResponse, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/auth/guest", nil, struct{}{}, nil)
	if err != nil {
		return nil, err
	}
	var auth protocol.AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("api: decode auth response: %w", err)
	}
	c.SetToken(auth.AccessToken)
	return &auth, nil
}

// Capabilities fetches the server's advertised feature set.
func (c *Client) Capabilities(ctx context.Context) (*protocol.Capabilities, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/meta/capabilities", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	var caps protocol.Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("api: decode capabilities: %w", err)
	}
	return &caps, nil
}

// MyRooms lists the rooms the authenticated user is a member of.
func (c *Client) MyRooms(ctx context.Context, limit int, cursor string) (*protocol.RoomPage, error) {
	query := url.Values{"mine": {"true"}, "limit": {strconv.Itoa(limit)}}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/rooms", query, nil, nil)
	if err != nil {
		return nil, err
	}
	var page protocol.RoomPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("api: decode room page: %w", err)
	}
	return &page, nil
}

// DirectoryRooms searches the public room directory.
func (c *Client) DirectoryRooms(ctx context.Context, q string, limit int, cursor string) (*protocol.RoomPage, error) {
	query := url.Values{"q": {q}, "limit": {strconv.Itoa(limit)}}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/directory/rooms", query, nil, nil)
	if err != nil {
		return nil, err
	}
	var page protocol.RoomPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("api: decode directory page: %w", err)
	}
	return &page, nil
}

// JoinRoom joins a public room by ID.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/join", nil, struct{}{}, nil)
	return err
}

// FetchForward polls for messages at or after fromSeq in ascending order.
// fromSeq <= 0 omits the from_seq parameter, letting the server pick its
// default start point.
func (c *Client) FetchForward(ctx context.Context, roomID string, fromSeq int64, limit int) (*protocol.MessagePage, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if fromSeq > 0 {
		query.Set("from_seq", strconv.FormatInt(fromSeq, 10))
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", query, nil, nil)
	if err != nil {
		return nil, err
	}
	var page protocol.MessagePage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("api: decode message page: %w", err)
	}
	return &page, nil
}

// FetchBackward fetches the history page before beforeSeq in descending
// order. beforeSeq <= 0 asks for the most recent page.
func (c *Client) FetchBackward(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]protocol.Message, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if beforeSeq > 0 {
		query.Set("before_seq", strconv.FormatInt(beforeSeq, 10))
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages/backfill", query, nil, nil)
	if err != nil {
		return nil, err
	}
	var page protocol.BackfillPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("api: decode backfill page: %w", err)
	}
	return page.Messages, nil
}

// SendMessage posts text to a room and returns the created message. Each
// send carries a fresh UUID Idempotency-Key so a retried request cannot
// double-post.
func (c *Client) SendMessage(ctx context.Context, roomID, text string) (*protocol.Message, error) {
	body := protocol.SendRequest{Text: text, ContentType: "text/markdown"}
	headers := http.Header{"Idempotency-Key": {uuid.NewString()}}
	data, err := c.doRequest(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, body, headers)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeSentMessage(data)
}

// Acknowledge reports seq as the highest read sequence for the room.
func (c *Client) Acknowledge(ctx context.Context, roomID string, seq int64) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/ack", nil, protocol.AckRequest{Seq: seq}, nil)
	return err
}
