// Package urbit contains a minimal airlock client for an Urbit ship's HTTP
// API: code-based login, channel pokes for posting graph messages, and an SSE
// event stream for receiving them.
package urbit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DecodeError reports a malformed payload on the Urbit side, either in an
// event stream frame or in a response body. It is the recoverable failure
// class that triggers a session reconnect.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("urbit: decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Message is one inbound chat message from a graph resource.
type Message struct {
	Author       string
	HostShip     string
	ResourceName string
	Text         string
}

// Client talks to one ship. It is safe for concurrent use; a reconnect swaps
// the session state (cookie + channel) under the lock.
type Client struct {
	URL        string // e.g. http://localhost:8080
	Ship       string // client ship name without leading sig
	Code       string // +code of the client ship
	HTTPClient *http.Client

	mu        sync.Mutex
	cookie    string
	channelID string
	eventSeq  int
}

// NewClient returns an unconnected client for the given ship.
func NewClient(shipURL, ship, code string) *Client {
	return &Client{
		URL:  strings.TrimRight(shipURL, "/"),
		Ship: strings.TrimPrefix(ship, "~"),
		Code: code,
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Connect logs in with the ship's code and opens a fresh channel by poking
// hood. Safe to call again after Close or a failed session.
func (c *Client) Connect(ctx context.Context) error {
	form := url.Values{}
	form.Set("password", c.Code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/~/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("urbit login: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("urbit login: unexpected status %d", resp.StatusCode)
	}
	var cookie string
	for _, ck := range resp.Cookies() {
		if strings.HasPrefix(ck.Name, "urbauth") {
			cookie = ck.Name + "=" + ck.Value
			break
		}
	}
	if cookie == "" {
		return fmt.Errorf("urbit login: no urbauth cookie in response")
	}

	channelID := fmt.Sprintf("%d-%s", time.Now().Unix(), uuid.New().String()[:8])

	c.mu.Lock()
	c.cookie = cookie
	c.channelID = channelID
	c.eventSeq = 0
	c.mu.Unlock()

	// Opening poke: a helm-hi establishes the channel on the ship.
	err = c.putActions(ctx, []map[string]any{{
		"id":     c.nextSeq(),
		"action": "poke",
		"ship":   c.Ship,
		"app":    "hood",
		"mark":   "helm-hi",
		"json":   "opening airlock",
	}})
	if err != nil {
		return fmt.Errorf("urbit open channel: %w", err)
	}
	slog.Info("urbit session established", slog.String("ship", c.Ship), slog.String("channel", channelID))
	return nil
}

// PostMessage posts a text message to a graph resource owned by resourceShip.
func (c *Client) PostMessage(ctx context.Context, resourceShip, resourceName, text string) error {
	now := time.Now().UnixMilli()
	index := fmt.Sprintf("/%d", now)
	node := map[string]any{
		"post": map[string]any{
			"author":     "~" + c.Ship,
			"index":      index,
			"time-sent":  now,
			"contents":   []map[string]any{{"text": text}},
			"hash":       nil,
			"signatures": []any{},
		},
		"children": nil,
	}
	update := map[string]any{
		"add-nodes": map[string]any{
			"resource": map[string]any{
				"ship": strings.TrimPrefix(resourceShip, "~"),
				"name": resourceName,
			},
			"nodes": map[string]any{index: node},
		},
	}
	return c.putActions(ctx, []map[string]any{{
		"id":     c.nextSeq(),
		"action": "poke",
		"ship":   c.Ship,
		"app":    "graph-push-hook",
		"mark":   "graph-update-3",
		"json":   map[string]any{"graph-update-3": update},
	}})
}

// Reconnect tears the session down and establishes a new one. Used when the
// event stream or a send hits a decode failure.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Close(ctx)
	return c.Connect(ctx)
}

// Close deletes the server-side channel. Best effort; errors are logged.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	open := c.channelID != ""
	c.mu.Unlock()
	if !open {
		return
	}
	err := c.putActions(ctx, []map[string]any{{
		"id":     c.nextSeq(),
		"action": "delete",
	}})
	if err != nil {
		slog.Warn("urbit channel delete failed", slog.Any("err", err))
	}
	c.mu.Lock()
	c.channelID = ""
	c.mu.Unlock()
}

// putActions sends a JSON action batch to the session channel.
func (c *Client) putActions(ctx context.Context, actions []map[string]any) error {
	c.mu.Lock()
	cookie, channelID := c.cookie, c.channelID
	c.mu.Unlock()
	if channelID == "" {
		return fmt.Errorf("urbit: no open channel")
	}

	body, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.channelURL(channelID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", cookie)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("urbit channel put: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) channelURL(channelID string) string {
	return c.URL + "/~/channel/" + channelID
}

func (c *Client) nextSeq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventSeq++
	return c.eventSeq
}
