package urbit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Listen subscribes to graph-store updates and dispatches every inbound chat
// message to handler. It blocks until the context is canceled or the stream
// fails; a malformed frame is returned as a *DecodeError so the caller can
// reconnect the session and resume.
func (c *Client) Listen(ctx context.Context, handler func(Message)) error {
	c.mu.Lock()
	cookie, channelID := c.cookie, c.channelID
	c.mu.Unlock()
	if channelID == "" {
		return fmt.Errorf("urbit: no open channel")
	}

	err := c.putActions(ctx, []map[string]any{{
		"id":     c.nextSeq(),
		"action": "subscribe",
		"ship":   c.Ship,
		"app":    "graph-store",
		"path":   "/updates",
	}})
	if err != nil {
		return fmt.Errorf("urbit subscribe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.channelURL(channelID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cookie", cookie)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close event stream body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("urbit event stream: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var eventID, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(line[len("id:"):])
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimSpace(line[len("data:"):])
		case line == "":
			if data == "" {
				continue
			}
			if err := c.dispatch(ctx, eventID, data, handler); err != nil {
				return err
			}
			eventID, data = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("urbit event stream: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("urbit event stream closed by server")
}

// eventFrame is the envelope of one channel event.
type eventFrame struct {
	Response string          `json:"response"`
	JSON     json.RawMessage `json:"json"`
}

type graphUpdate struct {
	GraphUpdate struct {
		AddNodes struct {
			Resource struct {
				Ship string `json:"ship"`
				Name string `json:"name"`
			} `json:"resource"`
			Nodes map[string]struct {
				Post struct {
					Author   string `json:"author"`
					Contents []struct {
						Text string `json:"text"`
					} `json:"contents"`
				} `json:"post"`
			} `json:"nodes"`
		} `json:"add-nodes"`
	} `json:"graph-update-3"`
}

func (c *Client) dispatch(ctx context.Context, eventID, data string, handler func(Message)) error {
	if id, err := strconv.Atoi(eventID); err == nil {
		c.ack(ctx, id)
	}

	var frame eventFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return &DecodeError{Op: "event frame", Err: err}
	}
	if frame.Response != "diff" || len(frame.JSON) == 0 {
		return nil
	}
	var update graphUpdate
	if err := json.Unmarshal(frame.JSON, &update); err != nil {
		return &DecodeError{Op: "graph update", Err: err}
	}
	add := update.GraphUpdate.AddNodes
	if add.Resource.Name == "" || len(add.Nodes) == 0 {
		return nil
	}
	for _, node := range add.Nodes {
		var text strings.Builder
		for _, content := range node.Post.Contents {
			text.WriteString(content.Text)
		}
		if text.Len() == 0 {
			continue
		}
		author := strings.TrimPrefix(node.Post.Author, "~")
		// Skip echoes of our own posts.
		if author == c.Ship {
			continue
		}
		handler(Message{
			Author:       author,
			HostShip:     add.Resource.Ship,
			ResourceName: add.Resource.Name,
			Text:         text.String(),
		})
	}
	return nil
}

// ack acknowledges a received event so the ship can release it.
func (c *Client) ack(ctx context.Context, id int) {
	err := c.putActions(ctx, []map[string]any{{
		"id":       c.nextSeq(),
		"action":   "ack",
		"event-id": id,
	}})
	if err != nil {
		slog.Debug("urbit event ack failed", slog.Int("event_id", id), slog.Any("err", err))
	}
}
