package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Adapter delivers one message to one endpoint.
type Adapter interface {
	Name() string
	Send(ctx context.Context, endpoint, secret string, msg Message) error
}

type httpClient struct {
	inner *http.Client
}

func newHTTPClient(timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpClient{inner: &http.Client{Timeout: timeout}}
}

func (c *httpClient) postJSON(ctx context.Context, endpoint string, headers map[string]string, raw []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.inner.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("push failed with status %d", resp.StatusCode)
}

type discordAdapter struct {
	client *httpClient
}

func (a *discordAdapter) Name() string { return "discord" }

func (a *discordAdapter) Send(ctx context.Context, endpoint, _ string, msg Message) error {
	type embedField struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline"`
	}
	fields := make([]embedField, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	embed := map[string]any{
		"title":       msg.Title,
		"description": msg.Description,
		"fields":      fields,
		"color":       msg.Color,
	}
	if msg.Timestamp != "" {
		embed["timestamp"] = msg.Timestamp
	}
	if msg.Footer != "" {
		embed["footer"] = map[string]string{"text": msg.Footer}
	}
	raw, err := json.Marshal(map[string]any{
		"content": msg.Content,
		"embeds":  []map[string]any{embed},
	})
	if err != nil {
		return err
	}
	return a.client.postJSON(ctx, endpoint, nil, raw)
}

// webhookAdapter posts the flattened event as plain JSON. With a secret the
// body is signed into X-Arena-Signature as hex HMAC-SHA256.
type webhookAdapter struct {
	client *httpClient
}

type webhookBody struct {
	Event     string `json:"event"`
	RoomID    string `json:"room_id"`
	GameType  string `json:"game_type,omitempty"`
	Level     string `json:"level,omitempty"`
	MatchID   string `json:"match_id,omitempty"`
	WinnerID  string `json:"winner_id,omitempty"`
	Draw      bool   `json:"draw,omitempty"`
	PrizePool int64  `json:"prize_pool,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Summary   string `json:"summary"`
	ServerTS  int64  `json:"server_ts"`
}

func (a *webhookAdapter) Name() string { return "webhook" }

func (a *webhookAdapter) Send(ctx context.Context, endpoint, secret string, msg Message) error {
	ev := msg.Event
	raw, err := json.Marshal(webhookBody{
		Event:     ev.Type,
		RoomID:    ev.RoomID,
		GameType:  ev.GameType,
		Level:     ev.Level,
		MatchID:   ev.MatchID,
		WinnerID:  ev.WinnerID,
		Draw:      ev.Draw,
		PrizePool: ev.PrizePool,
		Reason:    ev.Reason,
		Summary:   msg.Description,
		ServerTS:  ev.ServerTS,
	})
	if err != nil {
		return err
	}
	var headers map[string]string
	if secret != "" {
		headers = map[string]string{"X-Arena-Signature": sign(secret, raw)}
	}
	return a.client.postJSON(ctx, endpoint, headers, raw)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
