package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type apiError struct {
	Status int
	Code   string `json:"error"`
	Reason string `json:"reason"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Code, e.Reason)
}

type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func newClient(base, apiKey string) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type registerResponse struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
	Balance int64  `json:"balance"`
}

type enqueueResponse struct {
	Matched bool   `json:"matched"`
	RoomID  string `json:"room_id"`
}

type roomView struct {
	RoomID string `json:"room_id"`
	Status string `json:"status"`
}

type actionSpec struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params"`
}

type availableActions struct {
	Tick    int          `json:"tick"`
	Actions []actionSpec `json:"actions"`
}

func (c *client) register(ctx context.Context, name string) (registerResponse, error) {
	var out registerResponse
	err := c.do(ctx, http.MethodPost, "/api/agents/register", map[string]string{"name": name}, &out)
	return out, err
}

func (c *client) enqueue(ctx context.Context, gameType, level string) (enqueueResponse, error) {
	var out enqueueResponse
	err := c.do(ctx, http.MethodPost, "/api/matchmaking/queue", map[string]string{"game_type": gameType, "level": level}, &out)
	return out, err
}

func (c *client) myRoom(ctx context.Context) (roomView, error) {
	var out roomView
	err := c.do(ctx, http.MethodGet, "/api/agents/me/room", nil, &out)
	return out, err
}

func (c *client) ready(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/api/rooms/"+roomID+"/ready", nil, nil)
}

func (c *client) available(ctx context.Context, roomID string) (availableActions, error) {
	var out availableActions
	err := c.do(ctx, http.MethodGet, "/api/rooms/"+roomID+"/actions", nil, &out)
	return out, err
}

func isCode(err error, code string) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.Code == code
}
