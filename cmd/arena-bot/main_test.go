package main

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideReturnsLegalAction(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	legal := []actionSpec{
		{Type: "move", Params: map[string]string{"direction": "north"}},
		{Type: "mine"},
		{Type: "scout"},
	}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		a := decide(rnd, legal)
		seen[a.Type] = true
	}
	assert.True(t, seen["mine"])
	assert.True(t, seen["move"])
	assert.Len(t, seen, 3)
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws?api_key=ak_1", wsURL("http://localhost:8080/", "ak_1"))
	assert.Equal(t, "wss://arena.example/ws?api_key=a%2Bb", wsURL("https://arena.example", "a+b"))
}

func TestClientSendsBearerAndDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ak_1" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_api_key"})
			return
		}
		switch r.URL.Path {
		case "/api/agents/me/room":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "no_active_room", "reason": "agent is not in a room"})
		case "/api/matchmaking/queue":
			_ = json.NewEncoder(w).Encode(map[string]any{"matched": true, "room_id": "r1"})
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL, "ak_1")
	res, err := c.enqueue(context.Background(), "astro-mining", "bronze")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.RoomID)

	_, err = c.myRoom(context.Background())
	require.Error(t, err)
	assert.True(t, isCode(err, "no_active_room"))

	c.apiKey = "wrong"
	_, err = c.enqueue(context.Background(), "astro-mining", "bronze")
	assert.True(t, isCode(err, "invalid_api_key"))
}
