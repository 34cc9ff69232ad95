package httptransport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appagent "agent-arena/internal/app/agent"
	apppublic "agent-arena/internal/app/public"
	"agent-arena/internal/apperr"
	"agent-arena/internal/broadcast"
	"agent-arena/internal/game"
	"agent-arena/internal/ledger"
	"agent-arena/internal/matchmaking"
	"agent-arena/internal/room"
	"agent-arena/internal/store"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth map[string]*store.Agent

func (f fakeAuth) GetAgentByAPIKey(_ context.Context, apiKey string) (*store.Agent, error) {
	if a, ok := f[apiKey]; ok {
		return a, nil
	}
	return nil, store.ErrNotFound
}

// fakeAccounts backs the agent and public services. Rotating a key rewrites
// the shared auth map so the old key stops resolving.
type fakeAccounts struct {
	auth fakeAuth
}

func (f *fakeAccounts) CreateAgent(context.Context, string, string, string, int64) (string, error) {
	return "", errors.New("not supported")
}

func (f *fakeAccounts) GetAgent(_ context.Context, id string) (*store.Agent, error) {
	for _, a := range f.auth {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) ListTransactions(context.Context, string, int, int) ([]store.Transaction, error) {
	return nil, nil
}

func (f *fakeAccounts) TransactionSummary(context.Context, string) ([]store.TxTotals, error) {
	return []store.TxTotals{{Type: store.TxEntryFee, Count: 1, TotalOut: 100}}, nil
}

func (f *fakeAccounts) RotateAPIKey(_ context.Context, agentID, apiKey string) error {
	for key, a := range f.auth {
		if a.ID == agentID {
			delete(f.auth, key)
			f.auth[apiKey] = a
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeAccounts) ListLeaderboard(context.Context, int, int) ([]store.Agent, error) {
	return nil, nil
}

func (f *fakeAccounts) GetMatch(context.Context, string) (*store.Match, error) {
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) EconomyStats(context.Context, time.Time) (*store.EconomyStats, error) {
	return &store.EconomyStats{Agents: int64(len(f.auth)), Transactions: []store.TxTotals{}}, nil
}

type fakeFunds struct{}

func (fakeFunds) Award(_ context.Context, agentID string, amount int64, _ store.Reference) (store.BalanceChange, error) {
	return store.BalanceChange{AgentID: agentID, Amount: amount}, nil
}

func (fakeFunds) ClaimDailyReward(context.Context, string, int64) (ledger.DailyClaim, error) {
	return ledger.DailyClaim{}, apperr.ErrAlreadyClaimed
}

func (fakeFunds) DailyRewardStatus(_ context.Context, _ string, base int64) (ledger.DailyStatus, error) {
	return ledger.DailyStatus{CanClaim: true, Streak: 1, NextReward: base}, nil
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, agentID, gameType, level string) (matchmaking.EnqueueResult, error) {
	if q.err != nil {
		return matchmaking.EnqueueResult{}, q.err
	}
	q.enqueued = append(q.enqueued, agentID+"/"+gameType+"/"+level)
	return matchmaking.EnqueueResult{AgentID: agentID, GameType: gameType, Level: level, Position: len(q.enqueued)}, nil
}

func (q *fakeQueue) Dequeue(context.Context, string, string, string) (bool, error) {
	return len(q.enqueued) > 0, nil
}

func (q *fakeQueue) Snapshot() []matchmaking.PoolStats {
	return []matchmaking.PoolStats{{GameType: "astro_mining", Level: "low", Waiting: len(q.enqueued)}}
}

type fakeRooms struct {
	actions []game.Action
	views   map[string]*room.RoomView
}

func (f *fakeRooms) MarkReady(_ context.Context, roomID, agentID string) (room.ReadyResult, error) {
	if _, ok := f.views[roomID]; !ok {
		return room.ReadyResult{}, apperr.ErrRoomNotFound
	}
	return room.ReadyResult{RoomID: roomID, AgentID: agentID, Ready: 1, Players: 2}, nil
}

func (f *fakeRooms) SubmitAction(_ context.Context, _, roomID string, a game.Action) (game.Ack, error) {
	if a.Type != "noop" {
		return game.Ack{}, apperr.ErrInvalidAction.WithReason("unknown action")
	}
	f.actions = append(f.actions, a)
	return game.Ack{Accepted: true, Tick: 3}, nil
}

func (f *fakeRooms) AvailableActions(_ context.Context, _, roomID string) (room.AvailableActions, error) {
	return room.AvailableActions{RoomID: roomID, Tick: 3}, nil
}

func (f *fakeRooms) GetRoomState(_ context.Context, roomID string) (*room.RoomView, error) {
	if v, ok := f.views[roomID]; ok {
		return v, nil
	}
	return nil, apperr.ErrRoomNotFound
}

func (f *fakeRooms) GetRoomByAgent(context.Context, string) (*room.RoomView, error) {
	return nil, apperr.ErrNoActiveRoom
}

func (f *fakeRooms) ListActiveRooms() []room.RoomSummary {
	out := make([]room.RoomSummary, 0, len(f.views))
	for id, v := range f.views {
		if v.Status != "playing" {
			continue
		}
		out = append(out, room.RoomSummary{RoomID: id, GameType: v.GameType, Status: v.Status})
	}
	return out
}

type routerHarness struct {
	srv   *httptest.Server
	hub   *broadcast.Hub
	queue *fakeQueue
	rooms *fakeRooms
}

type fakeSnapshots map[string]string

func (f fakeSnapshots) LastSnapshot(_ context.Context, roomID string) (json.RawMessage, error) {
	if raw, ok := f[roomID]; ok {
		return json.RawMessage(raw), nil
	}
	return nil, broadcast.ErrNoSnapshot
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	return newRouterHarnessWith(t, nil)
}

func newRouterHarnessWith(t *testing.T, snaps SnapshotSource) *routerHarness {
	t.Helper()
	hub := broadcast.NewHub(64)
	h := &routerHarness{
		hub:   hub,
		queue: &fakeQueue{},
		rooms: &fakeRooms{views: map[string]*room.RoomView{
			"r1": {RoomID: "r1", GameType: "astro_mining", Level: "low", Status: "waiting"},
			"r5": {RoomID: "r5", GameType: "astro_mining", Level: "low", Status: "playing"},
		}},
	}
	accounts := &fakeAccounts{auth: fakeAuth{"ak_good": {ID: "a1", Name: "alpha"}}}
	r := NewRouter(Deps{
		Auth:      accounts.auth,
		Agents:    appagent.NewService(accounts, fakeFunds{}, 1000, 500),
		Public:    apppublic.NewService(accounts, game.NewRegistry()),
		Queue:     h.queue,
		Rooms:     h.rooms,
		Streams:   hub,
		Snapshots: snaps,
		AdminKey:  "",
	})
	h.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		h.srv.Close()
		hub.Close()
	})
	return h
}

func (h *routerHarness) do(t *testing.T, method, path, key, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAgentRoutesRequireAPIKey(t *testing.T) {
	h := newRouterHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/matchmaking/queue", "", `{"game_type":"astro_mining","level":"low"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing_api_key", body["error"])

	resp, body = h.do(t, http.MethodPost, "/api/matchmaking/queue", "ak_bad", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_api_key", body["error"])
	assert.Empty(t, h.queue.enqueued)
}

func TestEnqueueUsesAuthenticatedAgent(t *testing.T) {
	h := newRouterHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/matchmaking/queue", "ak_good", `{"game_type":"astro_mining","level":"low"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a1", body["agent_id"])
	assert.Equal(t, []string{"a1/astro_mining/low"}, h.queue.enqueued)

	resp, body = h.do(t, http.MethodDelete, "/api/matchmaking/queue", "ak_good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["removed"])
}

func TestErrorKindsMapToStatus(t *testing.T) {
	h := newRouterHarness(t)

	h.queue.err = apperr.ErrInsufficientFunds
	resp, body := h.do(t, http.MethodPost, "/api/matchmaking/queue", "ak_good", `{"game_type":"astro_mining","level":"low"}`)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_funds", body["error"])
	assert.Equal(t, "insufficient_funds", body["kind"])

	h.queue.err = apperr.ErrAlreadyQueued
	resp, _ = h.do(t, http.MethodPost, "/api/matchmaking/queue", "ak_good", `{}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/api/rooms/missing/ready", "ak_good", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "room_not_found", body["error"])

	resp, body = h.do(t, http.MethodPost, "/api/rooms/r1/actions", "ak_good", `{"type":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_action", body["error"])
	assert.Equal(t, "unknown action", body["reason"])

	resp, body = h.do(t, http.MethodPost, "/api/rooms/r1/actions", "ak_good", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body["error"])

	h.queue.err = apperr.Internal(context.DeadlineExceeded, "load agent")
	resp, body = h.do(t, http.MethodPost, "/api/matchmaking/queue", "ak_good", `{}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_error", body["error"])
}

func TestSubmitActionAccepted(t *testing.T) {
	h := newRouterHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/rooms/r1/actions", "ak_good", `{"type":"noop"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	require.Len(t, h.rooms.actions, 1)
	assert.Equal(t, "noop", h.rooms.actions[0].Type)

	resp, body = h.do(t, http.MethodGet, "/api/agents/me/room", "ak_good", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_active_room", body["error"])
}

func TestPublicRoutes(t *testing.T) {
	h := newRouterHarness(t)

	resp, body := h.do(t, http.MethodGet, "/api/public/rooms/r1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "waiting", body["status"])

	resp, body = h.do(t, http.MethodGet, "/api/public/rooms", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["items"], 1)
	assert.Equal(t, "r5", body["items"].([]any)[0].(map[string]any)["room_id"])

	resp, body = h.do(t, http.MethodGet, "/api/public/queues", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, _ = h.do(t, http.MethodGet, "/api/public/games", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/api/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "route_not_found", body["error"])
}

func TestAgentAccountRoutes(t *testing.T) {
	h := newRouterHarness(t)

	resp, body := h.do(t, http.MethodGet, "/api/agents/me/daily-reward", "ak_good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["can_claim"])
	assert.Equal(t, float64(500), body["next_reward"])

	resp, body = h.do(t, http.MethodGet, "/api/agents/me/transactions/summary", "ak_good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a1", body["agent_id"])
	assert.Equal(t, float64(-100), body["net"])
	assert.Len(t, body["items"], 1)

	resp, body = h.do(t, http.MethodGet, "/api/public/stats", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["agents"])

	resp, body = h.do(t, http.MethodPost, "/api/agents/me/api-key", "ak_good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fresh, _ := body["api_key"].(string)
	require.True(t, strings.HasPrefix(fresh, "ak_"))

	resp, body = h.do(t, http.MethodGet, "/api/agents/me", "ak_good", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_api_key", body["error"])

	resp, body = h.do(t, http.MethodGet, "/api/agents/me", fresh, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a1", body["agent_id"])
}

func TestAdminRoutesDisabledWithoutKey(t *testing.T) {
	h := newRouterHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/topup", "anything", `{"agent_id":"a1","amount":5}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "route_not_found", body["error"])

	resp, _ = h.do(t, http.MethodGet, "/api/debug/vars", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckAdminAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/debug/vars", nil)
	assert.False(t, CheckAdminAuth(req, "secret"))
	req.Header.Set("X-Admin-Key", "secret")
	assert.True(t, CheckAdminAuth(req, "secret"))

	req = httptest.NewRequest(http.MethodGet, "/api/debug/vars", nil)
	req.Header.Set("Authorization", "bearer secret")
	assert.True(t, CheckAdminAuth(req, "secret"))
	req.Header.Set("Authorization", "Bearer nope")
	assert.False(t, CheckAdminAuth(req, "secret"))
	req.Header.Set("Authorization", "Bearer secret-longer")
	assert.False(t, CheckAdminAuth(req, "secret"))

	req = httptest.NewRequest(http.MethodGet, "/api/debug/vars", nil)
	req.Header.Set("X-Admin-Key", "")
	assert.False(t, CheckAdminAuth(req, ""))
}

func TestRoomStreamSnapshotWhenNotLive(t *testing.T) {
	h := newRouterHarness(t)

	resp, err := http.Get(h.srv.URL + "/api/public/rooms/r1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := readSSEEvents(t, bufio.NewReader(resp.Body), 1)
	assert.Equal(t, eventRoomSnapshot, events[0])
}

func TestRoomStreamHostedElsewhereAddsMirroredSnapshot(t *testing.T) {
	h := newRouterHarnessWith(t, fakeSnapshots{"r5": `{"room_id":"r5","event":"game:tick","data":{"tick":42}}`})

	resp, err := http.Get(h.srv.URL + "/api/public/rooms/r5/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "event: "+eventRoomSnapshot)
	assert.Contains(t, string(body), "event: "+eventGameLatest)
	assert.Contains(t, string(body), `"tick":42`)

	resp, err = http.Get(h.srv.URL + "/api/public/rooms/r1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), eventGameLatest)
}

func TestRoomStreamReplaysAfterLastEventID(t *testing.T) {
	h := newRouterHarness(t)
	h.hub.Publish("r2", "room:created", map[string]any{"n": 1})
	h.hub.Publish("r2", "game:tick", map[string]any{"n": 2})
	buf, ok := h.hub.Room("r2")
	require.True(t, ok)
	first := buf.ReplayAfter("")[0].EventID

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/api/public/rooms/r2/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", first)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	require.NoError(t, err)
	defer resp.Body.Close()

	rd := bufio.NewReader(resp.Body)
	events := readSSEEvents(t, rd, 1)
	assert.Equal(t, []string{"game:tick"}, events)

	h.hub.Publish("r2", "game:tick", map[string]any{"n": 3})
	events = readSSEEvents(t, rd, 1)
	assert.Equal(t, []string{"game:tick"}, events)
}

func readSSEEvents(t *testing.T, rd *bufio.Reader, n int) []string {
	t.Helper()
	var out []string
	for len(out) < n {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			if name == "ping" {
				continue
			}
			out = append(out, name)
		}
	}
	return out
}
