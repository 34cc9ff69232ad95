package public

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/game"
	"agent-arena/internal/store"
)

func TestClampLeaderboardPage(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		offset    int
		wantLimit int
		wantOK    bool
	}{
		{name: "default limit", limit: 0, offset: 0, wantLimit: 50, wantOK: true},
		{name: "explicit small limit", limit: 20, offset: 0, wantLimit: 20, wantOK: true},
		{name: "limit clipped at top100 boundary", limit: 10, offset: 95, wantLimit: 5, wantOK: true},
		{name: "limit exactly remaining", limit: 1, offset: 99, wantLimit: 1, wantOK: true},
		{name: "offset 100 rejected", limit: 10, offset: 100, wantLimit: 0, wantOK: false},
		{name: "offset beyond 100 rejected", limit: 10, offset: 150, wantLimit: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLimit, gotOK := clampLeaderboardPage(tt.limit, tt.offset)
			if gotOK != tt.wantOK {
				t.Fatalf("ok = %v, want %v", gotOK, tt.wantOK)
			}
			if gotLimit != tt.wantLimit {
				t.Fatalf("limit = %d, want %d", gotLimit, tt.wantLimit)
			}
		})
	}
}

type fakeStore struct {
	agents []store.Agent
	since  time.Time
	fail   error
}

func (f *fakeStore) ListLeaderboard(_ context.Context, limit, offset int) ([]store.Agent, error) {
	if offset >= len(f.agents) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.agents) {
		end = len(f.agents)
	}
	return f.agents[offset:end], nil
}

func (f *fakeStore) GetMatch(_ context.Context, id string) (*store.Match, error) {
	if id == "m1" {
		return &store.Match{ID: "m1"}, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) EconomyStats(_ context.Context, since time.Time) (*store.EconomyStats, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.since = since
	return &store.EconomyStats{Agents: int64(len(f.agents)), Transactions: []store.TxTotals{}}, nil
}

func TestStatsWindowAndErrors(t *testing.T) {
	st := &fakeStore{agents: []store.Agent{{ID: "a"}, {ID: "b"}}}
	svc := NewService(st, game.NewRegistry())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Agents != 2 || !st.since.Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("stats = %+v since = %s", stats, st.since)
	}

	st.fail = errors.New("db down")
	if _, err := svc.Stats(context.Background()); apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("err = %v, want internal", err)
	}
}

func TestLeaderboardRanksFollowOffset(t *testing.T) {
	st := &fakeStore{agents: []store.Agent{{ID: "a", Rating: 1300}, {ID: "b", Rating: 1200}, {ID: "c", Rating: 1100}}}
	svc := NewService(st, game.NewRegistry())
	resp, err := svc.Leaderboard(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].AgentID != "b" || resp.Items[0].Rank != 2 || resp.Items[1].Rank != 3 {
		t.Fatalf("unexpected page: %+v", resp.Items)
	}
}

func TestMatchNotFound(t *testing.T) {
	svc := NewService(&fakeStore{}, game.NewRegistry())
	if _, err := svc.Match(context.Background(), "nope"); !errors.Is(err, apperr.ErrMatchNotFound) {
		t.Fatalf("err = %v, want match_not_found", err)
	}
	if m, err := svc.Match(context.Background(), "m1"); err != nil || m.ID != "m1" {
		t.Fatalf("match = %+v err = %v", m, err)
	}
}

func TestGamesListsLevelsByFee(t *testing.T) {
	reg := game.NewRegistry()
	if err := reg.Register(game.Definition{
		Type:          "duel",
		MinPlayers:    2,
		MaxPlayers:    2,
		DurationTicks: 10,
		TickRate:      500 * time.Millisecond,
		EntryFees:     map[string]int64{"gold": 2000, "bronze": 100},
		PrizeRateBPS:  9500,
		New:           func(int64) game.Game { return nil },
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp := NewService(&fakeStore{}, reg).Games()
	if len(resp.Items) != 1 {
		t.Fatalf("items = %d", len(resp.Items))
	}
	g := resp.Items[0]
	if g.TickRateMS != 500 || len(g.Levels) != 2 || g.Levels[0].Level != "bronze" {
		t.Fatalf("unexpected game item: %+v", g)
	}
}
