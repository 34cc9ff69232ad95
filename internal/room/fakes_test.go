package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/game"
	"agent-arena/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memStore keeps rooms and balances in memory and plays both the Store and
// Funds roles.
type memStore struct {
	mu         sync.Mutex
	rooms      map[string]*store.Room
	players    map[string][]store.RoomPlayer
	matches    map[string]*store.Match
	balances   map[string]int64
	failCreate error
	failSettle int
	settles    int
	progress   int
}

func newMemStore() *memStore {
	return &memStore{
		rooms:    map[string]*store.Room{},
		players:  map[string][]store.RoomPlayer{},
		matches:  map[string]*store.Match{},
		balances: map[string]int64{},
	}
}

func (s *memStore) balance(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[id]
}

func (s *memStore) settleCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settles
}

func (s *memStore) roomStatus(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		return r.Status
	}
	return ""
}

func (s *memStore) CreateRoom(_ context.Context, room store.Room, players []store.RoomPlayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	room.Status = store.RoomWaiting
	s.rooms[room.ID] = &room
	s.players[room.ID] = append([]store.RoomPlayer(nil), players...)
	return nil
}

func (s *memStore) MarkRoomPlaying(_ context.Context, roomID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.Status != store.RoomWaiting {
		return store.ErrRoomStatus
	}
	r.Status = store.RoomPlaying
	r.StartedAt = &startedAt
	return nil
}

func (s *memStore) SaveRoomProgress(_ context.Context, roomID string, state, events []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok && r.Status == store.RoomPlaying {
		r.GameState = json.RawMessage(state)
		r.EventLog = json.RawMessage(events)
		s.progress++
	}
	return nil
}

func (s *memStore) CloseRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	switch {
	case !ok:
		return store.ErrNotFound
	case r.Status == store.RoomClosed:
		return nil
	case r.Status != store.RoomEnded:
		return store.ErrRoomStatus
	}
	r.Status = store.RoomClosed
	return nil
}

func (s *memStore) GetRoom(_ context.Context, id string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListRoomPlayers(_ context.Context, roomID string) ([]store.RoomPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.RoomPlayer(nil), s.players[roomID]...), nil
}

func (s *memStore) ListRoomsByStatus(_ context.Context, statuses []string, _ int) ([]store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Room
	for _, r := range s.rooms {
		for _, st := range statuses {
			if r.Status == st {
				out = append(out, *r)
			}
		}
	}
	return out, nil
}

func (s *memStore) GetMatchByRoom(_ context.Context, roomID string) (*store.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (s *memStore) FreezeEntryFee(_ context.Context, roomID, agentID string) (store.BalanceChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return store.BalanceChange{}, apperr.ErrRoomNotFound
	}
	if r.Status != store.RoomWaiting {
		return store.BalanceChange{}, apperr.ErrRoomNotWaiting
	}
	for i, p := range s.players[roomID] {
		if p.AgentID != agentID {
			continue
		}
		if p.Ready {
			return store.BalanceChange{}, apperr.ErrAlreadyReady
		}
		before := s.balances[agentID]
		if before < r.EntryFee {
			return store.BalanceChange{}, apperr.ErrInsufficientFunds
		}
		s.balances[agentID] = before - r.EntryFee
		s.players[roomID][i].Ready = true
		s.players[roomID][i].FrozenFee = r.EntryFee
		return store.BalanceChange{
			AgentID:       agentID,
			Amount:        -r.EntryFee,
			BalanceBefore: before,
			BalanceAfter:  before - r.EntryFee,
		}, nil
	}
	return store.BalanceChange{}, apperr.ErrNotInRoom
}

func (s *memStore) Settle(_ context.Context, st store.Settlement) (*store.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settles++
	if s.failSettle > 0 {
		s.failSettle--
		return nil, apperr.Internal(errors.New("connection reset"), "settle room")
	}
	r, ok := s.rooms[st.RoomID]
	if !ok || r.Status != store.RoomPlaying {
		return nil, apperr.ErrRoomNotPlayable
	}
	r.Status = store.RoomEnded
	r.WinnerID = st.WinnerID
	m := &store.Match{ID: st.MatchID, RoomID: st.RoomID, WinnerID: st.WinnerID, TotalPool: st.TotalPool, PrizePool: st.PrizePool, HouseFee: st.HouseFee}
	for _, p := range st.Players {
		s.balances[p.AgentID] += p.Reward
		m.Participants = append(m.Participants, store.MatchParticipant{AgentID: p.AgentID, Rank: p.Rank, Reward: p.Reward})
	}
	s.matches[st.RoomID] = m
	return m, nil
}

func (s *memStore) CancelRoom(_ context.Context, roomID string, _ []string, _ string) ([]store.BalanceChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}
	if r.Status != store.RoomWaiting {
		return nil, apperr.ErrRoomNotWaiting
	}
	var out []store.BalanceChange
	for i, p := range s.players[roomID] {
		if p.FrozenFee <= 0 {
			continue
		}
		before := s.balances[p.AgentID]
		s.balances[p.AgentID] = before + p.FrozenFee
		out = append(out, store.BalanceChange{AgentID: p.AgentID, Amount: p.FrozenFee, BalanceBefore: before, BalanceAfter: before + p.FrozenFee})
		s.players[roomID][i].FrozenFee = 0
	}
	r.Status = store.RoomClosed
	return out, nil
}

type published struct {
	roomID string
	event  string
	data   any
}

type recorder struct {
	mu     sync.Mutex
	events []published
	closed []string
}

func (r *recorder) Publish(roomID, event string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, published{roomID: roomID, event: event, data: payload})
	r.mu.Unlock()
}

func (r *recorder) CloseRoom(roomID string) {
	r.mu.Lock()
	r.closed = append(r.closed, roomID)
	r.mu.Unlock()
}

func (r *recorder) names(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.roomID == roomID {
			out = append(out, e.event)
		}
	}
	return out
}

func (r *recorder) has(roomID, event string) bool {
	for _, n := range r.names(roomID) {
		if n == event {
			return true
		}
	}
	return false
}

type stubGame struct {
	players []game.Player
	ticks   int
}

func (g *stubGame) Setup(players []game.Player) error {
	g.players = players
	return nil
}

func (g *stubGame) Validate(_ string, a game.Action) error {
	if a.Type != "noop" {
		return apperr.ErrInvalidAction
	}
	return nil
}

func (g *stubGame) Apply(string, game.Action) error { return nil }
func (g *stubGame) Advance(int)                      { g.ticks++ }
func (g *stubGame) Terminal() bool                   { return false }

func (g *stubGame) Outcome() game.Outcome {
	return game.Outcome{WinnerID: g.players[0].ID, Reason: "time_up"}
}

func (g *stubGame) AvailableActions(string) []game.ActionSpec {
	return []game.ActionSpec{{Type: "noop"}}
}

func (g *stubGame) Snapshot(int) json.RawMessage { return json.RawMessage(`{}`) }
func (g *stubGame) Log() json.RawMessage         { return json.RawMessage(`[]`) }

func stubDefinition(tick time.Duration, duration int) game.Definition {
	return game.Definition{
		Type:          "stub",
		MinPlayers:    2,
		MaxPlayers:    4,
		DurationTicks: duration,
		TickRate:      tick,
		EntryFees:     map[string]int64{"low": 10},
		PrizeRateBPS:  9000,
		New:           func(int64) game.Game { return &stubGame{} },
	}
}
