// Package room owns the room state machine waiting -> playing -> ended ->
// closed. Each live room has its own mutex and engine; lock order is
// registry, then room, then engine.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/broadcast"
	"agent-arena/internal/game"
	"agent-arena/internal/session"
	"agent-arena/internal/store"

	"github.com/rs/zerolog/log"
)

// Store is the persistence the manager needs.
type Store interface {
	CreateRoom(ctx context.Context, room store.Room, players []store.RoomPlayer) error
	MarkRoomPlaying(ctx context.Context, roomID string, startedAt time.Time) error
	SaveRoomProgress(ctx context.Context, roomID string, state, events []byte) error
	CloseRoom(ctx context.Context, roomID string) error
	GetRoom(ctx context.Context, id string) (*store.Room, error)
	ListRoomPlayers(ctx context.Context, roomID string) ([]store.RoomPlayer, error)
	ListRoomsByStatus(ctx context.Context, statuses []string, limit int) ([]store.Room, error)
	GetMatchByRoom(ctx context.Context, roomID string) (*store.Match, error)
}

// Funds is the ledger surface used by rooms.
type Funds interface {
	FreezeEntryFee(ctx context.Context, roomID, agentID string) (store.BalanceChange, error)
	Settle(ctx context.Context, st store.Settlement) (*store.Match, error)
	CancelRoom(ctx context.Context, roomID string, agentIDs []string, reason string) ([]store.BalanceChange, error)
}

type Config struct {
	ReadyTimeout  time.Duration
	Retention     time.Duration
	CacheSize     int
	CacheTTL      time.Duration
	Policy        RatingPolicy
	ProgressEvery int
	SettleBackoff time.Duration
}

// Entrant is an agent placed into a new room.
type Entrant struct {
	AgentID string
	Name    string
	Rating  int
}

type seat struct {
	agentID string
	name    string
	index   int
	rating  int
	ready   bool
	frozen  int64
}

// Room is the in-memory state of a live room.
type Room struct {
	mu            sync.Mutex
	id            string
	def           game.Definition
	level         string
	fee           int64
	status        string
	seats         []*seat
	engine        *game.Engine
	createdAt     time.Time
	startedAt     time.Time
	endedAt       time.Time
	finalState    json.RawMessage
	result        *SettlementResult
	matchID       string
	pending       *store.Settlement
	pendingResult *SettlementResult
	pendingEnd    game.EndedPayload
	attempts      int
	retryAt       time.Time
}

func (r *Room) seatOf(agentID string) *seat {
	for _, s := range r.seats {
		if s.agentID == agentID {
			return s
		}
	}
	return nil
}

func (r *Room) agentIDs() []string {
	out := make([]string, len(r.seats))
	for i, s := range r.seats {
		out[i] = s.agentID
	}
	return out
}

func (r *Room) readyCount() int {
	n := 0
	for _, s := range r.seats {
		if s.ready {
			n++
		}
	}
	return n
}

type Manager struct {
	store    Store
	funds    Funds
	sessions *session.Registry
	pub      broadcast.Publisher
	cfg      Config

	mu    sync.Mutex
	live  map[string]*Room
	cache *viewCache
	wg    sync.WaitGroup
	now   func() time.Time
}

func NewManager(st Store, funds Funds, sessions *session.Registry, pub broadcast.Publisher, cfg Config) *Manager {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Policy == nil {
		cfg.Policy = EloPolicy{K: 32}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if cfg.SettleBackoff <= 0 {
		cfg.SettleBackoff = time.Second
	}
	if pub == nil {
		pub = broadcast.Discard{}
	}
	return &Manager{
		store:    st,
		funds:    funds,
		sessions: sessions,
		pub:      pub,
		cfg:      cfg,
		live:     map[string]*Room{},
		cache:    newViewCache(cfg.CacheSize, cfg.CacheTTL),
		now:      time.Now,
	}
}

// Create opens a waiting room for the entrants, in seat order. Registry
// bindings are rolled back if the room cannot be persisted.
func (m *Manager) Create(ctx context.Context, def game.Definition, level string, entrants []Entrant) (*RoomView, error) {
	fee, ok := def.EntryFee(level)
	if !ok {
		return nil, apperr.ErrInvalidLevel
	}
	if len(entrants) < def.MinPlayers || len(entrants) > def.MaxPlayers {
		return nil, apperr.ErrInvalidRequest.WithReason("player count out of range")
	}
	roomID := store.NewID()
	ids := make([]string, len(entrants))
	for i, e := range entrants {
		ids[i] = e.AgentID
	}
	if err := m.sessions.BindAll(ids, roomID); err != nil {
		return nil, err
	}

	now := m.now()
	rows := make([]store.RoomPlayer, len(entrants))
	seats := make([]*seat, len(entrants))
	for i, e := range entrants {
		rows[i] = store.RoomPlayer{RoomID: roomID, AgentID: e.AgentID, Seat: i, Rating: e.Rating}
		seats[i] = &seat{agentID: e.AgentID, name: e.Name, index: i, rating: e.Rating}
	}
	err := m.store.CreateRoom(ctx, store.Room{
		ID:        roomID,
		GameType:  def.Type,
		Level:     level,
		EntryFee:  fee,
		Status:    store.RoomWaiting,
		CreatedAt: now,
	}, rows)
	if err != nil {
		m.sessions.UnbindRoom(roomID, ids)
		return nil, apperr.Internal(err, "create room")
	}

	r := &Room{
		id:        roomID,
		def:       def,
		level:     level,
		fee:       fee,
		status:    store.RoomWaiting,
		seats:     seats,
		createdAt: now,
	}
	m.mu.Lock()
	m.live[roomID] = r
	m.mu.Unlock()
	metricRoomsCreated.Add(1)
	metricRoomsLive.Add(1)

	view := m.view(r)
	m.pub.Publish(roomID, broadcast.EventRoomCreated, view)
	log.Info().
		Str("room_id", roomID).
		Str("game_type", def.Type).
		Str("level", level).
		Strs("agents", ids).
		Msg("room created")
	return view, nil
}

// liveRoom finds a live room. A room that exists only in Postgres yields
// notLive.
func (m *Manager) liveRoom(ctx context.Context, roomID string, notLive error) (*Room, error) {
	m.mu.Lock()
	r := m.live[roomID]
	m.mu.Unlock()
	if r != nil {
		return r, nil
	}
	if _, err := m.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrRoomNotFound
		}
		return nil, apperr.Internal(err, "load room")
	}
	return nil, notLive
}

type ReadyResult struct {
	RoomID  string `json:"room_id"`
	AgentID string `json:"agent_id"`
	Balance int64  `json:"balance"`
	Ready   int    `json:"ready"`
	Players int    `json:"players"`
	Started bool   `json:"started"`
}

// MarkReady freezes the agent's entry fee. The last ready player starts the
// game.
func (m *Manager) MarkReady(ctx context.Context, roomID, agentID string) (ReadyResult, error) {
	r, err := m.liveRoom(ctx, roomID, apperr.ErrRoomNotWaiting)
	if err != nil {
		return ReadyResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.seatOf(agentID)
	if s == nil {
		return ReadyResult{}, apperr.ErrNotInRoom
	}
	if r.status != store.RoomWaiting {
		return ReadyResult{}, apperr.ErrRoomNotWaiting
	}
	if s.ready {
		return ReadyResult{}, apperr.ErrAlreadyReady
	}
	change, err := m.funds.FreezeEntryFee(ctx, roomID, agentID)
	if err != nil {
		return ReadyResult{}, err
	}
	s.ready = true
	s.frozen = -change.Amount

	res := ReadyResult{
		RoomID:  roomID,
		AgentID: agentID,
		Balance: change.BalanceAfter,
		Ready:   r.readyCount(),
		Players: len(r.seats),
	}
	m.pub.Publish(roomID, broadcast.EventRoomPlayerReady, map[string]any{
		"room_id":  roomID,
		"agent_id": agentID,
		"ready":    res.Ready,
		"players":  res.Players,
	})
	if res.Ready == res.Players {
		if err := m.startLocked(ctx, r); err != nil {
			log.Error().Str("room_id", roomID).Str("error", apperr.Format(err)).Msg("room start failed")
			return res, nil
		}
		res.Started = true
	}
	return res, nil
}

func seedFor(roomID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(roomID))
	return int64(h.Sum64())
}

// startLocked persists playing, starts the engine and attaches the
// forwarder. The caller holds r.mu and has checked that every seat is ready.
func (m *Manager) startLocked(ctx context.Context, r *Room) error {
	if r.status != store.RoomWaiting || r.engine != nil {
		return apperr.ErrAlreadyStarted
	}
	players := make([]game.Player, len(r.seats))
	for i, s := range r.seats {
		players[i] = game.Player{ID: s.agentID, Seat: i}
	}
	startedAt := m.now()
	if err := m.store.MarkRoomPlaying(ctx, r.id, startedAt); err != nil {
		return apperr.Internal(err, "mark room playing")
	}
	eng := game.NewEngine(game.Config{
		RoomID:        r.id,
		Players:       players,
		DurationTicks: r.def.DurationTicks,
		TickRate:      r.def.TickRate,
	}, r.def.New(seedFor(r.id)))
	r.engine = eng
	r.status = store.RoomPlaying
	r.startedAt = startedAt
	m.wg.Add(1)
	go m.forward(r, eng)
	if err := eng.Start(); err != nil {
		log.Error().Str("room_id", r.id).Str("error", apperr.Format(err)).Msg("engine start failed, aborting")
		eng.Abort("setup_failed")
	}
	metricRoomsStarted.Add(1)
	log.Info().Str("room_id", r.id).Int("players", len(players)).Msg("room started")
	return nil
}

// SubmitAction routes an action to the agent's room. An empty roomID uses
// the agent's current binding.
func (m *Manager) SubmitAction(ctx context.Context, agentID, roomID string, a game.Action) (game.Ack, error) {
	r, err := m.boundRoom(ctx, agentID, roomID)
	if err != nil {
		return game.Ack{}, err
	}
	r.mu.Lock()
	status, eng := r.status, r.engine
	r.mu.Unlock()
	if status != store.RoomPlaying || eng == nil {
		return game.Ack{}, apperr.ErrGameNotPlaying
	}
	ack, err := eng.ProcessAction(agentID, a)
	if err != nil {
		return game.Ack{}, err
	}
	metricActionsSubmitted.Add(1)
	return ack, nil
}

type AvailableActions struct {
	RoomID  string            `json:"room_id"`
	Tick    int               `json:"tick"`
	Actions []game.ActionSpec `json:"actions"`
}

func (m *Manager) AvailableActions(ctx context.Context, agentID, roomID string) (AvailableActions, error) {
	r, err := m.boundRoom(ctx, agentID, roomID)
	if err != nil {
		return AvailableActions{}, err
	}
	r.mu.Lock()
	status, eng := r.status, r.engine
	r.mu.Unlock()
	if status != store.RoomPlaying || eng == nil {
		return AvailableActions{}, apperr.ErrGameNotPlaying
	}
	specs, err := eng.AvailableActions(agentID)
	if err != nil {
		return AvailableActions{}, err
	}
	tick, _ := eng.Progress()
	return AvailableActions{RoomID: r.id, Tick: tick, Actions: specs}, nil
}

func (m *Manager) boundRoom(ctx context.Context, agentID, roomID string) (*Room, error) {
	bound, ok := m.sessions.Lookup(agentID)
	switch {
	case roomID == "" && !ok:
		return nil, apperr.ErrNoActiveRoom
	case roomID == "":
		roomID = bound
	case !ok || bound != roomID:
		if _, err := m.liveRoom(ctx, roomID, nil); err != nil {
			return nil, err
		}
		return nil, apperr.ErrNotInRoom
	}
	r, err := m.liveRoom(ctx, roomID, apperr.ErrRoomNotPlayable)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRoomState returns a live room's view, or rebuilds a finished room from
// Postgres through the cache.
func (m *Manager) GetRoomState(ctx context.Context, roomID string) (*RoomView, error) {
	m.mu.Lock()
	r := m.live[roomID]
	m.mu.Unlock()
	if r != nil {
		return m.view(r), nil
	}
	if v, ok := m.cache.get(roomID); ok {
		return v, nil
	}
	row, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrRoomNotFound
		}
		return nil, apperr.Internal(err, "load room")
	}
	players, err := m.store.ListRoomPlayers(ctx, roomID)
	if err != nil {
		return nil, apperr.Internal(err, "load room players")
	}
	var match *store.Match
	if row.Status == store.RoomEnded || row.Status == store.RoomClosed {
		match, err = m.store.GetMatchByRoom(ctx, roomID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Internal(err, "load match")
		}
	}
	v := viewFromRows(row, players, match)
	if row.Status == store.RoomEnded || row.Status == store.RoomClosed {
		m.cache.put(v)
	}
	return v, nil
}

func (m *Manager) GetRoomByAgent(ctx context.Context, agentID string) (*RoomView, error) {
	roomID, ok := m.sessions.Lookup(agentID)
	if !ok {
		return nil, apperr.ErrNoActiveRoom
	}
	return m.GetRoomState(ctx, roomID)
}

// ListActiveRooms lists rooms whose game is running, oldest first.
func (m *Manager) ListActiveRooms() []RoomSummary {
	out := []RoomSummary{}
	for _, r := range m.liveRooms() {
		r.mu.Lock()
		if r.status == store.RoomPlaying {
			sum := RoomSummary{
				RoomID:    r.id,
				GameType:  r.def.Type,
				Level:     r.level,
				Status:    r.status,
				Players:   make([]PlayerSummary, len(r.seats)),
				CreatedAt: r.createdAt,
				StartedAt: r.startedAt,
			}
			for i, s := range r.seats {
				sum.Players[i] = PlayerSummary{AgentID: s.agentID, Name: s.name, Seat: s.index, Rating: s.rating}
			}
			if r.engine != nil {
				sum.Tick, sum.Remaining = r.engine.Progress()
			}
			out = append(out, sum)
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

func (m *Manager) liveRooms() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Room, 0, len(m.live))
	for _, r := range m.live {
		out = append(out, r)
	}
	return out
}

func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) view(r *Room) *RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return m.viewLocked(r)
}

func (m *Manager) viewLocked(r *Room) *RoomView {
	v := &RoomView{
		RoomID:     r.id,
		GameType:   r.def.Type,
		Level:      r.level,
		EntryFee:   r.fee,
		Status:     r.status,
		Seats:      make([]SeatView, 0, len(r.seats)),
		Settlement: r.result,
		MatchID:    r.matchID,
		CreatedAt:  r.createdAt,
	}
	for _, s := range r.seats {
		v.Seats = append(v.Seats, SeatView{AgentID: s.agentID, Seat: s.index, Rating: s.rating, Ready: s.ready})
	}
	if r.result != nil {
		v.WinnerID = r.result.WinnerID
	}
	if r.engine != nil {
		v.Tick, v.Remaining = r.engine.Progress()
		v.State = r.engine.PublicState()
	} else {
		v.Remaining = r.def.DurationTicks
	}
	if r.finalState != nil {
		v.State = r.finalState
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		v.StartedAt = &t
	}
	if !r.endedAt.IsZero() {
		t := r.endedAt
		v.EndedAt = &t
	}
	if r.status == store.RoomWaiting {
		t := r.createdAt.Add(m.cfg.ReadyTimeout)
		v.ReadyDeadline = &t
	}
	return v
}
