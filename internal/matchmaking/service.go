package matchmaking

import (
	"context"
	"errors"
	"sync"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/game"
	"agent-arena/internal/room"
	"agent-arena/internal/session"
	"agent-arena/internal/store"

	"github.com/rs/zerolog/log"
)

type Agents interface {
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
	SetAgentStatus(ctx context.Context, status string, ids ...string) error
}

type Rooms interface {
	Create(ctx context.Context, def game.Definition, level string, entrants []room.Entrant) (*room.RoomView, error)
}

type Config struct {
	QueueTTL time.Duration
}

// Service is the matchmaker. Its mutex is the outermost lock and is held
// across pool removal, room creation and every presence write.
type Service struct {
	games    *game.Registry
	agents   Agents
	rooms    Rooms
	sessions *session.Registry
	ttl      time.Duration

	mu    sync.Mutex
	queue *queue
	now   func() time.Time
}

func NewService(games *game.Registry, agents Agents, rooms Rooms, sessions *session.Registry, cfg Config) *Service {
	if cfg.QueueTTL <= 0 {
		cfg.QueueTTL = 10 * time.Minute
	}
	return &Service{
		games:    games,
		agents:   agents,
		rooms:    rooms,
		sessions: sessions,
		ttl:      cfg.QueueTTL,
		queue:    newQueue(),
		now:      time.Now,
	}
}

type EnqueueResult struct {
	AgentID  string `json:"agent_id"`
	GameType string `json:"game_type"`
	Level    string `json:"level"`
	EntryFee int64  `json:"entry_fee"`
	Position int    `json:"position,omitempty"`
	Matched  bool   `json:"matched"`
	RoomID   string `json:"room_id,omitempty"`
}

// Enqueue validates the request, adds the agent to its pool and tries to
// form a room right away.
func (s *Service) Enqueue(ctx context.Context, agentID, gameType, level string) (EnqueueResult, error) {
	def, ok := s.games.Lookup(gameType)
	if !ok {
		return EnqueueResult{}, apperr.ErrInvalidGameType
	}
	fee, ok := def.EntryFee(level)
	if !ok {
		return EnqueueResult{}, apperr.ErrInvalidLevel
	}
	agent, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EnqueueResult{}, apperr.ErrAgentNotFound
		}
		return EnqueueResult{}, apperr.Internal(err, "load agent")
	}
	if agent.Balance < fee {
		return EnqueueResult{}, apperr.ErrInsufficientFunds
	}

	s.mu.Lock()
	if s.queue.contains(agentID) {
		s.mu.Unlock()
		return EnqueueResult{}, apperr.ErrAlreadyQueued
	}
	if _, bound := s.sessions.Lookup(agentID); bound {
		s.mu.Unlock()
		return EnqueueResult{}, apperr.ErrAlreadyInRoom
	}
	entry := Entry{
		AgentID:    agentID,
		Name:       agent.Name,
		GameType:   gameType,
		Level:      level,
		Rating:     agent.Rating,
		EnqueuedAt: s.now(),
	}
	s.queue.add(entry)
	metricEnqueued.Add(1)
	// Before matching: room creation writes in_game for whoever it seats.
	s.setStatus(ctx, store.AgentMatching, agentID)
	rooms := s.matchPoolLocked(ctx, keyOf(entry), def)
	res := EnqueueResult{AgentID: agentID, GameType: gameType, Level: level, EntryFee: fee}
	for _, v := range rooms {
		for _, seat := range v.Seats {
			if seat.AgentID == agentID {
				res.Matched = true
				res.RoomID = v.RoomID
			}
		}
	}
	if !res.Matched {
		_, res.Position, _ = s.queue.lookup(agentID)
	}
	s.mu.Unlock()

	log.Debug().
		Str("agent_id", agentID).
		Str("game_type", gameType).
		Str("level", level).
		Bool("matched", res.Matched).
		Msg("agent enqueued")
	return res, nil
}

// Dequeue removes the agent from its pool. It is idempotent; an empty
// gameType matches whatever pool the agent is in.
func (s *Service) Dequeue(ctx context.Context, agentID, gameType, level string) (bool, error) {
	if gameType != "" {
		if _, ok := s.games.Lookup(gameType); !ok {
			return false, apperr.ErrInvalidGameType
		}
	}
	s.mu.Lock()
	entry, _, ok := s.queue.lookup(agentID)
	if !ok || (gameType != "" && entry.GameType != gameType) || (level != "" && entry.Level != level) {
		s.mu.Unlock()
		return false, nil
	}
	s.queue.remove(agentID)
	s.setStatus(ctx, store.AgentOnline, agentID)
	s.mu.Unlock()

	metricDequeued.Add(1)
	return true, nil
}

// Position reports the agent's queue entry and 1-based place in its pool.
func (s *Service) Position(agentID string) (Entry, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.lookup(agentID)
}

// Sweep re-runs matching on every pool and returns the rooms formed.
func (s *Service) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	formed := 0
	for _, k := range s.queue.keys() {
		def, ok := s.games.Lookup(k.gameType)
		if !ok {
			continue
		}
		formed += len(s.matchPoolLocked(ctx, k, def))
	}
	return formed
}

// ExpireStale drops entries that have waited longer than the queue TTL.
func (s *Service) ExpireStale(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	stale := s.queue.olderThan(cutoff)
	ids := make([]string, 0, len(stale))
	for _, e := range stale {
		s.queue.remove(e.AgentID)
		ids = append(ids, e.AgentID)
	}
	if len(ids) > 0 {
		s.setStatus(ctx, store.AgentOnline, ids...)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}
	metricExpired.Add(int64(len(ids)))
	log.Info().Int("count", len(ids)).Dur("ttl", s.ttl).Msg("expired stale queue entries")
	return len(ids)
}

type PoolStats struct {
	GameType string `json:"game_type"`
	Level    string `json:"level"`
	Waiting  int    `json:"waiting"`
	OldestMS int64  `json:"oldest_wait_ms"`
}

func (s *Service) Snapshot() []PoolStats {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []PoolStats{}
	for _, k := range s.queue.keys() {
		pool := s.queue.pools[k]
		st := PoolStats{GameType: k.gameType, Level: k.level, Waiting: len(pool)}
		if len(pool) > 0 {
			st.OldestMS = now.Sub(pool[0].EnqueuedAt).Milliseconds()
		}
		out = append(out, st)
	}
	return out
}

// matchPoolLocked forms rooms from pool k until no group fits. A failed
// creation restores the pool exactly and stops.
func (s *Service) matchPoolLocked(ctx context.Context, k poolKey, def game.Definition) []*room.RoomView {
	var formed []*room.RoomView
	for {
		saved := s.queue.pool(k)
		group := FindGroup(saved, def.RatingWindow, def.MinPlayers, def.MaxPlayers)
		if group == nil {
			return formed
		}
		s.queue.take(k, group)
		entrants := make([]room.Entrant, len(group))
		ids := make([]string, len(group))
		for i, e := range group {
			entrants[i] = room.Entrant{AgentID: e.AgentID, Name: e.Name, Rating: e.Rating}
			ids[i] = e.AgentID
		}
		view, err := s.rooms.Create(ctx, def, k.level, entrants)
		if err != nil {
			s.queue.restore(k, saved)
			metricMatchFailures.Add(1)
			log.Error().
				Str("game_type", k.gameType).
				Str("level", k.level).
				Strs("agents", ids).
				Str("error", apperr.Format(err)).
				Msg("create matched room failed")
			return formed
		}
		metricMatches.Add(1)
		formed = append(formed, view)
	}
}

func (s *Service) setStatus(ctx context.Context, status string, ids ...string) {
	if err := s.agents.SetAgentStatus(ctx, status, ids...); err != nil {
		log.Warn().Err(err).Str("status", status).Strs("agents", ids).Msg("update agent status failed")
	}
}
