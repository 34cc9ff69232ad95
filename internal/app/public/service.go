package public

import (
	"context"
	"errors"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/game"
	"agent-arena/internal/store"
)

// Only the top of the ladder is public.
const leaderboardMaxRows = 100

type Store interface {
	ListLeaderboard(ctx context.Context, limit, offset int) ([]store.Agent, error)
	GetMatch(ctx context.Context, id string) (*store.Match, error)
	EconomyStats(ctx context.Context, since time.Time) (*store.EconomyStats, error)
}

type Service struct {
	store Store
	games *game.Registry
	now   func() time.Time
}

func NewService(st Store, games *game.Registry) *Service {
	return &Service{store: st, games: games, now: time.Now}
}

func (s *Service) Leaderboard(ctx context.Context, limit, offset int) (*LeaderboardResponse, error) {
	limit, ok := clampLeaderboardPage(limit, offset)
	if !ok {
		return &LeaderboardResponse{Items: []LeaderboardItem{}, Limit: limit, Offset: offset}, nil
	}
	agents, err := s.store.ListLeaderboard(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err, "list leaderboard")
	}
	out := make([]LeaderboardItem, 0, len(agents))
	for i, a := range agents {
		out = append(out, LeaderboardItem{
			Rank:       offset + i + 1,
			AgentID:    a.ID,
			Name:       a.Name,
			Rating:     a.Rating,
			RankTier:   a.RankTier,
			Wins:       a.Wins,
			Losses:     a.Losses,
			Draws:      a.Draws,
			TotalGames: a.TotalGames,
		})
	}
	return &LeaderboardResponse{Items: out, Limit: limit, Offset: offset}, nil
}

func (s *Service) Match(ctx context.Context, id string) (*store.Match, error) {
	if id == "" {
		return nil, apperr.ErrInvalidRequest.WithReason("match_id is required")
	}
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrMatchNotFound
		}
		return nil, apperr.Internal(err, "load match")
	}
	return m, nil
}

// Stats reports economy-wide totals. Recent matches are those of the last day.
func (s *Service) Stats(ctx context.Context) (*store.EconomyStats, error) {
	st, err := s.store.EconomyStats(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, apperr.Internal(err, "load economy stats")
	}
	return st, nil
}

func (s *Service) Games() *GamesResponse {
	defs := s.games.Definitions()
	out := make([]GameItem, 0, len(defs))
	for _, d := range defs {
		levels := make([]LevelItem, 0, len(d.EntryFees))
		for _, lvl := range d.Levels() {
			levels = append(levels, LevelItem{Level: lvl, EntryFee: d.EntryFees[lvl]})
		}
		out = append(out, GameItem{
			GameType:      d.Type,
			MinPlayers:    d.MinPlayers,
			MaxPlayers:    d.MaxPlayers,
			DurationTicks: d.DurationTicks,
			TickRateMS:    d.TickRate.Milliseconds(),
			PrizeRateBPS:  d.PrizeRateBPS,
			RatingWindow:  d.RatingWindow,
			Levels:        levels,
		})
	}
	return &GamesResponse{Items: out}
}

func clampLeaderboardPage(limit, offset int) (int, bool) {
	if offset >= leaderboardMaxRows {
		return 0, false
	}
	if limit <= 0 {
		limit = 50
	}
	remaining := leaderboardMaxRows - offset
	if limit > remaining {
		limit = remaining
	}
	return limit, true
}
