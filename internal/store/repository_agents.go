package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const agentColumns = `id, name, owner, api_key_hash, balance, rating, rank_tier, status,
	wins, losses, draws, total_games, created_at, updated_at`

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	if err := row.Scan(
		&a.ID, &a.Name, &a.Owner, &a.APIKeyHash, &a.Balance, &a.Rating, &a.RankTier, &a.Status,
		&a.Wins, &a.Losses, &a.Draws, &a.TotalGames, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

// CreateAgent registers an agent with its starting balance. The key is stored hashed.
func (s *Store) CreateAgent(ctx context.Context, name, owner, apiKey string, initialBalance int64) (string, error) {
	id := NewID()
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO agents (id, name, owner, api_key_hash, balance, rating, rank_tier, status)
		VALUES ($1, $2, $3, $4, $5, 1000, $6, $7)`,
		id, name, owner, HashAPIKey(apiKey), initialBalance, RankTier(1000), AgentOffline,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	return scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
}

func (s *Store) GetAgentByAPIKey(ctx context.Context, apiKey string) (*Agent, error) {
	return scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_hash = $1`, HashAPIKey(apiKey)))
}

func (s *Store) GetBalance(ctx context.Context, id string) (int64, error) {
	var balance int64
	if err := s.Pool.QueryRow(ctx, `SELECT balance FROM agents WHERE id = $1`, id).Scan(&balance); err != nil {
		return 0, mapNotFound(err)
	}
	return balance, nil
}

// SetAgentStatus updates presence for every listed agent.
func (s *Store) SetAgentStatus(ctx context.Context, status string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.Pool.Exec(ctx, `UPDATE agents SET status = $1, updated_at = now() WHERE id = ANY($2)`, status, ids)
	return err
}

// ListLeaderboard orders agents by rating, breaking ties by id.
func (s *Store) ListLeaderboard(ctx context.Context, limit, offset int) ([]Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+agentColumns+` FROM agents
		ORDER BY rating DESC, id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
