package store

import (
	"context"
	"time"
)

const txTotalsSelect = `
	SELECT type, COUNT(*),
		COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0)::BIGINT,
		COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0)::BIGINT
	FROM transactions`

func (s *Store) queryTxTotals(ctx context.Context, query string, args ...any) ([]TxTotals, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TxTotals{}
	for rows.Next() {
		var t TxTotals
		if err := rows.Scan(&t.Type, &t.Count, &t.TotalIn, &t.TotalOut); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransactionSummary totals one agent's ledger by transaction type.
func (s *Store) TransactionSummary(ctx context.Context, agentID string) ([]TxTotals, error) {
	return s.queryTxTotals(ctx, txTotalsSelect+`
		WHERE agent_id = $1
		GROUP BY type
		ORDER BY type`, agentID)
}

// EconomyStats reads global totals. Matches ended after since count as recent.
func (s *Store) EconomyStats(ctx context.Context, since time.Time) (*EconomyStats, error) {
	var st EconomyStats
	err := s.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM agents),
			(SELECT COALESCE(SUM(balance), 0)::BIGINT FROM agents),
			(SELECT COUNT(*) FROM matches),
			(SELECT COUNT(*) FROM matches WHERE ended_at > $1),
			(SELECT COALESCE(SUM(prize_pool), 0)::BIGINT FROM matches),
			(SELECT COALESCE(SUM(house_fee), 0)::BIGINT FROM matches)`, since,
	).Scan(&st.Agents, &st.TotalBalance, &st.Matches, &st.MatchesLastDay, &st.TotalPrizes, &st.TotalHouseFees)
	if err != nil {
		return nil, err
	}
	st.Transactions, err = s.queryTxTotals(ctx, txTotalsSelect+`
		GROUP BY type
		ORDER BY COUNT(*) DESC, type`)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// RotateAPIKey replaces the agent's key hash. The old key stops resolving at once.
func (s *Store) RotateAPIKey(ctx context.Context, agentID, apiKey string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE agents SET api_key_hash = $2, updated_at = now() WHERE id = $1`,
		agentID, HashAPIKey(apiKey))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
