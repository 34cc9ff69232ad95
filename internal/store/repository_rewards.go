package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RewardFunc decides the amount, bonus and streak for today given the most
// recent earlier claim (nil when there is none).
type RewardFunc func(last *DailyReward) (amount, bonus int64, streak int)

func (s *Store) LastDailyReward(ctx context.Context, agentID string) (*DailyReward, error) {
	return scanDailyReward(s.Pool.QueryRow(ctx, `
		SELECT agent_id, reward_date, amount, bonus, streak FROM daily_rewards
		WHERE agent_id = $1
		ORDER BY reward_date DESC
		LIMIT 1`, agentID))
}

func scanDailyReward(row pgx.Row) (*DailyReward, error) {
	var r DailyReward
	var date pgtype.Date
	if err := row.Scan(&r.AgentID, &date, &r.Amount, &r.Bonus, &r.Streak); err != nil {
		return nil, mapNotFound(err)
	}
	r.RewardDate = date.Time
	return &r, nil
}

// ClaimDailyReward credits today's reward at most once per agent and date.
// The agent row is locked first so the streak is read and written atomically.
func (s *Store) ClaimDailyReward(ctx context.Context, agentID string, today time.Time, compute RewardFunc) (DailyReward, BalanceChange, error) {
	var (
		reward DailyReward
		change BalanceChange
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, `SELECT id FROM agents WHERE id = $1 FOR UPDATE`, agentID).Scan(&id); err != nil {
			return mapNotFound(err)
		}
		day := dateParam(today)
		last, err := scanDailyReward(tx.QueryRow(ctx, `
			SELECT agent_id, reward_date, amount, bonus, streak FROM daily_rewards
			WHERE agent_id = $1
			ORDER BY reward_date DESC
			LIMIT 1`, agentID))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if last != nil && !last.RewardDate.Before(day.Time) {
			return ErrAlreadyClaimed
		}
		amount, bonus, streak := compute(last)
		tag, err := tx.Exec(ctx, `
			INSERT INTO daily_rewards (agent_id, reward_date, amount, bonus, streak)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (agent_id, reward_date) DO NOTHING`,
			agentID, day, amount, bonus, streak)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyClaimed
		}
		change, err = applyBalanceChange(ctx, tx, agentID, amount+bonus, TxDailyReward,
			Reference{Type: RefDaily, ID: day.Time.Format("2006-01-02")},
			map[string]any{"streak": streak, "bonus": bonus})
		if err != nil {
			return err
		}
		reward = DailyReward{AgentID: agentID, RewardDate: day.Time, Amount: amount, Bonus: bonus, Streak: streak}
		return nil
	})
	return reward, change, err
}
