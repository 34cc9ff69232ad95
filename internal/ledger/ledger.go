// Package ledger owns every balance mutation. Calls for the same agent are
// serialized in process before they reach the row locks in Postgres.
package ledger

import (
	"context"
	"errors"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/config"
	"agent-arena/internal/lock"
	"agent-arena/internal/store"

	"github.com/rs/zerolog/log"
)

type Ledger struct {
	Store *store.Store

	locks       *lock.AgentLock
	streakBonus int64
	loc         *time.Location
	now         func() time.Time
}

func New(s *store.Store, cfg config.ArenaConfig) *Ledger {
	return &Ledger{
		Store:       s,
		locks:       lock.NewAgentLock(),
		streakBonus: cfg.DailyStreakBonus,
		loc:         cfg.Location(),
		now:         time.Now,
	}
}

// Freeze withdraws amount as an entry fee.
func (l *Ledger) Freeze(ctx context.Context, agentID string, amount int64, ref store.Reference) (store.BalanceChange, error) {
	return l.mutate(ctx, agentID, -amount, amount, store.TxEntryFee, ref, nil)
}

func (l *Ledger) Award(ctx context.Context, agentID string, amount int64, ref store.Reference) (store.BalanceChange, error) {
	return l.mutate(ctx, agentID, amount, amount, store.TxPrize, ref, nil)
}

func (l *Ledger) Refund(ctx context.Context, agentID string, amount int64, ref store.Reference) (store.BalanceChange, error) {
	return l.mutate(ctx, agentID, amount, amount, store.TxRefund, ref, nil)
}

func (l *Ledger) mutate(ctx context.Context, agentID string, delta, amount int64, txType string, ref store.Reference, meta any) (store.BalanceChange, error) {
	if amount <= 0 {
		return store.BalanceChange{}, apperr.ErrInvalidAmount
	}
	var change store.BalanceChange
	err := l.locks.WithLock(ctx, agentID, func() error {
		var err error
		change, err = l.Store.ApplyBalanceChange(ctx, agentID, delta, txType, ref, meta)
		return err
	})
	if err != nil {
		return store.BalanceChange{}, mapStoreError(err, apperr.ErrAgentNotFound, "apply "+txType)
	}
	log.Debug().
		Str("agent_id", agentID).
		Str("type", txType).
		Int64("amount", delta).
		Int64("balance_after", change.BalanceAfter).
		Msg("ledger mutation")
	return change, nil
}

// DailyClaim is the result of a successful daily reward claim.
type DailyClaim struct {
	store.DailyReward
	Balance int64 `json:"balance"`
}

// ClaimDailyReward credits baseAmount plus the streak bonus once per calendar
// day in the configured time zone.
func (l *Ledger) ClaimDailyReward(ctx context.Context, agentID string, baseAmount int64) (DailyClaim, error) {
	if baseAmount <= 0 {
		return DailyClaim{}, apperr.ErrInvalidAmount
	}
	today := CalendarDay(l.now(), l.loc)
	var (
		reward store.DailyReward
		change store.BalanceChange
	)
	err := l.locks.WithLock(ctx, agentID, func() error {
		var err error
		reward, change, err = l.Store.ClaimDailyReward(ctx, agentID, today, func(last *store.DailyReward) (int64, int64, int) {
			streak := NextStreak(last, today)
			return baseAmount, StreakBonus(streak, l.streakBonus), streak
		})
		return err
	})
	if err != nil {
		return DailyClaim{}, mapStoreError(err, apperr.ErrAgentNotFound, "claim daily reward")
	}
	log.Info().
		Str("agent_id", agentID).
		Int("streak", reward.Streak).
		Int64("bonus", reward.Bonus).
		Msg("daily reward claimed")
	return DailyClaim{DailyReward: reward, Balance: change.BalanceAfter}, nil
}

// DailyRewardStatus reports whether the agent can claim today and what the
// next claim pays.
func (l *Ledger) DailyRewardStatus(ctx context.Context, agentID string, baseAmount int64) (DailyStatus, error) {
	last, err := l.Store.LastDailyReward(ctx, agentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return DailyStatus{}, apperr.Internal(err, "load daily reward")
	}
	return StatusFor(last, CalendarDay(l.now(), l.loc), baseAmount, l.streakBonus), nil
}

// FreezeEntryFee takes the room's entry fee and marks the agent ready in one
// transaction.
func (l *Ledger) FreezeEntryFee(ctx context.Context, roomID, agentID string) (store.BalanceChange, error) {
	var change store.BalanceChange
	err := l.locks.WithLock(ctx, agentID, func() error {
		var err error
		change, err = l.Store.ReadyPlayer(ctx, roomID, agentID)
		return err
	})
	if err != nil {
		return store.BalanceChange{}, mapStoreError(err, apperr.ErrRoomNotFound, "freeze entry fee")
	}
	return change, nil
}

// Settle writes the result of a finished room.
func (l *Ledger) Settle(ctx context.Context, st store.Settlement) (*store.Match, error) {
	ids := make([]string, 0, len(st.Players))
	for _, p := range st.Players {
		ids = append(ids, p.AgentID)
	}
	release, err := l.locks.LockAll(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "lock settlement agents")
	}
	defer release()
	match, err := l.Store.SettleRoom(ctx, st)
	if err != nil {
		if errors.Is(err, store.ErrRoomStatus) {
			return nil, apperr.ErrRoomNotPlayable
		}
		return nil, mapStoreError(err, apperr.ErrRoomNotFound, "settle room")
	}
	return match, nil
}

// CancelRoom refunds every frozen fee of a waiting room and closes it.
func (l *Ledger) CancelRoom(ctx context.Context, roomID string, agentIDs []string, reason string) ([]store.BalanceChange, error) {
	release, err := l.locks.LockAll(ctx, agentIDs)
	if err != nil {
		return nil, apperr.Internal(err, "lock room agents")
	}
	defer release()
	changes, err := l.Store.CancelRoom(ctx, roomID, reason)
	if err != nil {
		return nil, mapStoreError(err, apperr.ErrRoomNotFound, "cancel room")
	}
	return changes, nil
}

func mapStoreError(err error, notFound *apperr.Error, op string) error {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return apperr.ErrInsufficientFunds
	case errors.Is(err, store.ErrNotFound):
		return notFound
	case errors.Is(err, store.ErrAlreadyClaimed):
		return apperr.ErrAlreadyClaimed
	case errors.Is(err, store.ErrAlreadyReady):
		return apperr.ErrAlreadyReady
	case errors.Is(err, store.ErrNotInRoom):
		return apperr.ErrNotInRoom
	case errors.Is(err, store.ErrRoomStatus):
		return apperr.ErrRoomNotWaiting
	default:
		return apperr.Internal(err, op)
	}
}
