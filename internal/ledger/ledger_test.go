package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/config"
	"agent-arena/internal/store"
	"agent-arena/internal/testutil"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Store, func()) {
	t.Helper()
	st, cleanup := testutil.OpenTestStore(t)
	l := New(st, config.ArenaConfig{DailyStreakBonus: 500, DailyRewardTZ: "UTC"})
	return l, st, cleanup
}

func TestFreezeAwardRefundRoundTrip(t *testing.T) {
	l, st, cleanup := newTestLedger(t)
	defer cleanup()
	ctx := context.Background()
	a := testutil.MustCreateAgent(t, st, "alpha", 1000)
	ref := store.Reference{Type: store.RefRoom, ID: "room-1"}

	if _, err := l.Freeze(ctx, a, 400, ref); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := l.Refund(ctx, a, 400, ref); err != nil {
		t.Fatalf("refund: %v", err)
	}
	change, err := l.Award(ctx, a, 50, store.Reference{Type: store.RefAdmin, ID: "topup"})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if change.BalanceAfter != 1050 {
		t.Fatalf("expected 1050, got %d", change.BalanceAfter)
	}
	txs, _ := st.ListTransactions(ctx, a, 10, 0)
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
}

func TestFreezeRejectsBadInput(t *testing.T) {
	l, st, cleanup := newTestLedger(t)
	defer cleanup()
	ctx := context.Background()
	a := testutil.MustCreateAgent(t, st, "alpha", 100)

	if _, err := l.Freeze(ctx, a, 0, store.Reference{}); !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.Freeze(ctx, a, 101, store.Reference{}); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := l.Freeze(ctx, "missing", 1, store.Reference{}); !errors.Is(err, apperr.ErrAgentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentFreezeNeverOverdraws(t *testing.T) {
	l, st, cleanup := newTestLedger(t)
	defer cleanup()
	ctx := context.Background()
	a := testutil.MustCreateAgent(t, st, "alpha", 500)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Freeze(ctx, a, 100, store.Reference{}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	bal, _ := st.GetBalance(ctx, a)
	if ok != 5 || bal != 0 {
		t.Fatalf("expected 5 freezes and zero balance, got %d and %d", ok, bal)
	}
}

func TestClaimDailyRewardStreakBonus(t *testing.T) {
	l, st, cleanup := newTestLedger(t)
	defer cleanup()
	ctx := context.Background()
	a := testutil.MustCreateAgent(t, st, "alpha", 0)
	day := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	var last DailyClaim
	for i := 0; i < 7; i++ {
		current := day.AddDate(0, 0, i)
		l.now = func() time.Time { return current }
		claim, err := l.ClaimDailyReward(ctx, a, 500)
		if err != nil {
			t.Fatalf("day %d: %v", i, err)
		}
		last = claim
	}
	if last.Streak != 7 || last.Bonus != 500 || last.Balance != 7*500+500 {
		t.Fatalf("unexpected seventh claim: %+v", last)
	}
	if _, err := l.ClaimDailyReward(ctx, a, 500); !errors.Is(err, apperr.ErrAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}
}

func TestDailyRewardStatusFollowsClaims(t *testing.T) {
	l, st, cleanup := newTestLedger(t)
	defer cleanup()
	ctx := context.Background()
	a := testutil.MustCreateAgent(t, st, "alpha", 0)
	day := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day }

	status, err := l.DailyRewardStatus(ctx, a, 500)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.CanClaim || status.Streak != 1 || status.NextReward != 500 || status.LastClaim != nil {
		t.Fatalf("unexpected fresh status: %+v", status)
	}
	if _, err := l.ClaimDailyReward(ctx, a, 500); err != nil {
		t.Fatalf("claim: %v", err)
	}
	status, err = l.DailyRewardStatus(ctx, a, 500)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CanClaim || status.Streak != 1 || status.LastClaim == nil {
		t.Fatalf("unexpected claimed status: %+v", status)
	}

	next := day.AddDate(0, 0, 1)
	l.now = func() time.Time { return next }
	status, err = l.DailyRewardStatus(ctx, a, 500)
	if err != nil || !status.CanClaim || status.Streak != 2 {
		t.Fatalf("next day status: %+v %v", status, err)
	}
}
