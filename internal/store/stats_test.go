package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-arena/internal/store"
	"agent-arena/internal/testutil"
)

func TestTransactionSummaryAndEconomyStats(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()
	a := testutil.MustCreateAgent(t, st, "alpha", 1000)
	b := testutil.MustCreateAgent(t, st, "beta", 500)

	if _, err := st.ApplyBalanceChange(ctx, a, -100, store.TxEntryFee, store.Reference{Type: store.RefRoom, ID: "r1"}, nil); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := st.ApplyBalanceChange(ctx, a, -50, store.TxEntryFee, store.Reference{Type: store.RefRoom, ID: "r2"}, nil); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := st.ApplyBalanceChange(ctx, a, 190, store.TxPrize, store.Reference{Type: store.RefMatch, ID: "m1"}, nil); err != nil {
		t.Fatalf("award: %v", err)
	}
	if _, err := st.ApplyBalanceChange(ctx, b, 30, store.TxRefund, store.Reference{Type: store.RefRoom, ID: "r3"}, nil); err != nil {
		t.Fatalf("refund: %v", err)
	}

	sum, err := st.TransactionSummary(ctx, a)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum) != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum[0] != (store.TxTotals{Type: store.TxEntryFee, Count: 2, TotalIn: 0, TotalOut: 150}) {
		t.Fatalf("entry fee totals: %+v", sum[0])
	}
	if sum[1] != (store.TxTotals{Type: store.TxPrize, Count: 1, TotalIn: 190, TotalOut: 0}) {
		t.Fatalf("prize totals: %+v", sum[1])
	}
	empty, err := st.TransactionSummary(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty summary = %+v err = %v", empty, err)
	}

	stats, err := st.EconomyStats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("economy stats: %v", err)
	}
	if stats.Agents != 2 || stats.TotalBalance != 1040+530 || stats.Matches != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.Transactions) != 3 || stats.Transactions[0].Type != store.TxEntryFee {
		t.Fatalf("unexpected transaction totals: %+v", stats.Transactions)
	}
}

func TestRotateAPIKey(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()
	a := testutil.MustCreateAgent(t, st, "alpha", 0)

	if err := st.RotateAPIKey(ctx, a, "ak_fresh"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := st.GetAgentByAPIKey(ctx, "alpha-key"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old key still resolves: %v", err)
	}
	got, err := st.GetAgentByAPIKey(ctx, "ak_fresh")
	if err != nil || got.ID != a {
		t.Fatalf("new key lookup: %+v %v", got, err)
	}
	if err := st.RotateAPIKey(ctx, "ghost", "ak_x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
