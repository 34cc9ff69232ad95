package room

import (
	"testing"

	"agent-arena/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func seats(fee int64, ratings ...int) []PlayerRating {
	out := make([]PlayerRating, len(ratings))
	for i, r := range ratings {
		out[i] = PlayerRating{AgentID: string(rune('a' + i)), Rating: r, Frozen: fee}
	}
	return out
}

func TestComputeSettlementWinner(t *testing.T) {
	res := ComputeSettlement(SettlementInput{
		EntryFee:     100,
		PrizeRateBPS: 9500,
		Players:      seats(100, 1000, 1000, 1000),
		WinnerID:     "b",
	}, EloPolicy{K: 32})

	assert.Equal(t, int64(300), res.TotalPool)
	assert.Equal(t, int64(285), res.PrizePool)
	assert.Equal(t, int64(15), res.HouseFee)
	require.Len(t, res.Players, 3)
	assert.Equal(t, PlayerResult{AgentID: "b", Rank: 1, Reward: 285, RewardType: store.TxPrize, RatingDelta: 16, Outcome: store.OutcomeWin}, res.Players[1])
	assert.Equal(t, 2, res.Players[0].Rank)
	assert.Equal(t, -8, res.Players[0].RatingDelta)
	assert.Equal(t, int64(0), res.Players[2].Reward)
}

func TestComputeSettlementHeadsUp(t *testing.T) {
	res := ComputeSettlement(SettlementInput{
		EntryFee:     100,
		PrizeRateBPS: 9500,
		Players:      seats(100, 1200, 1200),
		WinnerID:     "a",
	}, EloPolicy{K: 32})

	assert.Equal(t, int64(200), res.TotalPool)
	assert.Equal(t, int64(190), res.PrizePool)
	assert.Equal(t, int64(10), res.HouseFee)
	assert.Equal(t, int64(190), res.Players[0].Reward)
	assert.Equal(t, int64(0), res.Players[1].Reward)
	assert.Equal(t, 16, res.Players[0].RatingDelta)
	assert.Equal(t, -16, res.Players[1].RatingDelta)
}

func TestComputeSettlementFloorsPrize(t *testing.T) {
	res := ComputeSettlement(SettlementInput{
		EntryFee: 333, PrizeRateBPS: 9500, Players: seats(333, 1000, 1000), WinnerID: "a",
	}, nil)
	assert.Equal(t, int64(632), res.PrizePool)
	assert.Equal(t, int64(34), res.HouseFee)
	assert.Equal(t, 0, res.Players[0].RatingDelta)
}

func TestComputeSettlementDrawRefunds(t *testing.T) {
	players := seats(500, 1200, 900)
	players[1].Frozen = 0
	res := ComputeSettlement(SettlementInput{
		EntryFee: 500, PrizeRateBPS: 9500, Players: players, Draw: true,
	}, EloPolicy{K: 32})
	assert.True(t, res.Draw)
	assert.Equal(t, int64(0), res.HouseFee)
	assert.Equal(t, int64(500), res.TotalPool)
	assert.Equal(t, PlayerResult{AgentID: "a", Rank: 0, Reward: 500, RewardType: store.TxRefund, Outcome: store.OutcomeDraw}, res.Players[0])
	assert.Equal(t, PlayerResult{AgentID: "b", Rank: 0, Reward: 0, Outcome: store.OutcomeDraw}, res.Players[1])
}

func TestComputeSettlementUnknownWinnerIsDraw(t *testing.T) {
	res := ComputeSettlement(SettlementInput{
		EntryFee: 100, PrizeRateBPS: 9500, Players: seats(100, 1000, 1000), WinnerID: "zz",
	}, EloPolicy{})
	assert.True(t, res.Draw)
}

func TestEloFavoursUnderdog(t *testing.T) {
	underdogWin, _ := EloPolicy{K: 32}.Deltas(PlayerRating{Rating: 1000}, []PlayerRating{{Rating: 1400}})
	favouriteWin, _ := EloPolicy{K: 32}.Deltas(PlayerRating{Rating: 1400}, []PlayerRating{{Rating: 1000}})
	assert.Greater(t, underdogWin, favouriteWin)
	assert.GreaterOrEqual(t, favouriteWin, 1)
}

func TestBandedPolicyRanges(t *testing.T) {
	win, lose := BandedPolicy{Intn: func(n int) int { return n - 1 }}.Deltas(PlayerRating{}, make([]PlayerRating, 2))
	assert.Equal(t, 24, win)
	assert.Equal(t, []int{-14, -14}, lose)
	win, lose = BandedPolicy{Intn: func(int) int { return 0 }}.Deltas(PlayerRating{}, make([]PlayerRating, 1))
	assert.Equal(t, 15, win)
	assert.Equal(t, []int{-10}, lose)
	assert.IsType(t, BandedPolicy{}, PolicyByName("banded", 0))
	assert.IsType(t, EloPolicy{}, PolicyByName("whatever", 0))
}

func TestSettlementConservesPool(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 4).Draw(t, "players")
		fee := rapid.Int64Range(0, 1_000_000).Draw(t, "fee")
		bps := rapid.Int64Range(0, 10000).Draw(t, "bps")
		ratings := rapid.SliceOfN(rapid.IntRange(0, 3000), n, n).Draw(t, "ratings")
		draw := rapid.Bool().Draw(t, "draw")
		winner := rapid.IntRange(0, n-1).Draw(t, "winner")

		players := seats(fee, ratings...)
		res := ComputeSettlement(SettlementInput{
			EntryFee: fee, PrizeRateBPS: bps, Players: players,
			WinnerID: players[winner].AgentID, Draw: draw,
		}, EloPolicy{K: 32})

		var paid int64
		deltaSum := 0
		for _, p := range res.Players {
			if p.Reward < 0 {
				t.Fatalf("negative reward %d", p.Reward)
			}
			paid += p.Reward
			deltaSum += p.RatingDelta
		}
		if paid+res.HouseFee != res.TotalPool {
			t.Fatalf("paid %d + house %d != total %d", paid, res.HouseFee, res.TotalPool)
		}
		if res.TotalPool != fee*int64(n) {
			t.Fatalf("total %d != fee x n", res.TotalPool)
		}
		if deltaSum != 0 {
			t.Fatalf("rating deltas not zero-sum: %d", deltaSum)
		}
		if res.HouseFee < 0 {
			t.Fatalf("negative house fee")
		}
	})
}
