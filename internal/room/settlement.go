package room

import (
	"math"
	"math/rand"

	"agent-arena/internal/store"
)

// PlayerRating is one seat as seen by the settlement math.
type PlayerRating struct {
	AgentID string
	Rating  int
	Frozen  int64
}

type SettlementInput struct {
	EntryFee     int64
	PrizeRateBPS int64
	Players      []PlayerRating
	WinnerID     string
	Draw         bool
}

type PlayerResult struct {
	AgentID     string `json:"agent_id"`
	Rank        int    `json:"rank"`
	Reward      int64  `json:"reward"`
	RewardType  string `json:"reward_type,omitempty"`
	RatingDelta int    `json:"rating_delta"`
	Outcome     string `json:"outcome"`
}

type SettlementResult struct {
	WinnerID  string         `json:"winner_id,omitempty"`
	Draw      bool           `json:"draw"`
	TotalPool int64          `json:"total_pool"`
	PrizePool int64          `json:"prize_pool"`
	HouseFee  int64          `json:"house_fee"`
	Players   []PlayerResult `json:"players"`
}

// RatingPolicy returns the winner's delta and one delta per loser.
type RatingPolicy interface {
	Deltas(winner PlayerRating, losers []PlayerRating) (int, []int)
}

// ComputeSettlement splits the pool. The winner takes floor(total x rate),
// the house keeps the remainder. A draw, or a winner who is not seated,
// refunds every frozen fee and leaves ratings untouched.
func ComputeSettlement(in SettlementInput, policy RatingPolicy) SettlementResult {
	n := int64(len(in.Players))
	total := in.EntryFee * n
	winnerIdx := -1
	if !in.Draw {
		for i, p := range in.Players {
			if p.AgentID == in.WinnerID {
				winnerIdx = i
				break
			}
		}
	}

	if winnerIdx < 0 {
		res := SettlementResult{Draw: true, Players: make([]PlayerResult, 0, n)}
		for _, p := range in.Players {
			res.TotalPool += p.Frozen
			r := PlayerResult{AgentID: p.AgentID, Rank: 0, Reward: p.Frozen, Outcome: store.OutcomeDraw}
			if p.Frozen > 0 {
				r.RewardType = store.TxRefund
			}
			res.Players = append(res.Players, r)
		}
		return res
	}

	prize := total * in.PrizeRateBPS / 10000
	res := SettlementResult{
		WinnerID:  in.WinnerID,
		TotalPool: total,
		PrizePool: prize,
		HouseFee:  total - prize,
		Players:   make([]PlayerResult, 0, n),
	}
	winner := in.Players[winnerIdx]
	losers := make([]PlayerRating, 0, len(in.Players)-1)
	for i, p := range in.Players {
		if i != winnerIdx {
			losers = append(losers, p)
		}
	}
	winDelta, loseDeltas := 0, make([]int, len(losers))
	if policy != nil && len(losers) > 0 {
		winDelta, loseDeltas = policy.Deltas(winner, losers)
	}
	li := 0
	for i, p := range in.Players {
		if i == winnerIdx {
			r := PlayerResult{AgentID: p.AgentID, Rank: 1, Reward: prize, RatingDelta: winDelta, Outcome: store.OutcomeWin}
			if prize > 0 {
				r.RewardType = store.TxPrize
			}
			res.Players = append(res.Players, r)
			continue
		}
		res.Players = append(res.Players, PlayerResult{
			AgentID:     p.AgentID,
			Rank:        2,
			RatingDelta: loseDeltas[li],
			Outcome:     store.OutcomeLoss,
		})
		li++
	}
	return res
}

// EloPolicy scores the winner against each loser and splits the K factor
// across the n-1 pairings. Every pairing moves at least one point.
type EloPolicy struct {
	K int
}

func (p EloPolicy) Deltas(winner PlayerRating, losers []PlayerRating) (int, []int) {
	k := p.K
	if k <= 0 {
		k = 32
	}
	out := make([]int, len(losers))
	gain := 0
	for i, l := range losers {
		expected := 1 / (1 + math.Pow(10, float64(l.Rating-winner.Rating)/400))
		d := int(math.Round(float64(k) * (1 - expected) / float64(len(losers))))
		if d < 1 {
			d = 1
		}
		out[i] = -d
		gain += d
	}
	return gain, out
}

// BandedPolicy gives the winner +15..+24 and each loser -10..-14.
type BandedPolicy struct {
	Intn func(n int) int
}

func (p BandedPolicy) Deltas(_ PlayerRating, losers []PlayerRating) (int, []int) {
	intn := p.Intn
	if intn == nil {
		intn = rand.Intn
	}
	out := make([]int, len(losers))
	for i := range losers {
		out[i] = -(10 + intn(5))
	}
	return 15 + intn(10), out
}

// PolicyByName resolves RATING_POLICY; unknown names fall back to elo.
func PolicyByName(name string, k int) RatingPolicy {
	if name == "banded" {
		return BandedPolicy{}
	}
	return EloPolicy{K: k}
}
