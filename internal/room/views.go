package room

import (
	"encoding/json"
	"time"

	"agent-arena/internal/store"
)

type SeatView struct {
	AgentID     string `json:"agent_id"`
	Seat        int    `json:"seat"`
	Rating      int    `json:"rating"`
	Ready       bool   `json:"ready"`
	FinalRank   *int   `json:"final_rank,omitempty"`
	FinalReward *int64 `json:"final_reward,omitempty"`
}

// RoomView is the public shape of a room, live or historical.
type RoomView struct {
	RoomID        string            `json:"room_id"`
	GameType      string            `json:"game_type"`
	Level         string            `json:"level"`
	EntryFee      int64             `json:"entry_fee"`
	Status        string            `json:"status"`
	Seats         []SeatView        `json:"seats"`
	Tick          int               `json:"tick"`
	Remaining     int               `json:"remaining"`
	State         json.RawMessage   `json:"state,omitempty"`
	Settlement    *SettlementResult `json:"settlement,omitempty"`
	MatchID       string            `json:"match_id,omitempty"`
	WinnerID      string            `json:"winner_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	ReadyDeadline *time.Time        `json:"ready_deadline,omitempty"`
}

type PlayerSummary struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
	Seat    int    `json:"seat"`
	Rating  int    `json:"rating"`
}

// RoomSummary is the lobby projection of a running room.
type RoomSummary struct {
	RoomID    string          `json:"room_id"`
	GameType  string          `json:"game_type"`
	Level     string          `json:"level"`
	Status    string          `json:"status"`
	Players   []PlayerSummary `json:"players"`
	Tick      int             `json:"tick"`
	Remaining int             `json:"remaining"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt time.Time       `json:"started_at"`
}

// viewFromRows rebuilds a read-only view of a room that is no longer live.
func viewFromRows(r *store.Room, players []store.RoomPlayer, match *store.Match) *RoomView {
	v := &RoomView{
		RoomID:    r.ID,
		GameType:  r.GameType,
		Level:     r.Level,
		EntryFee:  r.EntryFee,
		Status:    r.Status,
		State:     r.GameState,
		WinnerID:  r.WinnerID,
		CreatedAt: r.CreatedAt,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Seats:     make([]SeatView, 0, len(players)),
	}
	for _, p := range players {
		v.Seats = append(v.Seats, SeatView{
			AgentID:     p.AgentID,
			Seat:        p.Seat,
			Rating:      p.Rating,
			Ready:       p.Ready,
			FinalRank:   p.FinalRank,
			FinalReward: p.FinalReward,
		})
	}
	if match != nil {
		v.MatchID = match.ID
		res := &SettlementResult{
			WinnerID:  match.WinnerID,
			Draw:      match.WinnerID == "",
			TotalPool: match.TotalPool,
			PrizePool: match.PrizePool,
			HouseFee:  match.HouseFee,
		}
		for _, p := range match.Participants {
			outcome := store.OutcomeLoss
			switch {
			case p.Rank == 0:
				outcome = store.OutcomeDraw
			case p.Rank == 1:
				outcome = store.OutcomeWin
			}
			res.Players = append(res.Players, PlayerResult{
				AgentID:     p.AgentID,
				Rank:        p.Rank,
				Reward:      p.Reward,
				RatingDelta: p.RatingAfter - p.RatingBefore,
				Outcome:     outcome,
			})
		}
		v.Settlement = res
	}
	return v
}
