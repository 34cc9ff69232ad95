package store

import (
	"encoding/json"
	"time"
)

const (
	AgentOffline  = "offline"
	AgentOnline   = "online"
	AgentMatching = "matching"
	AgentInGame   = "in_game"

	RoomWaiting = "waiting"
	RoomPlaying = "playing"
	RoomEnded   = "ended"
	RoomClosed  = "closed"

	TxEntryFee    = "entry_fee"
	TxPrize       = "prize"
	TxRefund      = "refund"
	TxDailyReward = "daily_reward"

	RefRoom  = "room"
	RefMatch = "match"
	RefDaily = "daily"
	RefAdmin = "admin"
)

type Agent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner,omitempty"`
	APIKeyHash string    `json:"-"`
	Balance    int64     `json:"balance"`
	Rating     int       `json:"rating"`
	RankTier   string    `json:"rank_tier"`
	Status     string    `json:"status"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Draws      int       `json:"draws"`
	TotalGames int       `json:"total_games"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Room struct {
	ID        string          `json:"id"`
	GameType  string          `json:"game_type"`
	Level     string          `json:"level"`
	EntryFee  int64           `json:"entry_fee"`
	Status    string          `json:"status"`
	WinnerID  string          `json:"winner_id,omitempty"`
	GameState json.RawMessage `json:"game_state,omitempty"`
	EventLog  json.RawMessage `json:"event_log,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
}

type RoomPlayer struct {
	RoomID      string `json:"room_id"`
	AgentID     string `json:"agent_id"`
	Seat        int    `json:"seat"`
	Rating      int    `json:"rating"`
	Ready       bool   `json:"ready"`
	FrozenFee   int64  `json:"frozen_fee"`
	FinalRank   *int   `json:"final_rank,omitempty"`
	FinalReward *int64 `json:"final_reward,omitempty"`
}

type Match struct {
	ID            string             `json:"id"`
	RoomID        string             `json:"room_id"`
	GameType      string             `json:"game_type"`
	Level         string             `json:"level"`
	WinnerID      string             `json:"winner_id,omitempty"`
	TotalPool     int64              `json:"total_pool"`
	PrizePool     int64              `json:"prize_pool"`
	HouseFee      int64              `json:"house_fee"`
	DurationTicks int                `json:"duration_ticks"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	EndedAt       time.Time          `json:"ended_at"`
	Participants  []MatchParticipant `json:"participants"`
}

type MatchParticipant struct {
	AgentID      string `json:"agent_id"`
	Rank         int    `json:"rank"`
	Reward       int64  `json:"reward"`
	RatingBefore int    `json:"rating_before"`
	RatingAfter  int    `json:"rating_after"`
}

type Transaction struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	Type          string          `json:"type"`
	Amount        int64           `json:"amount"`
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type DailyReward struct {
	AgentID    string    `json:"agent_id"`
	RewardDate time.Time `json:"reward_date"`
	Amount     int64     `json:"amount"`
	Bonus      int64     `json:"bonus"`
	Streak     int       `json:"streak"`
}

// TxTotals aggregates transactions of one type. TotalOut is a magnitude.
type TxTotals struct {
	Type     string `json:"type"`
	Count    int64  `json:"count"`
	TotalIn  int64  `json:"total_in"`
	TotalOut int64  `json:"total_out"`
}

// EconomyStats is the economy-wide view across agents, matches and the ledger.
type EconomyStats struct {
	Agents         int64      `json:"agents"`
	TotalBalance   int64      `json:"total_balance"`
	Matches        int64      `json:"matches"`
	MatchesLastDay int64      `json:"matches_24h"`
	TotalPrizes    int64      `json:"total_prizes"`
	TotalHouseFees int64      `json:"total_house_fees"`
	Transactions   []TxTotals `json:"transactions"`
}

// Reference links a transaction to the entity that caused it.
type Reference struct {
	Type string
	ID   string
}

// BalanceChange is the outcome of one ledger mutation.
type BalanceChange struct {
	TransactionID string `json:"transaction_id"`
	AgentID       string `json:"agent_id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
}

// Settlement is everything written when a room ends.
type Settlement struct {
	RoomID        string
	MatchID       string
	GameType      string
	Level         string
	WinnerID      string
	TotalPool     int64
	PrizePool     int64
	HouseFee      int64
	DurationTicks int
	StartedAt     *time.Time
	EndedAt       time.Time
	GameState     json.RawMessage
	EventLog      json.RawMessage
	Players       []SettlementPlayer
}

type SettlementPlayer struct {
	AgentID     string
	Rank        int
	Reward      int64
	RewardType  string
	RatingDelta int
	Outcome     string
}

const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomeDraw = "draw"
)

// RankTier maps a rating onto its display tier.
func RankTier(rating int) string {
	switch {
	case rating >= 2500:
		return "master"
	case rating >= 2000:
		return "diamond"
	case rating >= 1500:
		return "gold"
	case rating >= 1200:
		return "silver"
	default:
		return "bronze"
	}
}
