package agent

import (
	"time"

	"agent-arena/internal/store"
)

type RegisterInput struct {
	Name  string
	Owner string
}

// RegisterResponse carries the only copy of the API key the server hands out.
type RegisterResponse struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	APIKey  string `json:"api_key"`
	Balance int64  `json:"balance"`
}

type MeResponse struct {
	AgentID    string    `json:"agent_id"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner,omitempty"`
	Status     string    `json:"status"`
	Balance    int64     `json:"balance"`
	Rating     int       `json:"rating"`
	RankTier   string    `json:"rank_tier"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Draws      int       `json:"draws"`
	TotalGames int       `json:"total_games"`
	CreatedAt  time.Time `json:"created_at"`
}

type TransactionsResponse struct {
	Items  []store.Transaction `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type TransactionSummaryResponse struct {
	AgentID string           `json:"agent_id"`
	Items   []store.TxTotals `json:"items"`
	Net     int64            `json:"net"`
}

// CredentialsResponse carries a freshly rotated key, shown once.
type CredentialsResponse struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

type TopupInput struct {
	AgentID string `json:"agent_id"`
	Amount  int64  `json:"amount"`
	Note    string `json:"note"`
}
