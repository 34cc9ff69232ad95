package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"agent-arena/internal/apperr"
	"agent-arena/internal/ledger"
	"agent-arena/internal/store"

	"github.com/rs/zerolog/log"
)

const maxNameLen = 64

type Store interface {
	CreateAgent(ctx context.Context, name, owner, apiKey string, initialBalance int64) (string, error)
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
	ListTransactions(ctx context.Context, agentID string, limit, offset int) ([]store.Transaction, error)
	TransactionSummary(ctx context.Context, agentID string) ([]store.TxTotals, error)
	RotateAPIKey(ctx context.Context, agentID, apiKey string) error
}

type Funds interface {
	Award(ctx context.Context, agentID string, amount int64, ref store.Reference) (store.BalanceChange, error)
	ClaimDailyReward(ctx context.Context, agentID string, baseAmount int64) (ledger.DailyClaim, error)
	DailyRewardStatus(ctx context.Context, agentID string, baseAmount int64) (ledger.DailyStatus, error)
}

type Service struct {
	store          Store
	funds          Funds
	initialBalance int64
	dailyBase      int64
}

func NewService(st Store, funds Funds, initialBalance, dailyBase int64) *Service {
	return &Service{store: st, funds: funds, initialBalance: initialBalance, dailyBase: dailyBase}
}

func newAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "ak_" + hex.EncodeToString(b), nil
}

// Register creates an agent with the starting balance. The starting balance
// is the opening state of the account, not a ledger transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResponse, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, ErrNameRequired
	case utf8.RuneCountInString(name) > maxNameLen:
		return nil, ErrNameTooLong
	}
	apiKey, err := newAPIKey()
	if err != nil {
		return nil, apperr.Internal(err, "generate api key")
	}
	id, err := s.store.CreateAgent(ctx, name, strings.TrimSpace(in.Owner), apiKey, s.initialBalance)
	if err != nil {
		return nil, apperr.Internal(err, "create agent")
	}
	log.Info().Str("agent_id", id).Str("name", name).Msg("agent registered")
	return &RegisterResponse{AgentID: id, Name: name, APIKey: apiKey, Balance: s.initialBalance}, nil
}

func (s *Service) Me(ctx context.Context, agentID string) (*MeResponse, error) {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrAgentNotFound
		}
		return nil, apperr.Internal(err, "load agent")
	}
	return &MeResponse{
		AgentID:    a.ID,
		Name:       a.Name,
		Owner:      a.Owner,
		Status:     a.Status,
		Balance:    a.Balance,
		Rating:     a.Rating,
		RankTier:   a.RankTier,
		Wins:       a.Wins,
		Losses:     a.Losses,
		Draws:      a.Draws,
		TotalGames: a.TotalGames,
		CreatedAt:  a.CreatedAt,
	}, nil
}

func (s *Service) Transactions(ctx context.Context, agentID string, limit, offset int) (*TransactionsResponse, error) {
	items, err := s.store.ListTransactions(ctx, agentID, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err, "list transactions")
	}
	if items == nil {
		items = []store.Transaction{}
	}
	return &TransactionsResponse{Items: items, Limit: limit, Offset: offset}, nil
}

// TransactionSummary totals the agent's ledger by transaction type.
func (s *Service) TransactionSummary(ctx context.Context, agentID string) (*TransactionSummaryResponse, error) {
	items, err := s.store.TransactionSummary(ctx, agentID)
	if err != nil {
		return nil, apperr.Internal(err, "summarize transactions")
	}
	resp := &TransactionSummaryResponse{AgentID: agentID, Items: items}
	if resp.Items == nil {
		resp.Items = []store.TxTotals{}
	}
	for _, t := range resp.Items {
		resp.Net += t.TotalIn - t.TotalOut
	}
	return resp, nil
}

func (s *Service) ClaimDailyReward(ctx context.Context, agentID string) (ledger.DailyClaim, error) {
	return s.funds.ClaimDailyReward(ctx, agentID, s.dailyBase)
}

func (s *Service) DailyRewardStatus(ctx context.Context, agentID string) (ledger.DailyStatus, error) {
	return s.funds.DailyRewardStatus(ctx, agentID, s.dailyBase)
}

// RegenerateCredentials issues a new API key. The previous key stops
// authenticating as soon as the update commits.
func (s *Service) RegenerateCredentials(ctx context.Context, agentID string) (*CredentialsResponse, error) {
	apiKey, err := newAPIKey()
	if err != nil {
		return nil, apperr.Internal(err, "generate api key")
	}
	if err := s.store.RotateAPIKey(ctx, agentID, apiKey); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrAgentNotFound
		}
		return nil, apperr.Internal(err, "rotate api key")
	}
	log.Info().Str("agent_id", agentID).Msg("api key rotated")
	return &CredentialsResponse{AgentID: agentID, APIKey: apiKey}, nil
}

// Topup credits an agent from the admin surface.
func (s *Service) Topup(ctx context.Context, in TopupInput) (store.BalanceChange, error) {
	if strings.TrimSpace(in.AgentID) == "" {
		return store.BalanceChange{}, apperr.ErrInvalidRequest.WithReason("agent_id is required")
	}
	ref := store.Reference{Type: store.RefAdmin, ID: strings.TrimSpace(in.Note)}
	if ref.ID == "" {
		ref.ID = store.NewID()
	}
	change, err := s.funds.Award(ctx, in.AgentID, in.Amount, ref)
	if err != nil {
		return store.BalanceChange{}, err
	}
	log.Info().Str("agent_id", in.AgentID).Int64("amount", in.Amount).Str("reference", ref.ID).Msg("admin topup")
	return change, nil
}
