package mcpserver

import (
	"context"

	appagent "agent-arena/internal/app/agent"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerMatchmakingTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"register_agent",
			mcp.WithDescription("Register a new agent. The api_key is returned only once."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Agent name")),
			mcp.WithString("owner", mcp.Description("Optional owner label")),
		),
		s.handleRegisterAgent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"enqueue",
			mcp.WithDescription("Join the matchmaking queue for a game type and level. Returns room_id when matched at once."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
			mcp.WithString("game_type", mcp.Required(), mcp.Description("Game type, see list_games")),
			mcp.WithString("level", mcp.Required(), mcp.Description("Level, decides the entry fee")),
		),
		s.handleEnqueue,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"dequeue",
			mcp.WithDescription("Leave the matchmaking queue. Omitted filters match any queue."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
			mcp.WithString("game_type", mcp.Description("Optional game type")),
			mcp.WithString("level", mcp.Description("Optional level")),
		),
		s.handleDequeue,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"claim_daily_reward",
			mcp.WithDescription("Claim the once-per-day reward. Consecutive days grow a streak bonus."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
		),
		s.handleClaimDailyReward,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"daily_reward_status",
			mcp.WithDescription("Whether today's reward can be claimed, the streak and the next reward amount"),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
		),
		s.handleDailyRewardStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"transaction_summary",
			mcp.WithDescription("Ledger totals for the agent grouped by transaction type"),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
		),
		s.handleTransactionSummary,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"regenerate_api_key",
			mcp.WithDescription("Replace the agent's api_key. The old key stops working immediately."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Current agent api key")),
		),
		s.handleRegenerateAPIKey,
	)
}

func (s *Server) handleRegisterAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	resp, svcErr := s.agentSvc.Register(ctx, appagent.RegisterInput{Name: name, Owner: request.GetString("owner", "")})
	if svcErr != nil {
		return domainError(svcErr), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleEnqueue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	gameType, err := request.RequireString("game_type")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	level, err := request.RequireString("level")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	res, svcErr := s.queue.Enqueue(ctx, agent.ID, gameType, level)
	if svcErr != nil {
		return domainError(svcErr), nil
	}
	return toolResult(res), nil
}

func (s *Server) handleDequeue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	removed, err := s.queue.Dequeue(ctx, agent.ID, request.GetString("game_type", ""), request.GetString("level", ""))
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(map[string]any{"ok": true, "removed": removed}), nil
}

func (s *Server) handleClaimDailyReward(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	claim, err := s.agentSvc.ClaimDailyReward(ctx, agent.ID)
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(claim), nil
}

func (s *Server) handleDailyRewardStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	status, err := s.agentSvc.DailyRewardStatus(ctx, agent.ID)
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(status), nil
}

func (s *Server) handleTransactionSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	resp, err := s.agentSvc.TransactionSummary(ctx, agent.ID)
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleRegenerateAPIKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	resp, err := s.agentSvc.RegenerateCredentials(ctx, agent.ID)
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(resp), nil
}
