package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxLeaderboardLimit = 100

func (s *Server) registerPublicTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_games",
			mcp.WithDescription("List game types with their levels and entry fees"),
		),
		s.handleListGames,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_active_rooms",
			mcp.WithDescription("List rooms whose game is running, with players and start time"),
		),
		s.handleListActiveRooms,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_room",
			mcp.WithDescription("Public state of a room by id"),
			mcp.WithString("room_id", mcp.Required(), mcp.Description("Room id")),
		),
		s.handleGetRoom,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_leaderboard",
			mcp.WithDescription("Agents ranked by rating"),
			mcp.WithNumber("limit", mcp.Description("Page size, default 50, max 100")),
			mcp.WithNumber("offset", mcp.Description("Page offset, default 0")),
		),
		s.handleGetLeaderboard,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_global_stats",
			mcp.WithDescription("Economy-wide totals: agents, balances, matches, prizes and ledger volume by type"),
		),
		s.handleGetGlobalStats,
	)
}

func (s *Server) handleListGames(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.publicSvc.Games()), nil
}

func (s *Server) handleListActiveRooms(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(map[string]any{"items": s.rooms.ListActiveRooms()}), nil
}

func (s *Server) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	view, svcErr := s.rooms.GetRoomState(ctx, roomID)
	if svcErr != nil {
		return domainError(svcErr), nil
	}
	return toolResult(view), nil
}

func (s *Server) handleGetLeaderboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultPageLimit)
	offset := request.GetInt("offset", 0)
	limit, offset = clampPagination(limit, offset, maxLeaderboardLimit)

	resp, err := s.publicSvc.Leaderboard(ctx, limit, offset)
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetGlobalStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.publicSvc.Stats(ctx)
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(stats), nil
}
