package mcpserver

import (
	"context"

	"agent-arena/internal/game"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerGameplayTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"mark_ready",
			mcp.WithDescription("Confirm participation in a matched room. The entry fee is frozen now; the game starts when every player is ready."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
			mcp.WithString("room_id", mcp.Required(), mcp.Description("Room id from enqueue or my_room")),
		),
		s.handleMarkReady,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"submit_action",
			mcp.WithDescription("Queue an action for the next tick. A later action in the same tick replaces the earlier one."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
			mcp.WithString("room_id", mcp.Required(), mcp.Description("Room id")),
			mcp.WithString("action", mcp.Required(), mcp.Description("Action type, see available_actions")),
			mcp.WithObject("params", mcp.Description("Action parameters")),
		),
		s.handleSubmitAction,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"available_actions",
			mcp.WithDescription("List the actions this agent may submit right now"),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
			mcp.WithString("room_id", mcp.Required(), mcp.Description("Room id")),
		),
		s.handleAvailableActions,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"my_room",
			mcp.WithDescription("Room the agent is currently bound to"),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("api_key", mcp.Required(), mcp.Description("Agent api key")),
		),
		s.handleMyRoom,
	)
}

func (s *Server) handleMarkReady(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	res, svcErr := s.rooms.MarkReady(ctx, roomID, agent.ID)
	if svcErr != nil {
		return domainError(svcErr), nil
	}
	return toolResult(res), nil
}

func (s *Server) handleSubmitAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	actionType, err := request.RequireString("action")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	action := game.Action{Type: actionType, Params: stringParams(request.GetArguments()["params"])}
	ack, svcErr := s.rooms.SubmitAction(ctx, agent.ID, roomID, action)
	if svcErr != nil {
		return domainError(svcErr), nil
	}
	return toolResult(ack), nil
}

func (s *Server) handleAvailableActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	res, svcErr := s.rooms.AvailableActions(ctx, agent.ID, roomID)
	if svcErr != nil {
		return domainError(svcErr), nil
	}
	return toolResult(res), nil
}

func (s *Server) handleMyRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, authErr := s.authRequest(ctx, request)
	if authErr != nil {
		return authErr, nil
	}
	view, err := s.rooms.GetRoomByAgent(ctx, agent.ID)
	if err != nil {
		return domainError(err), nil
	}
	return toolResult(view), nil
}
