package mcpserver

import (
	"context"
	"net/http"
	"strings"

	appagent "agent-arena/internal/app/agent"
	apppublic "agent-arena/internal/app/public"
	"agent-arena/internal/game"
	"agent-arena/internal/matchmaking"
	"agent-arena/internal/room"
	"agent-arena/internal/store"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Auth interface {
	GetAgentByAPIKey(ctx context.Context, apiKey string) (*store.Agent, error)
}

type Matchmaker interface {
	Enqueue(ctx context.Context, agentID, gameType, level string) (matchmaking.EnqueueResult, error)
	Dequeue(ctx context.Context, agentID, gameType, level string) (bool, error)
}

type Rooms interface {
	MarkReady(ctx context.Context, roomID, agentID string) (room.ReadyResult, error)
	SubmitAction(ctx context.Context, agentID, roomID string, a game.Action) (game.Ack, error)
	AvailableActions(ctx context.Context, agentID, roomID string) (room.AvailableActions, error)
	GetRoomState(ctx context.Context, roomID string) (*room.RoomView, error)
	GetRoomByAgent(ctx context.Context, agentID string) (*room.RoomView, error)
	ListActiveRooms() []room.RoomSummary
}

type Deps struct {
	Auth   Auth
	Agents *appagent.Service
	Public *apppublic.Service
	Queue  Matchmaker
	Rooms  Rooms
}

type Server struct {
	auth      Auth
	agentSvc  *appagent.Service
	publicSvc *apppublic.Service
	queue     Matchmaker
	rooms     Rooms

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(d Deps, version string) *Server {
	mcpSrv := server.NewMCPServer(
		"agent-arena",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		auth:       d.Auth,
		agentSvc:   d.Agents,
		publicSvc:  d.Public,
		queue:      d.Queue,
		rooms:      d.Rooms,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerPublicTools()
	s.registerMatchmakingTools()
	s.registerGameplayTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"room://{room_id}/state",
			"room_state",
			mcp.WithTemplateDescription("Public state of a room by id, live or finished"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := string(request.Params.URI)
			if !strings.HasPrefix(raw, "room://") || !strings.HasSuffix(raw, "/state") {
				return nil, nil
			}
			roomID := strings.TrimSuffix(strings.TrimPrefix(raw, "room://"), "/state")
			if roomID == "" {
				return nil, nil
			}
			view, err := s.rooms.GetRoomState(ctx, roomID)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(view)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}

func (s *Server) authAgent(ctx context.Context, agentID, apiKey string) (*store.Agent, *mcp.CallToolResult) {
	agentID = strings.TrimSpace(agentID)
	apiKey = strings.TrimSpace(apiKey)
	if agentID == "" || apiKey == "" {
		return nil, toolError("invalid_request", "agent_id and api_key are required")
	}
	agent, err := s.auth.GetAgentByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, toolError("unauthorized", "invalid api_key")
	}
	if agent.ID != agentID {
		return nil, toolError("unauthorized", "agent_id does not match api_key")
	}
	return agent, nil
}

// authRequest pulls agent_id and api_key from the call and authenticates them.
func (s *Server) authRequest(ctx context.Context, request mcp.CallToolRequest) (*store.Agent, *mcp.CallToolResult) {
	agentID, err := request.RequireString("agent_id")
	if err != nil {
		return nil, toolError("invalid_request", err.Error())
	}
	apiKey, err := request.RequireString("api_key")
	if err != nil {
		return nil, toolError("invalid_request", err.Error())
	}
	return s.authAgent(ctx, agentID, apiKey)
}
