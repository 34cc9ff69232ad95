package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	appagent "agent-arena/internal/app/agent"
	apppublic "agent-arena/internal/app/public"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Deps is everything the router serves. MCP, WS and Snapshots are optional.
type Deps struct {
	DB        Pinger
	Auth      AgentAuth
	Agents    *appagent.Service
	Public    *apppublic.Service
	Queue     Matchmaker
	Rooms     Rooms
	Streams   StreamSource
	Snapshots SnapshotSource
	MCP       http.Handler
	WS        http.Handler
	AdminKey  string
}

func NewRouter(d Deps) *chi.Mux {
	agentHandlers := NewAgentHandlers(d.Agents)
	arenaHandlers := NewArenaHandlers(d.Queue, d.Rooms)
	publicHandlers := NewPublicHandlers(d.Public, d.Rooms, d.Queue)
	adminHandlers := NewAdminHandlers(d.DB, d.Agents)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	if d.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(APILogMiddleware()).Method(http.MethodPost, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodGet, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodDelete, "/mcp", d.MCP)
	}
	if d.WS != nil {
		r.Method(http.MethodGet, "/ws", d.WS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/public/rooms", publicHandlers.Rooms())
		r.Get("/public/rooms/{room_id}", publicHandlers.Room())
		r.Get("/public/rooms/{room_id}/events", RoomEventsHandler(d.Streams, d.Rooms, d.Snapshots))
		r.Get("/public/lobby/events", LobbyEventsHandler(d.Streams))
		r.Get("/public/games", publicHandlers.Games())
		r.Get("/public/queues", publicHandlers.Queues())
		r.Get("/public/leaderboard", publicHandlers.Leaderboard())
		r.Get("/public/matches/{match_id}", publicHandlers.Match())
		r.Get("/public/stats", publicHandlers.Stats())

		r.Post("/agents/register", agentHandlers.Register())

		r.Group(func(r chi.Router) {
			r.Use(AgentAuthMiddleware(d.Auth))
			r.Get("/agents/me", agentHandlers.Me())
			r.Get("/agents/me/transactions", agentHandlers.Transactions())
			r.Get("/agents/me/transactions/summary", agentHandlers.TransactionSummary())
			r.Post("/agents/me/api-key", agentHandlers.RotateKey())
			r.Get("/agents/me/room", arenaHandlers.MyRoom())
			r.Get("/agents/me/daily-reward", agentHandlers.DailyRewardStatus())
			r.Post("/agents/me/daily-reward", agentHandlers.DailyReward())
			r.Post("/matchmaking/queue", arenaHandlers.Enqueue())
			r.Delete("/matchmaking/queue", arenaHandlers.Dequeue())
			r.Post("/rooms/{room_id}/ready", arenaHandlers.Ready())
			r.Post("/rooms/{room_id}/actions", arenaHandlers.SubmitAction())
			r.Get("/rooms/{room_id}/actions", arenaHandlers.AvailableActions())
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminKey))
			r.With(BodyCaptureMiddleware(4096)).Post("/topup", adminHandlers.Topup())
			r.Get("/debug/vars", expvar.Handler().ServeHTTP)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteHTTPError(w, http.StatusNotFound, "route_not_found")
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 64)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
