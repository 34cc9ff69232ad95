package httptransport

import (
	"context"
	"net/http"

	"agent-arena/internal/game"
	"agent-arena/internal/matchmaking"
	"agent-arena/internal/room"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Matchmaker interface {
	Enqueue(ctx context.Context, agentID, gameType, level string) (matchmaking.EnqueueResult, error)
	Dequeue(ctx context.Context, agentID, gameType, level string) (bool, error)
	Snapshot() []matchmaking.PoolStats
}

type Rooms interface {
	MarkReady(ctx context.Context, roomID, agentID string) (room.ReadyResult, error)
	SubmitAction(ctx context.Context, agentID, roomID string, a game.Action) (game.Ack, error)
	AvailableActions(ctx context.Context, agentID, roomID string) (room.AvailableActions, error)
	GetRoomState(ctx context.Context, roomID string) (*room.RoomView, error)
	GetRoomByAgent(ctx context.Context, agentID string) (*room.RoomView, error)
	ListActiveRooms() []room.RoomSummary
}

// ArenaHandlers serve the authenticated queue and room operations.
type ArenaHandlers struct {
	queue Matchmaker
	rooms Rooms
}

func NewArenaHandlers(queue Matchmaker, rooms Rooms) *ArenaHandlers {
	return &ArenaHandlers{queue: queue, rooms: rooms}
}

type queueRequest struct {
	GameType string `json:"game_type"`
	Level    string `json:"level"`
}

func (h *ArenaHandlers) Enqueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var body queueRequest
		if err := decodeBody(r, &body); err != nil {
			WriteAppError(w, r, err)
			return
		}
		res, err := h.queue.Enqueue(r.Context(), agent.ID, body.GameType, body.Level)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *ArenaHandlers) Dequeue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		body := queueRequest{
			GameType: r.URL.Query().Get("game_type"),
			Level:    r.URL.Query().Get("level"),
		}
		if err := decodeBody(r, &body); err != nil {
			WriteAppError(w, r, err)
			return
		}
		removed, err := h.queue.Dequeue(r.Context(), agent.ID, body.GameType, body.Level)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": removed})
	}
}

func (h *ArenaHandlers) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		res, err := h.rooms.MarkReady(r.Context(), chi.URLParam(r, "room_id"), agent.ID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *ArenaHandlers) SubmitAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		metricActionSubmitTotal.Add(1)
		var action game.Action
		if err := decodeBody(r, &action); err != nil {
			metricActionSubmitErrors.Add(1)
			WriteAppError(w, r, err)
			return
		}
		roomID := chi.URLParam(r, "room_id")
		ack, err := h.rooms.SubmitAction(r.Context(), agent.ID, roomID, action)
		if err != nil {
			metricActionSubmitErrors.Add(1)
			log.Debug().
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("agent_id", agent.ID).
				Str("room_id", roomID).
				Str("action", action.Type).
				Err(err).
				Msg("action rejected")
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

func (h *ArenaHandlers) AvailableActions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		res, err := h.rooms.AvailableActions(r.Context(), agent.ID, chi.URLParam(r, "room_id"))
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *ArenaHandlers) MyRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		v, err := h.rooms.GetRoomByAgent(r.Context(), agent.ID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
