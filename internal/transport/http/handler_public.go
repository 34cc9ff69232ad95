package httptransport

import (
	"net/http"

	apppublic "agent-arena/internal/app/public"

	"github.com/go-chi/chi/v5"
)

type PublicHandlers struct {
	svc   *apppublic.Service
	rooms Rooms
	queue Matchmaker
}

func NewPublicHandlers(svc *apppublic.Service, rooms Rooms, queue Matchmaker) *PublicHandlers {
	return &PublicHandlers{svc: svc, rooms: rooms, queue: queue}
}

func (h *PublicHandlers) Rooms() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": h.rooms.ListActiveRooms()})
	}
}

func (h *PublicHandlers) Room() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := h.rooms.GetRoomState(r.Context(), chi.URLParam(r, "room_id"))
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (h *PublicHandlers) Games() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, h.svc.Games())
	}
}

func (h *PublicHandlers) Queues() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": h.queue.Snapshot()})
	}
}

func (h *PublicHandlers) Leaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		resp, err := h.svc.Leaderboard(r.Context(), limit, offset)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *PublicHandlers) Match() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.svc.Match(r.Context(), chi.URLParam(r, "match_id"))
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (h *PublicHandlers) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.Stats(r.Context())
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
