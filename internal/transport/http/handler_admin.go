package httptransport

import (
	"context"
	"net/http"

	appagent "agent-arena/internal/app/agent"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type AdminHandlers struct {
	db     Pinger
	agents *appagent.Service
}

func NewAdminHandlers(db Pinger, agents *appagent.Service) *AdminHandlers {
	return &AdminHandlers{db: db, agents: agents}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up"})
	}
}

// Topup credits an agent as an admin award.
func (h *AdminHandlers) Topup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body appagent.TopupInput
		if err := decodeBody(r, &body); err != nil {
			WriteAppError(w, r, err)
			return
		}
		change, err := h.agents.Topup(r.Context(), body)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "balance": change.BalanceAfter, "transaction": change})
	}
}
