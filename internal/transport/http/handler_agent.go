package httptransport

import (
	"net/http"

	appagent "agent-arena/internal/app/agent"
)

type AgentHandlers struct {
	svc *appagent.Service
}

func NewAgentHandlers(svc *appagent.Service) *AgentHandlers {
	return &AgentHandlers{svc: svc}
}

func (h *AgentHandlers) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name  string `json:"name"`
			Owner string `json:"owner"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteAppError(w, r, err)
			return
		}
		resp, err := h.svc.Register(r.Context(), appagent.RegisterInput{Name: body.Name, Owner: body.Owner})
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		metricRegisterTotal.Add(1)
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (h *AgentHandlers) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		resp, err := h.svc.Me(r.Context(), agent.ID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *AgentHandlers) Transactions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		limit, offset := ParsePagination(r)
		resp, err := h.svc.Transactions(r.Context(), agent.ID, limit, offset)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *AgentHandlers) DailyReward() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claim, err := h.svc.ClaimDailyReward(r.Context(), agent.ID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claim)
	}
}

func (h *AgentHandlers) DailyRewardStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		status, err := h.svc.DailyRewardStatus(r.Context(), agent.ID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func (h *AgentHandlers) TransactionSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		resp, err := h.svc.TransactionSummary(r.Context(), agent.ID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RotateKey replaces the caller's API key; the key used for this request
// is dead once the response is written.
func (h *AgentHandlers) RotateKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := AgentFromContext(r.Context())
		if !ok {
			WriteHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		resp, err := h.svc.RegenerateCredentials(r.Context(), agent.ID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
