package httptransport

import (
	"net/http"

	"agent-arena/internal/apperr"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

type errorEnvelope struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case apperr.KindInvalidState, apperr.KindConflict, apperr.KindAlreadyClaimed:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError renders a classified error. Internal failures are logged
// with their stack and surface only a generic reason.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Str("error", apperr.Format(err)).
			Msg("request failed")
	}
	writeJSON(w, statusForKind(kind), errorEnvelope{
		Error:  apperr.CodeOf(err),
		Kind:   string(kind),
		Reason: apperr.ReasonOf(err),
	})
}

func WriteHTTPError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorEnvelope{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.ErrInvalidRequest.WithReason("invalid json body")
	}
	return nil
}
