package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteDomainError maps the error taxonomy onto HTTP statuses and a
// retryable flag so clients can distinguish a retry affordance from a
// terminal failure.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, code, retryable := classify(err)
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": err.Error(), "retryable": retryable,
		},
	}
	WriteJSON(w, status, resp)
}

func classify(err error) (status int, code string, retryable bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return 404, "NOT_FOUND", false
	case errors.Is(err, domain.ErrInvalidTransition):
		return 409, "INVALID_TRANSITION", false
	case errors.Is(err, domain.ErrCodeMismatch):
		return 400, "CODE_MISMATCH", true
	case errors.Is(err, domain.ErrCodeExpired):
		return 400, "CODE_EXPIRED", false
	case errors.Is(err, domain.ErrAttemptsExceeded):
		return 400, "ATTEMPTS_EXCEEDED", false
	case errors.Is(err, domain.ErrProviderMismatch):
		return 400, "PROVIDER_MISMATCH", false
	case errors.Is(err, domain.ErrProviderTimeout):
		return 502, "PROVIDER_TIMEOUT", true
	case errors.Is(err, domain.ErrProviderRejected):
		return 502, "PROVIDER_REJECTED", true
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return 409, "CONCURRENCY_CONFLICT", true
	case errors.Is(err, domain.ErrAlreadySigned):
		return 409, "ALREADY_SIGNED", false
	case errors.Is(err, domain.ErrRetractionClosed):
		return 409, "RETRACTION_CLOSED", false
	case errors.Is(err, domain.ErrInvariantViolation):
		return 500, "INVARIANT_VIOLATION", false
	default:
		return 500, "INTERNAL", false
	}
}
