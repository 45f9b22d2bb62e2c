// Package callbacks is the ingress for mobile-money provider
// confirmations. Each provider posts to an endpoint-token URL with an
// HMAC signature; only verified callbacks reach the payment engine.
package callbacks

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AlCisse/immo-guinee-sub004/pkg/httpx"
	"github.com/AlCisse/immo-guinee-sub004/pkg/webhooks"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/engine"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/momo"
)

const maxCallbackBodyBytes = 1 << 20

// Endpoint is one provisioned callback URL: the token is part of the
// path, the secret signs the payload. Rotating either retires the old
// endpoint without touching the other provider's.
type Endpoint struct {
	Provider string
	Token    string
	Secret   string
}

type Handler struct {
	Engine    *engine.Engine
	Tolerance time.Duration
	Logger    *slog.Logger

	endpoints map[string]Endpoint
}

func NewHandler(eng *engine.Engine, endpoints []Endpoint, logger *slog.Logger) *Handler {
	h := &Handler{
		Engine:    eng,
		Tolerance: webhooks.DefaultTolerance,
		Logger:    logger,
		endpoints: make(map[string]Endpoint, len(endpoints)),
	}
	for _, e := range endpoints {
		if e.Token == "" || e.Secret == "" {
			continue
		}
		h.endpoints[endpointKey(e.Provider, e.Token)] = e
	}
	return h
}

func endpointKey(provider, token string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + "\x00" + strings.TrimSpace(token)
}

// HandleCallback serves POST /escrow/callbacks/{provider}/{endpoint_token}.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	token := strings.TrimSpace(chi.URLParam(r, "endpoint_token"))
	endpoint, ok := h.endpoints[endpointKey(provider, token)]
	if !ok {
		// Unknown token reads the same as unknown provider so the URL
		// leaks nothing about which endpoints exist.
		httpx.WriteError(w, 404, "NOT_FOUND", "callback endpoint not found", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodyBytes)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.WriteError(w, 400, "BAD_BODY", err.Error(), nil)
		return
	}

	verifier := webhooks.NewHMACVerifier(provider).WithTolerance(h.Tolerance)
	result, err := verifier.Verify(r.Header, rawBody, time.Now().UTC(), endpoint.Secret)
	if err != nil {
		httpx.WriteError(w, 500, "VERIFIER_ERROR", err.Error(), nil)
		return
	}
	if !result.Valid {
		h.Logger.Warn("rejected callback", "provider", provider, "details", result.Details)
		httpx.WriteError(w, 401, "INVALID_SIGNATURE", "callback signature rejected", nil)
		return
	}

	var payload struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	p, err := h.Engine.ApplyProviderStatus(r.Context(), payload.Reference, momo.TxStatus(strings.ToUpper(payload.Status)))
	if err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"state":      p.Status,
	})
}
