package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"

	"github.com/AlCisse/immo-guinee-sub004/pkg/db"
	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/httpx"
	"github.com/AlCisse/immo-guinee-sub004/pkg/otp"
	"github.com/AlCisse/immo-guinee-sub004/pkg/sms"
	"github.com/AlCisse/immo-guinee-sub004/services/contracts/internal/lifecycle"
)

type config struct {
	Port            string        `env:"SERVICE_PORT" envDefault:"8082"`
	SMSBaseURL      string        `env:"SMS_BASE_URL"`
	SMSAPIKey       string        `env:"SMS_API_KEY"`
	OTPTTL          time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPMaxAttempts  int           `env:"OTP_MAX_ATTEMPTS" envDefault:"3"`
	RetractionHours int           `env:"RETRACTION_HOURS" envDefault:"48"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Error("parse config", "err", err)
		os.Exit(1)
	}

	pool := db.MustConnect()
	store := lifecycle.NewPGStore(pool)
	issuer := otp.NewIssuer(otp.NewPGStore(pool))
	issuer.TTL = cfg.OTPTTL
	issuer.MaxAttempts = cfg.OTPMaxAttempts

	var notifier lifecycle.Notifier = sms.NewClient(cfg.SMSBaseURL, cfg.SMSAPIKey)

	svc := lifecycle.NewService(store, issuer, notifier, logger)
	svc.Retraction = time.Duration(cfg.RetractionHours) * time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := &lifecycle.Sweeper{Service: svc, Interval: cfg.SweepInterval}
	go sweeper.Run(ctx)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Route("/contracts", func(api chi.Router) {
		api.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Type           string     `json:"type"`
				OwnerID        string     `json:"owner_id"`
				CounterpartyID string     `json:"counterparty_id"`
				BaseAmount     int64      `json:"base_amount"`
				BuiltProperty  bool       `json:"built_property"`
				AdvanceMonths  int        `json:"advance_months"`
				DepositMonths  int        `json:"deposit_months"`
				DurationMode   string     `json:"duration_mode"`
				DurationMonths int        `json:"duration_months"`
				EndDate        *time.Time `json:"end_date"`
				PayerTier      int        `json:"payer_tier"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			c, err := svc.Create(r.Context(), lifecycle.CreateParams{
				Type:           domain.ContractType(req.Type),
				OwnerID:        req.OwnerID,
				CounterpartyID: req.CounterpartyID,
				BaseAmount:     req.BaseAmount,
				BuiltProperty:  req.BuiltProperty,
				AdvanceMonths:  req.AdvanceMonths,
				DepositMonths:  req.DepositMonths,
				DurationMode:   domain.DurationMode(req.DurationMode),
				DurationMonths: req.DurationMonths,
				EndDate:        req.EndDate,
				PayerTier:      domain.Tier(req.PayerTier),
			})
			if err != nil {
				httpx.WriteError(w, 400, "BAD_REQUEST", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
		})

		api.Get("/{contract_id}", func(w http.ResponseWriter, r *http.Request) {
			c, err := svc.Get(r.Context(), chi.URLParam(r, "contract_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
		})

		api.Post("/{contract_id}:sendForSignature", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ActorID string `json:"actor_id"`
			}
			_ = httpx.ReadJSON(r, &req)
			c, err := svc.SendForSignature(r.Context(), chi.URLParam(r, "contract_id"), req.ActorID)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "state": c.Status})
		})

		api.Post("/{contract_id}/signature/accept-terms", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				PartyID string `json:"party_id"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := svc.AcceptTerms(r.Context(), chi.URLParam(r, "contract_id"), req.PartyID); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "accepted": true})
		})

		api.Post("/{contract_id}/signature/request-otp", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				PartyID string `json:"party_id"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			challenge, err := svc.RequestSignatureOTP(r.Context(), chi.URLParam(r, "contract_id"), req.PartyID)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"challenge": map[string]any{
					"challenge_id": challenge.ID,
					"expires_at":   challenge.ExpiresAt,
				},
			})
		})

		api.Post("/{contract_id}/signature/submit-code", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				PartyID string `json:"party_id"`
				Code    string `json:"code"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			c, err := svc.SubmitSignatureCode(r.Context(), chi.URLParam(r, "contract_id"), req.PartyID, req.Code)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":        httpx.NewRequestID(),
				"state":             c.Status,
				"signatures":        len(c.Signatures),
				"retraction_expiry": c.RetractionExpiry,
			})
		})

		api.Post("/{contract_id}:cancel", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				PartyID string `json:"party_id"`
				Reason  string `json:"reason"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			c, err := svc.Cancel(r.Context(), chi.URLParam(r, "contract_id"), req.PartyID, req.Reason)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "state": c.Status})
		})

		api.Post("/{contract_id}:terminate", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ActorID string `json:"actor_id"`
				Cause   string `json:"cause"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			c, err := svc.Terminate(r.Context(), chi.URLParam(r, "contract_id"), req.ActorID, lifecycle.TerminationCause(req.Cause))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "state": c.Status})
		})

		api.Get("/{contract_id}/retraction", func(w http.ResponseWriter, r *http.Request) {
			c, err := svc.Get(r.Context(), chi.URLParam(r, "contract_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			w2 := lifecycle.Window{Expiry: c.RetractionExpiry}
			now := time.Now().UTC()
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":        httpx.NewRequestID(),
				"open":              w2.Open(now),
				"remaining_seconds": int64(w2.Remaining(now).Seconds()),
				"expiry":            c.RetractionExpiry,
			})
		})

		api.Get("/{contract_id}/invoice", func(w http.ResponseWriter, r *http.Request) {
			inv, err := svc.Invoice(r.Context(), chi.URLParam(r, "contract_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "invoice": inv})
		})

		api.Get("/{contract_id}/events", func(w http.ResponseWriter, r *http.Request) {
			evs, err := svc.Events(r.Context(), chi.URLParam(r, "contract_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "events": evs})
		})
	})

	logger.Info("contracts service listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Error("server", "err", err)
		os.Exit(1)
	}
}
