package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"

	"github.com/AlCisse/immo-guinee-sub004/pkg/authn"
	"github.com/AlCisse/immo-guinee-sub004/pkg/db"
	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/httpx"
	"github.com/AlCisse/immo-guinee-sub004/pkg/sms"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/callbacks"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/contractsclient"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/engine"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/momo"
)

type config struct {
	Port             string `env:"SERVICE_PORT" envDefault:"8083"`
	ContractsBaseURL string `env:"CONTRACTS_BASE_URL,required"`

	OrangeBaseURL        string `env:"ORANGE_MONEY_BASE_URL"`
	OrangeAPIKey         string `env:"ORANGE_MONEY_API_KEY"`
	OrangeCallbackToken  string `env:"ORANGE_MONEY_CALLBACK_TOKEN"`
	OrangeCallbackSecret string `env:"ORANGE_MONEY_CALLBACK_SECRET"`
	MTNBaseURL           string `env:"MTN_MOMO_BASE_URL"`
	MTNAPIKey            string `env:"MTN_MOMO_API_KEY"`
	MTNCallbackToken     string `env:"MTN_MOMO_CALLBACK_TOKEN"`
	MTNCallbackSecret    string `env:"MTN_MOMO_CALLBACK_SECRET"`

	SMSBaseURL string `env:"SMS_BASE_URL"`
	SMSAPIKey  string `env:"SMS_API_KEY"`

	HoldHours         int           `env:"ESCROW_HOLD_HOURS" envDefault:"48"`
	ProcessingTTL     time.Duration `env:"PROCESSING_TTL" envDefault:"30m"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	CallbackTolerance time.Duration `env:"CALLBACK_TOLERANCE" envDefault:"5m"`

	JWTSecret string `env:"JWT_SECRET,required"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Error("parse config", "err", err)
		os.Exit(1)
	}

	pool := db.MustConnect()
	store := engine.NewPGStore(pool)

	rails := momo.Rails{
		domain.OrangeMoney: momo.NewClient("orange_money", cfg.OrangeBaseURL, cfg.OrangeAPIKey),
		domain.MTNMoMo:     momo.NewClient("mtn_momo", cfg.MTNBaseURL, cfg.MTNAPIKey),
	}
	invoices := contractsclient.NewClient(cfg.ContractsBaseURL)
	notifier := sms.NewClient(cfg.SMSBaseURL, cfg.SMSAPIKey)

	eng := engine.New(store, rails, momo.NewPrefixRegistry(nil), invoices, notifier, logger)
	eng.Hold = time.Duration(cfg.HoldHours) * time.Hour
	eng.ProcessingTTL = cfg.ProcessingTTL

	cb := callbacks.NewHandler(eng, []callbacks.Endpoint{
		{Provider: "orange_money", Token: cfg.OrangeCallbackToken, Secret: cfg.OrangeCallbackSecret},
		{Provider: "mtn_momo", Token: cfg.MTNCallbackToken, Secret: cfg.MTNCallbackSecret},
	}, logger)
	cb.Tolerance = cfg.CallbackTolerance

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := &engine.Sweeper{Engine: eng, Interval: cfg.SweepInterval}
	go sweeper.Run(ctx)

	r := newRouter(eng, cb, cfg.JWTSecret)
	logger.Info("escrow service listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Error("server", "err", err)
		os.Exit(1)
	}
}

func newRouter(eng *engine.Engine, cb *callbacks.Handler, jwtSecret string) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/payments", func(api chi.Router) {
		api.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ContractID         string `json:"contract_id"`
				Method             string `json:"method"`
				Phone              string `json:"phone"`
				Beneficiary        string `json:"beneficiary"`
				DisclosureAccepted bool   `json:"disclosure_accepted"`
				ActorID            string `json:"actor_id"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			p, err := eng.Submit(r.Context(), engine.SubmitParams{
				ContractID:         req.ContractID,
				Method:             domain.PaymentMethod(req.Method),
				Phone:              req.Phone,
				Beneficiary:        req.Beneficiary,
				DisclosureAccepted: req.DisclosureAccepted,
				ActorID:            req.ActorID,
				IdempotencyKey:     r.Header.Get("Idempotency-Key"),
			})
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "payment": p})
		})

		api.Get("/{payment_id}", func(w http.ResponseWriter, r *http.Request) {
			p, err := eng.Get(r.Context(), chi.URLParam(r, "payment_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "payment": p})
		})

		api.Get("/{payment_id}/events", func(w http.ResponseWriter, r *http.Request) {
			evs, err := eng.Events(r.Context(), chi.URLParam(r, "payment_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "events": evs})
		})

		api.Post("/{payment_id}:validate", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ActorID string `json:"actor_id"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			p, err := eng.Validate(r.Context(), chi.URLParam(r, "payment_id"), req.ActorID)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "payment": p})
		})

		// Disputes and refunds come from the dispute-resolution
		// workflow only; both sit behind the same role.
		api.Group(func(hook chi.Router) {
			hook.Use(authn.RequireRole(jwtSecret, authn.RoleDisputeResolution))

			hook.Post("/{payment_id}:dispute", func(w http.ResponseWriter, r *http.Request) {
				p, err := eng.Dispute(r.Context(), chi.URLParam(r, "payment_id"), actorFrom(r))
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "payment": p})
			})

			hook.Post("/{payment_id}:refund", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Reason string `json:"reason"`
				}
				if err := httpx.ReadJSON(r, &req); err != nil {
					httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
					return
				}
				p, err := eng.Refund(r.Context(), chi.URLParam(r, "payment_id"), actorFrom(r), req.Reason)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "payment": p})
			})
		})
	})

	r.Post("/escrow/callbacks/{provider}/{endpoint_token}", cb.HandleCallback)
	return r
}

func actorFrom(r *http.Request) string {
	if claims, ok := authn.ClaimsFrom(r.Context()); ok {
		return claims.ActorID
	}
	return ""
}
