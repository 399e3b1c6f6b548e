package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"stakepool/gateway/middleware"
	"stakepool/native/stakepool"
	telemetry "stakepool/observability/otel"
	"stakepool/services/stakepool/journal"
)

// AdminScope must be granted to tokens calling the owner endpoints.
const AdminScope = "stakepool:admin"

// Ledger is the subset of the stake pool engine served over HTTP.
type Ledger interface {
	Deposit(ctx context.Context, account common.Address, amount *uint256.Int) error
	RequestWithdrawal(ctx context.Context, account common.Address, amount *uint256.Int) error
	CompleteWithdrawal(ctx context.Context, account common.Address) error
	CancelWithdrawal(ctx context.Context, account common.Address) error
	ClaimReward(ctx context.Context, account common.Address) error
	FundPeriod(ctx context.Context, caller common.Address, amount *uint256.Int) error
	SetRewardsDuration(ctx context.Context, caller common.Address, seconds uint64) error
	SetCooldownPeriod(ctx context.Context, caller common.Address, seconds uint64) error
	SetAssetOnce(ctx context.Context, caller, asset common.Address) error
	Account(addr common.Address) (*stakepool.AccountView, error)
	PoolView() (*stakepool.PoolView, error)
	Audit() (*stakepool.AuditReport, error)
}

// Journal serves the persisted event history.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	ForAccount(ctx context.Context, addr string, limit int) ([]journal.Entry, error)
	ExportParquet(ctx context.Context, w io.Writer) (int, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger      Ledger
	Journal     Journal
	Hub         *Hub
	Auth        middleware.AuthConfig
	RateLimits  map[string]middleware.RateLimit
	Logger      *slog.Logger
	LogRequests bool
}

// Server exposes the stake pool over a JSON HTTP API.
type Server struct {
	ledger  Ledger
	journal Journal
	hub     *Hub
	logger  *slog.Logger
	tracer  trace.Tracer

	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	router  http.Handler
}

// New constructs the server and its router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(0, logger)
	}
	srv := &Server{
		ledger:  cfg.Ledger,
		journal: cfg.Journal,
		hub:     hub,
		logger:  logger,
		tracer:  telemetry.Tracer("stakepool/server"),
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimits, logger),
		obs: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "stakepoold",
			Module:      "stakepool",
			LogRequests: cfg.LogRequests,
		}, logger),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router wrapped in OpenTelemetry
// instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "stakepool-api")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(s.limiter.Middleware("query"))
			public.With(s.obs.Middleware("accounts.get")).Get("/accounts/{addr}", s.handleAccount)
			public.With(s.obs.Middleware("accounts.events")).Get("/accounts/{addr}/events", s.handleAccountEvents)
			public.With(s.obs.Middleware("pool.get")).Get("/pool", s.handlePool)
			public.With(s.obs.Middleware("events.list")).Get("/events", s.handleEvents)
			public.Get("/events/stream", s.handleEventStream)
		})

		api.Group(func(ledger chi.Router) {
			ledger.Use(s.auth.Middleware())
			ledger.Use(s.limiter.Middleware("ledger"))
			ledger.With(s.obs.Middleware("deposit")).Post("/deposit", s.handleDeposit)
			ledger.With(s.obs.Middleware("withdrawals.request")).Post("/withdrawals", s.handleRequestWithdrawal)
			ledger.With(s.obs.Middleware("withdrawals.complete")).Post("/withdrawals/complete", s.handleCompleteWithdrawal)
			ledger.With(s.obs.Middleware("withdrawals.cancel")).Post("/withdrawals/cancel", s.handleCancelWithdrawal)
			ledger.With(s.obs.Middleware("rewards.claim")).Post("/rewards/claim", s.handleClaim)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.Middleware(AdminScope))
			admin.Use(s.limiter.Middleware("admin"))
			admin.With(s.obs.Middleware("admin.fund")).Post("/fund", s.handleFund)
			admin.With(s.obs.Middleware("admin.duration")).Put("/duration", s.handleSetDuration)
			admin.With(s.obs.Middleware("admin.cooldown")).Put("/cooldown", s.handleSetCooldown)
			admin.With(s.obs.Middleware("admin.asset")).Put("/asset", s.handleSetAsset)
			admin.With(s.obs.Middleware("admin.audit")).Get("/audit", s.handleAudit)
			admin.With(s.obs.Middleware("admin.export")).Get("/journal/export", s.handleExport)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
