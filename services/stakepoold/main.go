package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakepool/core/events"
	"stakepool/gateway/middleware"
	"stakepool/native/stakepool"
	"stakepool/observability"
	"stakepool/observability/logging"
	telemetry "stakepool/observability/otel"
	"stakepool/services/stakepool/server"
	"stakepool/services/stakepoold/config"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakepoold/config.yaml", "path to stakepoold config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("STAKEPOOL_ENV"))
	logger := logging.Setup("stakepoold", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakepoold",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     otlpEndpoint != "",
		Traces:      otlpEndpoint != "",
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}

	runErr := run(cfg, logger)
	if err := shutdownTelemetry(context.Background()); err != nil {
		logger.Warn("telemetry shutdown", slog.Any("error", err))
	}
	if runErr != nil {
		logger.Error("stakepoold exited", slog.Any("error", runErr))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	params := stakepool.Params{
		CooldownPeriod:  cfg.Pool.CooldownPeriod,
		RewardsDuration: cfg.Pool.RewardsDuration,
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("pool params: %w", err)
	}

	deps, err := openDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	hub := server.NewHub(cfg.StreamBuffer, logger)
	engine := stakepool.NewEngine(cfg.OwnerAddress(), params)
	engine.SetState(deps.store)
	engine.SetTransferer(deps.book)
	engine.SetEmitter(events.Multi{deps.journal, hub, observability.Events()})
	engine.SetPauses(staticPauses(cfg.Paused))
	engine.SetLogger(logger)

	if err := bootstrap(ctx, cfg, engine, deps); err != nil {
		return err
	}

	if !cfg.Auth.Enabled {
		logger.Warn("auth disabled; ledger and admin routes are closed",
			slog.Bool("trustSubjectHeader", cfg.Auth.TrustSubjectHeader))
	}
	srv := server.New(server.Config{
		Ledger:      engine,
		Journal:     deps.journal,
		Hub:         hub,
		Auth:        authSettings(cfg.Auth),
		RateLimits:  rateLimits(cfg.RateLimits),
		Logger:      logger,
		LogRequests: cfg.Logging.Requests,
	})

	apiServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsListen,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("stakepoold listening", slog.String("addr", cfg.ListenAddress))
		serverErr <- apiServer.ListenAndServe()
	}()
	go func() {
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsListen))
		serverErr <- metricsServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing api server stop", slog.Any("error", err))
		_ = apiServer.Close()
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		_ = metricsServer.Close()
	}
	return nil
}

func authSettings(cfg config.AuthConfig) middleware.AuthConfig {
	return middleware.AuthConfig{
		Enabled:            cfg.Enabled,
		HMACSecret:         cfg.HMACSecret,
		Issuer:             cfg.Issuer,
		Audience:           cfg.Audience,
		ScopeClaim:         cfg.ScopeClaim,
		ClockSkew:          cfg.ClockSkew,
		TrustSubjectHeader: cfg.TrustSubjectHeader,
	}
}

func rateLimits(cfg map[string]config.Limit) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit, len(cfg))
	for name, limit := range cfg {
		limits[name] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	return limits
}

type staticPauses bool

func (p staticPauses) IsPaused(string) bool { return bool(p) }
