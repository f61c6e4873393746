package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/availability"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/catalog"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/clock"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/config"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/events"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/flow"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/metrics"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/notify"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/payment"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/report"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/server"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/store"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/sweep"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/tokens"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/wa"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Optional .env for local development; config expands ${VARS}.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CBC_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	if err := db.SeedDefaultSlots(ctx, cfg.SlotPrice()); err != nil {
		logger.Fatal().Err(err).Msg("seed slot catalog error")
	}

	cat, err := catalog.New(ctx, db, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load slot catalog error")
	}

	clk := clock.NewSystem()
	loc := cfg.Location()

	// Flow tokens: redis primary, sqlite fallback.
	var tokenStore tokens.Store = tokens.NewSQLiteStore(db)
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		tokenStore = tokens.NewFailover(tokens.NewRedisStore(rdb), tokenStore, &logger)
	}
	issuer := tokens.NewIssuer(tokenStore, clk, cfg.TokenTTL())

	engine := availability.New(cat, db, clk, loc)
	bus := events.NewBus()
	lifecycle := booking.NewLifecycle(db, cat, engine, tokenStore, bus, clk,
		cfg.HoldDuration(), loc, &logger)

	waClient := wa.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.APIToken, cfg.WhatsApp.RatePerSecond, cfg.WhatsApp.RateBurst, &logger)
	notify.New(waClient, cat, cfg.WhatsApp.NotifyNumbers, &logger).Register(bus)

	gateway, err := payment.New(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment gateway error")
	}

	crypto, err := flow.NewCrypto(cfg.WhatsApp.PrivateKeyPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("flow crypto error")
	}
	flowEngine := flow.NewEngine(engine, cat, loc, &logger)

	sweeper := sweep.New(lifecycle, tokenStore, clk, cfg.SweepInterval(), &logger)
	go sweeper.Start(ctx)

	backup := store.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
	go backup.Start(ctx)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	reporter := report.New(db, cat, &logger)
	srv := server.New(lifecycle, db, issuer, tokenStore, waClient, crypto,
		flowEngine, gateway, sweeper, reporter, server.Options{
			VerifyToken: cfg.WhatsApp.VerifyToken,
			FlowID:      cfg.WhatsApp.FlowID,
			PayLinkBase: cfg.Payment.PayLinkBase,
			Location:    loc,
		}, &logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Routes(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.Server.Port).Str("provider", gateway.Name()).
		Msg("booking service started")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

func startHealthServer(ctx context.Context, port int, db *store.Store, rdb *redis.Client, logger *zerolog.Logger) {
	if port == 0 {
		port = 8090
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
