package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noah-isme/labelsweep/internal/config"
	"github.com/noah-isme/labelsweep/internal/obs"
	"github.com/noah-isme/labelsweep/internal/pipeline"
	"github.com/noah-isme/labelsweep/internal/resilience"
	"github.com/noah-isme/labelsweep/internal/result"
	"github.com/noah-isme/labelsweep/internal/store"
	"github.com/noah-isme/labelsweep/internal/ups"
	"github.com/noah-isme/labelsweep/internal/window"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger not configured yet
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "labelsweep").Logger()
	obs.MustRegisterPipelineMetrics("labelsweep", nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	if cfg.OpsAddr != "" {
		startOps(cfg.OpsAddr, logger)
	}

	win, err := window.Compute(time.Now(), cfg.WindowStartDaysAgo, cfg.WindowEndDaysAgo, cfg.WindowMinEndDaysAgo)
	if err != nil {
		logger.Fatal().Err(err).Msg("compute date window")
	}

	tokens := &ups.TokenProvider{
		HTTP:         &http.Client{Timeout: cfg.RequestTimeout},
		URL:          cfg.UPSOAuthURL,
		ClientID:     cfg.UPSClientID,
		ClientSecret: cfg.UPSClientSecret,
		Logger:       &logger,
	}
	tracker := &ups.TrackClient{
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     resilience.NewBreaker(5, 30*time.Second).WithTarget("ups-track").WithLogger(logger),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitterPercent,
			Timeout:     cfg.RequestTimeout,
			Target:      "ups-track",
			Logger:      &logger,
		},
		Tokens:         tokens,
		BaseURL:        cfg.UPSTrackURL,
		TransactionSrc: cfg.TransactionSrc,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.TrackRatePerSec), 1),
		Logger:         &logger,
	}

	p := &pipeline.Pipeline{
		Selector: window.Selector{
			Source: store.TransactionStore{Q: pool},
			Window: win,
			Prefix: window.UPSPrefix,
			Logger: &logger,
		},
		Tracker:     tracker,
		Writer:      result.Writer{Dir: cfg.OutputDir},
		Concurrency: cfg.TrackConcurrency,
		Logger:      logger,
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	logger.Info().
		Str("window", win.String()).
		Str("run_label", cfg.RunLabel).
		Int("concurrency", cfg.TrackConcurrency).
		Msg("run starting")

	run, err := p.Run(runCtx, cfg.RunLabel)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
	if run.Set.Partial {
		logger.Warn().Msg("run completed partially within its time budget")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func startOps(addr string, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           obs.NewOpsHandler(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("ops listener stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("ops listener started")
}
