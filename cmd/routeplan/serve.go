package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"routeplan/internal/api"
	"routeplan/internal/buildinfo"
	"routeplan/internal/config"
	"routeplan/internal/logging"
	"routeplan/internal/metrics"
	"routeplan/internal/planner"
	"routeplan/internal/store"
	"routeplan/internal/webhooks"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the webhook worker",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.SetLevel(cfg.Log.Level)
	log := logging.New("api")
	log.Info().Str("build", buildinfo.String()).Msg("starting")
	metrics.RegisterDefault()

	st, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	broker, closeBroker := openBroker(ctx, cfg.Redis, log)
	defer closeBroker()

	pub := webhooks.NewPublisher(st)
	pl := planner.New(st, cfg.Planner, logging.New("planner"))
	pl.Events = broker
	pl.Webhooks = pub

	worker := webhooks.NewWorker(st, cfg.Webhooks.MaxAttempts, cfg.Webhooks.PollInterval(),
		time.Duration(cfg.Webhooks.TimeoutSec)*time.Second, logging.New("webhooks"))
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewServer(*cfg, st, broker, pl, log).Routes(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSec) * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	stop()
	<-workerDone
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (store.Store, func(), error) {
	if strings.TrimSpace(cfg.URL) == "" {
		log.Info().Msg("using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Migrate != nil && *cfg.Migrate {
		applied, err := pg.MigrateDir(ctx, cfg.MigrationsDir)
		if err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Str("dir", cfg.MigrationsDir).Int("applied", len(applied)).Msg("migrations applied")
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Warn().Err(err).Msg("close postgres")
		}
	}, nil
}

// openBroker prefers Redis when configured and falls back to the in-process
// broker when Redis is unreachable.
func openBroker(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (api.EventBroker, func()) {
	if cfg.URL == "" {
		return api.NewBroker(), func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rb, err := api.NewRedisBroker(pingCtx, cfg.URL, logging.New("broker"))
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process broker")
		return api.NewBroker(), func() {}
	}
	return rb, func() { _ = rb.Close() }
}
