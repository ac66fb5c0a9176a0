package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"syscall"

	"cryptoetl/config"
	"cryptoetl/internal/bootstrap"
	"cryptoetl/internal/market/model"
	"cryptoetl/internal/market/pipeline"
	"cryptoetl/internal/market/runstate"
	"cryptoetl/internal/market/scheduler"
	"cryptoetl/internal/observability"
	"cryptoetl/internal/server"
	"cryptoetl/logger"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml (default $CRYPTOETL_CONFIG)")
	noHistory := fs.Bool("no-history", false, "run: skip the history append")
	_ = fs.Parse(args)

	switch cmd {
	case "run", "serve", "init-db", "ping":
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == "prod" {
		ps, err := config.NewParameterStore(ctx)
		if err != nil {
			log.Warn("parameter store unavailable; using file/env credentials", zap.Error(err))
		} else {
			cfg.ResolveSecrets(ctx, ps)
		}
	}

	var runErr error
	switch cmd {
	case "run":
		runErr = runOnce(ctx, cfg, log, !*noHistory)
	case "serve":
		runErr = serve(ctx, cfg, log)
	case "init-db":
		runErr = initDB(ctx, cfg, log)
	case "ping":
		runErr = ping(ctx, cfg, log)
	}
	if runErr != nil {
		log.Error("command failed", zap.String("command", cmd), zap.Error(runErr))
		_ = log.Sync()
		os.Exit(1)
	}
}

// runOnce executes a single pipeline run and prints the summary as JSON.
// A run that did not succeed exits non-zero.
func runOnce(ctx context.Context, cfg *config.Config, log *zap.Logger, saveHistory bool) error {
	stores, err := bootstrap.Open(ctx, cfg, log.Named("store"))
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	observers := []pipeline.Observer{}
	if cfg.Redis.Addr != "" {
		rs, err := runstate.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, log.Named("runstate"))
		if err != nil {
			log.Warn("last-run store unavailable", zap.Error(err))
		} else {
			defer rs.Close()
			observers = append(observers, rs)
		}
	}

	summary := bootstrap.NewPipeline(cfg, stores, log, observers...).Run(ctx, saveHistory)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}
	if summary.Status != model.StatusSuccess {
		return fmt.Errorf("run %s finished with status %s", summary.RunID, summary.Status)
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	stores, err := bootstrap.Open(ctx, cfg, log.Named("store"))
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	metrics := observability.NewMetrics()

	var last runstate.Store = &runstate.Memory{}
	checks := maps.Clone(stores.Checks)
	if cfg.Redis.Addr != "" {
		rs, err := runstate.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, log.Named("runstate"))
		if err != nil {
			log.Warn("redis unavailable; keeping last run in memory", zap.Error(err))
		} else {
			defer rs.Close()
			last = rs
			checks["redis"] = rs
		}
	}

	orch := bootstrap.NewPipeline(cfg, stores, log, metrics, last)

	ticker := &scheduler.Ticker{
		Interval:    cfg.Schedule.Interval,
		SaveHistory: cfg.Schedule.SaveHistory,
		Align:       cfg.Schedule.Align,
		Run:         orch.Run,
		Logger:      log.Named("scheduler"),
	}
	schedDone := ticker.Start(ctx)

	srv := server.New(cfg.Server.Addr, server.NewHandler(server.Deps{
		Runner:    orch,
		LastRun:   last,
		Snapshots: stores.Snapshots,
		History:   stores.History,
		Checks:    checks,
		Metrics:   metrics.Handler(),
		Logger:    log.Named("http"),
	}), log.Named("http"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		log.Warn("scheduled run still in progress at shutdown")
	}
	log.Info("shutdown complete")
	return shutdownErr
}

func initDB(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if err := bootstrap.CreateDatabase(ctx, cfg, log); err != nil {
		return err
	}

	stores, err := bootstrap.Open(ctx, cfg, log.Named("store"))
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	if err := stores.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("provision stores: %w", err)
	}
	log.Info("stores provisioned",
		zap.String("snapshot_driver", cfg.Store.SnapshotDriver),
		zap.String("history_driver", cfg.Store.HistoryDriver))
	return nil
}

func ping(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	stores, err := bootstrap.Open(ctx, cfg, log.Named("store"))
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	var errs []error
	if err := stores.Ping(ctx); err != nil {
		errs = append(errs, err)
	}
	if cfg.Redis.Addr != "" {
		rs, err := runstate.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, log)
		if err != nil {
			errs = append(errs, err)
		} else {
			_ = rs.Close()
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("all stores reachable")
	return nil
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  cryptoetl run     [-config path] [-no-history]   run the pipeline once and print the summary")
	fmt.Println("  cryptoetl serve   [-config path]                 scheduled runs plus the HTTP API")
	fmt.Println("  cryptoetl init-db [-config path]                 create the database, tables and indexes")
	fmt.Println("  cryptoetl ping    [-config path]                 check store connectivity")
}
