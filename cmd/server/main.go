/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load .env (optional), then configuration (file, env, defaults)
  2. Build the zap logger
  3. Open the store (SQLite, or memory with a JSON snapshot)
  4. Build the reconciliation engine
  5. Apply default schedules, verify every hours bank
  6. Start the scheduler (memory snapshot saved after each tick) and the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: ./config/config.yaml or ./config.yaml)
  -port    Overrides server.port
  -db      Overrides db.path; ":memory:" for an in-memory SQLite database

ENVIRONMENT:
  Every key can be set as HOURSBANK_<SECTION>_<KEY>, e.g.
  HOURSBANK_DB_PATH, HOURSBANK_SCHEDULER_INTERVAL, HOURSBANK_LOG_LEVEL.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running tick)
  2. Stop accepting new connections, drain requests (30s timeout)
  3. Save the memory snapshot, close the database
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/hours-bank/api"
	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/config"
	"github.com/warp/hours-bank/generic"
	"github.com/warp/hours-bank/logger"
	"github.com/warp/hours-bank/store/memory"
	"github.com/warp/hours-bank/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "database path (overrides config)")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	loc, err := cfg.Clock.Location()
	if err != nil {
		return err
	}

	st, err := openStorage(cfg.Database, lg)
	if err != nil {
		return err
	}
	defer st.close()

	debitTypes := make([]attendance.AdminEntryType, 0, len(cfg.Admin.DebitTypes))
	for _, t := range cfg.Admin.DebitTypes {
		debitTypes = append(debitTypes, attendance.AdminEntryType(t))
	}
	engine := attendance.NewEngine(st.repo, attendance.EngineOptions{
		Clock:                generic.SystemClock{Location: loc},
		Logger:               lg.Named("engine"),
		Notifier:             attendance.LogNotifier{Logger: lg.Named("notify")},
		MaterialityThreshold: cfg.Ledger.Threshold(),
		DriftTolerance:       cfg.Ledger.Tolerance(),
		AdminDebitTypes:      debitTypes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := engine.EnsureSchedules(ctx); err != nil {
		return fmt.Errorf("ensure schedules: %w", err)
	}
	corrected, err := engine.VerifyBalances(ctx)
	if err != nil {
		return fmt.Errorf("verify balances: %w", err)
	}
	if len(corrected) > 0 {
		lg.Warn("hours banks corrected at startup", zap.Int("workers", len(corrected)))
	}

	scheduler := api.NewScheduler(engine, lg.Named("scheduler"))
	scheduler.Interval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	if st.checkpoint != nil {
		scheduler.AfterTick = func(context.Context, attendance.RunSummary) { st.checkpoint() }
	}
	scheduler.Start(ctx)

	handler := api.NewHandler(engine, scheduler, loc, lg.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.CORS.AllowOrigins,
		Logger:         lg.Named("http"),
		Storage:        st.pinger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server starting", zap.Int("port", cfg.Server.Port), zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			scheduler.Stop()
			return fmt.Errorf("listen: %w", err)
		}
	}

	lg.Info("shutting down")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	lg.Info("server stopped")
	return nil
}

// storage bundles the configured repository with its lifecycle hooks.
type storage struct {
	repo  attendance.Repository
	close func()

	// pinger is nil for drivers with nothing to reach.
	pinger api.Pinger

	// checkpoint persists in-memory state; nil for durable drivers.
	checkpoint func()
}

func openStorage(cfg config.DatabaseConfig, lg *zap.Logger) (*storage, error) {
	switch cfg.Driver {
	case "memory":
		store := memory.New()
		if err := store.LoadAll(cfg.Path); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		save := func() {
			if err := store.SaveAll(cfg.Path); err != nil {
				lg.Error("failed to save snapshot", zap.String("path", cfg.Path), zap.Error(err))
			}
		}
		return &storage{repo: store, checkpoint: save, close: save}, nil
	default:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if v, err := store.SchemaVersion(context.Background()); err == nil {
			lg.Info("database ready", zap.String("path", cfg.Path), zap.Uint("schema_version", v))
		}
		closeFn := func() {
			if err := store.Close(); err != nil {
				lg.Error("failed to close database", zap.Error(err))
			}
		}
		return &storage{repo: store, pinger: store, close: closeFn}, nil
	}
}
