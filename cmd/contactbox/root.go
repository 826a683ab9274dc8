package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/contactbox/internal/analytics"
	"github.com/hyperengineering/contactbox/internal/api"
	"github.com/hyperengineering/contactbox/internal/audit"
	"github.com/hyperengineering/contactbox/internal/config"
	"github.com/hyperengineering/contactbox/internal/export"
	"github.com/hyperengineering/contactbox/internal/lifecycle"
	"github.com/hyperengineering/contactbox/internal/notify"
	"github.com/hyperengineering/contactbox/internal/store"
	"github.com/hyperengineering/contactbox/internal/submission"
	"github.com/hyperengineering/contactbox/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "contactbox",
	Short:         "Contactbox - contact form backend",
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	Args:  cobra.NoArgs,
	RunE:  run,
}

// configPath, when set, names a YAML file that must exist.
var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (must exist; default CONTACTBOX_CONFIG_PATH or config/contactbox.yaml if present)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submissionsCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "level", cfg.Log.Level)

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	limiter, closeLimiter, err := buildLimiter(ctx, cfg.RateLimit, db)
	if err != nil {
		db.Close()
		return err
	}
	slog.Info("rate limiter initialized",
		"backend", cfg.RateLimit.Backend,
		"limit", cfg.RateLimit.Limit,
		"window", time.Duration(cfg.RateLimit.Window).String(),
	)

	notifier, err := buildNotifier(ctx, cfg.Notify, logger)
	if err != nil {
		closeLimiter()
		db.Close()
		return err
	}
	dispatcher := notify.NewDispatcher(notifier, db, logger, time.Duration(cfg.Notify.Timeout))
	slog.Info("notifier initialized", "backend", dispatcher.Backend())

	loc, err := cfg.Analytics.Location()
	if err != nil {
		closeLimiter()
		db.Close()
		return fmt.Errorf("analytics timezone: %w", err)
	}

	uploader, err := export.NewUploader(cfg.Export)
	if err != nil {
		closeLimiter()
		db.Close()
		return err
	}
	archiver := export.NewArchiver(db, uploader, cfg.Export.Prefix)

	recorder := audit.NewRecorder(db, logger)
	handler := api.NewHandler(api.Deps{
		Intake: submission.NewService(submission.Config{
			Store:    db,
			Limiter:  limiter,
			Notifier: dispatcher,
			Audit:    recorder,
			Limits:   fieldLimits(cfg.Limits),
			Logger:   logger,
		}),
		Store: db,
		Mutator: lifecycle.NewMutator(db,
			lifecycle.WithTagLimits(cfg.Limits.TagsMax, cfg.Limits.TagMax),
			lifecycle.WithMaxBulkIDs(cfg.Limits.BulkMaxIDs),
		),
		Analytics: analytics.NewService(db,
			analytics.WithLocation(loc),
			analytics.WithWindows(cfg.Analytics.TrendDays, cfg.Analytics.HourlyHours),
		),
		Archiver:         archiver,
		Audit:            recorder,
		NotifyConfigured: dispatcher.Configured(),
		Version:          Version,
	})
	if cfg.Auth.AdminAPIKey == "" {
		slog.Warn("admin API key not set; admin routes are unauthenticated")
	}
	router := api.NewRouter(handler, api.RouterOptions{
		AdminAPIKey:    cfg.Auth.AdminAPIKey,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
	})
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	if interval := time.Duration(cfg.Export.ArchiveInterval); interval > 0 && archiver.Configured() {
		coordinator := worker.NewExportCoordinator(archiver, interval, recorder, logger)
		startWorker(ctx, &wg, "export-coordinator", coordinator.Run)
	}

	go func() {
		slog.Info("server starting", "address", addr, "version", Version)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// In-flight requests first, then workers and queued notifications,
	// then the store they all write to.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	wg.Wait()
	dispatcher.Close()
	if err := closeLimiter(); err != nil {
		slog.Error("rate limiter close error", "error", err)
	}
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}

// loadConfig reads the --config file when given, otherwise the default
// lookup where a missing file is fine.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Database.Path,
		store.WithStatementTimeout(time.Duration(cfg.Database.StatementTimeout)),
		store.WithPageSizes(cfg.Limits.ListDefault, cfg.Limits.ListMax),
	)
}
