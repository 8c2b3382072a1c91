package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vilaca/pr-dashboard/internal/api"
	"github.com/vilaca/pr-dashboard/internal/api/bitbucket"
	"github.com/vilaca/pr-dashboard/internal/api/github"
	"github.com/vilaca/pr-dashboard/internal/config"
	"github.com/vilaca/pr-dashboard/internal/domain"
	"github.com/vilaca/pr-dashboard/internal/server"
	"github.com/vilaca/pr-dashboard/internal/service"
	"github.com/vilaca/pr-dashboard/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server with periodic background syncing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	if err := seedStore(ctx, store, cfg); err != nil {
		return err
	}

	syncer, reviewers := buildServices(cfg, store, log)

	interval := time.Duration(cfg.RefreshIntervalMinutes) * time.Minute
	var minutes int
	if found, err := store.Get(ctx, storage.KeyRefreshInterval, &minutes); err == nil && found && minutes > 0 {
		interval = time.Duration(minutes) * time.Minute
	}
	poller := service.NewPoller(syncer, interval, log)
	poller.Start()
	defer poller.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "pr-dashboard",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	server.NewHandler(log, syncer, reviewers, store).Register(app)

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Infow("server starting", "addr", addr)
		errChan <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// openStore picks the persistence backend from configuration.
func openStore(cfg *config.Config, log *zap.SugaredLogger) (storage.Store, func(), error) {
	switch cfg.StoreBackend {
	case "sqlite":
		s, err := storage.OpenSQLiteStore(cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := storage.OpenFileStore(cfg.StorePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return s, func() {}, nil
	}
}

// seedStore pushes configuration-derived values into the store so the
// runtime reads one source of truth. Credentials from the environment or
// config file always win; the whitelist and refresh interval are only
// seeded when nothing is stored yet, so API edits survive restarts.
func seedStore(ctx context.Context, store storage.Store, cfg *config.Config) error {
	creds := cfg.Credentials()
	if creds.HasGitHub() || creds.HasBitbucket() {
		if err := store.Set(ctx, storage.KeyCredentials, creds); err != nil {
			return fmt.Errorf("failed to seed credentials: %w", err)
		}
	}

	if len(cfg.BitbucketWhitelist) > 0 {
		var existing []string
		found, err := store.Get(ctx, storage.KeyWhitelist, &existing)
		if err != nil {
			return fmt.Errorf("failed to read whitelist: %w", err)
		}
		if !found {
			if err := store.Set(ctx, storage.KeyWhitelist, cfg.BitbucketWhitelist); err != nil {
				return fmt.Errorf("failed to seed whitelist: %w", err)
			}
		}
	}

	var minutes int
	found, err := store.Get(ctx, storage.KeyRefreshInterval, &minutes)
	if err != nil {
		return fmt.Errorf("failed to read refresh interval: %w", err)
	}
	if !found {
		if err := store.Set(ctx, storage.KeyRefreshInterval, cfg.RefreshIntervalMinutes); err != nil {
			return fmt.Errorf("failed to seed refresh interval: %w", err)
		}
	}
	return nil
}

// buildServices wires the provider clients and services around the store.
func buildServices(cfg *config.Config, store storage.Store, log *zap.SugaredLogger) (*service.Syncer, *service.Reviewers) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	githubClient := github.NewClient(api.ClientConfig{BaseURL: cfg.GitHubURL}, httpClient, log)

	// The Bitbucket client reads the whitelist live from the store, so
	// API edits take effect on the next run without a restart.
	whitelist := func(ctx context.Context) ([]string, error) {
		var repos []string
		if _, err := store.Get(ctx, storage.KeyWhitelist, &repos); err != nil {
			return nil, err
		}
		return repos, nil
	}
	bitbucketClient := bitbucket.NewClient(api.ClientConfig{BaseURL: cfg.BitbucketURL}, httpClient, whitelist, log)

	syncer := service.NewSyncer(store, log)
	syncer.RegisterClient(domain.SourceGitHub, githubClient)
	syncer.RegisterClient(domain.SourceBitbucket, bitbucketClient)

	reviewers := service.NewReviewers(store, githubClient, log)
	return syncer, reviewers
}
