package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/opsdeck/notifyd/internal/api"
	"github.com/opsdeck/notifyd/internal/backend"
	"github.com/opsdeck/notifyd/internal/cache"
	"github.com/opsdeck/notifyd/internal/config"
	"github.com/opsdeck/notifyd/internal/feed"
	"github.com/opsdeck/notifyd/internal/push"
	"github.com/opsdeck/notifyd/internal/session"
	"github.com/opsdeck/notifyd/internal/toast"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting notifyd",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	// Session credential: without an authenticated user there is no feed
	if cfg.Session.Token == "" {
		logger.Fatal("SESSION_TOKEN is not set")
	}
	cred, err := session.FromToken(cfg.Session.Token)
	if err != nil {
		logger.Fatal("Invalid session token", zap.Error(err))
	}
	if cred.Expired(time.Now()) {
		logger.Warn("Session token is expired, backend calls will be rejected")
	}
	logger.Info("Session loaded", zap.Int64("user_id", cred.UserID()))

	// Local read-state mirror, best effort
	var readCache feed.ReadCache
	store, err := cache.Open(cfg.Cache.Path, logger)
	if err != nil {
		logger.Warn("Read cache unavailable, continuing without it", zap.Error(err))
	} else {
		readCache = store
		defer store.Close()
	}

	// Initialize dependencies
	backendClient := backend.New(cfg.Backend.BaseURL, cred.Token(), cfg.Backend.Timeout, logger)
	tray := toast.NewTray(cfg.Feed.ToastTTL, logger)

	aggregator := feed.New(feed.Options{
		UserID:       cred.UserID(),
		Fetcher:      backendClient,
		Marker:       backendClient,
		Toaster:      tray,
		Cache:        readCache,
		SeenCapacity: cfg.Feed.SeenCapacity,
		Logger:       logger,
	})

	// Bulk fetch; a failure is non-fatal and leaves the feed empty
	initCtx, initCancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
	aggregator.Initialize(initCtx)
	initCancel()

	// Push subscriptions
	subscriber := push.NewSubscriber(cfg.Push.URL, cred.Token(), aggregator.HandleEvent, logger)
	var subscriptions []*push.Subscription
	for _, raw := range cfg.Push.Channels {
		spec, err := push.ParseChannelSpec(raw)
		if err != nil {
			logger.Warn("Skipping invalid channel spec", zap.String("spec", raw), zap.Error(err))
			continue
		}
		sub, err := subscriber.Subscribe(context.Background(), spec)
		if err != nil {
			logger.Warn("Subscription failed", zap.String("channel", spec.Channel), zap.Error(err))
			continue
		}
		subscriptions = append(subscriptions, sub)
	}
	if cfg.Push.UserChannel {
		// Private channel: the category comes from each event's payload
		spec := push.ChannelSpec{Channel: fmt.Sprintf("user.%d", cred.UserID())}
		sub, err := subscriber.Subscribe(context.Background(), spec)
		if err != nil {
			logger.Warn("User channel subscription failed", zap.Error(err))
		} else {
			subscriptions = append(subscriptions, sub)
		}
	}

	// Periodic reconciliation with the backend's read state
	reconcileCtx, reconcileCancel := context.WithCancel(context.Background())
	go aggregator.ReconcileLoop(reconcileCtx, cfg.Feed.ReconcileInterval)

	// View API for the presentation shells
	feedHandler := api.NewFeedHandler(aggregator, tray, cfg.Feed.RecentWindowDays, logger)
	healthHandler := api.NewHealthHandler()
	router := api.NewRouter(feedHandler, healthHandler, cfg.Server.ViewToken, cfg.Server.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("View API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop push delivery first; already-delivered notifications stay put
	for _, sub := range subscriptions {
		_ = sub.Close()
	}
	reconcileCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
