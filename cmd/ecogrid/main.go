package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/auth"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/binding"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/cache"
	corecfg "github.com/ecogrid-lab/ecogrid-gateway/internal/core/config"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/devicefeed"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/gateway"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/observability/metrics"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/server"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/snapshot"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	printConfig := flag.Bool("print-config", false, "Print the resolved configuration as YAML and exit")
	flag.Parse()

	// 0. Initialize Logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *printConfig {
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			slog.Error("Failed to encode config", "error", err)
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(out)
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))
	slog.Info("Loaded config", "upstream", cfg.Upstream.BaseURL, "stream", cfg.Stream.Enabled,
		"devicefeed", cfg.DeviceFeed.Source, "database", cfg.Database.Enabled)

	metrics.Init()
	reg := prometheus.DefaultRegisterer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// 2. Initialize Snapshot Storage
	store, checks, closeStore, err := openSnapshotStore(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize snapshot storage", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	persister := snapshot.NewPersister(store)
	logRegisterError("persister", metrics.RegisterPersister(reg, persister))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := persister.Run(ctx); err != nil {
			slog.Error("Snapshot persister stopped with error", "error", err)
		}
	}()

	// 3. Initialize Upstream Client and Session
	creds := auth.NewCredentialStore(nil)
	session := auth.NewSession()
	requestCache := cache.New(cache.WithDefaultTTL(cfg.Cache.DefaultTTL))
	logRegisterError("cache", metrics.RegisterCache(reg, requestCache))

	apiClient, err := apiclient.New(apiclient.Config{
		BaseURL:  cfg.Upstream.BaseURL,
		Timeout:  cfg.Upstream.Timeout,
		Cache:    requestCache,
		Observer: metrics.ObserveUpstream,
	}, creds, session)
	if err != nil {
		slog.Error("Failed to initialize upstream client", "error", err)
		os.Exit(1)
	}
	authSvc := auth.NewService(apiClient, creds, session)

	// Cached responses belong to the ended session.
	session.OnEnd(func(reason string) {
		apiClient.ClearCache()
		slog.Info("Session ended, response cache cleared", "reason", reason)
	})

	if cfg.Auth.Email != "" {
		if _, err := authSvc.Login(ctx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
			slog.Warn("Startup login failed, continuing unauthenticated", "error", err)
		}
	}

	go requestCache.RunJanitor(ctx, cfg.Cache.JanitorInterval)

	// 4. Initialize Device Feed and Overview Bindings
	tracker := devicefeed.NewTracker()
	logRegisterError("devicefeed", metrics.RegisterDeviceFeed(reg, tracker))
	if err := startDeviceFeed(ctx, &wg, cfg.DeviceFeed, tracker); err != nil {
		slog.Error("Failed to initialize device feed", "error", err)
		os.Exit(1)
	}

	overviews := gateway.NewOverviewWatchers(apiClient, tracker, gateway.OverviewOptions{
		Idle:    cfg.Watchers.IdleTimeout,
		Refresh: cfg.Watchers.RefreshInterval,
		Binding: []binding.Option{
			binding.WithPolicy(cfg.Retry.Policy()),
		},
	})
	go overviews.Run(ctx, cfg.Watchers.SweepInterval)

	// 5. Initialize Live Site Streams
	var live gateway.LiveSites
	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(newFeedFactory(cfg.Stream, creds, store, persister, reg), cfg.Stream.SiteIDs,
			stream.WithIdleTimeout(cfg.Stream.IdleTimeout),
			stream.WithMaxFeeds(cfg.Stream.MaxSites),
		)
		for _, siteID := range cfg.Stream.SiteIDs {
			if _, err := hub.Open(ctx, siteID); err != nil {
				slog.Error("Failed to open site stream", "site_id", siteID, "error", err)
			}
		}
		go hub.Run(ctx, cfg.Watchers.SweepInterval)
		live = hub
	} else {
		slog.Info("Live site streams disabled by config")
	}

	// 6. Initialize Server
	handler := gateway.New(gateway.Deps{
		API:          apiClient,
		Session:      authSvc,
		Overviews:    overviews,
		Tracker:      tracker,
		Live:         live,
		OverviewWait: cfg.Watchers.OverviewWait,
		KeepAlive:    cfg.Stream.KeepAlive,
	})
	srv := server.New(cfg.Server.Addr(), cfg.Server.Mode, checks, gateway.RequestID(), gateway.Observe())
	handler.RegisterRoutes(srv.Engine)

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}
	cancel()

	if hub != nil {
		hub.Close()
	}
	wg.Wait()

	slog.Info("Shutdown complete")
}

func logLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func logRegisterError(name string, err error) {
	if err != nil {
		slog.Warn("Failed to register metrics", "collector", name, "error", err)
	}
}
