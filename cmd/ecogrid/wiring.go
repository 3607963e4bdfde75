package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/auth"
	corecfg "github.com/ecogrid-lab/ecogrid-gateway/internal/core/config"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage/memory"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage/postgres"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/devicefeed"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/migrations"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/observability/metrics"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/server"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/snapshot"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/stream"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/stream/wsock"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

// openSnapshotStore returns the Postgres store when the database is
// enabled and the in-memory store otherwise.
func openSnapshotStore(cfg corecfg.DatabaseConfig) (storage.SnapshotStore, map[string]server.HealthChecker, func(), error) {
	checks := map[string]server.HealthChecker{}
	if !cfg.Enabled {
		slog.Info("Database disabled, keeping snapshots in memory")
		return memory.NewSnapshotStore(), checks, func() {}, nil
	}

	db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	adapter, err := postgres.NewSnapshotAdapter(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("create snapshot adapter: %w", err)
	}
	checks["database"] = adapter
	slog.Info("Snapshot storage connected", "max_open_conns", cfg.MaxOpenConns)

	return adapter, checks, func() {
		if err := adapter.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}, nil
}

// startDeviceFeed runs the configured device telemetry source until ctx
// is cancelled.
func startDeviceFeed(ctx context.Context, wg *sync.WaitGroup, cfg corecfg.DeviceFeedConfig, tracker *devicefeed.Tracker) error {
	var (
		src     devicefeed.Source
		closeFn func() error
	)
	switch cfg.Source {
	case corecfg.FeedKafka:
		ks, err := devicefeed.NewKafkaSource(devicefeed.KafkaConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			PollTimeout: cfg.PollTimeout,
		})
		if err != nil {
			return err
		}
		src, closeFn = ks, ks.Close
	case corecfg.FeedMQTT:
		ms, err := devicefeed.NewMQTTSource(devicefeed.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.ClientID,
		})
		if err != nil {
			return err
		}
		src = ms
	default:
		slog.Info("Device feed disabled by config")
		return nil
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Device feed started", "source", cfg.Source)
		if err := src.Run(ctx, tracker); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Device feed stopped with error", "source", cfg.Source, "error", err)
		}
		if closeFn != nil {
			if err := closeFn(); err != nil {
				slog.Warn("Failed to close device feed", "source", cfg.Source, "error", err)
			}
		}
	}()
	return nil
}

// newFeedFactory builds the live feed of a site: a restored accumulator,
// tracked by the persister, fed by its own push connection.
func newFeedFactory(cfg corecfg.StreamConfig, creds *auth.CredentialStore, store storage.SnapshotStore,
	persister *snapshot.Persister, reg prometheus.Registerer) stream.FeedFactory {
	return func(ctx context.Context, siteID string) (*stream.Feed, error) {
		rawURL, err := siteStreamURL(cfg.URL, siteID)
		if err != nil {
			return nil, err
		}

		acc := telemetry.NewAccumulator(siteID, nil)
		if _, err := snapshot.Restore(ctx, store, acc); err != nil {
			slog.Warn("Failed to restore site snapshot", "site_id", siteID, "error", err)
		}
		untrack := persister.Track(acc)
		unsubscribe := acc.Subscribe(func(s telemetry.State) {
			metrics.SetConnectionStatus(siteID, s.ConnectionStatus)
		})
		unregister, err := metrics.RegisterAccumulator(reg, acc)
		if err != nil {
			slog.Warn("Failed to register metrics", "collector", "accumulator", "site_id", siteID, "error", err)
		}

		client := stream.NewClient(wsock.New(rawURL, creds.Token), acc, stream.Config{
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			Reconnect:            cfg.ReconnectPolicy(),
			Heartbeat:            cfg.Heartbeat,
		}, stream.WithReconnectHook(func(int, time.Duration) {
			metrics.IncReconnect(siteID)
		}))
		release := func() {
			unsubscribe()
			untrack()
			unregister()
			slog.Info("Released site feed", "site_id", siteID)
		}
		return &stream.Feed{Accumulator: acc, Client: client, OnRelease: release}, nil
	}
}

// siteStreamURL scopes the push endpoint to one site.
func siteStreamURL(base, siteID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("siteId", siteID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
