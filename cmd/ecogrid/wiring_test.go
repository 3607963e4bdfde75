package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	corecfg "github.com/ecogrid-lab/ecogrid-gateway/internal/core/config"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/devicefeed"
	"github.com/stretchr/testify/require"
)

func TestSiteStreamURL(t *testing.T) {
	got, err := siteStreamURL("ws://localhost:8080/ws/ems?lang=en", "site-7")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8080/ws/ems?lang=en&siteId=site-7", got)

	_, err = siteStreamURL("://bad", "site-7")
	require.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logLevel("debug"))
	require.Equal(t, slog.LevelWarn, logLevel("WARN"))
	require.Equal(t, slog.LevelInfo, logLevel("nonsense"))
}

func TestOpenSnapshotStore_Disabled(t *testing.T) {
	store, checks, closeFn, err := openSnapshotStore(corecfg.DatabaseConfig{})
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Empty(t, checks)
	closeFn()
}

func TestStartDeviceFeed_None(t *testing.T) {
	var wg sync.WaitGroup
	err := startDeviceFeed(context.Background(), &wg, corecfg.DeviceFeedConfig{Source: corecfg.FeedNone}, devicefeed.NewTracker())
	require.NoError(t, err)
	wg.Wait()
}

func TestStartDeviceFeed_KafkaWithoutBrokers(t *testing.T) {
	var wg sync.WaitGroup
	err := startDeviceFeed(context.Background(), &wg, corecfg.DeviceFeedConfig{Source: corecfg.FeedKafka}, devicefeed.NewTracker())
	require.Error(t, err)
}
