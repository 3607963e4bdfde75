// Package memory is the in-process snapshot store used when no database is
// configured.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
)

type SnapshotStore struct {
	mu    sync.RWMutex
	sites map[string]telemetry.State
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{sites: make(map[string]telemetry.State)}
}

func (s *SnapshotStore) SaveSnapshot(_ context.Context, state telemetry.State) error {
	if state.SiteID == "" {
		return errors.New("snapshot has no site id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sites[state.SiteID]; ok && state.LastUpdated.Before(prev.LastUpdated) {
		return nil
	}
	state = state.Clone()
	state.ConnectionStatus = ""
	s.sites[state.SiteID] = state
	return nil
}

func (s *SnapshotStore) LoadSnapshot(_ context.Context, siteID string) (telemetry.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sites[siteID]
	if !ok {
		return telemetry.State{}, storage.ErrNotFound
	}
	return state.Clone(), nil
}

func (s *SnapshotStore) ListSites(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sites))
	for id := range s.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SnapshotStore) DeleteSnapshot(_ context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.sites, siteID)
	return nil
}
