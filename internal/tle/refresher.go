package tle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Refresher ties together fetch, disk cache, and store: one call downloads a
// fresh catalog, snapshots it to disk, and atomically swaps it into the store.
type Refresher struct {
	fetcher *Fetcher
	cache   *Cache
	store   *Store
	logger  *slog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(fetcher *Fetcher, cache *Cache, store *Store, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher: fetcher,
		cache:   cache,
		store:   store,
		logger:  logger,
	}
}

// Refresh downloads the catalog, writes a snapshot, and installs the parsed
// dataset. Concurrent refreshes are serialized on the store's fetch mutex.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.store.Lock()
	defer r.store.Unlock()

	data, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching catalog: %w", err)
	}

	now := time.Now().UTC()
	if err := r.cache.Write(data, now); err != nil {
		return fmt.Errorf("caching catalog: %w", err)
	}

	if err := r.Install(data, now, r.fetcher.SourceURL()); err != nil {
		return err
	}
	return nil
}

// Install parses raw TLE data and swaps it into the store. Used by Refresh and
// by startup cache loading.
func (r *Refresher) Install(data []byte, fetchedAt time.Time, source string) error {
	entries, err := Parse(bytes.NewReader(data), r.logger)
	if err != nil {
		return fmt.Errorf("parsing catalog: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("catalog from %s contained no usable entries", source)
	}

	minEpoch := entries[0].Epoch
	maxEpoch := entries[0].Epoch
	for _, e := range entries[1:] {
		if e.Epoch.Before(minEpoch) {
			minEpoch = e.Epoch
		}
		if e.Epoch.After(maxEpoch) {
			maxEpoch = e.Epoch
		}
	}

	r.store.Set(&TLEDataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		EpochRange: EpochRange{Min: minEpoch, Max: maxEpoch},
		Satellites: entries,
	})

	r.logger.Info("catalog installed",
		"source", source,
		"count", len(entries),
		"fetched_at", fetchedAt.Format(time.RFC3339),
	)
	return nil
}
