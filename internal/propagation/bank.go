package propagation

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftmeeet/CAS/internal/tle"
)

// bankCache holds preinitialized SGP4 propagators for a specific catalog
// snapshot. Immutable after construction; safe for concurrent reads.
type bankCache struct {
	props     map[int]*SGP4Propagator
	fetchedAt time.Time
}

// Bank hands out SGP4 propagators for catalog entries, preinitialized per
// catalog snapshot so repeated screening runs do not re-parse TLEs.
type Bank struct {
	store  *tle.Store
	logger *slog.Logger
	cache  atomic.Pointer[bankCache]
	mu     sync.Mutex // serializes cache rebuilds
}

// NewBank creates a propagator bank backed by the given store.
func NewBank(store *tle.Store, logger *slog.Logger) *Bank {
	return &Bank{
		store:  store,
		logger: logger,
	}
}

// For returns a propagator for the given entry. Catalog entries are served
// from the per-snapshot cache; entries outside the snapshot (user targets)
// are built on demand.
func (b *Bank) For(entry tle.TLEEntry) (*SGP4Propagator, error) {
	if ds := b.store.Get(); ds != nil {
		if p, ok := b.cachedProps(ds)[entry.NORADID]; ok {
			return p, nil
		}
	}
	return NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
}

// cachedProps returns preinitialized propagators for the given snapshot.
// Rebuilds the cache if the snapshot has changed (double-checked locking).
func (b *Bank) cachedProps(ds *tle.TLEDataset) map[int]*SGP4Propagator {
	if c := b.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.props
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.props
	}

	props := make(map[int]*SGP4Propagator, len(ds.Satellites))
	var skipped int
	for _, entry := range ds.Satellites {
		if _, ok := props[entry.NORADID]; ok {
			continue
		}
		sp, err := NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
		if err != nil {
			b.logger.Warn("sgp4 bank init failed", "norad_id", entry.NORADID, "error", err)
			skipped++
			continue
		}
		props[entry.NORADID] = sp
	}

	b.logger.Info("sgp4 propagator bank rebuilt",
		"cached", len(props),
		"skipped", skipped,
		"snapshot_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	b.cache.Store(&bankCache{props: props, fetchedAt: ds.FetchedAt})
	return props
}
