package tle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestRefreshInstallsDataset verifies a refresh fetches, caches, and swaps
// the parsed catalog into the store.
func TestRefreshInstallsDataset(t *testing.T) {
	body := tleBody(issName, issLine1, issLine2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	store := NewStore()
	cache := NewCache(t.TempDir(), 3)
	refresher := NewRefresher(NewFetcher(server.URL, testLogger), cache, store, testLogger)

	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ds := store.Get()
	if ds == nil {
		t.Fatal("expected dataset in store after refresh")
	}
	if len(ds.Satellites) != 1 {
		t.Errorf("expected 1 satellite, got %d", len(ds.Satellites))
	}
	if ds.Source != server.URL {
		t.Errorf("source = %q, want %q", ds.Source, server.URL)
	}
	if age := store.AgeSeconds(); age < 0 {
		t.Errorf("AgeSeconds = %v after install, want >= 0", age)
	}

	// The snapshot must be re-loadable from disk.
	data, _, err := cache.LoadLatest()
	if err != nil {
		t.Fatalf("cache load: %v", err)
	}
	if string(data) != body {
		t.Errorf("cached snapshot mismatch: got %d bytes, want %d", len(data), len(body))
	}
}

// TestInstallRejectsEmptyCatalog verifies data with no usable entries never
// replaces the current dataset.
func TestInstallRejectsEmptyCatalog(t *testing.T) {
	store := NewStore()
	refresher := NewRefresher(nil, NewCache(t.TempDir(), 3), store, testLogger)

	if err := refresher.Install([]byte("not tle data\n"), time.Now(), "test"); err == nil {
		t.Fatal("expected error for unusable catalog data")
	}
	if store.Get() != nil {
		t.Error("store should remain empty after failed install")
	}
}

// TestStoreTargets verifies the target set is swapped independently of the
// catalog dataset.
func TestStoreTargets(t *testing.T) {
	store := NewStore()
	if got := store.Targets(); got != nil {
		t.Fatalf("expected no targets initially, got %d", len(got))
	}

	store.SetTargets([]TLEEntry{{NORADID: 25544, Name: issName}})
	targets := store.Targets()
	if len(targets) != 1 || targets[0].NORADID != 25544 {
		t.Errorf("unexpected targets %+v", targets)
	}
	if store.Get() != nil {
		t.Error("setting targets must not touch the catalog dataset")
	}
}
