package riskmodel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSource indicates no model download URL is configured; a stale
// artifact cannot be replaced and the pipeline must not proceed.
var ErrNoSource = errors.New("no model source configured")

// Practical ceiling for a model artifact. Well above any plausible
// weights file but small enough to bound a misbehaving server.
const maxArtifactBytes = 8 << 20

// Refresher downloads a trained model artifact from a remote source and
// installs it atomically on disk.
type Refresher struct {
	sourceURL string
	path      string
	client    *http.Client
	logger    *slog.Logger
}

// NewRefresher creates a refresher writing to path. sourceURL may be
// empty, in which case Refresh fails with ErrNoSource.
func NewRefresher(sourceURL, path string, logger *slog.Logger) *Refresher {
	return &Refresher{
		sourceURL: sourceURL,
		path:      path,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    logger,
	}
}

// Refresh downloads the artifact, validates it against the feature schema
// this binary extracts, and replaces the on-disk copy. The existing
// artifact is left untouched on any failure.
func (r *Refresher) Refresh(ctx context.Context) error {
	if r.sourceURL == "" {
		return ErrNoSource
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.sourceURL, nil)
	if err != nil {
		return fmt.Errorf("building model request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching model artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching model artifact: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return fmt.Errorf("reading model artifact: %w", err)
	}
	if len(data) > maxArtifactBytes {
		return fmt.Errorf("model artifact exceeds %d byte limit", maxArtifactBytes)
	}

	// Validate before touching disk so a bad download never clobbers a
	// working artifact.
	if _, err := Parse(data); err != nil {
		return fmt.Errorf("downloaded artifact invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing model artifact: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("installing model artifact: %w", err)
	}

	r.logger.Info("model artifact refreshed",
		"source", r.sourceURL,
		"path", r.path,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
