package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ftmeeet/CAS/internal/api"
	"github.com/ftmeeet/CAS/internal/auth"
	"github.com/ftmeeet/CAS/internal/conjunction"
	"github.com/ftmeeet/CAS/internal/freshness"
	"github.com/ftmeeet/CAS/internal/job"
	"github.com/ftmeeet/CAS/internal/metrics"
	"github.com/ftmeeet/CAS/internal/propagation"
	"github.com/ftmeeet/CAS/internal/results"
	"github.com/ftmeeet/CAS/internal/riskmodel"
	"github.com/ftmeeet/CAS/internal/stream"
	"github.com/ftmeeet/CAS/internal/tle"
)

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("CAS_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	catalogCfg := loadCatalogConfig(logger)
	store := tle.NewStore()
	tleCache := tle.NewCache(catalogCfg.CacheDir, catalogCfg.MaxFiles)
	fetcher := tle.NewFetcher(catalogCfg.SourceURL, logger, catalogCfg.ExtraSourceURLs...)
	refresher := tle.NewRefresher(fetcher, tleCache, store, logger)

	// Attempt to load cached catalog data on startup.
	data, ts, err := tleCache.LoadLatest()
	if err != nil {
		logger.Info("no catalog cache found, starting without catalog data", "error", err)
	} else if err := refresher.Install(data, ts, "cache"); err != nil {
		logger.Warn("failed to load cached catalog data", "error", err)
	}

	// Always constructed: with no source URL a stale or missing model
	// fails the run with a configuration error instead of crashing it.
	modelCfg := loadModelConfig(logger)
	modelRefresher := riskmodel.NewRefresher(modelCfg.SourceURL, modelCfg.Path, logger)

	resultsPath := os.Getenv("CAS_RESULTS_DB")
	if resultsPath == "" {
		resultsPath = "/tmp/cas/results.db"
	}
	resultStore, err := results.Open(resultsPath, logger)
	if err != nil {
		logger.Error("failed to open results database", "path", resultsPath, "error", err)
		os.Exit(1)
	}

	bank := propagation.NewBank(store, logger)
	pipelineCfg := loadPipelineConfig(logger, catalogCfg.MaxAge, modelCfg)
	pipeline := job.NewPipeline(
		pipelineCfg,
		freshness.NewGate(),
		tleCache,
		refresher,
		store,
		modelRefresher,
		bank,
		resultStore,
		logger,
	)

	stopWait := durationEnv(logger, "CAS_STOP_WAIT", 5*time.Second)
	controller := job.NewController(pipeline.Run, stopWait, logger)

	trustProxy := boolEnv(logger, "CAS_TRUST_PROXY", false)
	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(controller, streamCfg, trustProxy, logger)

	srv := api.NewServer(addr, logger, api.Dependencies{
		Controller: controller,
		Results:    resultStore,
		Catalog:    store,
		Stream:     streamHandler,
		Auth:       authCfg,
		TrustProxy: trustProxy,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// A running analysis is abandoned on shutdown; partial results are
	// never persisted, so the next run starts clean.
	if err := controller.Stop(); err != nil && !errors.Is(err, job.ErrNotRunning) {
		logger.Warn("could not stop analysis during shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

type catalogConfig struct {
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
}

type modelConfig struct {
	Path      string
	SourceURL string
	MaxAge    time.Duration
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("CAS_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("CAS_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("CAS_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("CAS_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCatalogConfig(logger *slog.Logger) catalogConfig {
	cfg := catalogConfig{
		SourceURL: "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle",
		CacheDir:  "/tmp/cas/tle",
		MaxFiles:  5,
		MaxAge:    24 * time.Hour,
	}

	if v := os.Getenv("CAS_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("CAS_TLE_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		cfg.ExtraSourceURLs = urls
	}

	if v := os.Getenv("CAS_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("CAS_TLE_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid CAS_TLE_MAX_FILES value, using default", "value", v, "default", cfg.MaxFiles)
		} else {
			cfg.MaxFiles = n
		}
	}

	cfg.MaxAge = durationEnv(logger, "CAS_TLE_MAX_AGE", cfg.MaxAge)

	logger.Info("catalog config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)

	return cfg
}

func loadModelConfig(logger *slog.Logger) modelConfig {
	cfg := modelConfig{
		Path:   "/tmp/cas/risk_model.json",
		MaxAge: 24 * time.Hour,
	}

	if v := os.Getenv("CAS_MODEL_PATH"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("CAS_MODEL_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	cfg.MaxAge = durationEnv(logger, "CAS_MODEL_MAX_AGE", cfg.MaxAge)

	logger.Info("model config",
		"path", cfg.Path,
		"source_url", cfg.SourceURL,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)

	return cfg
}

func loadPipelineConfig(logger *slog.Logger, catalogMaxAge time.Duration, model modelConfig) job.PipelineConfig {
	cfg := job.PipelineConfig{
		CatalogMaxAge: catalogMaxAge,
		ModelMaxAge:   model.MaxAge,
		ModelPath:     model.Path,
		Filters: conjunction.FilterParams{
			MaxEpochAge:     20 * 24 * time.Hour,
			BandMarginKM:    100,
			SMAThresholdKM:  100,
			IncThresholdDeg: 5,
		},
		Search: conjunction.SearchParams{
			Duration:    48 * time.Hour,
			CoarseStep:  time.Hour,
			FineStep:    time.Minute,
			ThresholdKM: 10,
		},
		PairTimeout: time.Minute,
	}

	cfg.Filters.MaxEpochAge = durationEnv(logger, "CAS_FILTER_MAX_EPOCH_AGE", cfg.Filters.MaxEpochAge)
	cfg.Filters.BandMarginKM = floatEnv(logger, "CAS_FILTER_BAND_MARGIN_KM", cfg.Filters.BandMarginKM)
	cfg.Filters.SMAThresholdKM = floatEnv(logger, "CAS_FILTER_SMA_THRESHOLD_KM", cfg.Filters.SMAThresholdKM)
	cfg.Filters.IncThresholdDeg = floatEnv(logger, "CAS_FILTER_INC_THRESHOLD_DEG", cfg.Filters.IncThresholdDeg)

	cfg.Search.Duration = durationEnv(logger, "CAS_SEARCH_WINDOW", cfg.Search.Duration)
	cfg.Search.CoarseStep = durationEnv(logger, "CAS_SEARCH_COARSE_STEP", cfg.Search.CoarseStep)
	cfg.Search.FineStep = durationEnv(logger, "CAS_SEARCH_FINE_STEP", cfg.Search.FineStep)
	cfg.Search.ThresholdKM = floatEnv(logger, "CAS_SEARCH_THRESHOLD_KM", cfg.Search.ThresholdKM)

	cfg.PairTimeout = durationEnv(logger, "CAS_PAIR_TIMEOUT", cfg.PairTimeout)

	if err := cfg.Search.Validate(); err != nil {
		logger.Error("invalid search configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("screening config",
		"window_hours", cfg.Search.Duration.Hours(),
		"coarse_step_seconds", cfg.Search.CoarseStep.Seconds(),
		"fine_step_seconds", cfg.Search.FineStep.Seconds(),
		"threshold_km", cfg.Search.ThresholdKM,
		"pair_timeout_seconds", cfg.PairTimeout.Seconds(),
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		PollInterval:       250 * time.Millisecond,
	}

	if v := os.Getenv("CAS_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid CAS_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	cfg.KeepaliveInterval = durationEnv(logger, "CAS_STREAM_KEEPALIVE_INTERVAL", cfg.KeepaliveInterval)
	cfg.PollInterval = durationEnv(logger, "CAS_STREAM_POLL_INTERVAL", cfg.PollInterval)

	return cfg
}

// durationEnv reads an environment variable holding whole seconds.
func durationEnv(logger *slog.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid duration value, using default", "key", key, "value", v, "default_seconds", def.Seconds())
		return def
	}
	return time.Duration(n) * time.Second
}

func floatEnv(logger *slog.Logger, key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		logger.Warn("invalid numeric value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func boolEnv(logger *slog.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid boolean value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}
