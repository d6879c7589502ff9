package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ftmeeet/CAS/internal/conjunction"
	"github.com/ftmeeet/CAS/internal/freshness"
	"github.com/ftmeeet/CAS/internal/propagation"
	"github.com/ftmeeet/CAS/internal/results"
	"github.com/ftmeeet/CAS/internal/riskmodel"
	"github.com/ftmeeet/CAS/internal/screening"
	"github.com/ftmeeet/CAS/internal/tle"
)

// PipelineConfig carries the per-run screening parameters.
type PipelineConfig struct {
	CatalogMaxAge time.Duration
	ModelMaxAge   time.Duration
	ModelPath     string
	Filters       conjunction.FilterParams
	Search        conjunction.SearchParams // Start is set per run
	PairTimeout   time.Duration
}

// Pipeline is the production analysis run: freshness checks and
// refreshes, candidate pair construction, the screening batch, and
// result persistence.
type Pipeline struct {
	cfg            PipelineConfig
	gate           *freshness.Gate
	tleCache       *tle.Cache
	tleRefresher   *tle.Refresher
	tleStore       *tle.Store
	modelRefresher *riskmodel.Refresher
	bank           *propagation.Bank
	results        *results.Store
	logger         *slog.Logger
}

func NewPipeline(
	cfg PipelineConfig,
	gate *freshness.Gate,
	tleCache *tle.Cache,
	tleRefresher *tle.Refresher,
	tleStore *tle.Store,
	modelRefresher *riskmodel.Refresher,
	bank *propagation.Bank,
	resultStore *results.Store,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:            cfg,
		gate:           gate,
		tleCache:       tleCache,
		tleRefresher:   tleRefresher,
		tleStore:       tleStore,
		modelRefresher: modelRefresher,
		bank:           bank,
		results:        resultStore,
		logger:         logger,
	}
}

// Run executes one analysis. A freshness refresh failure is fatal to the
// run; per-pair failures are contained inside the orchestrator.
func (p *Pipeline) Run(ctx context.Context, rep ProgressReporter) (*screening.Report, error) {
	rep.Milestone("checking catalog freshness")
	if err := p.ensureCatalog(ctx, rep); err != nil {
		return nil, err
	}

	rep.Milestone("checking model freshness")
	if !p.gate.IsFresh(p.cfg.ModelPath, p.cfg.ModelMaxAge) {
		rep.Milestone("refreshing risk model")
		if p.modelRefresher == nil {
			return nil, fmt.Errorf("risk model refresh: %w", riskmodel.ErrNoSource)
		}
		if err := p.modelRefresher.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("risk model refresh: %w", err)
		}
	}
	model, err := riskmodel.Load(p.cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("loading risk model: %w", err)
	}

	rep.Milestone("building candidate pairs")
	ds := p.tleStore.Get()
	if ds == nil || len(ds.Satellites) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	// Without an uploaded target set the whole catalog is screened
	// against itself, every unique pair once.
	var pairs []tle.Pair
	if targets := p.tleStore.Targets(); len(targets) > 0 {
		pairs = screening.BuildPairs(targets, ds.Satellites)
	} else {
		pairs = screening.BuildCatalogPairs(ds.Satellites)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("catalog yields no candidate pairs")
	}

	rep.Milestone("screening candidate pairs")
	search := p.cfg.Search
	search.Start = time.Now().UTC()
	orch := screening.NewOrchestrator(
		p.bank,
		model,
		conjunction.NewChain(p.cfg.Filters),
		search,
		p.cfg.PairTimeout,
		p.logger,
	)
	report, err := orch.Run(ctx, pairs, rep.Progress)
	if err != nil {
		return nil, err
	}

	// A cancelled batch is returned for inspection but never persisted:
	// partial results must not surface through the results endpoint.
	if !report.Incomplete {
		rep.Milestone("persisting results")
		if _, err := p.results.SaveRun(context.WithoutCancel(ctx), report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// ensureCatalog refreshes the catalog when the cached copy is stale, and
// installs the cached copy when the in-memory store is cold.
func (p *Pipeline) ensureCatalog(ctx context.Context, rep ProgressReporter) error {
	fresh := false
	if path, err := p.tleCache.LatestPath(); err == nil {
		fresh = p.gate.IsFresh(path, p.cfg.CatalogMaxAge)
	}

	if !fresh {
		rep.Milestone("refreshing catalog")
		if err := p.tleRefresher.Refresh(ctx); err != nil {
			return fmt.Errorf("catalog refresh: %w", err)
		}
		return nil
	}

	if p.tleStore.Get() == nil {
		data, fetchedAt, err := p.tleCache.LoadLatest()
		if err != nil {
			return fmt.Errorf("loading cached catalog: %w", err)
		}
		if err := p.tleRefresher.Install(data, fetchedAt, "cache"); err != nil {
			return fmt.Errorf("installing cached catalog: %w", err)
		}
	}
	return nil
}
