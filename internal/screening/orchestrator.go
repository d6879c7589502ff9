package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ftmeeet/CAS/internal/conjunction"
	"github.com/ftmeeet/CAS/internal/metrics"
	"github.com/ftmeeet/CAS/internal/propagation"
	"github.com/ftmeeet/CAS/internal/riskmodel"
	"github.com/ftmeeet/CAS/internal/tle"
)

// ErrPairTimeout marks a closest-approach search that exceeded the
// per-pair budget. It is recoverable: the pair is skipped and counted.
var ErrPairTimeout = errors.New("pair search exceeded time budget")

// ProgressFunc receives (pairs handled so far, total pairs) after every
// pair, including filtered and failed ones.
type ProgressFunc func(done, total int)

// Orchestrator runs the per-pair pipeline over a candidate set. Pairs are
// screened sequentially; cancellation is honored between pairs.
type Orchestrator struct {
	bank        *propagation.Bank
	model       *riskmodel.Model
	filters     *conjunction.Chain
	search      conjunction.SearchParams
	pairTimeout time.Duration
	logger      *slog.Logger
}

func NewOrchestrator(
	bank *propagation.Bank,
	model *riskmodel.Model,
	filters *conjunction.Chain,
	search conjunction.SearchParams,
	pairTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		bank:        bank,
		model:       model,
		filters:     filters,
		search:      search,
		pairTimeout: pairTimeout,
		logger:      logger,
	}
}

// Run screens every candidate pair and returns the aggregated report.
// Per-pair failures are logged, counted and skipped; they never abort the
// batch. If ctx is cancelled the report covers the pairs already handled
// and is tagged Incomplete. Run returns an error only when the search
// parameters themselves are unusable.
func (o *Orchestrator) Run(ctx context.Context, pairs []tle.Pair, progress ProgressFunc) (*Report, error) {
	if err := o.search.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search parameters: %w", err)
	}
	if progress == nil {
		progress = func(int, int) {}
	}

	startedAt := time.Now().UTC()
	total := len(pairs)
	filtered := map[string]int{}
	events := make([]Event, 0, total)
	failed := 0
	incomplete := false

	o.logger.Info("screening batch started",
		"pairs", total,
		"window", o.search.Duration.String(),
		"threshold_km", o.search.ThresholdKM,
	)

	for i, pair := range pairs {
		if ctx.Err() != nil {
			incomplete = true
			o.logger.Info("screening batch cancelled", "handled", i, "total", total)
			break
		}

		if ok, rejectedBy := o.filters.Evaluate(pair); !ok {
			filtered[rejectedBy]++
			metrics.PairFiltered(rejectedBy)
			progress(i+1, total)
			continue
		}

		ev, err := o.screenPair(ctx, pair)
		if err != nil {
			failed++
			metrics.PairFailed()
			o.logger.Warn("pair screening failed",
				"satellite1", pair.A.Name,
				"satellite2", pair.B.Name,
				"error", err,
			)
			progress(i+1, total)
			continue
		}

		events = append(events, ev)
		if ev.Prediction == 1 {
			metrics.ConjunctionFound()
		}
		progress(i+1, total)
	}

	report := &Report{
		Events:     events,
		Stats:      computeStats(events, filtered, total, failed),
		Incomplete: incomplete,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}

	o.logger.Info("screening batch finished",
		"successful", report.Stats.Successful,
		"failed", report.Stats.Failed,
		"conjunctions", report.Stats.Conjunctions,
		"incomplete", incomplete,
		"duration_ms", report.FinishedAt.Sub(startedAt).Milliseconds(),
	)
	return report, nil
}

func (o *Orchestrator) screenPair(ctx context.Context, pair tle.Pair) (Event, error) {
	p1, err := o.bank.For(pair.A)
	if err != nil {
		return Event{}, fmt.Errorf("propagator for %q: %w", pair.A.Name, err)
	}
	p2, err := o.bank.For(pair.B)
	if err != nil {
		return Event{}, fmt.Errorf("propagator for %q: %w", pair.B.Name, err)
	}

	searchStart := time.Now()
	result, err := o.searchBounded(ctx, p1, p2)
	metrics.PairScreened(time.Since(searchStart))
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Satellite1: pair.A.Name,
		Satellite2: pair.B.Name,
		DistanceKM: result.MinDistanceKM,
		RiskLevel:  conjunction.RiskLow,
	}
	if !result.Found() {
		return ev, nil
	}

	stateA, err := p1.StateAt(*result.TCA)
	if err != nil {
		return Event{}, fmt.Errorf("state of %q at closest approach: %w", pair.A.Name, err)
	}
	stateB, err := p2.StateAt(*result.TCA)
	if err != nil {
		return Event{}, fmt.Errorf("state of %q at closest approach: %w", pair.B.Name, err)
	}

	features, err := conjunction.ExtractFeatures(pair, stateA, stateB)
	if err != nil {
		return Event{}, fmt.Errorf("extracting features: %w", err)
	}
	riskValue, err := o.model.Score(features)
	if err != nil {
		return Event{}, fmt.Errorf("scoring features: %w", err)
	}
	if math.IsNaN(riskValue) || math.IsInf(riskValue, 0) {
		return Event{}, fmt.Errorf("scoring features: non-finite risk value")
	}

	score := conjunction.ScoreRisk(result.MinDistanceKM, *result.RelativeVelocityKMS, o.search.ThresholdKM, riskValue)
	ev.Prediction = score.Prediction
	ev.RiskValue = riskValue
	ev.CollisionProbability = score.CollisionProbability
	ev.RiskLevel = score.Level
	ev.ConjunctionTime = result.TCA
	ev.RelativeVelocityKMS = result.RelativeVelocityKMS
	return ev, nil
}

// searchBounded runs the closest-approach search with the per-pair time
// budget. A search that overruns keeps computing in the background and
// its result is discarded.
func (o *Orchestrator) searchBounded(ctx context.Context, p1, p2 conjunction.StateProvider) (conjunction.SearchResult, error) {
	if o.pairTimeout <= 0 {
		return conjunction.Search(p1, p2, o.search)
	}

	type outcome struct {
		result conjunction.SearchResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := conjunction.Search(p1, p2, o.search)
		ch <- outcome{r, err}
	}()

	timer := time.NewTimer(o.pairTimeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out.result, out.err
	case <-timer.C:
		return conjunction.SearchResult{}, ErrPairTimeout
	case <-ctx.Done():
		return conjunction.SearchResult{}, ctx.Err()
	}
}
