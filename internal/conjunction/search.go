// Package conjunction implements the closest-approach search between two
// propagated trajectories, the pre-filter chain that rejects pairs before any
// propagation-heavy work, and the feature/risk scoring pipeline.
package conjunction

import (
	"fmt"
	"math"
	"time"

	"github.com/ftmeeet/CAS/internal/propagation"
)

// StateProvider produces an inertial-frame state for an object at a given
// time. Implemented by propagation.SGP4Propagator.
type StateProvider interface {
	StateAt(t time.Time) (propagation.StateVector, error)
}

// SearchParams configures a closest-approach search window.
type SearchParams struct {
	Start       time.Time
	Duration    time.Duration
	CoarseStep  time.Duration
	FineStep    time.Duration
	ThresholdKM float64
}

// Validate rejects windows and steps a search cannot run with.
func (p SearchParams) Validate() error {
	if p.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", p.Duration)
	}
	if p.CoarseStep <= 0 || p.FineStep <= 0 {
		return fmt.Errorf("steps must be positive, got coarse=%v fine=%v", p.CoarseStep, p.FineStep)
	}
	if p.FineStep > p.CoarseStep {
		return fmt.Errorf("fine step %v exceeds coarse step %v", p.FineStep, p.CoarseStep)
	}
	if p.ThresholdKM <= 0 {
		return fmt.Errorf("threshold must be positive, got %g km", p.ThresholdKM)
	}
	return nil
}

// SearchResult is the outcome of a closest-approach search. When no coarse
// sample falls below the threshold, MinDistanceKM is +Inf and TCA and
// RelativeVelocityKMS are nil: that is "no conjunction", not an error.
type SearchResult struct {
	MinDistanceKM       float64
	TCA                 *time.Time
	RelativeVelocityKMS *float64
}

// Found reports whether a close approach below the threshold was located.
func (r SearchResult) Found() bool {
	return r.TCA != nil
}

// Search scans [start, start+duration) at the coarse step; when a sample is
// both below the threshold and an improvement on the running minimum, the
// half-open window [t-coarse/2, t+coarse/2) around it is re-scanned at the
// fine step, updating the minimum, its time, and the relative velocity at
// that instant whenever improved.
//
// The two-level scheme bounds cost to O(duration/coarseStep) propagations
// plus refinement near promising samples. It is a documented approximation,
// not a guaranteed global minimum. A trailing partial coarse interval is
// still sampled at its start; ties keep the earliest-found time.
func Search(p1, p2 StateProvider, params SearchParams) (SearchResult, error) {
	if err := params.Validate(); err != nil {
		return SearchResult{}, err
	}

	minDist := math.Inf(1)
	var bestTime time.Time
	var bestVel float64
	found := false

	for off := time.Duration(0); off < params.Duration; off += params.CoarseStep {
		t := params.Start.Add(off)

		sv1, err := p1.StateAt(t)
		if err != nil {
			return SearchResult{}, fmt.Errorf("propagating object 1 at %s: %w", t.Format(time.RFC3339), err)
		}
		sv2, err := p2.StateAt(t)
		if err != nil {
			return SearchResult{}, fmt.Errorf("propagating object 2 at %s: %w", t.Format(time.RFC3339), err)
		}

		dist := propagation.SeparationKM(sv1, sv2)
		if dist >= params.ThresholdKM || dist >= minDist {
			continue
		}

		// Local refinement around the promising coarse sample.
		half := params.CoarseStep / 2
		for dt := -half; dt < half; dt += params.FineStep {
			ft := t.Add(dt)

			fv1, err := p1.StateAt(ft)
			if err != nil {
				return SearchResult{}, fmt.Errorf("propagating object 1 at %s: %w", ft.Format(time.RFC3339), err)
			}
			fv2, err := p2.StateAt(ft)
			if err != nil {
				return SearchResult{}, fmt.Errorf("propagating object 2 at %s: %w", ft.Format(time.RFC3339), err)
			}

			fineDist := propagation.SeparationKM(fv1, fv2)
			if fineDist < minDist {
				minDist = fineDist
				bestTime = ft
				bestVel = propagation.RelativeSpeedKMS(fv1, fv2)
				found = true
			}
		}
	}

	if !found {
		return SearchResult{MinDistanceKM: math.Inf(1)}, nil
	}

	tca := bestTime
	vel := bestVel
	return SearchResult{
		MinDistanceKM:       minDist,
		TCA:                 &tca,
		RelativeVelocityKMS: &vel,
	}, nil
}
