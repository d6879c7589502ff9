package conjunction

import (
	"math"
	"time"

	"github.com/ftmeeet/CAS/internal/tle"
)

// Pre-filter names, used in rejection reasons and metrics labels.
const (
	FilterRecency     = "recency"
	FilterBandOverlap = "band_overlap"
	FilterSimilarity  = "similarity"
)

// FilterParams configures the pre-filter chain.
type FilterParams struct {
	MaxEpochAge     time.Duration // recency: maximum TLE epoch age
	BandMarginKM    float64       // band overlap: expansion of each [perigee, apogee] band
	SMAThresholdKM  float64       // similarity: maximum semi-major-axis difference
	IncThresholdDeg float64       // similarity: maximum inclination difference
}

// Chain applies cheap rejection tests before any propagation-heavy work.
// Filters short-circuit in order: recency, band overlap, orbit similarity.
type Chain struct {
	params FilterParams
	now    func() time.Time
}

// NewChain creates a pre-filter chain with the given parameters.
func NewChain(params FilterParams) *Chain {
	return &Chain{params: params, now: time.Now}
}

// Evaluate runs the chain on a pair. A rejected pair reports the name of the
// first filter that failed; an accepted pair reports an empty string.
func (c *Chain) Evaluate(pair tle.Pair) (accepted bool, rejectedBy string) {
	if !c.recent(pair.A) || !c.recent(pair.B) {
		return false, FilterRecency
	}
	if !c.bandsOverlap(pair.A.Elements, pair.B.Elements) {
		return false, FilterBandOverlap
	}
	if !c.similarOrbits(pair.A.Elements, pair.B.Elements) {
		return false, FilterSimilarity
	}
	return true, ""
}

// recent reports whether the entry's epoch is within the configured max age.
func (c *Chain) recent(e tle.TLEEntry) bool {
	age := c.now().Sub(e.Epoch)
	if age < 0 {
		age = -age
	}
	return age <= c.params.MaxEpochAge
}

// bandsOverlap expands each object's [perigee, apogee] altitude band by the
// configured margin and reports whether the expanded bands intersect.
func (c *Chain) bandsOverlap(a, b tle.Elements) bool {
	minA := a.PerigeeHeightKM() - c.params.BandMarginKM
	maxA := a.ApogeeHeightKM() + c.params.BandMarginKM
	minB := b.PerigeeHeightKM() - c.params.BandMarginKM
	maxB := b.ApogeeHeightKM() + c.params.BandMarginKM

	return math.Max(minA, minB) <= math.Min(maxA, maxB)
}

// similarOrbits rejects pairs whose semi-major axes or inclinations differ
// beyond the configured thresholds.
func (c *Chain) similarOrbits(a, b tle.Elements) bool {
	if math.Abs(a.SemiMajorAxisKM()-b.SemiMajorAxisKM()) > c.params.SMAThresholdKM {
		return false
	}
	if math.Abs(a.InclinationDeg-b.InclinationDeg) > c.params.IncThresholdDeg {
		return false
	}
	return true
}
