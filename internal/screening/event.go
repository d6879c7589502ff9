// Package screening drives the batch pipeline: pre-filter, closest-approach
// search, feature extraction and risk scoring across all candidate pairs.
package screening

import (
	"encoding/json"
	"math"
	"time"

	"github.com/ftmeeet/CAS/internal/conjunction"
)

// Event is the output record for one screened pair. DistanceKM is
// positive infinity when no coarse sample ever fell below the threshold;
// ConjunctionTime and RelativeVelocityKMS are nil in that case.
type Event struct {
	Satellite1           string                `json:"satellite1"`
	Satellite2           string                `json:"satellite2"`
	Prediction           int                   `json:"prediction"`
	DistanceKM           float64               `json:"distance_km"`
	RiskValue            float64               `json:"risk_value"`
	CollisionProbability float64               `json:"collision_probability"`
	RiskLevel            conjunction.RiskLevel `json:"risk_level"`
	ConjunctionTime      *time.Time            `json:"conjunction_time"`
	RelativeVelocityKMS  *float64              `json:"relative_velocity_km_s"`
}

// MarshalJSON renders an infinite distance as null; encoding/json
// rejects non-finite floats.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	out := struct {
		alias
		DistanceKM *float64 `json:"distance_km"`
	}{alias: alias(e)}
	if !math.IsInf(e.DistanceKM, 0) && !math.IsNaN(e.DistanceKM) {
		out.DistanceKM = &e.DistanceKM
	}
	return json.Marshal(out)
}

// Stats aggregates a completed (or cancelled) batch. Distance statistics
// cover pairs with a finite closest approach; velocity statistics cover
// pairs with a defined relative velocity.
type Stats struct {
	TotalPairs   int            `json:"total_pairs"`
	Filtered     map[string]int `json:"filtered"`
	Successful   int            `json:"successful"`
	Failed       int            `json:"failed"`
	Conjunctions int            `json:"conjunctions"`

	MinDistanceKM float64 `json:"min_distance_km"`
	AvgDistanceKM float64 `json:"avg_distance_km"`
	MaxDistanceKM float64 `json:"max_distance_km"`

	AvgRelativeVelocityKMS float64 `json:"avg_relative_velocity_km_s"`
	MaxRelativeVelocityKMS float64 `json:"max_relative_velocity_km_s"`

	AvgRiskValue            float64 `json:"avg_risk_value"`
	AvgCollisionProbability float64 `json:"avg_collision_probability"`
	HighRisk                int     `json:"high_risk"`
	MediumRisk              int     `json:"medium_risk"`
	LowRisk                 int     `json:"low_risk"`
}

// Report is the outcome of one batch run.
type Report struct {
	Events     []Event   `json:"events"`
	Stats      Stats     `json:"stats"`
	Incomplete bool      `json:"incomplete"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// computeStats derives the aggregate block from the recorded events.
func computeStats(events []Event, filtered map[string]int, total, failed int) Stats {
	s := Stats{
		TotalPairs: total,
		Filtered:   filtered,
		Successful: len(events),
		Failed:     failed,
	}

	var (
		finite   int
		distSum  float64
		velCount int
		velSum   float64
	)
	for _, e := range events {
		s.Conjunctions += e.Prediction
		s.AvgRiskValue += e.RiskValue
		s.AvgCollisionProbability += e.CollisionProbability

		switch e.RiskLevel {
		case conjunction.RiskHigh:
			s.HighRisk++
		case conjunction.RiskMedium:
			s.MediumRisk++
		default:
			s.LowRisk++
		}

		if !math.IsInf(e.DistanceKM, 0) {
			if finite == 0 {
				s.MinDistanceKM = e.DistanceKM
				s.MaxDistanceKM = e.DistanceKM
			} else {
				s.MinDistanceKM = math.Min(s.MinDistanceKM, e.DistanceKM)
				s.MaxDistanceKM = math.Max(s.MaxDistanceKM, e.DistanceKM)
			}
			finite++
			distSum += e.DistanceKM
		}
		if e.RelativeVelocityKMS != nil {
			velSum += *e.RelativeVelocityKMS
			s.MaxRelativeVelocityKMS = math.Max(s.MaxRelativeVelocityKMS, *e.RelativeVelocityKMS)
			velCount++
		}
	}

	if finite > 0 {
		s.AvgDistanceKM = distSum / float64(finite)
	}
	if velCount > 0 {
		s.AvgRelativeVelocityKMS = velSum / float64(velCount)
	}
	if len(events) > 0 {
		s.AvgRiskValue /= float64(len(events))
		s.AvgCollisionProbability /= float64(len(events))
	}
	return s
}
