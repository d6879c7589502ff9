package conjunction

import (
	"fmt"

	"github.com/ftmeeet/CAS/internal/propagation"
	"github.com/ftmeeet/CAS/internal/tle"
	"github.com/ftmeeet/CAS/internal/transform"
)

// The feature schema is an external contract with the trained risk model:
// ordering, units, and count are fixed per version. Extractor and model must
// agree on the version at all times; a mismatch is a configuration error
// caught when the model artifact is loaded, never a runtime approximation.
const (
	FeatureSchemaVersion = 1
	FeatureCount         = 16
)

// Schema v1 layout:
//
//	0-5   absolute element differences: mean motion (rev/day), eccentricity,
//	      inclination (deg), RAAN (deg), argument of perigee (deg),
//	      mean anomaly (deg)
//	6-8   relative position in A's RTN frame (km)
//	9-11  relative velocity in A's RTN frame (km/s)
//	12-15 apogee A, perigee A, apogee B, perigee B heights (km)

// ExtractFeatures derives the fixed-schema feature vector for a pair from its
// element sets and the two objects' states at the shared reference time.
func ExtractFeatures(pair tle.Pair, stateA, stateB propagation.StateVector) ([]float64, error) {
	relPos, relVel, err := transform.RelativeRTN(stateA, stateB)
	if err != nil {
		return nil, fmt.Errorf("projecting relative state: %w", err)
	}

	ea, eb := pair.A.Elements, pair.B.Elements

	features := make([]float64, 0, FeatureCount)
	features = append(features,
		abs(ea.MeanMotion-eb.MeanMotion),
		abs(ea.Eccentricity-eb.Eccentricity),
		abs(ea.InclinationDeg-eb.InclinationDeg),
		abs(ea.RAANDeg-eb.RAANDeg),
		abs(ea.ArgPerigeeDeg-eb.ArgPerigeeDeg),
		abs(ea.MeanAnomalyDeg-eb.MeanAnomalyDeg),
	)
	features = append(features, relPos[0], relPos[1], relPos[2])
	features = append(features, relVel[0], relVel[1], relVel[2])
	features = append(features,
		ea.ApogeeHeightKM(),
		ea.PerigeeHeightKM(),
		eb.ApogeeHeightKM(),
		eb.PerigeeHeightKM(),
	)

	return features, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
