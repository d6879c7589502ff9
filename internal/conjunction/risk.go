package conjunction

import "math"

// RiskLevel is the discrete classification of a collision probability.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Risk-level boundaries. High requires strictly more than highCutoff;
// exactly 0.7 is Medium and exactly 0.3 is Low.
const (
	highCutoff   = 0.7
	mediumCutoff = 0.3
)

// Probability weights: once clearly outside the danger zone the distance
// signal dominates; near or inside it the two signals are balanced.
const (
	weightOutside = 0.8
	weightInside  = 0.5
)

// RiskScore is the calibrated output of the scoring step.
type RiskScore struct {
	Prediction           int // 1 iff minDistKM < thresholdKM
	CollisionProbability float64
	Level                RiskLevel
}

// ScoreRisk combines the model risk value with the search outcome into a
// calibrated collision probability and a discrete level.
//
// The model output is a regression value mapped through 1/(1+exp(risk)):
// lower risk values yield higher probability. This polarity matches the
// deployed trained models and must not be flipped without retraining them.
func ScoreRisk(minDistKM, relVelKMS, thresholdKM, riskValue float64) RiskScore {
	distanceProb := math.Exp(-minDistKM / thresholdKM)
	riskProb := 1 / (1 + math.Exp(riskValue))

	weight := weightInside
	if minDistKM > thresholdKM {
		weight = weightOutside
	}

	prob := weight*distanceProb + (1-weight)*riskProb
	prob = math.Max(0, math.Min(1, prob))

	score := RiskScore{
		CollisionProbability: prob,
		Level:                levelFor(prob),
	}
	if minDistKM < thresholdKM {
		score.Prediction = 1
	}
	return score
}

func levelFor(prob float64) RiskLevel {
	switch {
	case prob > highCutoff:
		return RiskHigh
	case prob > mediumCutoff:
		return RiskMedium
	default:
		return RiskLow
	}
}
