// Package riskmodel loads and evaluates the persisted risk-scoring model.
// Training happens out-of-band; the service only consumes the regression
// weights, the feature scaling transform, and the schema they were fit on.
package riskmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ftmeeet/CAS/internal/conjunction"
)

// ErrSchemaMismatch indicates the model artifact was trained on a different
// feature schema than this binary extracts. This is a configuration error:
// the service must not run with a mismatched extractor/model pair.
var ErrSchemaMismatch = errors.New("risk model feature schema mismatch")

// Scaler is the standardization transform fitted during training.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// artifact is the on-disk JSON layout of a trained model.
type artifact struct {
	SchemaVersion int       `json:"schema_version"`
	FeatureCount  int       `json:"feature_count"`
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
	Scaler        Scaler    `json:"scaler"`
}

// Model is a loaded, validated risk model. Immutable after Load; safe for
// concurrent use.
type Model struct {
	weights []float64
	bias    float64
	scaler  Scaler
}

// Load reads and validates a model artifact from disk.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model artifact: %w", err)
	}
	return Parse(data)
}

// Parse validates a raw model artifact.
func Parse(data []byte) (*Model, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding model artifact: %w", err)
	}

	if a.SchemaVersion != conjunction.FeatureSchemaVersion {
		return nil, fmt.Errorf("%w: artifact schema v%d, extractor schema v%d",
			ErrSchemaMismatch, a.SchemaVersion, conjunction.FeatureSchemaVersion)
	}
	if a.FeatureCount != conjunction.FeatureCount {
		return nil, fmt.Errorf("%w: artifact expects %d features, extractor produces %d",
			ErrSchemaMismatch, a.FeatureCount, conjunction.FeatureCount)
	}
	if len(a.Weights) != a.FeatureCount {
		return nil, fmt.Errorf("%w: %d weights for %d features",
			ErrSchemaMismatch, len(a.Weights), a.FeatureCount)
	}
	if len(a.Scaler.Mean) != a.FeatureCount || len(a.Scaler.Scale) != a.FeatureCount {
		return nil, fmt.Errorf("%w: scaler dimensions %d/%d for %d features",
			ErrSchemaMismatch, len(a.Scaler.Mean), len(a.Scaler.Scale), a.FeatureCount)
	}
	for i, s := range a.Scaler.Scale {
		if s == 0 {
			return nil, fmt.Errorf("invalid model artifact: zero scale at feature %d", i)
		}
	}

	return &Model{
		weights: a.Weights,
		bias:    a.Bias,
		scaler:  a.Scaler,
	}, nil
}

// Score standardizes the feature vector and evaluates the regression,
// returning the raw model risk value.
func (m *Model) Score(features []float64) (float64, error) {
	if len(features) != len(m.weights) {
		return 0, fmt.Errorf("%w: got %d features, model expects %d",
			ErrSchemaMismatch, len(features), len(m.weights))
	}

	risk := m.bias
	for i, f := range features {
		risk += m.weights[i] * (f - m.scaler.Mean[i]) / m.scaler.Scale[i]
	}
	return risk, nil
}
