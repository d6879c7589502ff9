// Package results persists completed screening runs and serves the most
// recent one back to the status surface.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ftmeeet/CAS/internal/conjunction"
	"github.com/ftmeeet/CAS/internal/screening"
)

// ScreeningRun is one persisted batch, with its aggregate statistics
// denormalized into columns for cheap querying.
type ScreeningRun struct {
	ID         string    `gorm:"primaryKey;size:36"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	Incomplete bool

	TotalPairs          int
	FilteredRecency     int
	FilteredBandOverlap int
	FilteredSimilarity  int
	Successful          int
	Failed              int
	Conjunctions        int

	MinDistanceKM           float64
	AvgDistanceKM           float64
	MaxDistanceKM           float64
	AvgRelativeVelocityKMS  float64
	MaxRelativeVelocityKMS  float64
	AvgRiskValue            float64
	AvgCollisionProbability float64
	HighRisk                int
	MediumRisk              int
	LowRisk                 int

	Records []ConjunctionRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// ConjunctionRecord is one screened pair within a run. DistanceKM is null
// when the closest approach never breached the threshold.
type ConjunctionRecord struct {
	ID                   uint   `gorm:"primaryKey"`
	RunID                string `gorm:"index;size:36"`
	Satellite1           string
	Satellite2           string
	Prediction           int
	DistanceKM           *float64
	RiskValue            float64
	CollisionProbability float64
	RiskLevel            string
	ConjunctionTime      *time.Time
	RelativeVelocityKMS  *float64
}

// Store persists screening runs in SQLite.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the SQLite database at path, creating the directory and
// schema as needed.
func Open(path string, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating results directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")

	if err := db.AutoMigrate(&ScreeningRun{}, &ConjunctionRecord{}); err != nil {
		return nil, fmt.Errorf("migrating results schema: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

// SaveRun persists a finished report and returns the new run ID.
func (s *Store) SaveRun(ctx context.Context, report *screening.Report) (string, error) {
	run := runFromReport(report)
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return "", fmt.Errorf("saving screening run: %w", err)
	}
	s.logger.Info("screening run persisted",
		"run_id", run.ID,
		"records", len(run.Records),
		"incomplete", run.Incomplete,
	)
	return run.ID, nil
}

// LatestRun returns the most recently started run and its report, or
// (nil, "", nil) when nothing has been persisted yet.
func (s *Store) LatestRun(ctx context.Context) (*screening.Report, string, error) {
	var run ScreeningRun
	err := s.db.WithContext(ctx).
		Preload("Records").
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading latest run: %w", err)
	}
	return reportFromRun(&run), run.ID, nil
}

func runFromReport(report *screening.Report) *ScreeningRun {
	st := report.Stats

	run := &ScreeningRun{
		ID:         uuid.NewString(),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Incomplete: report.Incomplete,

		TotalPairs:          st.TotalPairs,
		FilteredRecency:     st.Filtered[conjunction.FilterRecency],
		FilteredBandOverlap: st.Filtered[conjunction.FilterBandOverlap],
		FilteredSimilarity:  st.Filtered[conjunction.FilterSimilarity],
		Successful:          st.Successful,
		Failed:              st.Failed,
		Conjunctions:        st.Conjunctions,

		MinDistanceKM:           st.MinDistanceKM,
		AvgDistanceKM:           st.AvgDistanceKM,
		MaxDistanceKM:           st.MaxDistanceKM,
		AvgRelativeVelocityKMS:  st.AvgRelativeVelocityKMS,
		MaxRelativeVelocityKMS:  st.MaxRelativeVelocityKMS,
		AvgRiskValue:            st.AvgRiskValue,
		AvgCollisionProbability: st.AvgCollisionProbability,
		HighRisk:                st.HighRisk,
		MediumRisk:              st.MediumRisk,
		LowRisk:                 st.LowRisk,

		Records: make([]ConjunctionRecord, 0, len(report.Events)),
	}

	for _, ev := range report.Events {
		rec := ConjunctionRecord{
			Satellite1:           ev.Satellite1,
			Satellite2:           ev.Satellite2,
			Prediction:           ev.Prediction,
			RiskValue:            ev.RiskValue,
			CollisionProbability: ev.CollisionProbability,
			RiskLevel:            string(ev.RiskLevel),
			ConjunctionTime:      ev.ConjunctionTime,
			RelativeVelocityKMS:  ev.RelativeVelocityKMS,
		}
		if !math.IsInf(ev.DistanceKM, 0) && !math.IsNaN(ev.DistanceKM) {
			d := ev.DistanceKM
			rec.DistanceKM = &d
		}
		run.Records = append(run.Records, rec)
	}
	return run
}

func reportFromRun(run *ScreeningRun) *screening.Report {
	report := &screening.Report{
		Events:     make([]screening.Event, 0, len(run.Records)),
		Incomplete: run.Incomplete,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Stats: screening.Stats{
			TotalPairs:   run.TotalPairs,
			Successful:   run.Successful,
			Failed:       run.Failed,
			Conjunctions: run.Conjunctions,
			Filtered:     map[string]int{},

			MinDistanceKM:           run.MinDistanceKM,
			AvgDistanceKM:           run.AvgDistanceKM,
			MaxDistanceKM:           run.MaxDistanceKM,
			AvgRelativeVelocityKMS:  run.AvgRelativeVelocityKMS,
			MaxRelativeVelocityKMS:  run.MaxRelativeVelocityKMS,
			AvgRiskValue:            run.AvgRiskValue,
			AvgCollisionProbability: run.AvgCollisionProbability,
			HighRisk:                run.HighRisk,
			MediumRisk:              run.MediumRisk,
			LowRisk:                 run.LowRisk,
		},
	}
	if run.FilteredRecency > 0 {
		report.Stats.Filtered[conjunction.FilterRecency] = run.FilteredRecency
	}
	if run.FilteredBandOverlap > 0 {
		report.Stats.Filtered[conjunction.FilterBandOverlap] = run.FilteredBandOverlap
	}
	if run.FilteredSimilarity > 0 {
		report.Stats.Filtered[conjunction.FilterSimilarity] = run.FilteredSimilarity
	}

	for _, rec := range run.Records {
		ev := screening.Event{
			Satellite1:           rec.Satellite1,
			Satellite2:           rec.Satellite2,
			Prediction:           rec.Prediction,
			DistanceKM:           math.Inf(1),
			RiskValue:            rec.RiskValue,
			CollisionProbability: rec.CollisionProbability,
			RiskLevel:            riskLevel(rec.RiskLevel),
			ConjunctionTime:      rec.ConjunctionTime,
			RelativeVelocityKMS:  rec.RelativeVelocityKMS,
		}
		if rec.DistanceKM != nil {
			ev.DistanceKM = *rec.DistanceKM
		}
		report.Events = append(report.Events, ev)
	}
	return report
}

func riskLevel(s string) conjunction.RiskLevel {
	switch s {
	case string(conjunction.RiskHigh):
		return conjunction.RiskHigh
	case string(conjunction.RiskMedium):
		return conjunction.RiskMedium
	default:
		return conjunction.RiskLow
	}
}
