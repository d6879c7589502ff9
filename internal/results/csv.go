package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/ftmeeet/CAS/internal/screening"
)

var csvHeader = []string{
	"satellite1",
	"satellite2",
	"prediction",
	"distance_km",
	"risk_value",
	"collision_probability",
	"risk_level",
	"conjunction_time",
	"relative_velocity_km_s",
}

// WriteCSV renders one row per screened pair. An unbounded distance is
// written as "inf"; absent time and velocity are left empty.
func WriteCSV(w io.Writer, events []screening.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, ev := range events {
		dist := "inf"
		if !math.IsInf(ev.DistanceKM, 0) {
			dist = strconv.FormatFloat(ev.DistanceKM, 'f', 6, 64)
		}
		tca := ""
		if ev.ConjunctionTime != nil {
			tca = ev.ConjunctionTime.UTC().Format(time.RFC3339)
		}
		vel := ""
		if ev.RelativeVelocityKMS != nil {
			vel = strconv.FormatFloat(*ev.RelativeVelocityKMS, 'f', 6, 64)
		}

		row := []string{
			ev.Satellite1,
			ev.Satellite2,
			strconv.Itoa(ev.Prediction),
			dist,
			strconv.FormatFloat(ev.RiskValue, 'f', 6, 64),
			strconv.FormatFloat(ev.CollisionProbability, 'f', 6, 64),
			string(ev.RiskLevel),
			tca,
			vel,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
