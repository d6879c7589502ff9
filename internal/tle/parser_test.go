package tle

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

// TestParseCatalog verifies that a well-formed 3-line entry parses with
// identity, epoch, and classical elements populated.
func TestParseCatalog(t *testing.T) {
	input := issName + "\n" + issLine1 + "\n" + issLine2 + "\n"

	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.NORADID != 25544 {
		t.Errorf("NORADID = %d, want 25544", e.NORADID)
	}
	if e.Name != issName {
		t.Errorf("Name = %q, want %q", e.Name, issName)
	}

	// Epoch 24100.5 = 2024 day 100.5 = April 9, 12:00 UTC.
	wantEpoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !e.Epoch.Equal(wantEpoch) {
		t.Errorf("Epoch = %v, want %v", e.Epoch, wantEpoch)
	}

	el := e.Elements
	if math.Abs(el.InclinationDeg-51.64) > 1e-9 {
		t.Errorf("InclinationDeg = %g, want 51.64", el.InclinationDeg)
	}
	if math.Abs(el.RAANDeg-100.0) > 1e-9 {
		t.Errorf("RAANDeg = %g, want 100.0", el.RAANDeg)
	}
	if math.Abs(el.Eccentricity-0.0001) > 1e-12 {
		t.Errorf("Eccentricity = %g, want 0.0001", el.Eccentricity)
	}
	if math.Abs(el.MeanMotion-15.5) > 1e-9 {
		t.Errorf("MeanMotion = %g, want 15.5", el.MeanMotion)
	}
}

// TestParseSkipsMalformed verifies that a garbage triplet is skipped while
// surrounding valid entries still parse.
func TestParseSkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"BROKEN SAT",
		"not a tle line",
		"also not a tle line",
		issName,
		issLine1,
		issLine2,
	}, "\n")

	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (malformed skipped)", len(entries))
	}
	if entries[0].NORADID != 25544 {
		t.Errorf("NORADID = %d, want 25544", entries[0].NORADID)
	}
}

// TestElementsDerivedHeights verifies semi-major axis and apogee/perigee
// heights derived from the mean motion against the known ISS orbit.
func TestElementsDerivedHeights(t *testing.T) {
	el := Elements{MeanMotion: 15.5, Eccentricity: 0.0001}

	sma := el.SemiMajorAxisKM()
	if sma < 6700 || sma > 6900 {
		t.Errorf("SemiMajorAxisKM = %.1f, want ~6797 (ISS orbit)", sma)
	}

	per := el.PerigeeHeightKM()
	apo := el.ApogeeHeightKM()
	if per < 350 || per > 500 {
		t.Errorf("PerigeeHeightKM = %.1f, want ~418", per)
	}
	if apo < per {
		t.Errorf("ApogeeHeightKM %.1f < PerigeeHeightKM %.1f", apo, per)
	}
}

// TestParseEpochCentury verifies the 1957 pivot in two-digit epoch years.
func TestParseEpochCentury(t *testing.T) {
	old, err := parseEpoch("98001.00000000")
	if err != nil {
		t.Fatalf("parseEpoch(98...) failed: %v", err)
	}
	if old.Year() != 1998 {
		t.Errorf("year = %d, want 1998", old.Year())
	}

	recent, err := parseEpoch("24100.50000000")
	if err != nil {
		t.Fatalf("parseEpoch(24...) failed: %v", err)
	}
	if recent.Year() != 2024 {
		t.Errorf("year = %d, want 2024", recent.Year())
	}
}
