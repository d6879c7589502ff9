// Command screen runs a one-shot conjunction screening between the first
// two satellites in a TLE file, printing the closest approach and risk
// assessment. Useful for validating catalog data and model artifacts
// without standing up the full service.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ftmeeet/CAS/internal/conjunction"
	"github.com/ftmeeet/CAS/internal/propagation"
	"github.com/ftmeeet/CAS/internal/riskmodel"
	"github.com/ftmeeet/CAS/internal/tle"
)

func main() {
	tlePath := flag.String("tle", "", "path to a TLE file holding at least two satellites")
	modelPath := flag.String("model", "", "optional risk model artifact; risk value 0 without one")
	windowHours := flag.Float64("window", 48, "search window in hours")
	thresholdKM := flag.Float64("threshold", 10, "conjunction threshold in km")
	flag.Parse()

	if *tlePath == "" {
		fmt.Fprintln(os.Stderr, "usage: screen -tle <file> [-model <file>] [-window <hours>] [-threshold <km>]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	data, err := os.ReadFile(*tlePath)
	if err != nil {
		fmt.Println("ERROR reading TLE file:", err)
		os.Exit(1)
	}

	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Println("ERROR parsing TLE:", err)
		os.Exit(1)
	}
	if len(entries) < 2 {
		fmt.Printf("ERROR need at least 2 satellites, got %d\n", len(entries))
		os.Exit(1)
	}

	a, b := entries[0], entries[1]
	fmt.Printf("Screening %s (NORAD %d) against %s (NORAD %d)\n", a.Name, a.NORADID, b.Name, b.NORADID)

	propA, err := propagation.NewSGP4Propagator(a.Line1, a.Line2, a.NORADID)
	if err != nil {
		fmt.Println("ERROR initializing propagator:", err)
		os.Exit(1)
	}
	propB, err := propagation.NewSGP4Propagator(b.Line1, b.Line2, b.NORADID)
	if err != nil {
		fmt.Println("ERROR initializing propagator:", err)
		os.Exit(1)
	}

	params := conjunction.SearchParams{
		Start:       time.Now().UTC(),
		Duration:    time.Duration(*windowHours * float64(time.Hour)),
		CoarseStep:  time.Hour,
		FineStep:    time.Minute,
		ThresholdKM: *thresholdKM,
	}
	if err := params.Validate(); err != nil {
		fmt.Println("ERROR invalid search parameters:", err)
		os.Exit(1)
	}

	start := time.Now()
	result, err := conjunction.Search(propA, propB, params)
	if err != nil {
		fmt.Println("ERROR search failed:", err)
		os.Exit(1)
	}
	fmt.Printf("Search window: %v from %v (took %v)\n", params.Duration, params.Start.Format(time.RFC3339), time.Since(start).Round(time.Millisecond))

	if !result.Found() {
		fmt.Printf("No approach below %.1f km found\n", *thresholdKM)
		return
	}

	fmt.Printf("Closest approach: %.3f km at %v\n", result.MinDistanceKM, result.TCA.Format(time.RFC3339))
	fmt.Printf("Relative velocity: %.3f km/s\n", *result.RelativeVelocityKMS)

	riskValue := 0.0
	if *modelPath != "" {
		model, err := riskmodel.Load(*modelPath)
		if err != nil {
			fmt.Println("ERROR loading risk model:", err)
			os.Exit(1)
		}
		stateA, err := propA.StateAt(*result.TCA)
		if err != nil {
			fmt.Println("ERROR propagating at TCA:", err)
			os.Exit(1)
		}
		stateB, err := propB.StateAt(*result.TCA)
		if err != nil {
			fmt.Println("ERROR propagating at TCA:", err)
			os.Exit(1)
		}
		features, err := conjunction.ExtractFeatures(tle.Pair{A: a, B: b}, stateA, stateB)
		if err != nil {
			fmt.Println("ERROR extracting features:", err)
			os.Exit(1)
		}
		riskValue, err = model.Score(features)
		if err != nil {
			fmt.Println("ERROR scoring features:", err)
			os.Exit(1)
		}
		fmt.Printf("Model risk value: %.4f\n", riskValue)
	}

	score := conjunction.ScoreRisk(result.MinDistanceKM, *result.RelativeVelocityKMS, *thresholdKM, riskValue)
	fmt.Printf("Prediction: %d\n", score.Prediction)
	fmt.Printf("Collision probability: %.4f\n", score.CollisionProbability)
	fmt.Printf("Risk level: %s\n", score.Level)
}
