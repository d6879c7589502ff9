package tle

import (
	"math"
	"time"
)

const (
	// muEarth is the WGS-84 Earth gravitational parameter in km^3/s^2.
	muEarth = 398600.4418

	// EarthRadiusKM is the WGS-84 equatorial radius in km.
	EarthRadiusKM = 6378.137
)

// Elements holds the six classical orbital elements parsed from a TLE.
// Angles are in degrees, mean motion in revolutions per day.
type Elements struct {
	MeanMotion     float64 `json:"mean_motion"`
	Eccentricity   float64 `json:"eccentricity"`
	InclinationDeg float64 `json:"inclination_deg"`
	RAANDeg        float64 `json:"raan_deg"`
	ArgPerigeeDeg  float64 `json:"arg_perigee_deg"`
	MeanAnomalyDeg float64 `json:"mean_anomaly_deg"`
}

// SemiMajorAxisKM derives the semi-major axis from the mean motion.
func (e Elements) SemiMajorAxisKM() float64 {
	// Mean motion rev/day -> rad/s.
	n := e.MeanMotion * 2 * math.Pi / 86400.0
	return math.Cbrt(muEarth / (n * n))
}

// PerigeeHeightKM returns the perigee altitude above the equatorial radius.
func (e Elements) PerigeeHeightKM() float64 {
	return e.SemiMajorAxisKM()*(1-e.Eccentricity) - EarthRadiusKM
}

// ApogeeHeightKM returns the apogee altitude above the equatorial radius.
func (e Elements) ApogeeHeightKM() float64 {
	return e.SemiMajorAxisKM()*(1+e.Eccentricity) - EarthRadiusKM
}

// TLEEntry represents a single satellite's two-line element set.
type TLEEntry struct {
	NORADID  int       `json:"norad_id"`
	Name     string    `json:"name"`
	Epoch    time.Time `json:"epoch"`
	Line1    string    `json:"line1"`
	Line2    string    `json:"line2"`
	Elements Elements  `json:"elements"`
}

// Pair is an unordered pair of catalog entries; the unit of work for screening.
type Pair struct {
	A TLEEntry
	B TLEEntry
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// TLEDataset represents a complete set of TLE data from a source.
type TLEDataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []TLEEntry
}
