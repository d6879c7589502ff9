package propagation

import (
	"math"
	"time"
)

// StateVector is an inertial-frame (TEME) state at a single instant.
// Position in km, velocity in km/s. Produced on demand, never persisted.
type StateVector struct {
	Time     time.Time
	Position [3]float64
	Velocity [3]float64
}

// SeparationKM returns the distance between two state positions in km.
func SeparationKM(a, b StateVector) float64 {
	dx := a.Position[0] - b.Position[0]
	dy := a.Position[1] - b.Position[1]
	dz := a.Position[2] - b.Position[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// RelativeSpeedKMS returns the magnitude of the relative velocity in km/s.
func RelativeSpeedKMS(a, b StateVector) float64 {
	dx := a.Velocity[0] - b.Velocity[0]
	dy := a.Velocity[1] - b.Velocity[1]
	dz := a.Velocity[2] - b.Velocity[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
