// Package transform provides frame decompositions for relative state vectors.
//
// The RTN (Radial-Transverse-Normal) frame is anchored on a reference object's
// instantaneous orbit: R along the position vector, N along the orbital
// angular momentum, T completing the right-handed triad (roughly along-track).
package transform

import (
	"fmt"
	"math"

	"github.com/ftmeeet/CAS/internal/propagation"
)

// RTNFrame holds the orthonormal basis vectors of an RTN frame.
type RTNFrame struct {
	R [3]float64
	T [3]float64
	N [3]float64
}

// NewRTNFrame builds an RTN frame from the reference object's inertial state.
// Fails for degenerate states (zero position or radial velocity only), where
// the angular momentum direction is undefined.
func NewRTNFrame(ref propagation.StateVector) (RTNFrame, error) {
	r := ref.Position
	v := ref.Velocity

	rMag := norm(r)
	if rMag < 1e-9 {
		return RTNFrame{}, fmt.Errorf("degenerate reference state: zero position")
	}

	h := cross(r, v)
	hMag := norm(h)
	if hMag < 1e-9 {
		return RTNFrame{}, fmt.Errorf("degenerate reference state: zero angular momentum")
	}

	rHat := scale(r, 1/rMag)
	nHat := scale(h, 1/hMag)
	tHat := cross(nHat, rHat)

	return RTNFrame{R: rHat, T: tHat, N: nHat}, nil
}

// Project decomposes an inertial vector into RTN components.
func (f RTNFrame) Project(vec [3]float64) (radial, transverse, normal float64) {
	return dot(vec, f.R), dot(vec, f.T), dot(vec, f.N)
}

// RelativeRTN projects the position and velocity of other relative to ref into
// ref's RTN frame. Both inputs must be in the same inertial frame.
func RelativeRTN(ref, other propagation.StateVector) (pos, vel [3]float64, err error) {
	frame, err := NewRTNFrame(ref)
	if err != nil {
		return pos, vel, err
	}

	dr := sub(other.Position, ref.Position)
	dv := sub(other.Velocity, ref.Velocity)

	pos[0], pos[1], pos[2] = frame.Project(dr)
	vel[0], vel[1], vel[2] = frame.Project(dv)
	return pos, vel, nil
}

func norm(a [3]float64) float64 {
	return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}
