package transform

import (
	"math"
	"testing"

	"github.com/ftmeeet/CAS/internal/propagation"
)

// circularRef is an idealized circular equatorial orbit state: position along
// +X, velocity along +Y, so R=+X, T=+Y, N=+Z.
var circularRef = propagation.StateVector{
	Position: [3]float64{7000, 0, 0},
	Velocity: [3]float64{0, 7.5, 0},
}

// TestRTNFrameBasis verifies the basis for the idealized circular orbit.
func TestRTNFrameBasis(t *testing.T) {
	frame, err := NewRTNFrame(circularRef)
	if err != nil {
		t.Fatalf("NewRTNFrame failed: %v", err)
	}

	checkVec := func(name string, got, want [3]float64) {
		t.Helper()
		for i := 0; i < 3; i++ {
			if math.Abs(got[i]-want[i]) > 1e-12 {
				t.Errorf("%s = %v, want %v", name, got, want)
				return
			}
		}
	}

	checkVec("R", frame.R, [3]float64{1, 0, 0})
	checkVec("T", frame.T, [3]float64{0, 1, 0})
	checkVec("N", frame.N, [3]float64{0, 0, 1})
}

// TestRTNFrameOrthonormal verifies the basis is orthonormal for a generic
// inclined orbit state.
func TestRTNFrameOrthonormal(t *testing.T) {
	ref := propagation.StateVector{
		Position: [3]float64{4000, 3000, 4500},
		Velocity: [3]float64{-5.1, 3.2, 2.4},
	}

	frame, err := NewRTNFrame(ref)
	if err != nil {
		t.Fatalf("NewRTNFrame failed: %v", err)
	}

	vecs := [][3]float64{frame.R, frame.T, frame.N}
	for i, v := range vecs {
		if math.Abs(norm(v)-1) > 1e-12 {
			t.Errorf("basis vector %d not unit length: %g", i, norm(v))
		}
		for j := i + 1; j < 3; j++ {
			if d := dot(v, vecs[j]); math.Abs(d) > 1e-12 {
				t.Errorf("basis vectors %d,%d not orthogonal: dot=%g", i, j, d)
			}
		}
	}
}

// TestRelativeRTN verifies projection of a known offset: an object 10 km ahead
// along-track shows up purely in the transverse component.
func TestRelativeRTN(t *testing.T) {
	other := propagation.StateVector{
		Position: [3]float64{7000, 10, 0},
		Velocity: [3]float64{0, 7.5, 0.2},
	}

	pos, vel, err := RelativeRTN(circularRef, other)
	if err != nil {
		t.Fatalf("RelativeRTN failed: %v", err)
	}

	if math.Abs(pos[0]) > 1e-12 || math.Abs(pos[1]-10) > 1e-12 || math.Abs(pos[2]) > 1e-12 {
		t.Errorf("relative position RTN = %v, want [0 10 0]", pos)
	}
	if math.Abs(vel[2]-0.2) > 1e-12 {
		t.Errorf("relative velocity normal component = %g, want 0.2", vel[2])
	}
}

// TestRTNFrameDegenerate verifies degenerate reference states are rejected.
func TestRTNFrameDegenerate(t *testing.T) {
	// Zero position.
	if _, err := NewRTNFrame(propagation.StateVector{}); err == nil {
		t.Error("expected error for zero position")
	}

	// Purely radial velocity: zero angular momentum.
	radial := propagation.StateVector{
		Position: [3]float64{7000, 0, 0},
		Velocity: [3]float64{1, 0, 0},
	}
	if _, err := NewRTNFrame(radial); err == nil {
		t.Error("expected error for zero angular momentum")
	}
}
