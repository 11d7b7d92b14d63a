// Package celestial computes simplified planetary positions, phase angles and
// symbolic annotations for the orrery.space projects.
//
// Orbits are circular and coplanar. Every exported computation is a pure
// function of its inputs, the immutable Table and the Options a Calculator
// was built with.
package celestial

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Time constants, in milliseconds unless stated otherwise.
const (
	MillisPerSecond = 1000.0
	MillisPerDay    = 24 * 60 * 60 * MillisPerSecond
	DaysPerYear     = 365.25 // Julian year
	MillisPerYear   = DaysPerYear * MillisPerDay
)

// Vector3 is a position in the orbital plane frame. Z is always zero for
// positions produced by a Calculator.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vector3) vec() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

// Dot returns the dot product of two vectors
func (v Vector3) Dot(other Vector3) float64 {
	return r3.Dot(v.vec(), other.vec())
}

// Magnitude returns the Euclidean norm of the vector
func (v Vector3) Magnitude() float64 {
	return r3.Norm(v.vec())
}

// IsZero reports whether v is the origin.
func (v Vector3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// AngleTo returns the opening angle between v and other, in degrees, as seen
// from the origin. The result is always within [0, 180]. Either vector being
// the origin yields 0.
func (v Vector3) AngleTo(other Vector3) float64 {
	if v.IsZero() || other.IsZero() {
		return 0
	}
	cos := r3.Cos(v.vec(), other.vec())
	// rounding can push |cos| slightly past 1
	cos = math.Max(-1, math.Min(1, cos))
	return radToDeg(math.Acos(cos))
}

// Azimuth returns the planar angle of v measured counter-clockwise from the
// +X axis, normalised to [0, 360).
func (v Vector3) Azimuth() float64 {
	return normalizeDegrees(radToDeg(math.Atan2(v.Y, v.X)))
}

func radToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Normalize angle to [0, 360) degrees
func normalizeDegrees(angle float64) float64 {
	angle = math.Mod(angle, 360.0)
	if angle < 0 {
		angle += 360.0
	}
	// math.Mod(-1e-17, 360)+360 rounds to 360
	if angle >= 360.0 {
		angle = 0
	}
	return angle
}

// floorMod returns a mod m in [0, m) for m > 0.
func floorMod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
