package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Epsilon is the tolerance below which a ray is considered parallel to a plane.
const Epsilon = 1e-9

var (
	// AxisX is the world +X unit vector.
	AxisX = r3.Vector{X: 1}
	// AxisY is the world +Y (up) unit vector.
	AxisY = r3.Vector{Y: 1}
	// AxisZ is the world +Z unit vector.
	AxisZ = r3.Vector{Z: 1}
)

// Point2 is a 2D point. Depending on context it holds screen points
// (view units, top-left origin) or normalized image coordinates.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a 2D extent, typically the bounds of the rendering surface.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Center returns the exact geometric center of a surface of this size.
func (s Size) Center() Point2 {
	return Point2{X: s.Width / 2, Y: s.Height / 2}
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Vec converts a YAML/JSON friendly triple into a vector.
func Vec(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// Triple converts a vector into a [3]float64 for serialization.
func Triple(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// MaxComponent returns the largest of the three components of v.
func MaxComponent(v r3.Vector) float64 {
	return math.Max(v.X, math.Max(v.Y, v.Z))
}

// Tangents returns a deterministic orthonormal basis (u, v) spanning the
// plane with the given normal. For horizontal planes u is world +X and v is
// world -Z projected into the plane, so plane extents read as width × depth.
func Tangents(normal r3.Vector) (u, v r3.Vector) {
	n := normal.Normalize()
	if math.Abs(n.Y) > 0.9 {
		u = AxisX.Sub(n.Mul(n.Dot(AxisX))).Normalize()
	} else {
		u = AxisY.Cross(n).Normalize()
	}
	v = n.Cross(u).Normalize()
	return u, v
}
