package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Ray is a half-line starting at Origin and extending along Dir.
// Dir is expected to be normalized so that t values are distances.
type Ray struct {
	Origin r3.Vector
	Dir    r3.Vector
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Plane is an infinite plane through Center with unit Normal.
type Plane struct {
	Center r3.Vector
	Normal r3.Vector
}

// IntersectPlane returns the ray parameter of the intersection with p.
//
// There is no intersection when the ray is parallel to the plane or when the
// plane lies behind the ray origin (t <= 0).
func IntersectPlane(r Ray, p Plane) (float64, bool) {
	denom := r.Dir.Dot(p.Normal)
	if math.Abs(denom) < Epsilon {
		return 0, false
	}
	t := p.Center.Sub(r.Origin).Dot(p.Normal) / denom
	if t <= 0 {
		return 0, false
	}
	return t, true
}

// WithinExtent reports whether hit lies inside the rectangle of the given
// width and depth centered on p, measured along Tangents(p.Normal).
func WithinExtent(p Plane, hit r3.Vector, width, depth float64) bool {
	u, v := Tangents(p.Normal)
	d := hit.Sub(p.Center)
	return math.Abs(d.Dot(u)) <= width/2 && math.Abs(d.Dot(v)) <= depth/2
}
