package geom

import "github.com/golang/geo/r3"

// Transform is a rigid pose: an orthonormal rotation basis plus a translation.
// Basis[0], Basis[1], Basis[2] are the local X, Y, Z axes expressed in world
// space (the rotation matrix columns).
type Transform struct {
	Basis       [3]r3.Vector
	Translation r3.Vector
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Basis: [3]r3.Vector{AxisX, AxisY, AxisZ}}
}

// Translation returns an identity-rotation transform positioned at p.
func Translation(p r3.Vector) Transform {
	t := Identity()
	t.Translation = p
	return t
}

// LookAt builds a camera pose at eye whose local -Z axis points at target.
// up is a hint for the camera's local +Y; it must not be parallel to the
// viewing direction.
func LookAt(eye, target, up r3.Vector) Transform {
	forward := target.Sub(eye).Normalize()
	right := forward.Cross(up).Normalize()
	trueUp := right.Cross(forward).Normalize()
	return Transform{
		Basis:       [3]r3.Vector{right, trueUp, forward.Mul(-1)},
		Translation: eye,
	}
}

// ApplyDir rotates a direction from local into world space.
func (t Transform) ApplyDir(d r3.Vector) r3.Vector {
	return t.Basis[0].Mul(d.X).Add(t.Basis[1].Mul(d.Y)).Add(t.Basis[2].Mul(d.Z))
}

// Apply maps a point from local into world space.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return t.ApplyDir(p).Add(t.Translation)
}

// Matrix returns the row-major 4x4 homogeneous matrix for this transform.
func (t Transform) Matrix() [16]float64 {
	c0, c1, c2, tr := t.Basis[0], t.Basis[1], t.Basis[2], t.Translation
	return [16]float64{
		c0.X, c1.X, c2.X, tr.X,
		c0.Y, c1.Y, c2.Y, tr.Y,
		c0.Z, c1.Z, c2.Z, tr.Z,
		0, 0, 0, 1,
	}
}
