package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Camera is a pinhole camera whose intrinsics are expressed in view units of
// the rendering surface (not sensor pixels).
type Camera struct {
	Pose     Transform
	Fx, Fy   float64
	Cx, Cy   float64
	Viewport Size
}

// CameraFromFOV builds a camera with square pixels and a centered principal
// point from a vertical field of view in degrees.
func CameraFromFOV(pose Transform, viewport Size, fovYDegrees float64) Camera {
	fy := (viewport.Height / 2) / math.Tan(fovYDegrees*math.Pi/360)
	return Camera{
		Pose:     pose,
		Fx:       fy,
		Fy:       fy,
		Cx:       viewport.Width / 2,
		Cy:       viewport.Height / 2,
		Viewport: viewport,
	}
}

// Position returns the camera origin in world space.
func (c Camera) Position() r3.Vector {
	return c.Pose.Translation
}

// RayThrough returns the world-space ray from the camera through a screen
// point (top-left origin, Y down).
func (c Camera) RayThrough(p Point2) Ray {
	local := r3.Vector{
		X: (p.X - c.Cx) / c.Fx,
		Y: -(p.Y - c.Cy) / c.Fy,
		Z: -1,
	}
	return Ray{
		Origin: c.Pose.Translation,
		Dir:    c.Pose.ApplyDir(local).Normalize(),
	}
}
