// Package world converts screen points into world-space positions by ray
// casting against the reconstructed environment of an AR session.
package world

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
)

// Frame is one camera frame borrowed from a FrameSource for a single
// inference call.
type Frame struct {
	Seq       uint64
	Image     image.Image
	Camera    geom.Camera
	Timestamp time.Time
}

// RaycastTarget selects which surface estimates a ray cast may hit.
type RaycastTarget int

const (
	// ExistingPlane hits detected planes within their measured extent.
	ExistingPlane RaycastTarget = iota
	// ExistingPlaneInfinite hits detected planes extended to infinity.
	ExistingPlaneInfinite
	// EstimatedPlane hits estimated surfaces, falling back to the depth
	// estimate along the ray.
	EstimatedPlane
)

func (t RaycastTarget) String() string {
	switch t {
	case ExistingPlane:
		return "existing_plane"
	case ExistingPlaneInfinite:
		return "existing_plane_infinite"
	case EstimatedPlane:
		return "estimated_plane"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t RaycastTarget) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseRaycastTarget parses the String form of a target.
func ParseRaycastTarget(s string) (RaycastTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "existing_plane":
		return ExistingPlane, nil
	case "existing_plane_infinite":
		return ExistingPlaneInfinite, nil
	case "estimated_plane":
		return EstimatedPlane, nil
	}
	return 0, fmt.Errorf("unknown raycast target: %q", s)
}

// Alignment restricts a ray cast to surfaces of a given orientation.
type Alignment int

const (
	AlignAny Alignment = iota
	AlignHorizontal
	AlignVertical
)

func (a Alignment) String() string {
	switch a {
	case AlignHorizontal:
		return "horizontal"
	case AlignVertical:
		return "vertical"
	default:
		return "any"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Alignment) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseAlignment parses the String form of an alignment. The empty string
// is AlignAny.
func ParseAlignment(s string) (Alignment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return AlignAny, nil
	case "horizontal":
		return AlignHorizontal, nil
	case "vertical":
		return AlignVertical, nil
	}
	return 0, fmt.Errorf("unknown alignment: %q", s)
}

// Admits reports whether a surface with alignment s satisfies a query for a.
func (a Alignment) Admits(s Alignment) bool {
	return a == AlignAny || a == s
}

// WorldPoint is a resolved ray cast hit.
type WorldPoint struct {
	// Position is the intersection in world coordinates (meters).
	Position r3.Vector `json:"position"`

	// Normal is the surface normal at the hit, zero when unknown
	// (depth-estimate hits).
	Normal r3.Vector `json:"normal"`

	// Alignment of the surface that was hit.
	Alignment Alignment `json:"alignment"`

	// Target is the query target that produced the hit.
	Target RaycastTarget `json:"target"`

	// Distance from the camera to the hit along the ray.
	Distance float64 `json:"distance"`
}

// RaycastQuery describes one ray cast from a screen point.
type RaycastQuery struct {
	Point     geom.Point2
	Target    RaycastTarget
	Alignment Alignment
}

// FrameSource is the live AR session as seen by the anchoring flow.
type FrameSource interface {
	// CurrentFrame returns the latest camera frame, or false when the
	// session has not produced one yet.
	CurrentFrame() (*Frame, bool)

	// Raycast intersects a ray from the current camera through a screen
	// point with the scene reconstruction, returning the nearest hit.
	Raycast(q RaycastQuery) (WorldPoint, bool)
}
