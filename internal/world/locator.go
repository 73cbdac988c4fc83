package world

import "github.com/ironsheep/ar-anchor-mcp/internal/geom"

// DefaultTargets prefers detected planes and falls back to estimates.
var DefaultTargets = []RaycastTarget{ExistingPlane, EstimatedPlane}

// Locator resolves screen points to world positions.
//
// A Locator holds no mutable state; Locate is a pure query against the
// source and may be called concurrently.
type Locator struct {
	// Targets are tried in order; the first hit wins.
	Targets []RaycastTarget

	// Alignment restricts every query.
	Alignment Alignment
}

// NewLocator returns a locator trying targets in order. With no targets it
// uses DefaultTargets.
func NewLocator(alignment Alignment, targets ...RaycastTarget) *Locator {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	return &Locator{Targets: append([]RaycastTarget(nil), targets...), Alignment: alignment}
}

// Locate ray casts from a screen point (top-left origin) and returns the
// first intersection, or false when the ray finds nothing.
func (l *Locator) Locate(src FrameSource, p geom.Point2) (WorldPoint, bool) {
	for _, target := range l.Targets {
		wp, ok := src.Raycast(RaycastQuery{Point: p, Target: target, Alignment: l.Alignment})
		if ok {
			return wp, true
		}
	}
	return WorldPoint{}, false
}
