package detection

import (
	"strings"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
)

// Candidate is the screen point chosen for a world-location lookup.
type Candidate struct {
	// Point is the screen point (top-left origin) to ray cast from.
	Point geom.Point2 `json:"point"`

	// Detection is the matched detection, nil when Fallback is set.
	Detection *Detection `json:"detection,omitempty"`

	// Fallback is true when no detection matched and the view center is used.
	Fallback bool `json:"fallback"`
}

// Footprint returns the matched bounding box, or nil for a fallback candidate.
func (c Candidate) Footprint() *Rect {
	if c.Detection == nil {
		return nil
	}
	box := c.Detection.BoundingBox
	return &box
}

// SelectTarget returns the first detection whose label contains target,
// ignoring case.
func SelectTarget(dets []Detection, target string) (Detection, bool) {
	needle := strings.ToLower(target)
	for _, d := range dets {
		if strings.Contains(strings.ToLower(d.Label), needle) {
			return d, true
		}
	}
	return Detection{}, false
}

// ChooseCandidate applies the selection policy: the center of the first
// matching detection, otherwise the exact center of the view.
func ChooseCandidate(dets []Detection, target string, view geom.Size) Candidate {
	if d, ok := SelectTarget(dets, target); ok {
		return Candidate{
			Point:     NormalizedToScreen(d.BoundingBox.Mid(), view),
			Detection: &d,
		}
	}
	return Candidate{Point: view.Center(), Fallback: true}
}
