package world

import (
	"testing"

	"github.com/golang/geo/r3"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
)

// stubSource answers ray casts from a fixed table keyed by target.
type stubSource struct {
	hits    map[RaycastTarget]WorldPoint
	queries []RaycastQuery
}

func (s *stubSource) CurrentFrame() (*Frame, bool) { return nil, false }

func (s *stubSource) Raycast(q RaycastQuery) (WorldPoint, bool) {
	s.queries = append(s.queries, q)
	wp, ok := s.hits[q.Target]
	return wp, ok
}

func TestLocator_PrefersExistingPlane(t *testing.T) {
	src := &stubSource{hits: map[RaycastTarget]WorldPoint{
		ExistingPlane:  {Position: r3.Vector{X: 1, Z: 2}, Target: ExistingPlane},
		EstimatedPlane: {Position: r3.Vector{X: 9}, Target: EstimatedPlane},
	}}

	wp, ok := NewLocator(AlignAny).Locate(src, geom.Point2{X: 10, Y: 20})
	if !ok {
		t.Fatal("expected a hit")
	}
	if wp.Target != ExistingPlane || wp.Position != (r3.Vector{X: 1, Z: 2}) {
		t.Errorf("got %+v, want existing plane hit", wp)
	}
	if len(src.queries) != 1 {
		t.Errorf("should stop after first hit, made %d queries", len(src.queries))
	}
}

func TestLocator_FallsBackToEstimate(t *testing.T) {
	src := &stubSource{hits: map[RaycastTarget]WorldPoint{
		EstimatedPlane: {Position: r3.Vector{Y: -1}, Target: EstimatedPlane},
	}}

	wp, ok := NewLocator(AlignHorizontal).Locate(src, geom.Point2{X: 1, Y: 1})
	if !ok || wp.Target != EstimatedPlane {
		t.Fatalf("got (%+v,%v), want estimated hit", wp, ok)
	}
	for _, q := range src.queries {
		if q.Alignment != AlignHorizontal {
			t.Errorf("query alignment: got %v, want horizontal", q.Alignment)
		}
		if q.Point != (geom.Point2{X: 1, Y: 1}) {
			t.Errorf("query point: got %+v", q.Point)
		}
	}
}

func TestLocator_NoIntersection(t *testing.T) {
	src := &stubSource{hits: map[RaycastTarget]WorldPoint{}}
	if _, ok := NewLocator(AlignAny).Locate(src, geom.Point2{}); ok {
		t.Error("open space should report no intersection")
	}
	if len(src.queries) != len(DefaultTargets) {
		t.Errorf("should try every target, made %d queries", len(src.queries))
	}
}

func TestParseRaycastTarget(t *testing.T) {
	for _, target := range []RaycastTarget{ExistingPlane, ExistingPlaneInfinite, EstimatedPlane} {
		got, err := ParseRaycastTarget(target.String())
		if err != nil || got != target {
			t.Errorf("ParseRaycastTarget(%q): got (%v,%v)", target.String(), got, err)
		}
	}
	if _, err := ParseRaycastTarget("mesh"); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestParseAlignment(t *testing.T) {
	tests := map[string]Alignment{"": AlignAny, "any": AlignAny, "Horizontal": AlignHorizontal, "vertical": AlignVertical}
	for in, want := range tests {
		got, err := ParseAlignment(in)
		if err != nil || got != want {
			t.Errorf("ParseAlignment(%q): got (%v,%v), want %v", in, got, err, want)
		}
	}
	if _, err := ParseAlignment("diagonal"); err == nil {
		t.Error("expected error for unknown alignment")
	}
	if !AlignAny.Admits(AlignVertical) || AlignHorizontal.Admits(AlignVertical) {
		t.Error("Admits semantics wrong")
	}
}
