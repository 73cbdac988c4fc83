package anchor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

const (
	// DefaultMaxScale never enlarges an asset beyond its authored size.
	DefaultMaxScale = 1.0
	// DefaultDropHeight is the height above the hit at which the asset appears.
	DefaultDropHeight = 0.3
	// DefaultFootprint is the footprint side used when no detection matched.
	DefaultFootprint = 0.2
)

// FitScale returns the uniform scale that makes an asset of side assetSide
// match footprintSide, and the same value clamped to maxScale.
func FitScale(footprintSide, assetSide, maxScale float64) (applied, computed float64) {
	computed = footprintSide / assetSide
	return math.Min(maxScale, computed), computed
}

// Placement is a planned anchor, computed off the render context and applied
// on it with Place.
type Placement struct {
	AnchorID string           `json:"anchor_id"`
	AssetID  string           `json:"asset_id"`
	Anchor   geom.Transform   `json:"-"`
	Position r3.Vector        `json:"position"`
	Surface  world.WorldPoint `json:"surface"`

	// Scale is the applied scale, ComputedScale the unclamped fit.
	Scale         float64 `json:"scale"`
	ComputedScale float64 `json:"computed_scale"`

	// Drop is the entity offset from the anchor.
	Drop r3.Vector `json:"drop"`

	FootprintSide float64 `json:"footprint_side"`

	// Fallback is set when no footprint was available and the default
	// footprint was used.
	Fallback bool `json:"fallback"`
}

// Placer is the anchor placer.
type Placer struct {
	Asset            *Asset
	MaxScale         float64
	DropHeight       float64
	DefaultFootprint float64

	newID func() string
	now   func() time.Time
}

// NewPlacer returns a placer for asset with the default scale limit, drop
// height and footprint.
func NewPlacer(asset *Asset) (*Placer, error) {
	if asset == nil {
		return nil, fmt.Errorf("%w: no asset", ErrAssetLoad)
	}
	if asset.MaxExtent() <= 0 {
		return nil, fmt.Errorf("%w: asset %s has no extent", ErrAssetLoad, asset.ID)
	}
	return &Placer{
		Asset:            asset,
		MaxScale:         DefaultMaxScale,
		DropHeight:       DefaultDropHeight,
		DefaultFootprint: DefaultFootprint,
		newID:            uuid.NewString,
		now:              time.Now,
	}, nil
}

// Plan computes the placement for a resolved world point. footprint is the
// matched detection box, or nil for a center fallback.
func (p *Placer) Plan(wp world.WorldPoint, footprint *detection.Rect) Placement {
	side := p.DefaultFootprint
	fallback := footprint == nil
	if !fallback {
		side = footprint.MaxSide()
	}
	applied, computed := FitScale(side, p.Asset.MaxExtent(), p.MaxScale)
	return Placement{
		AnchorID:      p.newID(),
		AssetID:       p.Asset.ID,
		Anchor:        geom.Translation(wp.Position),
		Position:      wp.Position,
		Surface:       wp,
		Scale:         applied,
		ComputedScale: computed,
		Drop:          r3.Vector{Y: p.DropHeight},
		FootprintSide: side,
		Fallback:      fallback,
	}
}

// Place inserts one anchor for pl into scene. It must be called on the
// render context.
func (p *Placer) Place(scene SceneGraph, pl Placement) (*Anchor, error) {
	if scene == nil {
		return nil, errors.New("no scene to place into")
	}
	a := &Anchor{
		ID:        pl.AnchorID,
		Transform: pl.Anchor,
		Entity: Entity{
			AssetID: p.Asset.ID,
			Source:  p.Asset.Source,
			Local:   geom.Translation(pl.Drop),
			Scale:   pl.Scale,
		},
		CreatedAt: p.now(),
	}
	if err := scene.AddAnchor(a); err != nil {
		return nil, fmt.Errorf("failed to add anchor: %w", err)
	}
	return a, nil
}

// WorldPosition returns where the entity renders: the anchor position plus
// the drop offset.
func (a *Anchor) WorldPosition() r3.Vector {
	return a.Transform.Apply(a.Entity.Local.Translation)
}
