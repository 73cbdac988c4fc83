package anchor

import (
	"fmt"
	"sync"
	"time"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
)

// Entity is the rendered asset attached to an anchor.
type Entity struct {
	AssetID string `json:"asset_id"`
	Source  string `json:"source,omitempty"`

	// Local is the entity pose relative to its anchor.
	Local geom.Transform `json:"-"`

	// Scale is the uniform scale applied to the asset.
	Scale float64 `json:"scale"`
}

// Anchor is a fixed world pose with one child entity.
type Anchor struct {
	ID        string         `json:"id"`
	Transform geom.Transform `json:"-"`
	Entity    Entity         `json:"entity"`
	CreatedAt time.Time      `json:"created_at"`
}

// SceneGraph receives placed anchors.
type SceneGraph interface {
	AddAnchor(a *Anchor) error
}

// Scene is an in-memory scene graph.
type Scene struct {
	mu      sync.RWMutex
	anchors []*Anchor
	byID    map[string]*Anchor
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{byID: make(map[string]*Anchor)}
}

// AddAnchor inserts a into the scene. IDs must be unique.
func (s *Scene) AddAnchor(a *Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; ok {
		return fmt.Errorf("anchor %s already in scene", a.ID)
	}
	s.anchors = append(s.anchors, a)
	s.byID[a.ID] = a
	return nil
}

// RemoveAnchor deletes an anchor, reporting whether it existed.
func (s *Scene) RemoveAnchor(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, a := range s.anchors {
		if a.ID == id {
			s.anchors = append(s.anchors[:i], s.anchors[i+1:]...)
			break
		}
	}
	return true
}

// Anchor looks up an anchor by ID.
func (s *Scene) Anchor(id string) (*Anchor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return a, ok
}

// Anchors returns the anchors in insertion order.
func (s *Scene) Anchors() []*Anchor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Anchor(nil), s.anchors...)
}

// Len returns the number of anchors.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.anchors)
}
