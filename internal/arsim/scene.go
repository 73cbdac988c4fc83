// Package arsim is a simulated AR session. It replays camera frames from
// image files and answers ray casts against planes described in a YAML
// scene file, standing in for a device tracking session.
package arsim

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

// ErrSceneLoad is wrapped by every scene file error.
var ErrSceneLoad = errors.New("scene load failed")

// DefaultFOV is the vertical field of view used when the scene omits one.
const DefaultFOV = 60.0

// CameraSpec places the simulated camera.
type CameraSpec struct {
	Eye    [3]float64 `yaml:"eye"`
	Target [3]float64 `yaml:"target"`
	Up     [3]float64 `yaml:"up"`
	FOV    float64    `yaml:"fov_y"`
}

// PlaneSpec is one detected or estimated surface.
type PlaneSpec struct {
	ID        string     `yaml:"id"`
	Center    [3]float64 `yaml:"center"`
	Normal    [3]float64 `yaml:"normal"`
	Extent    [2]float64 `yaml:"extent"`
	Alignment string     `yaml:"alignment"`
}

// Scene is the parsed scene file.
type Scene struct {
	Viewport        geom.Size   `yaml:"viewport"`
	Camera          CameraSpec  `yaml:"camera"`
	Planes          []PlaneSpec `yaml:"planes"`
	EstimatedPlanes []PlaneSpec `yaml:"estimated_planes"`
	DepthEstimate   float64     `yaml:"depth_estimate"`
	Frames          []string    `yaml:"frames"`
}

// surface is a PlaneSpec resolved into geometry.
type surface struct {
	id        string
	plane     geom.Plane
	width     float64
	depth     float64
	alignment world.Alignment
}

// LoadScene reads a scene file. Relative frame paths are resolved against
// the scene file's directory.
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSceneLoad, err)
	}
	s, err := ParseScene(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i, f := range s.Frames {
		if !filepath.IsAbs(f) {
			s.Frames[i] = filepath.Join(dir, f)
		}
	}
	return s, nil
}

// ParseScene decodes and validates scene YAML.
func ParseScene(data []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSceneLoad, err)
	}
	if s.Viewport.Empty() {
		return nil, fmt.Errorf("%w: viewport must be positive, got %vx%v", ErrSceneLoad, s.Viewport.Width, s.Viewport.Height)
	}
	if s.Camera.FOV == 0 {
		s.Camera.FOV = DefaultFOV
	}
	if s.Camera.FOV <= 0 || s.Camera.FOV >= 180 {
		return nil, fmt.Errorf("%w: fov_y must be in (0, 180), got %v", ErrSceneLoad, s.Camera.FOV)
	}
	if s.Camera.Up == ([3]float64{}) {
		s.Camera.Up = [3]float64{0, 1, 0}
	}
	eye, target := geom.Vec(s.Camera.Eye), geom.Vec(s.Camera.Target)
	if eye.Sub(target).Norm() < geom.Epsilon {
		return nil, fmt.Errorf("%w: camera eye and target coincide", ErrSceneLoad)
	}
	if s.DepthEstimate < 0 {
		return nil, fmt.Errorf("%w: depth_estimate must not be negative", ErrSceneLoad)
	}
	for _, p := range append(append([]PlaneSpec(nil), s.Planes...), s.EstimatedPlanes...) {
		if _, err := p.resolve(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// CameraAt returns the camera defined by the scene.
func (s *Scene) CameraAt() geom.Camera {
	pose := geom.LookAt(geom.Vec(s.Camera.Eye), geom.Vec(s.Camera.Target), geom.Vec(s.Camera.Up))
	return geom.CameraFromFOV(pose, s.Viewport, s.Camera.FOV)
}

func (p PlaneSpec) resolve() (surface, error) {
	n := geom.Vec(p.Normal)
	if n.Norm() < geom.Epsilon {
		return surface{}, fmt.Errorf("%w: plane %q has zero normal", ErrSceneLoad, p.ID)
	}
	n = n.Normalize()
	align, err := world.ParseAlignment(p.Alignment)
	if err != nil {
		return surface{}, fmt.Errorf("%w: plane %q: %v", ErrSceneLoad, p.ID, err)
	}
	if p.Alignment == "" {
		align = alignmentOf(n)
	}
	if p.Extent[0] < 0 || p.Extent[1] < 0 {
		return surface{}, fmt.Errorf("%w: plane %q has negative extent", ErrSceneLoad, p.ID)
	}
	return surface{
		id:        p.ID,
		plane:     geom.Plane{Center: geom.Vec(p.Center), Normal: n},
		width:     p.Extent[0],
		depth:     p.Extent[1],
		alignment: align,
	}, nil
}

// alignmentOf classifies a unit normal.
func alignmentOf(n r3.Vector) world.Alignment {
	switch y := math.Abs(n.Y); {
	case y > 0.9:
		return world.AlignHorizontal
	case y < 0.1:
		return world.AlignVertical
	default:
		return world.AlignAny
	}
}
