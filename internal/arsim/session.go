package arsim

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/imaging"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

// blank is the fill of the synthetic frame used by scenes without images.
var blank = color.Gray{Y: 128}

// Session implements world.FrameSource over a Scene.
//
// Session is safe for concurrent use. Ray casts always use the current
// camera pose.
type Session struct {
	mu       sync.Mutex
	scene    *Scene
	camera   geom.Camera
	planes   []surface
	estimate []surface
	frames   []image.Image
	next     int
	seq      uint64
	now      func() time.Time
}

// Open loads a scene file and decodes its frames through cache. cache may
// be nil.
func Open(path string, cache *imaging.ImageCache) (*Session, error) {
	scene, err := LoadScene(path)
	if err != nil {
		return nil, err
	}
	return NewSession(scene, cache)
}

// NewSession builds a session from a parsed scene.
func NewSession(scene *Scene, cache *imaging.ImageCache) (*Session, error) {
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	s := &Session{
		scene:  scene,
		camera: scene.CameraAt(),
		now:    time.Now,
	}
	for _, p := range scene.Planes {
		sf, err := p.resolve()
		if err != nil {
			return nil, err
		}
		s.planes = append(s.planes, sf)
	}
	for _, p := range scene.EstimatedPlanes {
		sf, err := p.resolve()
		if err != nil {
			return nil, err
		}
		s.estimate = append(s.estimate, sf)
	}
	for _, path := range scene.Frames {
		img, err := cache.Load(path)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %s: %v", ErrSceneLoad, path, err)
		}
		s.frames = append(s.frames, img)
	}
	if len(s.frames) == 0 {
		s.frames = []image.Image{blankFrame(scene.Viewport)}
	}
	return s, nil
}

func blankFrame(view geom.Size) image.Image {
	w := max(1, int(math.Round(view.Width)))
	h := max(1, int(math.Round(view.Height)))
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: blank}, image.Point{}, draw.Src)
	return img
}

// Viewport returns the simulated surface size.
func (s *Session) Viewport() geom.Size {
	return s.scene.Viewport
}

// Camera returns the current camera.
func (s *Session) Camera() geom.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// SetCamera moves the simulated device.
func (s *Session) SetCamera(pose geom.Transform) {
	s.mu.Lock()
	s.camera.Pose = pose
	s.mu.Unlock()
}

// CurrentFrame returns the next frame, cycling through the scene's images.
func (s *Session) CurrentFrame() (*world.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	s.seq++
	return &world.Frame{
		Seq:       s.seq,
		Image:     img,
		Camera:    s.camera,
		Timestamp: s.now(),
	}, true
}

// Raycast returns the nearest surface hit admitted by the query.
func (s *Session) Raycast(q world.RaycastQuery) (world.WorldPoint, bool) {
	s.mu.Lock()
	cam := s.camera
	s.mu.Unlock()

	ray := cam.RayThrough(q.Point)
	switch q.Target {
	case world.ExistingPlane:
		return nearest(ray, s.planes, q, true)
	case world.ExistingPlaneInfinite:
		return nearest(ray, s.planes, q, false)
	case world.EstimatedPlane:
		if wp, ok := nearest(ray, s.estimate, q, false); ok {
			return wp, true
		}
		if s.scene.DepthEstimate > 0 && q.Alignment == world.AlignAny {
			return world.WorldPoint{
				Position:  ray.At(s.scene.DepthEstimate),
				Alignment: world.AlignAny,
				Target:    q.Target,
				Distance:  s.scene.DepthEstimate,
			}, true
		}
	}
	return world.WorldPoint{}, false
}

func nearest(ray geom.Ray, surfaces []surface, q world.RaycastQuery, bounded bool) (world.WorldPoint, bool) {
	best := world.WorldPoint{}
	found := false
	for _, sf := range surfaces {
		if !q.Alignment.Admits(sf.alignment) {
			continue
		}
		t, ok := geom.IntersectPlane(ray, sf.plane)
		if !ok {
			continue
		}
		hit := ray.At(t)
		if bounded && !geom.WithinExtent(sf.plane, hit, sf.width, sf.depth) {
			continue
		}
		if found && t >= best.Distance {
			continue
		}
		best = world.WorldPoint{
			Position:  hit,
			Normal:    sf.plane.Normal,
			Alignment: sf.alignment,
			Target:    q.Target,
			Distance:  t,
		}
		found = true
	}
	return best, found
}
