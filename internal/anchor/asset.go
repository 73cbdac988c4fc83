package anchor

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
)

// ErrAssetLoad marks an asset that could not be loaded. It is a
// configuration error and is never retried.
var ErrAssetLoad = errors.New("asset unavailable")

// Asset is the 3D model placed at the detected location.
type Asset struct {
	// ID identifies the asset; it defaults to the file name without extension.
	ID string `json:"id" yaml:"id"`

	// Source is the model file the asset renders from.
	Source string `json:"source" yaml:"model"`

	// Extent is the axis-aligned size of the model in meters at scale 1.
	Extent r3.Vector `json:"extent" yaml:"-"`
}

// MaxExtent returns the largest dimension of the asset.
func (a *Asset) MaxExtent() float64 {
	return geom.MaxComponent(a.Extent)
}

type manifest struct {
	ID     string     `yaml:"id"`
	Model  string     `yaml:"model"`
	Extent [3]float64 `yaml:"extent"`
}

// LoadAsset reads an asset from a YAML manifest (.yaml, .yml) or a Wavefront
// OBJ mesh (.obj), whose extent is taken from its vertex bounds.
func LoadAsset(path string) (*Asset, error) {
	var (
		a   *Asset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		a, err = loadManifest(path)
	case ".obj":
		a, err = loadOBJ(path)
	default:
		err = fmt.Errorf("unsupported asset format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
	}
	if a.ID == "" {
		a.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	// Flat assets are fine; scale fitting only needs the largest side.
	if a.Extent.X < 0 || a.Extent.Y < 0 || a.Extent.Z < 0 || a.MaxExtent() <= 0 {
		return nil, fmt.Errorf("%w: %s: extent must be non-negative with a positive side, got %v", ErrAssetLoad, path, a.Extent)
	}
	return a, nil
}

func loadManifest(path string) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	source := m.Model
	if source != "" && !filepath.IsAbs(source) {
		source = filepath.Join(filepath.Dir(path), source)
	}
	return &Asset{ID: m.ID, Source: source, Extent: geom.Vec(m.Extent)}, nil
}

func loadOBJ(path string) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lo := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	vertices := 0

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != "v" {
			continue
		}
		var c [3]float64
		for i := range c {
			c[i], err = strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad vertex: %v", line, err)
			}
		}
		v := geom.Vec(c)
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
		vertices++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if vertices == 0 {
		return nil, errors.New("mesh has no vertices")
	}
	return &Asset{Source: path, Extent: hi.Sub(lo)}, nil
}

// AssetCache loads each asset path once and shares the result.
//
// AssetCache is safe for concurrent use by multiple goroutines.
type AssetCache struct {
	mu     sync.RWMutex
	assets map[string]*Asset
}

// NewAssetCache creates an empty cache.
func NewAssetCache() *AssetCache {
	return &AssetCache{assets: make(map[string]*Asset)}
}

// Load returns the cached asset for path, loading it on first use. Failed
// loads are not cached.
func (c *AssetCache) Load(path string) (*Asset, error) {
	c.mu.RLock()
	if a, ok := c.assets[path]; ok {
		c.mu.RUnlock()
		return a, nil
	}
	c.mu.RUnlock()

	a, err := LoadAsset(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.assets[path]; ok {
		return cached, nil
	}
	c.assets[path] = a
	return a, nil
}

// Len returns the number of cached assets.
func (c *AssetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}
