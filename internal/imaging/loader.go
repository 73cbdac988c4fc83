package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"sync"
)

// ImageCache keeps decoded frame images keyed by file path, so a simulated
// session that cycles through the same frames decodes each file once.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Entries remain until Evict or Clear is called.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load returns the cached image for path, decoding it from disk on first
// use. PNG, JPEG and GIF are supported. Paths are keyed by their absolute
// form, so relative and absolute spellings share one entry.
func (c *ImageCache) Load(path string) (image.Image, error) {
	path = cacheKey(path)
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := Decode(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cached, ok := c.images[path]; ok {
		img = cached
	} else {
		c.images[path] = img
	}
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes one path from the cache. Unknown paths are ignored.
func (c *ImageCache) Evict(path string) {
	path = cacheKey(path)
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Decode reads and decodes a single image file without caching it.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Dimensions is the pixel size of a frame.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DimensionsOf returns the pixel size of img.
func DimensionsOf(img image.Image) Dimensions {
	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}
}
