package detection

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// point is a pixel coordinate in the edge map.
type point struct {
	X, Y int
}

// box is a pixel-space bounding box (top-left origin, inclusive max).
type box struct {
	X1, Y1, X2, Y2 int
}

func (b box) width() int  { return b.X2 - b.X1 }
func (b box) height() int { return b.Y2 - b.Y1 }

// linkDistance is the Chebyshev distance at which edge pixels join one
// contour.
const linkDistance = 2

// ShapeDetector runs a shape-class Model over frames.
//
// The detector is stateless apart from its model and is safe for concurrent
// use, although Runner never calls it concurrently.
type ShapeDetector struct {
	model *Model
}

// NewShapeDetector returns a detector for m.
func NewShapeDetector(m *Model) *ShapeDetector {
	return &ShapeDetector{model: m}
}

// Model returns the loaded model.
func (d *ShapeDetector) Model() *Model {
	return d.model
}

// Detect finds rectangles and circles in img and reports those that match a
// model class, sorted by confidence (highest first).
//
// # Algorithm
//
//  1. Downscale so the longest side is at most Model.InputSize
//  2. Build a thin edge map (grayscale, blur, sobel, non-maximum
//     suppression, hysteresis)
//  3. Group edge pixels into contours
//  4. Score each contour for rectangularity and circularity and keep the
//     better shape if it clears the model's cut
//  5. Map the shape to the first class accepting its relative size
//
// Each contour yields at most one detection. Detect honors ctx between
// stages.
func (d *ShapeDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	m := d.model
	b := img.Bounds()
	if b.Dx() > m.InputSize || b.Dy() > m.InputSize {
		img = imaging.Fit(img, m.InputSize, m.InputSize, imaging.Box)
		b = img.Bounds()
	}
	width, height := b.Dx(), b.Dy()
	short := float64(min(width, height))

	edges := edgeMap(img, m.BlurRadius, m.EdgeThreshold)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contours := findContours(edges, width, height)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, _, wantRect := m.sizeRange(ShapeRectangle)
	_, _, wantCircle := m.sizeRange(ShapeCircle)

	dets := make([]Detection, 0)
	for _, c := range contours {
		bb := contourBounds(c)
		shape, score := "", 0.0
		if wantRect {
			if r := rectangularity(c, bb); r >= m.Rectangularity {
				shape, score = ShapeRectangle, r
			}
		}
		if wantCircle {
			if r := circularity(c, bb); r >= m.Circularity && r > score {
				shape, score = ShapeCircle, r
			}
		}
		if shape == "" || score < m.MinConfidence {
			continue
		}

		size := float64(max(bb.width(), bb.height())+1) / short
		class, ok := m.classify(shape, size)
		if !ok {
			continue
		}
		dets = append(dets, Detection{
			Label:       class.Label,
			Confidence:  score,
			BoundingBox: pixelRect(bb.X1, bb.Y1, bb.X2+1, bb.Y2+1, width, height),
		})
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
	return dets, nil
}

// rectangularity scores how well a contour traces its bounding box.
//
// The score is the product of two fractions:
//   - band: contour pixels lying within a thin band along the box border
//   - corners: box corners that have a contour pixel nearby
//
// A rectangle outline scores close to 1.0. A circle scores 0 because its
// contour never reaches the box corners.
func rectangularity(contour []point, bb box) float64 {
	if len(contour) == 0 || bb.width() < 2 || bb.height() < 2 {
		return 0
	}
	band := max(2, min(bb.width(), bb.height())/10)

	inBand := 0
	for _, p := range contour {
		edgeDist := min(p.X-bb.X1, bb.X2-p.X, p.Y-bb.Y1, bb.Y2-p.Y)
		if edgeDist <= band {
			inBand++
		}
	}

	corners := [4]point{{bb.X1, bb.Y1}, {bb.X2, bb.Y1}, {bb.X1, bb.Y2}, {bb.X2, bb.Y2}}
	var hit [4]bool
	for _, p := range contour {
		for i, c := range corners {
			if !hit[i] && abs(p.X-c.X) <= band && abs(p.Y-c.Y) <= band {
				hit[i] = true
			}
		}
	}
	cornerHits := 0
	for _, h := range hit {
		if h {
			cornerHits++
		}
	}

	return float64(inBand) / float64(len(contour)) * float64(cornerHits) / 4
}

// contourBounds returns the inclusive bounding box of a contour.
func contourBounds(contour []point) box {
	bb := box{X1: math.MaxInt, Y1: math.MaxInt, X2: math.MinInt, Y2: math.MinInt}
	for _, p := range contour {
		bb.X1 = min(bb.X1, p.X)
		bb.Y1 = min(bb.Y1, p.Y)
		bb.X2 = max(bb.X2, p.X)
		bb.Y2 = max(bb.Y2, p.Y)
	}
	return bb
}

// circularity scores how well a contour traces the circle inscribed in its
// bounding box. It is the product of three fractions:
//   - ring: contour pixels within tolerance of the inscribed radius
//   - sectors: 10-degree sectors around the center holding a ring pixel
//   - aspect: shorter over longer box side
//
// A circle outline scores close to 1.0. A square outline scores about 0.25
// and an arc of a larger circle scores low because its box is off center.
func circularity(contour []point, bb box) float64 {
	w, h := float64(bb.width()), float64(bb.height())
	if len(contour) == 0 || w < 4 || h < 4 {
		return 0
	}
	cx, cy := float64(bb.X1+bb.X2)/2, float64(bb.Y1+bb.Y2)/2
	r := (w + h) / 4
	tol := math.Max(1.5, 0.1*r)

	var sectors [36]bool
	onRing := 0
	for _, p := range contour {
		dx, dy := float64(p.X)-cx, float64(p.Y)-cy
		if math.Abs(math.Hypot(dx, dy)-r) > tol {
			continue
		}
		onRing++
		a := math.Atan2(dy, dx) + math.Pi
		sectors[min(len(sectors)-1, int(a/(2*math.Pi)*float64(len(sectors))))] = true
	}
	covered := 0
	for _, s := range sectors {
		if s {
			covered++
		}
	}

	return float64(onRing) / float64(len(contour)) *
		float64(covered) / float64(len(sectors)) *
		math.Min(w, h) / math.Max(w, h)
}

// findContours groups edge pixels into contours, discarding groups smaller
// than 10 pixels as noise. Pixels up to linkDistance apart in either axis
// are connected, which bridges the one-pixel gaps suppression leaves where
// an edge turns.
func findContours(edges [][]bool, width, height int) [][]point {
	visited := make([][]bool, height)
	for y := range visited {
		visited[y] = make([]bool, width)
	}

	contours := make([][]point, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if edges[y][x] && !visited[y][x] {
				contour := floodFill(edges, visited, x, y, width, height)
				if len(contour) >= 10 {
					contours = append(contours, contour)
				}
			}
		}
	}
	return contours
}

// floodFill collects the contour containing (startX, startY). It is
// stack-based so large contours cannot overflow the goroutine stack.
func floodFill(edges, visited [][]bool, startX, startY, width, height int) []point {
	contour := make([]point, 0)
	stack := []point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y][p.X] || !edges[p.Y][p.X] {
			continue
		}

		visited[p.Y][p.X] = true
		contour = append(contour, p)

		for dy := -linkDistance; dy <= linkDistance; dy++ {
			for dx := -linkDistance; dx <= linkDistance; dx++ {
				if dx != 0 || dy != 0 {
					stack = append(stack, point{X: p.X + dx, Y: p.Y + dy})
				}
			}
		}
	}
	return contour
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
