package detection

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// edgeMap converts an image into a binary edge map one pixel wide.
//
// The pipeline is grayscale -> gaussian blur -> sobel -> non-maximum
// suppression -> hysteresis. Pixels at or above threshold are strong edges;
// pixels above half of it are kept only next to a strong edge. Border pixels
// are never edges. The returned slice is indexed [y][x] relative to the image
// bounds.
func edgeMap(img image.Image, blurRadius float64, threshold uint8) [][]bool {
	var src image.Image = effect.Grayscale(img)
	if blurRadius > 0 {
		src = blur.Gaussian(src, blurRadius)
	}
	lum := luminance(src)
	mag, dir := sobel(lum)
	thin := suppressNonMax(mag, dir)
	return hysteresis(thin, float64(threshold), float64(threshold)/2)
}

// luminance returns the 0-255 gray level of every pixel, indexed [y][x].
func luminance(img image.Image) [][]float64 {
	b := img.Bounds()
	lum := make([][]float64, b.Dy())
	for y := range lum {
		lum[y] = make([]float64, b.Dx())
		for x := range lum[y] {
			lum[y][x] = float64(color.GrayModel.Convert(img.At(x+b.Min.X, y+b.Min.Y)).(color.Gray).Y)
		}
	}
	return lum
}

// sobel returns the gradient magnitude, scaled so a sharp black to white
// step reads 255, and the gradient direction in radians.
func sobel(lum [][]float64) (mag, dir [][]float64) {
	height := len(lum)
	mag = make([][]float64, height)
	dir = make([][]float64, height)
	if height == 0 {
		return mag, dir
	}
	width := len(lum[0])
	at := func(x, y int) float64 {
		return lum[clampInt(y, 0, height-1)][clampInt(x, 0, width-1)]
	}

	for y := 0; y < height; y++ {
		mag[y] = make([]float64, width)
		dir[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag[y][x] = math.Hypot(gx, gy) / 4
			dir[y][x] = math.Atan2(gy, gx)
		}
	}
	return mag, dir
}

// suppressNonMax keeps only pixels whose magnitude peaks along the gradient
// direction. On a two-pixel plateau only the pixel with the lower index
// along that direction survives, so straight edges stay one pixel wide.
func suppressNonMax(mag, dir [][]float64) [][]float64 {
	height := len(mag)
	out := make([][]float64, height)
	for y := range out {
		out[y] = make([]float64, len(mag[y]))
	}

	for y := 1; y < height-1; y++ {
		width := len(mag[y])
		for x := 1; x < width-1; x++ {
			m := mag[y][x]
			if m == 0 {
				continue
			}
			a := dir[y][x]
			if a < 0 {
				a += math.Pi
			}

			var before, after float64
			switch {
			case a < math.Pi/8 || a >= 7*math.Pi/8:
				before, after = mag[y][x-1], mag[y][x+1]
			case a < 3*math.Pi/8:
				before, after = mag[y-1][x-1], mag[y+1][x+1]
			case a < 5*math.Pi/8:
				before, after = mag[y-1][x], mag[y+1][x]
			default:
				before, after = mag[y-1][x+1], mag[y+1][x-1]
			}

			if m > before && m >= after {
				out[y][x] = m
			}
		}
	}
	return out
}

// hysteresis marks strong pixels (>= high) and weak pixels (>= low) that
// touch a strong one.
func hysteresis(thin [][]float64, high, low float64) [][]bool {
	height := len(thin)
	edges := make([][]bool, height)
	for y := range edges {
		edges[y] = make([]bool, len(thin[y]))
	}

	for y := 1; y < height-1; y++ {
		width := len(thin[y])
		for x := 1; x < width-1; x++ {
			v := thin[y][x]
			switch {
			case v >= high:
				edges[y][x] = true
			case v >= low && v > 0:
				edges[y][x] = hasStrongNeighbor(thin, x, y, high)
			}
		}
	}
	return edges
}

func hasStrongNeighbor(thin [][]float64, x, y int, high float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && thin[y+dy][x+dx] >= high {
				return true
			}
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
