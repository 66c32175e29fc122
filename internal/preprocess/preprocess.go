// Package preprocess converts a captured color frame into the grayscale,
// contrast-equalized image the feature matcher expects, and derives the
// sharpness and brightness diagnostics the frame loop uses for blur
// skipping.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// Params configures the preprocessing pipeline. Zero-value Params is not
// valid; use DefaultParams.
type Params struct {
	ClaheClip     float64 // CLAHE contrast clip limit
	ClaheGrid     int     // CLAHE tile grid size (ClaheGrid x ClaheGrid)
	Denoise       bool    // apply a 3x3 median denoise pass
	TargetWidth   int     // 0 disables resize
	TargetHeight  int     // 0 disables resize
}

// DefaultParams returns the spec's default CLAHE configuration: clip 3.0,
// an 8x8 grid, no denoise, no resize.
func DefaultParams() Params {
	return Params{
		ClaheClip: 3.0,
		ClaheGrid: 8,
	}
}

// Result is the output of a single Process call: the equalized grayscale
// frame plus its sharpness and brightness diagnostics.
type Result struct {
	Gray       *image.Gray
	Sharpness  float64 // variance of the discrete Laplacian
	Brightness float64 // mean intensity normalized to [0,1]
}

// Process converts frame to grayscale, applies CLAHE, optionally denoises
// and resizes, and computes sharpness/brightness diagnostics. It is
// idempotent for a fixed Params and never panics on valid image shapes;
// zero-sized images fail with perr.ErrInvalidInput.
func Process(frame image.Image, p Params) (Result, error) {
	bounds := frame.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return Result{}, fmt.Errorf("%w: preprocess: empty frame %dx%d", perr.ErrInvalidInput, bounds.Dx(), bounds.Dy())
	}

	gray := toGray(frame)
	equalized := clahe(gray, p.ClaheClip, p.ClaheGrid)

	if p.Denoise {
		equalized = medianDenoise3x3(equalized)
	}

	if p.TargetWidth > 0 && p.TargetHeight > 0 {
		equalized = resize(equalized, p.TargetWidth, p.TargetHeight)
	}

	sharpness := laplacianVariance(equalized)
	brightness := meanBrightness(equalized)

	return Result{Gray: equalized, Sharpness: sharpness, Brightness: brightness}, nil
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return gray
}

// clahe applies a simplified contrast-limited adaptive histogram
// equalization: the image is divided into a grid x grid tiling, each tile's
// histogram is clip-limited and equalized independently, and tile-boundary
// seams are smoothed with bilinear interpolation between the four nearest
// tile mappings, matching the standard CLAHE construction.
func clahe(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	if grid < 1 {
		grid = 1
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	tileW := (w + grid - 1) / grid
	tileH := (h + grid - 1) / grid
	if tileW < 1 {
		tileW = 1
	}
	if tileH < 1 {
		tileH = 1
	}

	// Build a clip-limited equalization LUT per tile.
	luts := make([][256]uint8, grid*grid)
	for ty := 0; ty < grid; ty++ {
		for tx := 0; tx < grid; tx++ {
			x0 := b.Min.X + tx*tileW
			y0 := b.Min.Y + ty*tileH
			x1 := min(x0+tileW, b.Max.X)
			y1 := min(y0+tileH, b.Max.Y)
			luts[ty*grid+tx] = buildClippedLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x, y, color.Gray{Y: interpolateLUT(src.GrayAt(x, y).Y, x-b.Min.X, y-b.Min.Y, tileW, tileH, grid, luts)})
		}
	}
	return out
}

func buildClippedLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	count := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.GrayAt(x, y).Y]++
			count++
		}
	}
	if count == 0 {
		var identity [256]uint8
		for i := range identity {
			identity[i] = uint8(i)
		}
		return identity
	}

	clip := int(clipLimit * float64(count) / 256.0)
	if clip < 1 {
		clip = 1
	}
	excess := 0
	for i := range hist {
		if hist[i] > clip {
			excess += hist[i] - clip
			hist[i] = clip
		}
	}
	redistribute := excess / 256
	for i := range hist {
		hist[i] += redistribute
	}

	var lut [256]uint8
	cdf := 0
	for i := range hist {
		cdf += hist[i]
		lut[i] = uint8(clampInt(cdf*255/count, 0, 255))
	}
	return lut
}

// interpolateLUT blends the four nearest tile LUTs around pixel (px,py)
// bilinearly so tile-boundary seams are not visible in the output.
func interpolateLUT(v uint8, px, py, tileW, tileH, grid int, luts [][256]uint8) uint8 {
	fx := float64(px)/float64(tileW) - 0.5
	fy := float64(py)/float64(tileH) - 0.5

	tx0 := clampInt(int(math.Floor(fx)), 0, grid-1)
	ty0 := clampInt(int(math.Floor(fy)), 0, grid-1)
	tx1 := clampInt(tx0+1, 0, grid-1)
	ty1 := clampInt(ty0+1, 0, grid-1)

	wx := fx - math.Floor(fx)
	wy := fy - math.Floor(fy)
	if tx0 == tx1 {
		wx = 0
	}
	if ty0 == ty1 {
		wy = 0
	}

	v00 := float64(luts[ty0*grid+tx0][v])
	v10 := float64(luts[ty0*grid+tx1][v])
	v01 := float64(luts[ty1*grid+tx0][v])
	v11 := float64(luts[ty1*grid+tx1][v])

	top := v00*(1-wx) + v10*wx
	bottom := v01*(1-wx) + v11*wx
	result := top*(1-wy) + bottom*wy
	return uint8(clampInt(int(math.Round(result)), 0, 255))
}

// medianDenoise3x3 applies a 3x3 median filter, used to suppress sensor
// noise in low-light frames before feature extraction.
func medianDenoise3x3(src *image.Gray) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	var window [9]uint8
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sx := clampInt(x+dx, b.Min.X, b.Max.X-1)
					sy := clampInt(y+dy, b.Min.Y, b.Max.Y-1)
					window[n] = src.GrayAt(sx, sy).Y
					n++
				}
			}
			out.SetGray(x, y, color.Gray{Y: median9(window)})
		}
	}
	return out
}

func median9(w [9]uint8) uint8 {
	sorted := w
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[4]
}

func resize(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// laplacianVariance computes the variance of the discrete Laplacian,
// a standard sharpness proxy: blurry images have low-variance responses.
func laplacianVariance(img *image.Gray) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	n := 0
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			center := 4 * float64(img.GrayAt(x, y).Y)
			neighbors := float64(img.GrayAt(x-1, y).Y) + float64(img.GrayAt(x+1, y).Y) +
				float64(img.GrayAt(x, y-1).Y) + float64(img.GrayAt(x, y+1).Y)
			lap := center - neighbors
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func meanBrightness(img *image.Gray) float64 {
	b := img.Bounds()
	var sum float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += float64(img.GrayAt(x, y).Y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) / 255.0
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

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
