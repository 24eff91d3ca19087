// Package quality computes a heuristic usability score for face images from
// their resolution, sharpness and lighting.
package quality

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/kozaktomas/face-verifier/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnreadable means the image file could not be opened or read.
	ErrUnreadable = errors.New("image unreadable")
	// ErrUndecodable means the file was read but is not a supported image.
	ErrUndecodable = errors.New("image undecodable")
)

// Assessment is the breakdown of a quality score.
type Assessment struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Sub-scores, each clamped to [0,1].
	Resolution float64 `json:"resolution"`
	Sharpness  float64 `json:"sharpness"`
	Lighting   float64 `json:"lighting"`

	// Raw measurements behind the sub-scores.
	LaplacianVariance float64 `json:"laplacian_variance"`
	MeanLightness     float64 `json:"mean_lightness"` // 8-bit L*, 0-255

	Score float64 `json:"score"`
}

// Scorer assesses image files on disk.
type Scorer struct{}

// NewScorer creates a new quality scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Assess reads and decodes the image at path and computes its quality.
// Errors wrap ErrUnreadable or ErrUndecodable.
func (s *Scorer) Assess(path string) (*Assessment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return AssessData(data)
}

// Score returns the quality score of the image at path, or 0.0 if it cannot be assessed.
func (s *Scorer) Score(path string) float64 {
	a, err := s.Assess(path)
	if err != nil {
		return 0.0
	}
	return a.Score
}

// AssessData decodes image bytes and computes their quality.
func AssessData(data []byte) (*Assessment, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrUndecodable)
	}
	return AssessImage(img), nil
}

// AssessImage computes the quality of a decoded image.
func AssessImage(img image.Image) *Assessment {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Work on non-premultiplied 8-bit pixels, as the colour conversions expect.
	nrgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	gray := toGrayscale(nrgba)
	variance := laplacianVariance(gray, width, height)
	lightness := meanLightness(nrgba)

	a := &Assessment{
		Width:             width,
		Height:            height,
		Resolution:        clamp01(float64(min(width, height)) / constants.IdealMinSide),
		Sharpness:         clamp01(variance / constants.SharpnessScale),
		Lighting:          clamp01(lightness / constants.LightingScale),
		LaplacianVariance: variance,
		MeanLightness:     lightness,
	}
	a.Score = combine(a.Resolution, a.Sharpness, a.Lighting)
	return a
}

// combine weights the sub-scores and caps the sum at 1.0.
func combine(resolution, sharpness, lighting float64) float64 {
	score := resolution*constants.ResolutionWeight +
		sharpness*constants.SharpnessWeight +
		lighting*constants.LightingWeight
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// toGrayscale converts pixels to 8-bit luma using ITU-R BT.601 weights in
// 14-bit fixed point, rounding like common 8-bit colour conversion routines.
func toGrayscale(img *image.NRGBA) []uint8 {
	const (
		rw    = 4899 // 0.299 << 14
		gw    = 9617 // 0.587 << 14
		bw    = 1868 // 0.114 << 14
		shift = 14
	)
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	gray := make([]uint8, width*height)
	for y := range height {
		row := img.Pix[y*img.Stride:]
		for x := range width {
			p := row[x*4 : x*4+3]
			luma := (int(p[0])*rw + int(p[1])*gw + int(p[2])*bw + (1 << (shift - 1))) >> shift
			gray[y*width+x] = uint8(min(luma, 255)) //nolint:gosec // clamped to 255
		}
	}
	return gray
}

// reflect101 maps an out-of-range index back into [0,n) mirroring around the
// edge pixel without repeating it (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*n - 2 - i
		}
	}
	return i
}

// laplacianVariance returns the population variance of the 4-neighbour
// Laplacian response ([0 1 0; 1 -4 1; 0 1 0]) over the grayscale image.
func laplacianVariance(gray []uint8, width, height int) float64 {
	at := func(x, y int) float64 {
		return float64(gray[reflect101(y, height)*width+reflect101(x, width)])
	}

	// Welford's online algorithm keeps precision on large images.
	var n, mean, m2 float64
	for y := range height {
		for x := range width {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			n++
			delta := v - mean
			mean += delta / n
			m2 += delta * (v - mean)
		}
	}
	if n == 0 {
		return 0
	}
	return m2 / n
}

// srgbToLinear is a lookup table from 8-bit sRGB values to linear light.
var srgbToLinear = func() [256]float64 {
	var table [256]float64
	for i := range table {
		c := float64(i) / 255
		if c <= 0.04045 {
			table[i] = c / 12.92
		} else {
			table[i] = math.Pow((c+0.055)/1.055, 2.4)
		}
	}
	return table
}()

// meanLightness returns the mean CIE L* of the image scaled to 0-255.
func meanLightness(img *image.NRGBA) float64 {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	var sum float64
	for y := range height {
		row := img.Pix[y*img.Stride:]
		for x := range width {
			p := row[x*4 : x*4+3]
			// D65 relative luminance from linear RGB.
			lum := 0.212671*srgbToLinear[p[0]] + 0.715160*srgbToLinear[p[1]] + 0.072169*srgbToLinear[p[2]]
			sum += math.Round(lightness(lum) * 255 / 100)
		}
	}
	return sum / float64(width*height)
}

// lightness converts relative luminance (0-1) to CIE L* (0-100).
func lightness(y float64) float64 {
	if y > 0.008856 {
		return 116*math.Cbrt(y) - 16
	}
	return 903.3 * y
}
