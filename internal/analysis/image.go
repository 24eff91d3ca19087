package analysis

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/kozaktomas/face-verifier/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PrepareFaceImage converts a face photo into the JPEG sent to vision models.
// Large photos are scaled down so the longest side is at most maxSide, small face
// crops are scaled up until the shortest side reaches minSide (never past maxSide),
// and transparent pixels are flattened onto white.
func PrepareFaceImage(data []byte, maxSide, minSide int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := fitDimensions(bounds.Dx(), bounds.Dy(), maxSide, minSide)

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(out, out.Bounds(), img, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: constants.AnalysisJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// fitDimensions returns the output size for a width x height image, keeping the aspect ratio.
func fitDimensions(width, height, maxSide, minSide int) (int, int) {
	longest := max(width, height)
	shortest := min(width, height)
	if longest == 0 {
		return width, height
	}

	scale := 1.0
	if maxSide > 0 && longest > maxSide {
		scale = float64(maxSide) / float64(longest)
	} else if minSide > 0 && shortest < minSide {
		scale = float64(minSide) / float64(shortest)
		if maxSide > 0 {
			scale = min(scale, float64(maxSide)/float64(longest))
		}
	}
	if scale == 1.0 {
		return width, height
	}
	return max(1, int(math.Round(float64(width)*scale))), max(1, int(math.Round(float64(height)*scale)))
}
