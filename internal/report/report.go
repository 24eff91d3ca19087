// Package report renders the outcome of a verification run, either as the
// human readable report or as a single JSON document.
package report

import (
	"errors"

	"github.com/kozaktomas/face-verifier/internal/analysis"
	"github.com/kozaktomas/face-verifier/internal/constants"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

// ImageAnalysis is the demographic analysis of one input image.
type ImageAnalysis struct {
	Image        int                    `json:"image"` // 1-based
	Path         string                 `json:"path"`
	Demographics *analysis.Demographics `json:"demographics,omitempty"`
	Err          error                  `json:"-"`
	Skipped      string                 `json:"skipped,omitempty"`
}

// NewImageAnalysis builds the analysis entry for image number index (1-based).
func NewImageAnalysis(index int, path string, d *analysis.Demographics, err error) ImageAnalysis {
	ia := ImageAnalysis{Image: index, Path: path, Demographics: d, Err: err}
	if err != nil {
		ia.Demographics = nil
		ia.Skipped = SkipReason(err)
	}
	return ia
}

// SkipReason describes why the analysis of an image was skipped.
func SkipReason(err error) string {
	if errors.Is(err, analysis.ErrNoFace) {
		return "face not detected"
	}
	return err.Error()
}

// Sink receives the stages of a verification run in order.
type Sink interface {
	// Begin starts a run for the two images.
	Begin(imageA, imageB string)
	// NotFound reports input images that do not exist. Nothing else follows.
	NotFound(missing []string)
	// Quality reports both quality scores. low is set when either is below the warning threshold.
	Quality(scoreA, scoreB float64, low bool)
	// Verification reports every model result and the verdict.
	Verification(results []verify.ModelResult, verdict verify.Verdict)
	// Analysis reports the per-image demographics.
	Analysis(analyses []ImageAnalysis)
	// SystemError reports a failure that ended the run without a report.
	SystemError(err error)
	// Flush writes anything buffered.
	Flush() error
}

// IsLowQuality reports whether either score should trigger the low quality warning.
func IsLowQuality(scoreA, scoreB float64) bool {
	return scoreA < constants.LowQualityThreshold || scoreB < constants.LowQualityThreshold
}
