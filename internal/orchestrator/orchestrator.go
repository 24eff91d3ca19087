// Package orchestrator runs a complete verification of two face images:
// quality assessment, multi-model verification, verdict and optional analysis.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/face-verifier/internal/analysis"
	"github.com/kozaktomas/face-verifier/internal/report"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

// ErrInputNotFound is returned when an input image does not exist.
var ErrInputNotFound = errors.New("one or both images not found")

// Scorer rates the quality of an image between 0 and 1.
type Scorer interface {
	Score(path string) float64
}

// Runner compares two images with every model of a policy.
type Runner interface {
	Run(ctx context.Context, imageA, imageB string) ([]verify.ModelResult, error)
}

// Orchestrator wires the stages of a run together and feeds a report.Sink.
type Orchestrator struct {
	scorer   Scorer
	runner   Runner
	analyzer analysis.Analyzer
	sink     report.Sink
	exists   func(path string) bool
}

// New creates an orchestrator. A nil analyzer skips the analysis stage.
// Scorer and runner may be nil when MissingInputs already reported a missing image.
func New(scorer Scorer, runner Runner, analyzer analysis.Analyzer, sink report.Sink) *Orchestrator {
	return &Orchestrator{
		scorer:   scorer,
		runner:   runner,
		analyzer: analyzer,
		sink:     sink,
		exists:   fileExists,
	}
}

// Run verifies imageA against imageB.
//
// Missing inputs return ErrInputNotFound before any scoring or backend call.
// A verification failure is reported to the sink as a system error, ends the
// run without a report and is returned wrapped. Analysis failures only skip
// the affected image.
func (o *Orchestrator) Run(ctx context.Context, imageA, imageB string) error {
	o.sink.Begin(imageA, imageB)
	defer func() {
		if err := o.sink.Flush(); err != nil {
			slog.Error("failed to write report", "error", err)
		}
	}()

	if missing := missingInputs(o.exists, imageA, imageB); len(missing) > 0 {
		slog.Debug("input images not found", "missing", missing)
		o.sink.NotFound(missing)
		return fmt.Errorf("%w: %v", ErrInputNotFound, missing)
	}

	scoreA := o.scorer.Score(imageA)
	scoreB := o.scorer.Score(imageB)
	o.sink.Quality(scoreA, scoreB, report.IsLowQuality(scoreA, scoreB))

	results, err := o.runner.Run(ctx, imageA, imageB)
	if err != nil {
		o.sink.SystemError(err)
		return err
	}

	verdict := verify.ComputeVerdict(results)
	slog.Debug("verification finished", "verdict", verdict, "mean_confidence", verify.MeanConfidence(results))
	o.sink.Verification(results, verdict)

	if o.analyzer == nil {
		return nil
	}
	o.sink.Analysis(o.analyze(ctx, imageA, imageB))
	return nil
}

// analyze runs the analyzer on each image in turn. A failure is recorded for
// that image only.
func (o *Orchestrator) analyze(ctx context.Context, paths ...string) []report.ImageAnalysis {
	analyses := make([]report.ImageAnalysis, 0, len(paths))
	for i, p := range paths {
		d, err := o.analyzer.Analyze(ctx, p)
		if err != nil {
			slog.Info("face analysis skipped", "analyzer", o.analyzer.Name(), "image", p, "error", err)
		}
		analyses = append(analyses, report.NewImageAnalysis(i+1, p, d, err))
	}
	return analyses
}

// MissingInputs returns the paths that do not exist on disk.
func MissingInputs(paths ...string) []string {
	return missingInputs(fileExists, paths...)
}

func missingInputs(exists func(string) bool, paths ...string) []string {
	var missing []string
	for _, p := range paths {
		if !exists(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
