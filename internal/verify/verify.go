// Package verify runs a face pair through every model of a policy and turns
// the backend answers into per-model results and a verdict.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kozaktomas/face-verifier/internal/policy"
	"golang.org/x/sync/errgroup"
)

// ErrVerification wraps any backend failure that aborts a verification run.
var ErrVerification = errors.New("verification failed")

// Request is a single model comparison of two images.
type Request struct {
	ImageA         string
	ImageB         string
	Model          string
	Detector       string
	DistanceMetric string
	Threshold      float64 // maximum distance for a match
	Align          bool
}

// Outcome is what a backend answers for a Request.
type Outcome struct {
	Verified bool
	Distance float64
}

// Backend compares two face images with one model.
type Backend interface {
	Name() string
	VerifyPair(ctx context.Context, req Request) (*Outcome, error)
}

// ModelResult is the outcome of one model, expressed in percent.
type ModelResult struct {
	Model      string  `json:"model"`
	Verified   bool    `json:"verified"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"` // (1 - distance) * 100
	Threshold  float64 `json:"threshold"`  // policy threshold * 100
	Err        error   `json:"-"`
	Error      string  `json:"error,omitempty"`
}

// Failed reports whether the model could not produce an answer.
func (r ModelResult) Failed() bool {
	return r.Err != nil
}

// Confidence converts a distance to a match confidence in percent.
func Confidence(distance float64) float64 {
	return (1 - distance) * 100
}

// Options tunes how a Verifier runs the models.
type Options struct {
	// Parallel runs all models concurrently. Results keep the policy order.
	Parallel bool
	// IsolateFailures records a failing model as an unverified result instead of aborting the run.
	IsolateFailures bool
	// OnProgress is called after each model finishes, never concurrently.
	OnProgress func(ModelResult)
}

// Verifier runs every model of a policy against an image pair.
type Verifier struct {
	backend Backend
	policy  *policy.Policy
	opts    Options
	mu      sync.Mutex
}

// NewVerifier creates a verifier for the given backend and policy
func NewVerifier(backend Backend, p *policy.Policy, opts Options) *Verifier {
	return &Verifier{backend: backend, policy: p, opts: opts}
}

// Models returns the number of results a successful Run produces.
func (v *Verifier) Models() int {
	return len(v.policy.Models)
}

// Run compares imageA and imageB with every model of the policy.
// It returns one result per model in policy order. Unless failures are
// isolated, the first backend error aborts the run and wraps ErrVerification.
func (v *Verifier) Run(ctx context.Context, imageA, imageB string) ([]ModelResult, error) {
	if v.opts.Parallel {
		return v.runParallel(ctx, imageA, imageB)
	}
	return v.runSequential(ctx, imageA, imageB)
}

func (v *Verifier) runSequential(ctx context.Context, imageA, imageB string) ([]ModelResult, error) {
	results := make([]ModelResult, 0, len(v.policy.Models))
	for _, m := range v.policy.Models {
		res, err := v.runModel(ctx, m, imageA, imageB)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (v *Verifier) runParallel(ctx context.Context, imageA, imageB string) ([]ModelResult, error) {
	results := make([]ModelResult, len(v.policy.Models))
	g, gctx := errgroup.WithContext(ctx)

	for i, m := range v.policy.Models {
		g.Go(func() error {
			res, err := v.runModel(gctx, m, imageA, imageB)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runModel calls the backend for one model. It returns an error only when the
// failure must abort the run.
func (v *Verifier) runModel(ctx context.Context, m policy.Model, imageA, imageB string) (ModelResult, error) {
	req := Request{
		ImageA:         imageA,
		ImageB:         imageB,
		Model:          m.Name,
		Detector:       v.policy.Detector,
		DistanceMetric: v.policy.DistanceMetric,
		Threshold:      m.Threshold,
		Align:          v.policy.Align,
	}

	slog.Debug("verifying face pair", "backend", v.backend.Name(), "model", m.Name, "threshold", m.Threshold)
	out, err := v.backend.VerifyPair(ctx, req)
	if err == nil && out == nil {
		err = errors.New("backend returned no outcome")
	}

	res := ModelResult{Model: m.Name, Threshold: m.Threshold * 100}
	if err != nil {
		if !v.opts.IsolateFailures {
			return ModelResult{}, fmt.Errorf("%w: model %s: %w", ErrVerification, m.Name, err)
		}
		slog.Warn("model failed, continuing with remaining models", "model", m.Name, "error", err)
		res.Err = err
		res.Error = err.Error()
	} else {
		res.Verified = out.Verified
		res.Distance = out.Distance
		res.Confidence = Confidence(out.Distance)
		slog.Debug("model finished", "model", m.Name, "verified", res.Verified, "distance", res.Distance)
	}

	v.progress(res)
	return res, nil
}

func (v *Verifier) progress(res ModelResult) {
	if v.opts.OnProgress == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.opts.OnProgress(res)
}
