package deepface

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/kozaktomas/face-verifier/internal/analysis"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

// thresholdTolerance absorbs float noise when comparing the server threshold with ours.
const thresholdTolerance = 1e-6

// analyzeActions are the attributes requested from POST /analyze
var analyzeActions = []string{"age", "gender", "emotion"}

// Verifier is a verify.Backend backed by a DeepFace server.
type Verifier struct {
	client *Client

	mu     sync.Mutex
	images map[string]string // path -> data URI
}

// NewVerifier creates a verification backend using client
func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client, images: make(map[string]string)}
}

// Name returns the backend name.
func (v *Verifier) Name() string {
	return "deepface"
}

// VerifyPair sends both images to /verify with the model settings of req.
// The policy threshold is authoritative: when the server applied a different
// one, the match is decided again from the returned distance.
func (v *Verifier) VerifyPair(ctx context.Context, req verify.Request) (*verify.Outcome, error) {
	img1, err := v.encoded(req.ImageA)
	if err != nil {
		return nil, err
	}
	img2, err := v.encoded(req.ImageB)
	if err != nil {
		return nil, err
	}

	resp, err := v.client.Verify(ctx, VerifyRequest{
		Img1:             img1,
		Img2:             img2,
		ModelName:        req.Model,
		DetectorBackend:  req.Detector,
		DistanceMetric:   req.DistanceMetric,
		Threshold:        req.Threshold,
		Align:            req.Align,
		EnforceDetection: true,
	})
	if err != nil {
		return nil, err
	}

	out := &verify.Outcome{Verified: resp.Verified, Distance: resp.Distance}
	if math.Abs(resp.Threshold-req.Threshold) > thresholdTolerance {
		slog.Debug("server threshold differs, re-deciding match",
			"model", req.Model, "server_threshold", resp.Threshold, "threshold", req.Threshold)
		out.Verified = resp.Distance <= req.Threshold
	}
	return out, nil
}

// encoded returns the data URI of the image at path, reading it once per Verifier.
func (v *Verifier) encoded(path string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if uri, ok := v.images[path]; ok {
		return uri, nil
	}
	uri, err := EncodeImageFile(path)
	if err != nil {
		return "", err
	}
	v.images[path] = uri
	return uri, nil
}

// Analyzer is an analysis.Analyzer backed by a DeepFace server.
type Analyzer struct {
	client   *Client
	detector string
}

// NewAnalyzer creates an analyzer that detects faces with detector.
func NewAnalyzer(client *Client, detector string) *Analyzer {
	return &Analyzer{client: client, detector: detector}
}

// Name returns the analyzer name.
func (a *Analyzer) Name() string {
	return "deepface"
}

// Analyze returns the demographics of the most prominent face in the image.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*analysis.Demographics, error) {
	img, err := EncodeImageFile(path)
	if err != nil {
		return nil, err
	}

	faces, err := a.client.Analyze(ctx, AnalyzeRequest{
		Img:              img,
		Actions:          analyzeActions,
		DetectorBackend:  a.detector,
		EnforceDetection: true,
		Align:            true,
	})
	if err != nil {
		if IsNoFace(err) {
			return nil, fmt.Errorf("%w: %w", analysis.ErrNoFace, err)
		}
		return nil, err
	}
	if len(faces) == 0 {
		return nil, analysis.ErrNoFace
	}

	return toDemographics(faces[0]), nil
}

func toDemographics(f FaceAttributes) *analysis.Demographics {
	d := &analysis.Demographics{
		Gender:  f.DominantGender,
		Emotion: f.DominantEmotion,
	}
	if f.Age != nil {
		d.Age = analysis.IntPtr(int(math.Round(*f.Age)))
	}
	return d
}

var (
	_ verify.Backend    = (*Verifier)(nil)
	_ analysis.Analyzer = (*Analyzer)(nil)
)
