package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

// Document is the JSON form of a verification run.
type Document struct {
	RunID          string               `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	ImageA         string               `json:"image_a"`
	ImageB         string               `json:"image_b"`
	Missing        []string             `json:"missing,omitempty"`
	Quality        *QualityScores       `json:"quality,omitempty"`
	Results        []verify.ModelResult `json:"results,omitempty"`
	Verdict        verify.Verdict       `json:"verdict,omitempty"`
	MeanConfidence *float64             `json:"mean_confidence,omitempty"`
	Analysis       []ImageAnalysis      `json:"analysis,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// QualityScores holds the quality of both images.
type QualityScores struct {
	ImageA     float64 `json:"image_a"`
	ImageB     float64 `json:"image_b"`
	LowQuality bool    `json:"low_quality"`
}

// JSONSink collects the run and writes one indented document on Flush.
type JSONSink struct {
	w   io.Writer
	doc Document
	now func() time.Time
}

// NewJSONSink creates a sink that writes a JSON document to w
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w, now: time.Now}
}

// Document returns the collected document.
func (s *JSONSink) Document() Document {
	return s.doc
}

func (s *JSONSink) Begin(imageA, imageB string) {
	s.doc = Document{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		ImageA:    imageA,
		ImageB:    imageB,
	}
}

func (s *JSONSink) NotFound(missing []string) {
	s.doc.Missing = missing
	s.doc.Error = "one or both images not found"
}

func (s *JSONSink) Quality(scoreA, scoreB float64, low bool) {
	s.doc.Quality = &QualityScores{ImageA: scoreA, ImageB: scoreB, LowQuality: low}
}

func (s *JSONSink) Verification(results []verify.ModelResult, verdict verify.Verdict) {
	mean := verify.MeanConfidence(results)
	s.doc.Results = results
	s.doc.Verdict = verdict
	s.doc.MeanConfidence = &mean
}

func (s *JSONSink) Analysis(analyses []ImageAnalysis) {
	s.doc.Analysis = analyses
}

func (s *JSONSink) SystemError(err error) {
	s.doc.Error = err.Error()
}

func (s *JSONSink) Flush() error {
	encoder := json.NewEncoder(s.w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s.doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

var _ Sink = (*JSONSink)(nil)
