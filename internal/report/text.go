package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/kozaktomas/face-verifier/internal/analysis"
	"github.com/kozaktomas/face-verifier/internal/constants"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

// TextSink prints the report as it is produced.
type TextSink struct {
	w io.Writer
}

// NewTextSink creates a sink that writes the human readable report to w
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) Begin(imageA, imageB string) {}

func (s *TextSink) NotFound(missing []string) {
	fmt.Fprintln(s.w, "Error: One or both images not found")
}

func (s *TextSink) Quality(scoreA, scoreB float64, low bool) {
	fmt.Fprintf(s.w, "\nImage Quality Scores: %.2f | %.2f (1.0=perfect)\n\n", scoreA, scoreB)
	if low {
		fmt.Fprintln(s.w, "Warning: Low quality images may affect accuracy")
	}
}

func (s *TextSink) Verification(results []verify.ModelResult, verdict verify.Verdict) {
	fmt.Fprintln(s.w, "\n=== VERIFICATION REPORT ===")
	for _, r := range results {
		fmt.Fprintf(s.w, "%s: %s\n", r.Model, matchStatus(r.Verified))
		fmt.Fprintf(s.w, "  Confidence: %.2f%% (Threshold: %.0f%%)\n", r.Confidence, r.Threshold)
		if r.Failed() {
			fmt.Fprintf(s.w, "  Error: %v\n", r.Err)
		}
	}
	fmt.Fprintf(s.w, "\nVERDICT: %s\n", verdictLabel(verdict))
}

func (s *TextSink) Analysis(analyses []ImageAnalysis) {
	fmt.Fprintln(s.w, "\n=== FACE ANALYSIS ===")
	for _, a := range analyses {
		fmt.Fprintf(s.w, "\nImage %d:\n", a.Image)
		if a.Err != nil {
			fmt.Fprintf(s.w, "Analysis skipped (%s)\n", a.Skipped)
			continue
		}
		PrintDemographics(s.w, a.Demographics)
	}
}

func (s *TextSink) SystemError(err error) {
	fmt.Fprintf(s.w, "System error: %v\n", err)
}

func (s *TextSink) Flush() error {
	return nil
}

// PrintDemographics writes the bullet list for one analyzed image.
func PrintDemographics(w io.Writer, d *analysis.Demographics) {
	if d == nil {
		d = &analysis.Demographics{}
	}
	age := constants.NotAvailable
	if d.Age != nil {
		age = strconv.Itoa(*d.Age)
	}
	fmt.Fprintf(w, "• Age: %s\n", age)
	fmt.Fprintf(w, "• Gender: %s\n", orNotAvailable(d.Gender))
	fmt.Fprintf(w, "• Emotion: %s\n", orNotAvailable(d.Emotion))
}

func matchStatus(verified bool) string {
	if verified {
		return "✅ MATCH"
	}
	return "❌ NO MATCH"
}

func verdictLabel(v verify.Verdict) string {
	switch v {
	case verify.VerdictStrongMatch:
		return "✅✅ STRONG MATCH (High Confidence)"
	case verify.VerdictMatch:
		return "✅ MATCH (Confirmed)"
	default:
		return "❌ NO MATCH"
	}
}

func orNotAvailable(s string) string {
	if s == "" {
		return constants.NotAvailable
	}
	return s
}

var _ Sink = (*TextSink)(nil)
