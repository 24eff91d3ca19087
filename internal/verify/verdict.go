package verify

import "github.com/kozaktomas/face-verifier/internal/constants"

// Verdict is the aggregate conclusion over all model results.
type Verdict string

const (
	VerdictStrongMatch Verdict = "strong_match"
	VerdictMatch       Verdict = "match"
	VerdictNoMatch     Verdict = "no_match"
)

// MeanConfidence returns the average confidence of the results, or 0 for none.
func MeanConfidence(results []ModelResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}

// ComputeVerdict derives the verdict from the model results: a strong match
// needs every model verified and a mean confidence above 75%, a match needs
// every model verified, anything else is no match.
func ComputeVerdict(results []ModelResult) Verdict {
	if len(results) == 0 {
		return VerdictNoMatch
	}
	for _, r := range results {
		if !r.Verified || r.Failed() {
			return VerdictNoMatch
		}
	}
	if MeanConfidence(results) > constants.StrongMatchConfidence {
		return VerdictStrongMatch
	}
	return VerdictMatch
}
