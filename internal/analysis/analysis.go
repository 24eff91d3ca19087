// Package analysis estimates age, gender and emotion of the face in an image.
// DeepFace answers from its own models; the vision LLM providers in this
// package are used when no DeepFace server is available.
package analysis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/kozaktomas/face-verifier/internal/constants"
)

//go:embed prompts/face_analysis.txt
var faceAnalysisPrompt string

// ErrNoFace is returned when the analyzer could not find a face in the image.
var ErrNoFace = errors.New("face not detected")

// Demographics holds the dominant attributes of a face. Empty fields were not determined.
type Demographics struct {
	Age     *int   `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Emotion string `json:"emotion,omitempty"`
}

// Analyzer estimates demographics for the face in the image at path.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, path string) (*Demographics, error)
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// faceAnalysisResponse is the JSON object the vision models are asked to produce
type faceAnalysisResponse struct {
	FaceFound bool     `json:"face_found"`
	Age       *float64 `json:"age"`
	Gender    *string  `json:"gender"`
	Emotion   *string  `json:"emotion"`
}

// parseFaceAnalysis converts a model response to Demographics.
// It returns ErrNoFace when the model reports that no face is visible.
func parseFaceAnalysis(content string) (*Demographics, error) {
	var resp faceAnalysisResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse face analysis JSON: %w", err)
	}
	if !resp.FaceFound {
		return nil, ErrNoFace
	}

	d := &Demographics{}
	if resp.Age != nil && *resp.Age >= 0 {
		d.Age = IntPtr(int(math.Round(*resp.Age)))
	}
	if resp.Gender != nil {
		d.Gender = strings.TrimSpace(*resp.Gender)
	}
	if resp.Emotion != nil {
		d.Emotion = strings.ToLower(strings.TrimSpace(*resp.Emotion))
	}
	return d, nil
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(content string) string {
	// Try to find JSON object boundaries
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	// Find matching closing brace
	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	// If no matching brace found, return from start
	return content[start:]
}

// loadImage reads the image at path and prepares it for upload to a vision model.
func loadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	prepared, err := PrepareFaceImage(data, constants.MaxAnalysisImageSize, constants.MinAnalysisImageSide)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}
	return prepared, nil
}

// retryFeedback is sent back to a model whose previous answer was not valid JSON.
func retryFeedback(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Output ONLY valid JSON, no other text.", err)
}
