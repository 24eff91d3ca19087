package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

type GeminiAnalyzer struct {
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiAnalyzer creates an analyzer using the Gemini API.
// A positive timeout limits each GenerateContent call.
func NewGeminiAnalyzer(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client, timeout: timeout}, nil
}

func (a *GeminiAnalyzer) Name() string {
	return "gemini/" + geminiModel
}

func (a *GeminiAnalyzer) Analyze(ctx context.Context, path string) (*Demographics, error) {
	const maxRetries = 3

	imageData, err := loadImage(path)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: faceAnalysisPrompt},
				{InlineData: &genai.Blob{Data: imageData, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		result, err := a.generate(ctx, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}
		lastResponse = content

		demographics, err := parseFaceAnalysis(content)
		if err == nil || errors.Is(err, ErrNoFace) {
			return demographics, err
		}
		lastError = err

		// Add model response and error feedback to contents for retry
		contents = append(contents,
			&genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: content}},
			},
			&genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: retryFeedback(err)}},
			},
		)
	}

	return nil, fmt.Errorf("failed to parse face analysis after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

func (a *GeminiAnalyzer) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.client.Models.GenerateContent(ctx, geminiModel, contents, config)
}
