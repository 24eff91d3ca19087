package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2-vision:11b"
)

type OllamaAnalyzer struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAnalyzer creates an analyzer for the Ollama server at baseURL.
// A zero timeout disables the per-request limit.
func NewOllamaAnalyzer(baseURL, model string, timeout time.Duration) *OllamaAnalyzer {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaAnalyzer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *OllamaAnalyzer) Name() string {
	return "ollama/" + a.model
}

// ollamaRequest represents a request to the Ollama chat API
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded images
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// ollamaResponse represents a response from the Ollama chat API
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (a *OllamaAnalyzer) Analyze(ctx context.Context, path string) (*Demographics, error) {
	const maxRetries = 3

	imageData, err := loadImage(path)
	if err != nil {
		return nil, err
	}

	messages := []ollamaMessage{
		{
			Role:    "system",
			Content: faceAnalysisPrompt,
		},
		{
			Role:    "user",
			Content: "Analyze the face in this photo.",
			Images:  []string{base64.StdEncoding.EncodeToString(imageData)},
		},
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		resp, err := a.sendRequest(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("ollama API error: %w", err)
		}

		content := resp.Message.Content
		lastResponse = content

		demographics, err := parseFaceAnalysis(content)
		if err == nil || errors.Is(err, ErrNoFace) {
			return demographics, err
		}
		lastError = err

		// Add assistant response and error feedback for retry
		messages = append(messages,
			ollamaMessage{Role: "assistant", Content: content},
			ollamaMessage{Role: "user", Content: retryFeedback(err)},
		)
	}

	return nil, fmt.Errorf("failed to parse face analysis after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

func (a *OllamaAnalyzer) sendRequest(ctx context.Context, messages []ollamaMessage) (*ollamaResponse, error) {
	reqBody := ollamaRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options: ollamaOptions{
			NumPredict: 200,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &ollamaResp, nil
}
