package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-verifier/internal/analysis"
	"github.com/kozaktomas/face-verifier/internal/config"
	"github.com/kozaktomas/face-verifier/internal/constants"
	"github.com/kozaktomas/face-verifier/internal/deepface"
	"github.com/kozaktomas/face-verifier/internal/embedding"
	"github.com/kozaktomas/face-verifier/internal/policy"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

// loadPolicy reads the model policy from the --policy flag or FACE_POLICY_FILE,
// applying the detector override.
func loadPolicy(policyFile, detector string) (*policy.Policy, error) {
	pol, err := policy.Load(policyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return pol.WithDetector(detector), nil
}

func newDeepFaceClient(cfg *config.Config) (*deepface.Client, error) {
	client := deepface.NewClient(cfg.DeepFace.URL, cfg.Verify.RequestTimeout)
	if err := client.SetCaptureDir(captureDir); err != nil {
		return nil, err
	}
	return client, nil
}

// newBackend creates the verification backend by name.
func newBackend(cfg *config.Config, name string) (verify.Backend, error) {
	switch name {
	case constants.BackendDeepFace:
		client, err := newDeepFaceClient(cfg)
		if err != nil {
			return nil, err
		}
		return deepface.NewVerifier(client), nil
	case constants.BackendEmbedding:
		return embedding.NewBackend(embedding.NewClient(cfg.Embedding.URL, cfg.Verify.RequestTimeout)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (expected %s or %s)", name, constants.BackendDeepFace, constants.BackendEmbedding)
	}
}

// newAnalyzer creates the face analyzer by name. It returns nil for "none".
func newAnalyzer(ctx context.Context, cfg *config.Config, name, detector string) (analysis.Analyzer, error) {
	switch name {
	case constants.AnalyzerNone:
		return nil, nil
	case constants.AnalyzerDeepFace:
		client, err := newDeepFaceClient(cfg)
		if err != nil {
			return nil, err
		}
		return deepface.NewAnalyzer(client, detector), nil
	case constants.AnalyzerOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required for the openai analyzer")
		}
		return analysis.NewOpenAIAnalyzer(cfg.OpenAI.Token, cfg.Verify.RequestTimeout), nil
	case constants.AnalyzerGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required for the gemini analyzer")
		}
		a, err := analysis.NewGeminiAnalyzer(ctx, cfg.Gemini.APIKey, cfg.Verify.RequestTimeout)
		if err != nil {
			return nil, err
		}
		return a, nil
	case constants.AnalyzerOllama:
		return analysis.NewOllamaAnalyzer(cfg.Ollama.URL, cfg.Ollama.Model, cfg.Verify.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q (expected deepface, openai, gemini, ollama or none)", name)
	}
}
