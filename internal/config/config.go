package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-verifier/internal/constants"
)

type Config struct {
	DeepFace  DeepFaceConfig
	Embedding EmbeddingConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	Verify    VerifyConfig
	LogLevel  string
}

type DeepFaceConfig struct {
	URL string // defaults to http://localhost:5005
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type VerifyConfig struct {
	Backend        string        // deepface or embedding
	Analyzer       string        // deepface, openai, gemini, ollama or none
	Detector       string        // overrides the detector from the policy file when set
	PolicyFile     string        // optional YAML file overriding the embedded model policy
	RequestTimeout time.Duration // per call to the external backend
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envString reads an environment variable, lowercased and trimmed, falling back to defaultVal.
func envString(key, defaultVal string) string {
	s := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if s == "" {
		return defaultVal
	}
	return s
}

func Load() *Config {
	return &Config{
		DeepFace: DeepFaceConfig{
			URL: os.Getenv("DEEPFACE_URL"),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Verify: VerifyConfig{
			Backend:        envString("FACE_BACKEND", constants.BackendDeepFace),
			Analyzer:       envString("ANALYZER", constants.AnalyzerDeepFace),
			Detector:       os.Getenv("DETECTOR_BACKEND"),
			PolicyFile:     os.Getenv("FACE_POLICY_FILE"),
			RequestTimeout: time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", constants.DefaultRequestTimeoutSeconds)) * time.Second,
		},
		LogLevel: envString("LOG_LEVEL", "warn"),
	}
}

// ParseLogLevel maps a level name to a slog level. Unknown names map to warn.
func ParseLogLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
