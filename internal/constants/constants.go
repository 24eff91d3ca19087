// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Quality scoring constants
const (
	// IdealMinSide is the shorter image side (px) that earns a full resolution score
	IdealMinSide = 500

	// SharpnessScale divides the Laplacian variance into the sharpness sub-score
	SharpnessScale = 100.0

	// LightingScale divides the mean 8-bit L* channel into the lighting sub-score
	LightingScale = 127.0

	// Sub-score weights; they sum to 1.0
	ResolutionWeight = 0.4
	SharpnessWeight  = 0.4
	LightingWeight   = 0.2

	// LowQualityThreshold is the score below which a low-quality warning is printed
	LowQualityThreshold = 0.5
)

// Verification constants
const (
	// StrongMatchConfidence is the mean confidence (percent) a unanimous match
	// must exceed to be reported as a strong match
	StrongMatchConfidence = 75.0

	// DefaultDetector is the face detector backend shared by all models
	DefaultDetector = "retinaface"

	// DefaultDistanceMetric is the distance metric shared by all models
	DefaultDistanceMetric = "cosine"

	// DefaultRequestTimeoutSeconds bounds a single call to the external backend
	DefaultRequestTimeoutSeconds = 120
)

// Analysis constants
const (
	// MaxAnalysisImageSize is the max dimension of images sent to vision LLMs
	MaxAnalysisImageSize = 800
	// MinAnalysisImageSide is the side small face crops are upscaled to before upload
	MinAnalysisImageSide = 224
	// AnalysisJPEGQuality is the JPEG quality of images sent to vision LLMs
	AnalysisJPEGQuality = 85

	// NotAvailable is printed for attributes the analysis could not determine
	NotAvailable = "N/A"
)

// Backend and analyzer identifiers
const (
	BackendDeepFace  = "deepface"
	BackendEmbedding = "embedding"

	AnalyzerDeepFace = "deepface"
	AnalyzerOpenAI   = "openai"
	AnalyzerGemini   = "gemini"
	AnalyzerOllama   = "ollama"
	AnalyzerNone     = "none"
)
