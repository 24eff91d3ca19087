// Package deepface is a client for the DeepFace REST API, which performs face
// detection, alignment, embedding and distance computation server-side.
package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultURL = "http://localhost:5005"

// ErrNoFace is returned when the server could not detect a face in an image.
var ErrNoFace = errors.New("face could not be detected")

// APIError is a non-200 response from the DeepFace API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("DeepFace API error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to a DeepFace API server
type Client struct {
	baseURL    string
	client     *http.Client
	captureDir string
}

// NewClient creates a new DeepFace client. A zero timeout means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SetCaptureDir enables saving raw API responses to dir. Pass "" to disable.
func (c *Client) SetCaptureDir(dir string) error {
	if dir == "" {
		c.captureDir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create capture directory: %w", err)
	}
	c.captureDir = dir
	return nil
}

// VerifyRequest is the body of POST /verify. Images are data URIs, URLs or server-side paths.
type VerifyRequest struct {
	Img1             string  `json:"img1"`
	Img2             string  `json:"img2"`
	ModelName        string  `json:"model_name"`
	DetectorBackend  string  `json:"detector_backend"`
	DistanceMetric   string  `json:"distance_metric"`
	Threshold        float64 `json:"threshold,omitempty"`
	Align            bool    `json:"align"`
	EnforceDetection bool    `json:"enforce_detection"`
}

// VerifyResponse is the result of POST /verify
type VerifyResponse struct {
	Verified         bool    `json:"verified"`
	Distance         float64 `json:"distance"`
	Threshold        float64 `json:"threshold"`
	Model            string  `json:"model"`
	DetectorBackend  string  `json:"detector_backend"`
	SimilarityMetric string  `json:"similarity_metric"`
	Time             float64 `json:"time"`
}

// AnalyzeRequest is the body of POST /analyze
type AnalyzeRequest struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"`
	DetectorBackend  string   `json:"detector_backend"`
	EnforceDetection bool     `json:"enforce_detection"`
	Align            bool     `json:"align"`
}

// FaceAttributes holds the analysis of a single detected face.
type FaceAttributes struct {
	Age             *float64 `json:"age"`
	DominantGender  string   `json:"dominant_gender"`
	DominantEmotion string   `json:"dominant_emotion"`
	DominantRace    string   `json:"dominant_race,omitempty"`
	FaceConfidence  float64  `json:"face_confidence"`
}

// analyzeResponse wraps the per-face results of POST /analyze
type analyzeResponse struct {
	Results []FaceAttributes `json:"results"`
}

// errorResponse is the body DeepFace sends with 4xx/5xx responses
type errorResponse struct {
	Error string `json:"error"`
}

// Verify compares the two faces of req.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	body, err := c.postJSON(ctx, "/verify", req)
	if err != nil {
		return nil, err
	}

	var resp VerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse verify response: %w", err)
	}
	return &resp, nil
}

// Analyze returns the attributes of every face found in req.Img, largest face first.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) ([]FaceAttributes, error) {
	body, err := c.postJSON(ctx, "/analyze", req)
	if err != nil {
		return nil, err
	}

	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Results != nil {
		return resp.Results, nil
	}

	// Older servers return the bare list.
	var faces []FaceAttributes
	if err := json.Unmarshal(body, &faces); err != nil {
		return nil, fmt.Errorf("failed to parse analyze response: %w", err)
	}
	return faces, nil
}

// postJSON sends requestBody to endpoint and returns the raw 200 response body.
func (c *Client) postJSON(ctx context.Context, endpoint string, requestBody any) ([]byte, error) {
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}

	c.captureResponse(endpoint, body)
	return body, nil
}

// newAPIError builds an error from a failed response, wrapping ErrNoFace when
// the server reports a detection failure.
func newAPIError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		msg = er.Error
	}

	apiErr := &APIError{StatusCode: status, Message: msg}
	if strings.Contains(strings.ToLower(msg), "face could not be detected") {
		return fmt.Errorf("%w: %w", ErrNoFace, apiErr)
	}
	return apiErr
}

// IsNoFace reports whether err means no face was found.
func IsNoFace(err error) bool {
	return errors.Is(err, ErrNoFace)
}

// captureResponse saves the API response body to a file if capturing is enabled.
func (c *Client) captureResponse(endpoint string, body []byte) {
	if c.captureDir == "" {
		return
	}

	filename := strings.TrimPrefix(strings.ReplaceAll(endpoint, "/", "_"), "_")
	timestamp := time.Now().Format("20060102_150405.000")
	path := filepath.Join(c.captureDir, fmt.Sprintf("deepface_%s_%s.json", filename, timestamp))

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err == nil {
		body = prettyJSON.Bytes()
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		slog.Warn("failed to capture response", "path", path, "error", err)
	}
}

// EncodeImage returns imageData as a base64 data URI.
func EncodeImage(imageData []byte) string {
	return "data:" + detectMIMEType(imageData) + ";base64," + base64.StdEncoding.EncodeToString(imageData)
}

// EncodeImageFile reads the image at path and returns it as a base64 data URI.
func EncodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return EncodeImage(data), nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	// TIFF: 49 49 2A 00 (little endian) or 4D 4D 00 2A (big endian)
	if (data[0] == 0x49 && data[1] == 0x49 && data[2] == 0x2A && data[3] == 0x00) ||
		(data[0] == 0x4D && data[1] == 0x4D && data[2] == 0x00 && data[3] == 0x2A) {
		return "image/tiff"
	}
	return "application/octet-stream"
}
