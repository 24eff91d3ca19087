package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/face-verifier/internal/analysis"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("failed to write png: %v", err)
	}
	return path
}

func TestClient_Verify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/verify" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}

		var req VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.ModelName != "ArcFace" || req.DetectorBackend != "retinaface" || req.DistanceMetric != "cosine" {
			t.Errorf("unexpected model settings: %+v", req)
		}
		if !req.Align || !req.EnforceDetection {
			t.Errorf("expected align and enforce_detection")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"verified": true, "distance": 0.21, "threshold": 0.68, "model": "ArcFace", "similarity_metric": "cosine"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", 0)
	resp, err := c.Verify(context.Background(), VerifyRequest{
		Img1: "a", Img2: "b", ModelName: "ArcFace", DetectorBackend: "retinaface",
		DistanceMetric: "cosine", Threshold: 0.68, Align: true, EnforceDetection: true,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.Verified || resp.Distance != 0.21 || resp.Threshold != 0.68 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantNoFace bool
	}{
		{
			name:       "face not detected",
			status:     http.StatusBadRequest,
			body:       `{"error": "Exception while processing img1_path: Face could not be detected in numpy array."}`,
			wantNoFace: true,
		},
		{"bad request", http.StatusBadRequest, `{"error": "you must pass img1_path input"}`, false},
		{"plain text", http.StatusInternalServerError, "internal error", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, 0).Verify(context.Background(), VerifyRequest{})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsNoFace(err) != tc.wantNoFace {
				t.Errorf("IsNoFace = %v; want %v (err: %v)", IsNoFace(err), tc.wantNoFace, err)
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, apiErr.StatusCode)
			}
			if strings.HasPrefix(apiErr.Message, "{") {
				t.Errorf("expected error message extracted from JSON, got %q", apiErr.Message)
			}
		})
	}
}

func TestClient_Analyze(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"results object", `{"results": [{"age": 31.4, "dominant_gender": "Woman", "dominant_emotion": "happy", "face_confidence": 0.99}]}`},
		{"bare list", `[{"age": 31.4, "dominant_gender": "Woman", "dominant_emotion": "happy", "face_confidence": 0.99}]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/analyze" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			faces, err := NewClient(server.URL, 0).Analyze(context.Background(), AnalyzeRequest{Img: "x"})
			if err != nil {
				t.Fatalf("Analyze failed: %v", err)
			}
			if len(faces) != 1 {
				t.Fatalf("expected 1 face, got %d", len(faces))
			}
			if faces[0].Age == nil || *faces[0].Age != 31.4 || faces[0].DominantGender != "Woman" {
				t.Errorf("unexpected face: %+v", faces[0])
			}
		})
	}
}

func TestClient_CaptureResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"verified":false,"distance":0.9}`))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "capture")
	c := NewClient(server.URL, 0)
	if err := c.SetCaptureDir(dir); err != nil {
		t.Fatalf("SetCaptureDir failed: %v", err)
	}
	if _, err := c.Verify(context.Background(), VerifyRequest{}); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read capture dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "deepface_verify_") {
		t.Fatalf("expected one deepface_verify_ capture, got %v", entries)
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if !strings.Contains(string(data), "\n  \"distance\"") {
		t.Errorf("expected pretty printed JSON, got %s", data)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00"), "image/gif"},
		{"bmp", []byte("BM\x00\x00\x00\x00\x00\x00"), "image/bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"tiff little endian", []byte{0x49, 0x49, 0x2A, 0x00, 0x08, 0, 0, 0}, "image/tiff"},
		{"tiff big endian", []byte{0x4D, 0x4D, 0x00, 0x2A, 0, 0, 0, 0x08}, "image/tiff"},
		{"short", []byte{0xFF, 0xD8}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.expected {
				t.Errorf("detectMIMEType = %s; want %s", got, tc.expected)
			}
		})
	}
}

func TestEncodeImage(t *testing.T) {
	uri := EncodeImage([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("unexpected data URI %q", uri)
	}
}

func TestVerifier_VerifyPair(t *testing.T) {
	tests := []struct {
		name            string
		serverVerified  bool
		serverThreshold float64
		distance        float64
		threshold       float64
		expected        bool
	}{
		{"server threshold matches", true, 0.70, 0.30, 0.70, true},
		{"server stricter, policy accepts", false, 0.40, 0.55, 0.70, true},
		{"server looser, policy rejects", true, 0.80, 0.65, 0.60, false},
		{"distance equal to threshold", false, 0.50, 0.60, 0.60, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req VerifyRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.Threshold != tc.threshold {
					t.Errorf("expected threshold %v sent, got %v", tc.threshold, req.Threshold)
				}
				if !strings.HasPrefix(req.Img1, "data:image/png;base64,") {
					t.Errorf("expected img1 as data URI")
				}
				json.NewEncoder(w).Encode(VerifyResponse{
					Verified:  tc.serverVerified,
					Distance:  tc.distance,
					Threshold: tc.serverThreshold,
				})
			}))
			defer server.Close()

			dir := t.TempDir()
			v := NewVerifier(NewClient(server.URL, 0))
			out, err := v.VerifyPair(context.Background(), verify.Request{
				ImageA:         writePNG(t, dir, "a.png"),
				ImageB:         writePNG(t, dir, "b.png"),
				Model:          "Facenet",
				Detector:       "retinaface",
				DistanceMetric: "cosine",
				Threshold:      tc.threshold,
				Align:          true,
			})
			if err != nil {
				t.Fatalf("VerifyPair failed: %v", err)
			}
			if out.Verified != tc.expected {
				t.Errorf("Verified = %v; want %v", out.Verified, tc.expected)
			}
			if out.Distance != tc.distance {
				t.Errorf("Distance = %v; want %v", out.Distance, tc.distance)
			}
		})
	}
}

func TestVerifier_ReadsEachImageOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"verified": true, "distance": 0.1, "threshold": 0.7}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	a := writePNG(t, dir, "a.png")
	b := writePNG(t, dir, "b.png")
	v := NewVerifier(NewClient(server.URL, 0))

	req := verify.Request{ImageA: a, ImageB: b, Model: "Facenet", Threshold: 0.7}
	if _, err := v.VerifyPair(context.Background(), req); err != nil {
		t.Fatalf("first VerifyPair failed: %v", err)
	}

	// Removing the files must not matter once they are cached.
	os.Remove(a)
	os.Remove(b)
	req.Model = "ArcFace"
	if _, err := v.VerifyPair(context.Background(), req); err != nil {
		t.Fatalf("second VerifyPair failed: %v", err)
	}
}

func TestVerifier_MissingImage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	v := NewVerifier(NewClient(server.URL, 0))
	_, err := v.VerifyPair(context.Background(), verify.Request{ImageA: "/nonexistent/a.jpg", ImageB: "/nonexistent/b.jpg"})
	if err == nil {
		t.Fatal("expected error for missing image")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no server calls, got %d", calls.Load())
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if strings.Join(req.Actions, ",") != "age,gender,emotion" {
			t.Errorf("unexpected actions %v", req.Actions)
		}
		if req.DetectorBackend != "mtcnn" {
			t.Errorf("expected detector mtcnn, got %q", req.DetectorBackend)
		}
		w.Write([]byte(`{"results": [{"age": 29.6, "dominant_gender": "Man", "dominant_emotion": "neutral"}]}`))
	}))
	defer server.Close()

	a := NewAnalyzer(NewClient(server.URL, 0), "mtcnn")
	d, err := a.Analyze(context.Background(), writePNG(t, t.TempDir(), "face.png"))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if d.Age == nil || *d.Age != 30 {
		t.Errorf("expected age 30, got %v", d.Age)
	}
	if d.Gender != "Man" || d.Emotion != "neutral" {
		t.Errorf("unexpected demographics %+v", d)
	}
}

func TestAnalyzer_NoFace(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"detection error", http.StatusBadRequest, `{"error": "Face could not be detected in img."}`},
		{"empty results", http.StatusOK, `{"results": []}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			a := NewAnalyzer(NewClient(server.URL, 0), "retinaface")
			_, err := a.Analyze(context.Background(), writePNG(t, t.TempDir(), "face.png"))
			if !errors.Is(err, analysis.ErrNoFace) {
				t.Errorf("expected analysis.ErrNoFace, got %v", err)
			}
		})
	}
}

func TestToDemographics_NoAge(t *testing.T) {
	d := toDemographics(FaceAttributes{DominantGender: "Woman"})
	if d.Age != nil {
		t.Errorf("expected no age, got %d", *d.Age)
	}
	if d.Gender != "Woman" || d.Emotion != "" {
		t.Errorf("unexpected demographics %+v", d)
	}
}
