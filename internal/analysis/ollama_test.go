package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func ollamaServer(t *testing.T, replies ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Format != "json" || req.Stream {
			t.Errorf("expected non-streaming json request, got format=%q stream=%v", req.Format, req.Stream)
		}

		n := int(calls.Add(1))
		// Each retry carries the previous answer and the feedback message.
		if expected := 2 + 2*(n-1); len(req.Messages) != expected {
			t.Errorf("call %d: expected %d messages, got %d", n, expected, len(req.Messages))
		}
		if len(req.Messages) > 1 && len(req.Messages[1].Images) != 1 {
			t.Errorf("expected one image on the user message")
		}

		reply := replies[min(n, len(replies))-1]
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestOllamaAnalyzer_Analyze(t *testing.T) {
	server, calls := ollamaServer(t, `{"face_found": true, "age": 35, "gender": "Man", "emotion": "sad"}`)
	path := writeTestImage(t, encodePNG(createTestImage(64, 64, color.White)))

	a := NewOllamaAnalyzer(server.URL, "", 0)
	d, err := a.Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if d.Age == nil || *d.Age != 35 {
		t.Errorf("expected age 35, got %v", d.Age)
	}
	if d.Gender != "Man" || d.Emotion != "sad" {
		t.Errorf("unexpected demographics: %+v", d)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if a.Name() != "ollama/"+defaultOllamaModel {
		t.Errorf("unexpected name %q", a.Name())
	}
}

func TestOllamaAnalyzer_RetriesInvalidJSON(t *testing.T) {
	server, calls := ollamaServer(t, "not json", `{"face_found": true, "age": 22}`)
	path := writeTestImage(t, encodePNG(createTestImage(32, 32, color.White)))

	d, err := NewOllamaAnalyzer(server.URL, "llava", 0).Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if d.Age == nil || *d.Age != 22 {
		t.Errorf("expected age 22, got %v", d.Age)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOllamaAnalyzer_GivesUpAfterRetries(t *testing.T) {
	server, calls := ollamaServer(t, "still not json")
	path := writeTestImage(t, encodePNG(createTestImage(32, 32, color.White)))

	_, err := NewOllamaAnalyzer(server.URL, "llava", 0).Analyze(context.Background(), path)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestOllamaAnalyzer_NoFaceIsNotRetried(t *testing.T) {
	server, calls := ollamaServer(t, `{"face_found": false}`)
	path := writeTestImage(t, encodePNG(createTestImage(32, 32, color.White)))

	_, err := NewOllamaAnalyzer(server.URL, "llava", 0).Analyze(context.Background(), path)
	if !errors.Is(err, ErrNoFace) {
		t.Fatalf("expected ErrNoFace, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestOllamaAnalyzer_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()
	path := writeTestImage(t, encodePNG(createTestImage(32, 32, color.White)))

	if _, err := NewOllamaAnalyzer(server.URL, "llava", 0).Analyze(context.Background(), path); err == nil {
		t.Error("expected error for server failure")
	}
}

func TestOllamaAnalyzer_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()
	path := writeTestImage(t, encodePNG(createTestImage(32, 32, color.White)))

	start := time.Now()
	_, err := NewOllamaAnalyzer(server.URL, "llava", 50*time.Millisecond).Analyze(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for a server slower than the timeout")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("expected the request to be cut off by the timeout, took %v", elapsed)
	}
}
