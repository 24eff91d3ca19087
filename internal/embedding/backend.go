package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/kozaktomas/face-verifier/internal/policy"
	"github.com/kozaktomas/face-verifier/internal/verify"
)

var (
	// ErrNoFace is returned when the server found no face in an image.
	ErrNoFace = errors.New("no face detected")
	// ErrModelUnavailable is returned when the server answered with a different model than requested.
	ErrModelUnavailable = errors.New("model not served by embedding server")
)

// Backend is a verify.Backend that compares server-side face embeddings locally.
type Backend struct {
	client *Client

	mu    sync.Mutex
	cache map[cacheKey][]float32
}

type cacheKey struct {
	path  string
	model string
}

// NewBackend creates a verification backend using client
func NewBackend(client *Client) *Backend {
	return &Backend{client: client, cache: make(map[cacheKey][]float32)}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "embedding"
}

// VerifyPair embeds the most confident face of each image and compares the
// two embeddings with the distance metric of req.
func (b *Backend) VerifyPair(ctx context.Context, req verify.Request) (*verify.Outcome, error) {
	ea, err := b.embed(ctx, req.ImageA, req.Model)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", req.ImageA, err)
	}
	eb, err := b.embed(ctx, req.ImageB, req.Model)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", req.ImageB, err)
	}

	distance, err := Distance(req.DistanceMetric, ea, eb)
	if err != nil {
		return nil, err
	}
	return &verify.Outcome{Verified: distance <= req.Threshold, Distance: distance}, nil
}

// embed returns the embedding of the best face of the image at path, computing it once per model.
func (b *Backend) embed(ctx context.Context, path, model string) ([]float32, error) {
	key := cacheKey{path: path, model: model}
	b.mu.Lock()
	cached, ok := b.cache[key]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	resp, err := b.client.ComputeFaceEmbeddings(ctx, data, model)
	if err != nil {
		return nil, err
	}
	if resp.Model != "" && policy.CanonicalModelName(resp.Model) != policy.CanonicalModelName(model) {
		return nil, fmt.Errorf("%w: requested %s, server used %s", ErrModelUnavailable, model, resp.Model)
	}

	face, ok := bestFace(resp.Faces)
	if !ok {
		return nil, ErrNoFace
	}

	b.mu.Lock()
	b.cache[key] = face.Embedding
	b.mu.Unlock()
	return face.Embedding, nil
}

// bestFace returns the face with the highest detection score.
func bestFace(faces []Face) (Face, bool) {
	var best Face
	found := false
	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		if !found || f.DetScore > best.DetScore {
			best = f
			found = true
		}
	}
	return best, found
}

// Distance computes the distance between two embeddings for metric
// (cosine, euclidean or euclidean_l2).
func Distance(metric string, a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}

	switch metric {
	case "cosine", "":
		return 1 - CosineSimilarity(a, b), nil
	case "euclidean":
		return euclidean(a, b), nil
	case "euclidean_l2":
		return euclidean(l2Normalize(a), l2Normalize(b)), nil
	default:
		return 0, fmt.Errorf("unsupported distance metric %q", metric)
	}
}

// CosineSimilarity computes the cosine similarity between two embedding vectors
// Returns a value between -1 and 1, where 1 means identical
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func l2Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

var _ verify.Backend = (*Backend)(nil)
