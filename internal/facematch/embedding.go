package facematch

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/face-triage/internal/fingerprint"
)

// EmbeddingVerifier asks the embedding server for face embeddings of both images and reports
// the smallest cosine distance between any reference face and any candidate face.
// Reference faces are computed once per path and options.
type EmbeddingVerifier struct {
	client *fingerprint.EmbeddingClient

	mu   sync.Mutex
	refs map[refKey][]fingerprint.FaceDetection
}

type refKey struct {
	path string
	opts fingerprint.FaceOptions
}

func NewEmbeddingVerifier(baseURL string, timeout time.Duration) *EmbeddingVerifier {
	return &EmbeddingVerifier{
		client: fingerprint.NewEmbeddingClient(baseURL, timeout),
		refs:   make(map[refKey][]fingerprint.FaceDetection),
	}
}

func (v *EmbeddingVerifier) Verify(ctx context.Context, req Request) (Result, error) {
	opts := fingerprint.FaceOptions{Model: req.Model, Detector: req.Detector, Align: req.Align}

	refFaces, err := v.referenceFaces(ctx, req.ReferencePath, opts)
	if err != nil {
		return Result{}, err
	}

	data, err := os.ReadFile(req.CandidatePath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read candidate image: %w", err)
	}
	resp, err := v.client.ComputeFaceEmbeddings(ctx, data, opts)
	if err != nil {
		return Result{}, fmt.Errorf("failed to detect faces in candidate: %w", err)
	}

	result := Result{Faces: len(resp.Faces), Model: resp.Model}
	if len(refFaces) == 0 || len(resp.Faces) == 0 {
		if req.EnforceDetection {
			if len(refFaces) == 0 {
				return Result{}, fmt.Errorf("%w in reference image %s", ErrNoFace, req.ReferencePath)
			}
			return Result{}, fmt.Errorf("%w in candidate image %s", ErrNoFace, req.CandidatePath)
		}
		result.NoFace = true
		return result, nil
	}

	best := math.Inf(1)
	for _, ref := range refFaces {
		for _, cand := range resp.Faces {
			best = min(best, fingerprint.CosineDistance(ref.Embedding, cand.Embedding))
		}
	}
	result.Distance = best
	result.HasDistance = true
	return result, nil
}

func (v *EmbeddingVerifier) referenceFaces(ctx context.Context, path string, opts fingerprint.FaceOptions) ([]fingerprint.FaceDetection, error) {
	key := refKey{path: path, opts: opts}

	v.mu.Lock()
	defer v.mu.Unlock()

	if faces, ok := v.refs[key]; ok {
		return faces, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference image: %w", err)
	}
	resp, err := v.client.ComputeFaceEmbeddings(ctx, data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces in reference: %w", err)
	}

	v.refs[key] = resp.Faces
	return resp.Faces, nil
}
