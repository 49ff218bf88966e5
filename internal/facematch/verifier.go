// Package facematch decides whether a candidate image shows the same person as a reference image.
// The heavy lifting (detection, alignment, embeddings) happens in an external service; this
// package only speaks to it.
package facematch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-triage/internal/config"
)

// ErrNoFace is returned when EnforceDetection is set and one of the images has no face.
var ErrNoFace = errors.New("no face detected")

// Request describes a single verification.
type Request struct {
	ReferencePath    string
	CandidatePath    string
	Model            string
	Detector         string
	Align            bool
	EnforceDetection bool // false: a missing face yields a result without distance instead of ErrNoFace
}

// Result is what the backend reported. Callers apply their own threshold to Distance.
type Result struct {
	Distance    float64
	HasDistance bool
	Faces       int  // faces found in the candidate, -1 when the backend does not report it
	NoFace      bool // one of the images has no detectable face; never a match
	Model       string
}

// Verifier compares a reference image with a candidate image.
type Verifier interface {
	Verify(ctx context.Context, req Request) (Result, error)
}

// New returns the verifier selected by cfg.Backend.
func New(cfg config.VerifierConfig) (Verifier, error) {
	switch cfg.Backend {
	case config.BackendDeepFace:
		return NewDeepFaceVerifier(cfg.URL, cfg.Timeout), nil
	case config.BackendEmbedding:
		return NewEmbeddingVerifier(cfg.URL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown verifier backend %q", cfg.Backend)
	}
}
