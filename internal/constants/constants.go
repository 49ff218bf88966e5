// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Verification service constants
const (
	// DefaultDeepFaceURL is where a locally started DeepFace API listens
	DefaultDeepFaceURL = "http://localhost:5005"

	// DefaultEmbeddingURL is the default address of the face embedding server
	DefaultEmbeddingURL = "http://localhost:8000"

	// DefaultVerifierTimeout bounds a single verification request.
	// First requests can be slow while the server loads its models.
	DefaultVerifierTimeout = 2 * time.Minute
)

// Sampling constants
const (
	// DefaultFPS is assumed when a container reports no usable frame rate
	DefaultFPS = 25.0

	// DefaultDistance is assumed when the verifier returns no distance.
	// It never verifies under a sane threshold.
	DefaultDistance = 1.0

	// DefaultFrameInterval is the default time between sampled frames in seconds
	DefaultFrameInterval = 1.0
)

// Face matching constants
const (
	// DefaultDistanceThreshold is the default maximum distance for a match
	// Lower values = stricter matching
	DefaultDistanceThreshold = 0.4

	// MaxDistanceThreshold is the largest meaningful cosine distance
	MaxDistanceThreshold = 2.0

	// HashBits is the size of the difference hash used for near-duplicate frames
	HashBits = 64
)
