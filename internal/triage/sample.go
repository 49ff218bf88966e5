package triage

import (
	"math"

	"github.com/kozaktomas/face-triage/internal/constants"
)

const (
	DefaultFPS      = constants.DefaultFPS
	DefaultDistance = constants.DefaultDistance
)

// NormalizeFPS substitutes DefaultFPS for zero, negative, NaN and infinite rates.
func NormalizeFPS(fps float64) float64 {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return DefaultFPS
	}
	return fps
}

// Stride returns how many frames lie between two samples: max(1, round(fps * intervalSec)).
func Stride(fps, intervalSec float64) int {
	stride := math.Round(NormalizeFPS(fps) * intervalSec)
	if math.IsNaN(stride) || stride < 1 {
		return 1
	}
	if stride > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(stride)
}
