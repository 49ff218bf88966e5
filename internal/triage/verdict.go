package triage

import (
	"errors"

	"github.com/kozaktomas/face-triage/internal/facematch"
)

// Judge turns a verifier response into an outcome. A missing distance counts as
// DefaultDistance. A missing face never verifies, whatever the threshold.
// Errors other than facematch.ErrNoFace are kept in Outcome.Err.
func Judge(res facematch.Result, err error, threshold float64) Outcome {
	noFace := errors.Is(err, facematch.ErrNoFace)
	if err != nil && !noFace {
		return Outcome{Err: err}
	}
	noFace = noFace || res.NoFace

	distance := DefaultDistance
	if !noFace && res.HasDistance {
		distance = res.Distance
	}
	return Outcome{
		Distance:    distance,
		HasDistance: true,
		NoFace:      noFace,
		Verified:    !noFace && distance <= threshold,
	}
}
