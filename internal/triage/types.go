// Package triage partitions a directory of videos by whether a reference face shows up in
// any sampled frame.
package triage

import (
	"math"
	"strconv"
)

// Status tells processed videos apart from the ones that never got scanned.
type Status string

const (
	StatusProcessed        Status = "processed"
	StatusSkipped          Status = "skipped"           // could not be opened or decoded, not logged
	StatusRelocationFailed Status = "relocation_failed" // scanned but the copy failed
)

// VideoRecord describes a video that was opened successfully.
type VideoRecord struct {
	Name        string
	Path        string
	FPS         float64
	TotalFrames int
	Stride      int // frames between samples
}

// Outcome is the verification result of one sampled frame.
type Outcome struct {
	Frame       int
	Distance    float64
	HasDistance bool // false when verification failed
	Verified    bool
	NoFace      bool // the verifier found no face, so the sample cannot verify
	Reused      bool // copied from the previous sample because the frames were near-identical
	Err         error
}

// Result is the per-video summary written to the log.
type Result struct {
	Video          string
	Path           string
	Status         Status
	Matched        bool
	MinDistance    float64
	HasMinDistance bool
	FramesChecked  int // sampled frames, each counted once
	FramesFailed   int // sampled frames whose verification failed
	Destination    string
	Reason         string // why the video was skipped or could not be relocated
	Record         VideoRecord
}

// Logged reports whether the result gets a row in the log file.
func (r Result) Logged() bool {
	return r.Status != StatusSkipped
}

func (r Result) MatchLabel() string {
	if r.Matched {
		return "Yes"
	}
	return "No"
}

// MinDistanceLabel renders the minimum verified distance rounded to 4 decimals, or N/A.
func (r Result) MinDistanceLabel() string {
	if !r.HasMinDistance {
		return "N/A"
	}
	return strconv.FormatFloat(math.Round(r.MinDistance*1e4)/1e4, 'f', 4, 64)
}

// Fold aggregates the sampled frame outcomes of one video into its result.
// The match flag is set when any sample verified; MinDistance is the smallest verified distance.
func Fold(rec VideoRecord, outcomes []Outcome) Result {
	res := Result{
		Video:         rec.Name,
		Path:          rec.Path,
		Status:        StatusProcessed,
		FramesChecked: len(outcomes),
		Record:        rec,
	}

	for _, o := range outcomes {
		if o.Err != nil || !o.HasDistance {
			res.FramesFailed++
			continue
		}
		if !o.Verified {
			continue
		}
		if !res.HasMinDistance || o.Distance < res.MinDistance {
			res.MinDistance = o.Distance
		}
		res.Matched = true
		res.HasMinDistance = true
	}

	return res
}
