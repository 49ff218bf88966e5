package triage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-triage/internal/config"
	"github.com/kozaktomas/face-triage/internal/facematch"
	"github.com/kozaktomas/face-triage/internal/fingerprint"
	"github.com/kozaktomas/face-triage/internal/video"
)

// ErrRunInProgress is returned when another run holds the lock on the same log file.
var ErrRunInProgress = errors.New("another triage run is using this log file")

// Driver runs the triage over one video directory.
type Driver struct {
	cfg         config.TriageConfig
	decoder     video.Decoder
	verifier    facematch.Verifier
	out         io.Writer
	onDone      func(Result)
	scratchRoot string
}

type Option func(*Driver)

// WithOutput sets where progress lines go. The default discards them.
func WithOutput(w io.Writer) Option {
	return func(d *Driver) { d.out = &syncWriter{w: w} }
}

// WithProgress registers a callback invoked once per enumerated video, including skipped ones.
// With several workers it is called from multiple goroutines.
func WithProgress(fn func(Result)) Option {
	return func(d *Driver) { d.onDone = fn }
}

// WithScratchRoot sets the directory under which the per-run frame directory is created.
func WithScratchRoot(dir string) Option {
	return func(d *Driver) { d.scratchRoot = dir }
}

func New(cfg config.TriageConfig, decoder video.Decoder, verifier facematch.Verifier, opts ...Option) *Driver {
	d := &Driver{
		cfg:      cfg,
		decoder:  decoder,
		verifier: verifier,
		out:      io.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.Workers < 1 {
		d.cfg.Workers = 1
	}
	return d
}

// Report is the outcome of a complete run.
type Report struct {
	RunID   string
	LogFile string
	Results []Result // enumeration order, skipped videos included
	Elapsed time.Duration
}

// Count returns how many results have the given status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Matched returns how many logged videos contained the reference face.
func (r *Report) Matched() int {
	n := 0
	for _, res := range r.Results {
		if res.Logged() && res.Matched {
			n++
		}
	}
	return n
}

// Videos returns the number of enumerated videos.
func (r *Report) Videos() int {
	return len(r.Results)
}

// Run triages every video in videoDir against the reference image and writes the log.
// Per-video problems end up in the results; the returned error is reserved for problems that
// make the whole run meaningless. A cancelled context stops the run without writing the log.
func (d *Driver) Run(ctx context.Context, reference, videoDir string) (*Report, error) {
	started := time.Now()

	if _, err := fingerprint.InspectImage(reference); err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}

	for _, out := range []string{d.cfg.MatchedDir, d.cfg.UnmatchedDir} {
		if config.SameDir(videoDir, out) {
			return nil, fmt.Errorf("video directory %s is also an output directory", videoDir)
		}
	}

	files, err := Enumerate(videoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	for _, dir := range []string{d.cfg.MatchedDir, d.cfg.UnmatchedDir, filepath.Dir(d.cfg.LogFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	lock := flock.New(d.cfg.LogFile + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, d.cfg.LogFile)
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	scratch, err := os.MkdirTemp(d.scratchRoot, "face-triage-"+runID[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	results := make([]Result, len(files))
	sem := make(chan struct{}, d.cfg.Workers)
	var wg sync.WaitGroup

	for i, vf := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, vf VideoFile) {
			defer wg.Done()
			defer func() { <-sem }()

			res := d.processVideo(ctx, vf, reference, scratch)
			results[i] = res
			if d.onDone != nil {
				d.onDone(res)
			}
		}(i, vf)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := WriteLog(d.cfg.LogFile, results); err != nil {
		return nil, fmt.Errorf("failed to write log: %w", err)
	}
	d.printf("Log saved to: %s\n", d.cfg.LogFile)

	return &Report{
		RunID:   runID,
		LogFile: d.cfg.LogFile,
		Results: results,
		Elapsed: time.Since(started),
	}, nil
}

func (d *Driver) processVideo(ctx context.Context, vf VideoFile, reference, scratch string) Result {
	rec, outcomes, err := d.scanVideo(ctx, vf, reference, scratch)
	if err != nil {
		return Result{Video: vf.Name, Path: vf.Path, Status: StatusSkipped, Reason: err.Error()}
	}

	res := Fold(rec, outcomes)

	destDir := d.cfg.UnmatchedDir
	if res.Matched {
		destDir = d.cfg.MatchedDir
	}
	dest, err := copyFile(vf.Path, destDir)
	if err != nil {
		d.printf("Failed to copy %s to %s: %v\n", vf.Name, destDir, err)
		res.Status = StatusRelocationFailed
		res.Reason = err.Error()
		return res
	}
	res.Destination = dest
	return res
}

// scanVideo opens the video, samples every stride-th frame and verifies each sample.
// An error means the video could not be opened or decoded and must be skipped.
func (d *Driver) scanVideo(ctx context.Context, vf VideoFile, reference, scratch string) (VideoRecord, []Outcome, error) {
	if _, err := os.Stat(vf.Path); err != nil {
		d.printf("File does not exist, skipping: %s\n", vf.Name)
		return VideoRecord{}, nil, err
	}

	stream, err := d.decoder.Open(ctx, vf.Path)
	if err != nil {
		d.printf("Failed to open video: %s (%v)\n", vf.Name, err)
		return VideoRecord{}, nil, fmt.Errorf("open: %w", err)
	}
	defer stream.Close()

	if _, err := stream.Read(); err != nil {
		d.printf("Cannot read first frame of %s. Skipping.\n", vf.Name)
		return VideoRecord{}, nil, fmt.Errorf("first frame: %w", err)
	}
	if err := stream.Reset(); err != nil {
		d.printf("Cannot rewind %s. Skipping.\n", vf.Name)
		return VideoRecord{}, nil, fmt.Errorf("rewind: %w", err)
	}

	fps := NormalizeFPS(stream.FPS())
	rec := VideoRecord{
		Name:        vf.Name,
		Path:        vf.Path,
		FPS:         fps,
		TotalFrames: stream.FrameCount(),
		Stride:      Stride(fps, d.cfg.FrameIntervalSec),
	}
	d.printf("Video: %s, FPS: %.2f, Total Frames: %d, Frame Interval: %d\n", rec.Name, rec.FPS, rec.TotalFrames, rec.Stride)

	var outcomes []Outcome
	var near nearDuplicate

	for frameNum := 0; ; frameNum++ {
		if err := ctx.Err(); err != nil {
			return VideoRecord{}, nil, err
		}

		if frameNum%rec.Stride != 0 {
			if err := stream.Skip(); err != nil {
				d.endOfStream(vf.Name, frameNum, err)
				break
			}
			continue
		}

		img, err := stream.Read()
		if err != nil {
			d.endOfStream(vf.Name, frameNum, err)
			break
		}

		o := d.checkFrame(ctx, frameNum, img, reference, scratch, &near)
		outcomes = append(outcomes, o)

		switch {
		case o.Err != nil:
			d.printf("Error at frame %d: %v\n", frameNum, o.Err)
		case o.NoFace:
			d.printf("Frame %d: no face detected, verified=false\n", frameNum)
		case o.Verified:
			d.printf("Frame %d: distance=%.4f, verified=true\n", frameNum, o.Distance)
			d.printf("Match found in frame %d with distance %.4f.\n", frameNum, o.Distance)
		default:
			d.printf("Frame %d: distance=%.4f, verified=false\n", frameNum, o.Distance)
		}
	}

	return rec, outcomes, nil
}

func (d *Driver) endOfStream(name string, frameNum int, err error) {
	if errors.Is(err, io.EOF) {
		return
	}
	log.Printf("WARNING: stopped reading %s at frame %d: %v", name, frameNum, err)
}

// nearDuplicate remembers the last verified sample of a video for the skip_similar_hamming shortcut.
type nearDuplicate struct {
	valid   bool
	hash    uint64
	outcome Outcome
}

// checkFrame verifies a single sampled frame. The materialized frame file is removed before it returns.
func (d *Driver) checkFrame(ctx context.Context, frameNum int, img image.Image, reference, scratch string, near *nearDuplicate) Outcome {
	var hash uint64
	if d.cfg.SkipSimilar >= 0 {
		hash = fingerprint.DHash(img)
		if near.valid && fingerprint.Similar(hash, near.hash, d.cfg.SkipSimilar) {
			o := near.outcome
			o.Frame = frameNum
			o.Reused = true
			return o
		}
	}

	o := d.verifyFrame(ctx, frameNum, img, reference, scratch)

	if d.cfg.SkipSimilar >= 0 && o.Err == nil {
		*near = nearDuplicate{valid: true, hash: hash, outcome: o}
	}
	return o
}

func (d *Driver) verifyFrame(ctx context.Context, frameNum int, img image.Image, reference, scratch string) Outcome {
	frame, err := video.Materialize(scratch, img, d.cfg.MaxFrameDim)
	if err != nil {
		return Outcome{Frame: frameNum, Err: err}
	}
	defer func() {
		if err := frame.Release(); err != nil {
			log.Printf("WARNING: failed to remove frame file: %v", err)
		}
	}()

	res, err := d.verifier.Verify(ctx, facematch.Request{
		ReferencePath:    reference,
		CandidatePath:    frame.Path,
		Model:            d.cfg.ModelName,
		Detector:         d.cfg.DetectorBackend,
		Align:            d.cfg.Align,
		EnforceDetection: false,
	})
	o := Judge(res, err, d.cfg.Threshold)
	o.Frame = frameNum
	return o
}

func (d *Driver) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
