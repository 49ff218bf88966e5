package video

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/kozaktomas/face-triage/internal/fingerprint"
)

var frameEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// Frame is a decoded frame written to disk so that path-based verifiers can read it.
type Frame struct {
	Path string
}

// Release removes the frame file. It is safe to call more than once.
func (f *Frame) Release() error {
	if f == nil || f.Path == "" {
		return nil
	}
	err := os.Remove(f.Path)
	f.Path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Materialize writes img as a PNG into dir, downscaled so its longest side is at most
// maxDim (0 keeps the original size). The caller owns the returned frame and must Release it.
func Materialize(dir string, img image.Image, maxDim int) (*Frame, error) {
	tmp, err := os.CreateTemp(dir, "frame-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame file: %w", err)
	}
	frame := &Frame{Path: tmp.Name()}

	if err := frameEncoder.Encode(tmp, fingerprint.Fit(img, maxDim)); err != nil {
		_ = tmp.Close()
		_ = frame.Release()
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = frame.Release()
		return nil, fmt.Errorf("failed to write frame: %w", err)
	}
	return frame, nil
}
