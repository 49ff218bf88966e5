package triage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/face-triage/internal/facematch"
	"github.com/kozaktomas/face-triage/internal/video"
)

// fakeVideo scripts what the decoder and the verifier report for one file.
// Frames are solid colors: R and G carry the frame index, B carries the video id.
type fakeVideo struct {
	id        uint8
	fps       float64
	frames    int
	openErr   error
	badFirst  bool            // first frame cannot be decoded
	distances map[int]float64 // frame -> distance, default 0.9
	failing   map[int]bool    // frame -> verifier error
	missing   map[int]bool    // frame -> verifier returns no distance
	noFace    map[int]bool    // frame -> verifier finds no face
	uniform   bool            // every frame looks identical
	onOpen    func()
}

type fakeDecoder struct {
	mu     sync.Mutex
	videos map[string]*fakeVideo // by file name
	opened []string
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{videos: make(map[string]*fakeVideo)}
}

func (d *fakeDecoder) add(name string, v *fakeVideo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v.id = uint8(len(d.videos) + 1)
	d.videos[name] = v
}

func (d *fakeDecoder) byID(id uint8) *fakeVideo {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range d.videos {
		if v.id == id {
			return v
		}
	}
	return nil
}

func (d *fakeDecoder) Open(_ context.Context, path string) (video.Stream, error) {
	d.mu.Lock()
	v, ok := d.videos[filepath.Base(path)]
	d.opened = append(d.opened, filepath.Base(path))
	d.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown video %s", path)
	}
	if v.openErr != nil {
		return nil, v.openErr
	}
	if v.onOpen != nil {
		v.onOpen()
	}
	return &fakeStream{v: v}, nil
}

type fakeStream struct {
	v      *fakeVideo
	pos    int
	closed bool
}

func (s *fakeStream) FPS() float64    { return s.v.fps }
func (s *fakeStream) FrameCount() int { return s.v.frames }

func (s *fakeStream) Read() (image.Image, error) {
	if s.pos >= s.v.frames {
		return nil, io.EOF
	}
	if s.pos == 0 && s.v.badFirst {
		return nil, errors.New("invalid data found when processing input")
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	c := color.RGBA{uint8(s.pos % 256), uint8(s.pos / 256), s.v.id, 255}
	if s.v.uniform {
		c = color.RGBA{0, 0, s.v.id, 255}
	}
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	s.pos++
	return img, nil
}

func (s *fakeStream) Skip() error {
	if s.pos >= s.v.frames {
		return io.EOF
	}
	s.pos++
	return nil
}

func (s *fakeStream) Reset() error {
	s.pos = 0
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeVerifier decodes the frame file to find out which video and frame it was handed.
type fakeVerifier struct {
	decoder *fakeDecoder

	mu    sync.Mutex
	calls int
	paths []string
	reqs  []facematch.Request
}

func (f *fakeVerifier) Verify(_ context.Context, req facematch.Request) (facematch.Result, error) {
	file, err := os.Open(req.CandidatePath)
	if err != nil {
		return facematch.Result{}, fmt.Errorf("frame file not readable: %w", err)
	}
	img, err := png.Decode(file)
	file.Close()
	if err != nil {
		return facematch.Result{}, err
	}

	r, g, b, _ := img.At(0, 0).RGBA()
	frame := int(r>>8) + int(g>>8)*256
	v := f.decoder.byID(uint8(b >> 8))

	f.mu.Lock()
	f.calls++
	f.paths = append(f.paths, req.CandidatePath)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if v == nil {
		return facematch.Result{}, errors.New("frame from unknown video")
	}
	if v.failing[frame] {
		return facematch.Result{}, errors.New("model crashed")
	}
	if v.noFace[frame] {
		return facematch.Result{Faces: 0, NoFace: true}, nil
	}
	if v.missing[frame] {
		return facematch.Result{Faces: -1}, nil
	}
	distance, ok := v.distances[frame]
	if !ok {
		distance = 0.9
	}
	return facematch.Result{Distance: distance, HasDistance: true, Faces: 1}, nil
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type verifierFunc func(ctx context.Context, req facematch.Request) (facematch.Result, error)

func (f verifierFunc) Verify(ctx context.Context, req facematch.Request) (facematch.Result, error) {
	return f(ctx, req)
}
