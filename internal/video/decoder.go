// Package video reads frames out of video files by running ffprobe and ffmpeg.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/kozaktomas/face-triage/internal/config"
)

// Decoder opens video files for sequential frame access.
type Decoder interface {
	Open(ctx context.Context, path string) (Stream, error)
}

// Stream is an open video. Frames are delivered in order starting at index 0.
type Stream interface {
	// FPS is the reported frame rate; 0 when the container does not report one.
	FPS() float64
	// FrameCount is the reported number of frames; 0 when unknown.
	FrameCount() int
	// Read decodes the next frame. It returns io.EOF after the last frame.
	Read() (image.Image, error)
	// Skip advances past the next frame without building an image. It returns io.EOF after the last frame.
	Skip() error
	// Reset rewinds to the first frame.
	Reset() error
	Close() error
}

// FFmpegDecoder decodes with the ffmpeg binary. Frames travel as raw RGB24 over a pipe.
type FFmpegDecoder struct {
	ffmpeg  string
	ffprobe string
}

func NewFFmpegDecoder(cfg config.FFmpegConfig) *FFmpegDecoder {
	d := &FFmpegDecoder{ffmpeg: cfg.FFmpegPath, ffprobe: cfg.FFprobePath}
	if strings.TrimSpace(d.ffmpeg) == "" {
		d.ffmpeg = "ffmpeg"
	}
	if strings.TrimSpace(d.ffprobe) == "" {
		d.ffprobe = "ffprobe"
	}
	return d
}

// Open probes the file and starts decoding. A missing file is reported as fs.ErrNotExist.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (Stream, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	info, err := Probe(ctx, d.ffprobe, path)
	if err != nil {
		return nil, err
	}

	s := &ffmpegStream{
		ctx:       ctx,
		binary:    d.ffmpeg,
		path:      path,
		info:      info,
		frameSize: info.Width * info.Height * 3,
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

type ffmpegStream struct {
	ctx       context.Context
	binary    string
	path      string
	info      Info
	frameSize int

	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr bytes.Buffer
	buf    []byte
}

func (s *ffmpegStream) FPS() float64    { return s.info.FPS }
func (s *ffmpegStream) FrameCount() int { return s.info.FrameCount }

func (s *ffmpegStream) start() error {
	s.stderr.Reset()
	cmd := exec.CommandContext(s.ctx, s.binary,
		"-v", "error", "-nostdin", "-noautorotate",
		"-i", s.path,
		"-map", "0:v:0",
		"-fps_mode", "passthrough",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"-")
	cmd.Stderr = &s.stderr

	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	s.cmd = cmd
	s.out = out
	return nil
}

func (s *ffmpegStream) stop() error {
	if s.cmd == nil {
		return nil
	}
	if s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.out = nil
	return nil
}

func (s *ffmpegStream) Read() (image.Image, error) {
	if s.buf == nil {
		s.buf = make([]byte, s.frameSize)
	}
	if err := s.fill(s.buf); err != nil {
		return nil, err
	}
	return rgb24ToRGBA(s.buf, s.info.Width, s.info.Height), nil
}

func (s *ffmpegStream) Skip() error {
	if s.out == nil {
		return io.EOF
	}
	n, err := io.CopyN(io.Discard, s.out, int64(s.frameSize))
	if n == int64(s.frameSize) {
		return nil
	}
	return s.endOfStream(err)
}

func (s *ffmpegStream) fill(buf []byte) error {
	if s.out == nil {
		return io.EOF
	}
	_, err := io.ReadFull(s.out, buf)
	if err == nil {
		return nil
	}
	return s.endOfStream(err)
}

// endOfStream maps a short read to io.EOF, or to a decode error when ffmpeg complained
// before producing a single frame.
func (s *ffmpegStream) endOfStream(err error) error {
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("ffmpeg read %s: %w", s.path, err)
	}
	// stderr is only safe to read once the process has been waited for
	_ = s.stop()
	msg := strings.TrimSpace(s.stderr.String())
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if msg != "" {
		return fmt.Errorf("%w (ffmpeg: %s)", io.EOF, firstLine(msg))
	}
	return io.EOF
}

func (s *ffmpegStream) Reset() error {
	_ = s.stop()
	return s.start()
}

func (s *ffmpegStream) Close() error {
	return s.stop()
}

func rgb24ToRGBA(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pix := img.Pix
	for i, j := 0, 0; i+2 < len(buf) && j+3 < len(pix); i, j = i+3, j+4 {
		pix[j] = buf[i]
		pix[j+1] = buf[i+1]
		pix[j+2] = buf[i+2]
		pix[j+3] = 0xFF
	}
	return img
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
