package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideoStream is returned when a container has no decodable video stream.
var ErrNoVideoStream = errors.New("no video stream")

// Info is the subset of ffprobe output the decoder needs.
type Info struct {
	Codec      string
	Width      int
	Height     int
	FPS        float64 // 0 when the container does not report a usable rate
	FrameCount int     // 0 when unknown
	Duration   float64 // seconds
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// Probe executes ffprobe against the provided path and returns the first video stream's metadata.
func Probe(ctx context.Context, binary string, path string) (Info, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Info{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner",
		"-select_streams", "v:0", "-show_streams", "-show_format", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Info{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(output)
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	var stream *probeStream
	for i := range out.Streams {
		if strings.EqualFold(out.Streams[i].CodecType, "video") {
			stream = &out.Streams[i]
			break
		}
	}
	if stream == nil || stream.Width <= 0 || stream.Height <= 0 {
		return Info{}, ErrNoVideoStream
	}

	info := Info{
		Codec:  stream.CodecName,
		Width:  stream.Width,
		Height: stream.Height,
		FPS:    parseFrameRate(stream.AvgFrameRate),
	}
	if info.FPS == 0 {
		info.FPS = parseFrameRate(stream.RFrameRate)
	}

	info.Duration = parseFloat(stream.Duration)
	if info.Duration == 0 {
		info.Duration = parseFloat(out.Format.Duration)
	}

	if n, err := strconv.Atoi(strings.TrimSpace(stream.NbFrames)); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.FPS > 0 && info.Duration > 0 {
		info.FrameCount = int(math.Round(info.FPS * info.Duration))
	}

	return info, nil
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25". Unusable values yield 0.
func parseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	var rate float64
	if num, den, ok := strings.Cut(value, "/"); ok {
		n := parseFloat(num)
		d := parseFloat(den)
		if d == 0 {
			return 0
		}
		rate = n / d
	} else {
		rate = parseFloat(value)
	}

	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0
	}
	return rate
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
