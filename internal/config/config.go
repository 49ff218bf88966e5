package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-triage/internal/constants"
)

// Verifier backends understood by facematch.New.
const (
	BackendDeepFace  = "deepface"
	BackendEmbedding = "embedding"
)

type Config struct {
	Triage   TriageConfig   `yaml:"triage"`
	Verifier VerifierConfig `yaml:"verifier"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
}

type TriageConfig struct {
	MatchedDir       string  `yaml:"matched_dir"`
	UnmatchedDir     string  `yaml:"unmatched_dir"`
	LogFile          string  `yaml:"log_file"`
	FrameIntervalSec float64 `yaml:"frame_interval_sec"` // time between sampled frames
	ModelName        string  `yaml:"model_name"`
	DetectorBackend  string  `yaml:"detector_backend"`
	Threshold        float64 `yaml:"threshold"` // max distance still considered the same person
	Align            bool    `yaml:"align"`
	Workers          int     `yaml:"workers"`             // videos processed in parallel (1 = sequential)
	MaxFrameDim      int     `yaml:"max_frame_dimension"` // downscale sampled frames, 0 keeps the original size
	SkipSimilar      int     `yaml:"skip_similar_hamming"` // dHash distance for reusing the previous outcome, -1 disables
}

type VerifierConfig struct {
	Backend string        `yaml:"backend"` // deepface or embedding
	URL     string        `yaml:"url"`     // defaults depend on the backend
	Timeout time.Duration `yaml:"timeout"`
}

type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// Default returns the configuration used when neither a file nor the environment override anything.
func Default() Config {
	return Config{
		Triage: TriageConfig{
			MatchedDir:       "matched/",
			UnmatchedDir:     "unmatched/",
			LogFile:          "log.csv",
			FrameIntervalSec: constants.DefaultFrameInterval,
			ModelName:        "Facenet512",
			DetectorBackend:  "mtcnn",
			Threshold:        constants.DefaultDistanceThreshold,
			Align:            true,
			Workers:          1,
			MaxFrameDim:      0,
			SkipSimilar:      -1,
		},
		Verifier: VerifierConfig{
			Backend: BackendDeepFace,
			Timeout: constants.DefaultVerifierTimeout,
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
	}
}

// Load builds the run configuration: defaults, then the optional YAML file at path,
// then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	t := &c.Triage
	t.MatchedDir = envString("TRIAGE_MATCHED_DIR", t.MatchedDir)
	t.UnmatchedDir = envString("TRIAGE_UNMATCHED_DIR", t.UnmatchedDir)
	t.LogFile = envString("TRIAGE_LOG_FILE", t.LogFile)
	t.FrameIntervalSec = envFloat("TRIAGE_FRAME_INTERVAL_SEC", t.FrameIntervalSec)
	t.ModelName = envString("TRIAGE_MODEL_NAME", t.ModelName)
	t.DetectorBackend = envString("TRIAGE_DETECTOR_BACKEND", t.DetectorBackend)
	t.Threshold = envFloat("TRIAGE_THRESHOLD", t.Threshold)
	t.Align = envBool("TRIAGE_ALIGN", t.Align)
	t.Workers = envInt("TRIAGE_WORKERS", t.Workers)
	t.MaxFrameDim = envInt("TRIAGE_MAX_FRAME_DIMENSION", t.MaxFrameDim)
	if s := os.Getenv("TRIAGE_SKIP_SIMILAR_HAMMING"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			t.SkipSimilar = n
		}
	}

	c.Verifier.Backend = envString("VERIFIER_BACKEND", c.Verifier.Backend)
	c.Verifier.URL = envString("VERIFIER_URL", c.Verifier.URL)
	if c.Verifier.URL == "" {
		switch c.Verifier.Backend {
		case BackendDeepFace:
			c.Verifier.URL = os.Getenv("DEEPFACE_URL")
		case BackendEmbedding:
			c.Verifier.URL = os.Getenv("EMBEDDING_URL")
		}
	}
	if s := os.Getenv("VERIFIER_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			c.Verifier.Timeout = d
		}
	}

	c.FFmpeg.FFmpegPath = envString("FFMPEG_PATH", c.FFmpeg.FFmpegPath)
	c.FFmpeg.FFprobePath = envString("FFPROBE_PATH", c.FFmpeg.FFprobePath)
}

// Validate reports the first problem that would make a run meaningless.
func (c *Config) Validate() error {
	t := c.Triage
	switch {
	case strings.TrimSpace(t.MatchedDir) == "":
		return errors.New("matched_dir must not be empty")
	case strings.TrimSpace(t.UnmatchedDir) == "":
		return errors.New("unmatched_dir must not be empty")
	case strings.TrimSpace(t.LogFile) == "":
		return errors.New("log_file must not be empty")
	case SameDir(t.MatchedDir, t.UnmatchedDir):
		return fmt.Errorf("matched_dir and unmatched_dir must differ (both %q)", t.MatchedDir)
	case !(t.FrameIntervalSec > 0) || math.IsInf(t.FrameIntervalSec, 0):
		return fmt.Errorf("frame_interval_sec must be positive, got %v", t.FrameIntervalSec)
	case !(t.Threshold > 0) || t.Threshold > constants.MaxDistanceThreshold:
		return fmt.Errorf("threshold must be in (0, %g], got %v", constants.MaxDistanceThreshold, t.Threshold)
	case t.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", t.Workers)
	case t.MaxFrameDim < 0:
		return fmt.Errorf("max_frame_dimension must not be negative, got %d", t.MaxFrameDim)
	case t.SkipSimilar > constants.HashBits:
		return fmt.Errorf("skip_similar_hamming must be at most %d, got %d", constants.HashBits, t.SkipSimilar)
	}

	switch c.Verifier.Backend {
	case BackendDeepFace, BackendEmbedding:
	default:
		return fmt.Errorf("unknown verifier backend %q (want %s or %s)", c.Verifier.Backend, BackendDeepFace, BackendEmbedding)
	}
	if c.Verifier.Timeout <= 0 {
		return fmt.Errorf("verifier timeout must be positive, got %s", c.Verifier.Timeout)
	}
	return nil
}

// SameDir reports whether a and b name the same directory once cleaned, made absolute
// and, where they exist, resolved through symlinks.
func SameDir(a, b string) bool {
	return canonicalDir(a) == canonicalDir(b)
}

func canonicalDir(dir string) string {
	p := filepath.Clean(strings.TrimSpace(dir))
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return p
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}
