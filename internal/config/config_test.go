package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_MatchesOriginalSettings(t *testing.T) {
	cfg := Default()

	if cfg.Triage.MatchedDir != "matched/" {
		t.Errorf("expected MatchedDir 'matched/', got '%s'", cfg.Triage.MatchedDir)
	}
	if cfg.Triage.UnmatchedDir != "unmatched/" {
		t.Errorf("expected UnmatchedDir 'unmatched/', got '%s'", cfg.Triage.UnmatchedDir)
	}
	if cfg.Triage.LogFile != "log.csv" {
		t.Errorf("expected LogFile 'log.csv', got '%s'", cfg.Triage.LogFile)
	}
	if cfg.Triage.FrameIntervalSec != 1 {
		t.Errorf("expected FrameIntervalSec 1, got %v", cfg.Triage.FrameIntervalSec)
	}
	if cfg.Triage.ModelName != "Facenet512" {
		t.Errorf("expected ModelName 'Facenet512', got '%s'", cfg.Triage.ModelName)
	}
	if cfg.Triage.DetectorBackend != "mtcnn" {
		t.Errorf("expected DetectorBackend 'mtcnn', got '%s'", cfg.Triage.DetectorBackend)
	}
	if cfg.Triage.Threshold != 0.4 {
		t.Errorf("expected Threshold 0.4, got %v", cfg.Triage.Threshold)
	}
	if !cfg.Triage.Align {
		t.Error("expected Align to default to true")
	}
	if cfg.Triage.Workers != 1 {
		t.Errorf("expected Workers 1, got %d", cfg.Triage.Workers)
	}
	if cfg.Triage.SkipSimilar != -1 {
		t.Errorf("expected SkipSimilar -1, got %d", cfg.Triage.SkipSimilar)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_NoFileNoEnv(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Verifier.Backend != BackendDeepFace {
		t.Errorf("expected backend %s, got %s", BackendDeepFace, cfg.Verifier.Backend)
	}
	if cfg.FFmpeg.FFmpegPath != "ffmpeg" || cfg.FFmpeg.FFprobePath != "ffprobe" {
		t.Errorf("unexpected ffmpeg paths: %+v", cfg.FFmpeg)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "triage.yaml")
	content := `triage:
  matched_dir: out/yes
  unmatched_dir: out/no
  frame_interval_sec: 0.5
  threshold: 0.3
  align: false
  workers: 4
verifier:
  backend: embedding
  url: http://embed:8000
  timeout: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Triage.MatchedDir != "out/yes" {
		t.Errorf("expected MatchedDir 'out/yes', got '%s'", cfg.Triage.MatchedDir)
	}
	if cfg.Triage.FrameIntervalSec != 0.5 {
		t.Errorf("expected FrameIntervalSec 0.5, got %v", cfg.Triage.FrameIntervalSec)
	}
	if cfg.Triage.Align {
		t.Error("expected Align false from file")
	}
	if cfg.Triage.Workers != 4 {
		t.Errorf("expected Workers 4, got %d", cfg.Triage.Workers)
	}
	// Keys absent from the file keep their defaults
	if cfg.Triage.ModelName != "Facenet512" {
		t.Errorf("expected default ModelName, got '%s'", cfg.Triage.ModelName)
	}
	if cfg.Triage.LogFile != "log.csv" {
		t.Errorf("expected default LogFile, got '%s'", cfg.Triage.LogFile)
	}
	if cfg.Verifier.Backend != BackendEmbedding {
		t.Errorf("expected backend embedding, got %s", cfg.Verifier.Backend)
	}
	if cfg.Verifier.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %s", cfg.Verifier.Timeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "triage.yaml")
	if err := os.WriteFile(path, []byte("triage:\n  threshold: 0.3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRIAGE_THRESHOLD", "0.55")
	t.Setenv("TRIAGE_ALIGN", "false")
	t.Setenv("TRIAGE_MODEL_NAME", "ArcFace")
	t.Setenv("TRIAGE_SKIP_SIMILAR_HAMMING", "0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Triage.Threshold != 0.55 {
		t.Errorf("expected Threshold 0.55, got %v", cfg.Triage.Threshold)
	}
	if cfg.Triage.Align {
		t.Error("expected Align false from env")
	}
	if cfg.Triage.ModelName != "ArcFace" {
		t.Errorf("expected ModelName 'ArcFace', got '%s'", cfg.Triage.ModelName)
	}
	if cfg.Triage.SkipSimilar != 0 {
		t.Errorf("expected SkipSimilar 0, got %d", cfg.Triage.SkipSimilar)
	}
}

func TestLoad_BackendSpecificURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERIFIER_BACKEND", "embedding")
	t.Setenv("EMBEDDING_URL", "http://localhost:8000")
	t.Setenv("DEEPFACE_URL", "http://localhost:5005")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Verifier.URL != "http://localhost:8000" {
		t.Errorf("expected embedding URL, got '%s'", cfg.Verifier.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("triage: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty matched dir", func(c *Config) { c.Triage.MatchedDir = " " }, "matched_dir"},
		{"empty unmatched dir", func(c *Config) { c.Triage.UnmatchedDir = "" }, "unmatched_dir"},
		{"empty log file", func(c *Config) { c.Triage.LogFile = "" }, "log_file"},
		{"same dirs", func(c *Config) { c.Triage.UnmatchedDir = "matched" }, "must differ"},
		{"same dirs with dot prefix", func(c *Config) { c.Triage.UnmatchedDir = "./matched" }, "must differ"},
		{"same dirs absolute and relative", func(c *Config) {
			abs, _ := filepath.Abs("matched")
			c.Triage.UnmatchedDir = abs
		}, "must differ"},
		{"nested dirs are distinct", func(c *Config) { c.Triage.UnmatchedDir = "matched/no" }, ""},
		{"zero interval", func(c *Config) { c.Triage.FrameIntervalSec = 0 }, "frame_interval_sec"},
		{"negative threshold", func(c *Config) { c.Triage.Threshold = -0.1 }, "threshold"},
		{"threshold too large", func(c *Config) { c.Triage.Threshold = 2.5 }, "threshold"},
		{"zero workers", func(c *Config) { c.Triage.Workers = 0 }, "workers"},
		{"negative frame dim", func(c *Config) { c.Triage.MaxFrameDim = -1 }, "max_frame_dimension"},
		{"hamming too large", func(c *Config) { c.Triage.SkipSimilar = 65 }, "skip_similar_hamming"},
		{"unknown backend", func(c *Config) { c.Verifier.Backend = "magic" }, "unknown verifier backend"},
		{"zero timeout", func(c *Config) { c.Verifier.Timeout = 0 }, "timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestSameDir(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link")
	symlinks := os.Symlink(target, link) == nil

	tests := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"identical", target, target, true},
		{"trailing slash", target, target + "/", true},
		{"dot segments", target, filepath.Join(root, ".", "x", "..", "real"), true},
		{"surrounding spaces", target, "  " + target + " ", true},
		{"different", target, root, false},
		{"missing dirs compare by path", filepath.Join(root, "a"), filepath.Join(root, "b"), false},
	}
	if symlinks {
		tests = append(tests, struct {
			name     string
			a, b     string
			expected bool
		}{"symlink", target, link, true})
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameDir(tc.a, tc.b); got != tc.expected {
				t.Errorf("SameDir(%q, %q) = %v; want %v", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "7")
	t.Setenv("TEST_INT_BAD", "-3")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_FLOAT_BAD", "abc")
	t.Setenv("TEST_BOOL", "0")

	if got := envInt("TEST_INT", 1); got != 7 {
		t.Errorf("envInt = %d; want 7", got)
	}
	if got := envInt("TEST_INT_BAD", 1); got != 1 {
		t.Errorf("envInt for negative = %d; want default 1", got)
	}
	if got := envFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("envFloat = %v; want 0.25", got)
	}
	if got := envFloat("TEST_FLOAT_BAD", 1); got != 1 {
		t.Errorf("envFloat for garbage = %v; want default 1", got)
	}
	if got := envBool("TEST_BOOL", true); got {
		t.Error("envBool(\"0\") should be false")
	}
	if got := envBool("TEST_UNSET_BOOL", true); !got {
		t.Error("envBool for unset key should return default")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRIAGE_MATCHED_DIR", "TRIAGE_UNMATCHED_DIR", "TRIAGE_LOG_FILE", "TRIAGE_FRAME_INTERVAL_SEC",
		"TRIAGE_MODEL_NAME", "TRIAGE_DETECTOR_BACKEND", "TRIAGE_THRESHOLD", "TRIAGE_ALIGN",
		"TRIAGE_WORKERS", "TRIAGE_MAX_FRAME_DIMENSION", "TRIAGE_SKIP_SIMILAR_HAMMING",
		"VERIFIER_BACKEND", "VERIFIER_URL", "VERIFIER_TIMEOUT", "DEEPFACE_URL", "EMBEDDING_URL",
		"FFMPEG_PATH", "FFPROBE_PATH",
	} {
		t.Setenv(key, "")
	}
}
