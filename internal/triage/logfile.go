package triage

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
)

// LogHeader is the first row of the log file.
var LogHeader = []string{"video", "match", "min_distance", "frames_checked"}

// WriteLog writes one CSV row per logged result, in the given order, replacing the file at path.
func WriteLog(path string, results []Result) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(LogHeader); err != nil {
		return err
	}
	for _, r := range results {
		if !r.Logged() {
			continue
		}
		row := []string{r.Video, r.MatchLabel(), r.MinDistanceLabel(), strconv.Itoa(r.FramesChecked)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
