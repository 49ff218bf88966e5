package triage

import (
	"os"
	"path/filepath"
	"strings"
)

// VideoFile is a directory entry that looks like a video.
type VideoFile struct {
	Name string
	Path string
}

// IsVideo reports whether name has one of the supported extensions, ignoring case.
func IsVideo(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".avi", ".mov", ".mkv":
		return true
	default:
		return false
	}
}

// Enumerate lists the videos directly inside dir. Subdirectories and other files are ignored.
func Enumerate(dir string) ([]VideoFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]VideoFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsVideo(e.Name()) {
			continue
		}
		files = append(files, VideoFile{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	return files, nil
}
