package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// resolveInputs returns the reference image and video directory, asking for the ones
// missing from args when interactive is set.
func resolveInputs(args []string, in io.Reader, out io.Writer, interactive bool) (string, string, error) {
	values := make([]string, 2)
	copy(values, args)

	prompts := []string{
		"Enter the path to the reference image: ",
		"Enter the path to the directory containing videos: ",
	}

	var reader *bufio.Reader
	for i, v := range values {
		if v != "" {
			continue
		}
		if !interactive {
			return "", "", errors.New("reference image and video directory are required")
		}
		if reader == nil {
			reader = bufio.NewReader(in)
		}
		fmt.Fprint(out, prompts[i])
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", fmt.Errorf("failed to read input: %w", err)
		}
		values[i] = cleanPath(line)
		if values[i] == "" {
			return "", "", errors.New("no path entered")
		}
	}
	return values[0], values[1], nil
}

// cleanPath strips whitespace and the quotes terminals add when a file is dropped in.
func cleanPath(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}
