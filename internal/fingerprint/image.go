package fingerprint

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageInfo is the header information of an image file.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// InspectImage checks that path is an image the verifier backends can be handed and
// returns its format and dimensions. Only the header is decoded.
func InspectImage(path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return ImageInfo{}, fmt.Errorf("image %s has no pixels", path)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
