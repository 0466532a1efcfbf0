// Package imaging identifies uploaded image formats without decoding pixel data.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned when data is not in a registered image format.
var ErrNotImage = errors.New("file is not a supported image")

// Info describes an image by its header.
type Info struct {
	Format   string // decoder name: jpeg, png, gif, bmp, tiff, webp
	MIMEType string
	Width    int
	Height   int
}

// Detect reads the image header and returns its format and dimensions.
func Detect(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotImage, err)
	}
	return &Info{
		Format:   format,
		MIMEType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// MIMEType returns the image MIME type for data, or an error if it is not an image.
func MIMEType(data []byte) (string, error) {
	info, err := Detect(data)
	if err != nil {
		return "", err
	}
	return info.MIMEType, nil
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// HasImageExtension reports whether name carries a known image file extension.
func HasImageExtension(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}
