package survey

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

// MaxUploadBytes is the largest floor-plan file accepted for upload
const MaxUploadBytes = 16 << 20

var (
	// ErrUnsupportedFormat is returned for floor-plan files that are not PNG or JPEG
	ErrUnsupportedFormat = errors.New("unsupported floor plan format: use .png, .jpg or .jpeg")

	// ErrFileTooLarge is returned for floor-plan files above MaxUploadBytes
	ErrFileTooLarge = errors.New("floor plan file too large")
)

var allowedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ValidateUpload checks a floor-plan file name and size before any request is made
func ValidateUpload(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, MaxUploadBytes)
	}
	return nil
}

// ReadUploadFile reads and validates a floor-plan file from disk
func ReadUploadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading floor plan: %w", err)
	}
	if err := ValidateUpload(path, info.Size()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading floor plan: %w", err)
	}
	return data, nil
}

// DecodeFloorPlan decodes the embedded image of a floor plan. Width and Height
// are filled from the raster when the backend omitted them.
func DecodeFloorPlan(fp *FloorPlan) error {
	if fp == nil {
		return ErrNoFloorPlan
	}

	raw, err := decodeImageData(fp.ImageData)
	if err != nil {
		return fmt.Errorf("decoding floor plan: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decoding floor plan image: %w", err)
	}
	if format != "png" && format != "jpeg" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	b := img.Bounds()
	if fp.Width <= 0 {
		fp.Width = b.Dx()
	}
	if fp.Height <= 0 {
		fp.Height = b.Dy()
	}
	if fp.Width <= 0 || fp.Height <= 0 {
		return fmt.Errorf("decoding floor plan: empty image %dx%d", fp.Width, fp.Height)
	}

	fp.image = img
	return nil
}

// decodeImageData accepts either a data URL or bare base64
func decodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, errors.New("no image data")
	}
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return nil, errors.New("malformed data URL")
		}
		header := data[:comma]
		if !strings.HasSuffix(header, ";base64") {
			return nil, errors.New("data URL is not base64 encoded")
		}
		data = data[comma+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	return raw, nil
}
