package document

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	// MaxDimension bounds both image edges before upload
	MaxDimension = 1600
	// JPEGQuality is the re-encode quality of uploaded images
	JPEGQuality = 85
)

// Preprocess decodes an uploaded image, flattens any alpha onto white, fits it
// inside MaxDimension x MaxDimension and re-encodes it as JPEG.
func Preprocess(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat := imaging.Overlay(background, img, image.Pt(0, 0), 1.0)

	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		flat = imaging.Fit(flat, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
