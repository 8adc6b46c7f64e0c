package live

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// FrameEncoder downsamples camera snapshots to a fixed size and encodes
// them as JPEG.
type FrameEncoder struct {
	Width   int
	Height  int
	Quality int // 1-100

	scaler draw.Scaler
}

func NewFrameEncoder(width, height, quality int) *FrameEncoder {
	if width <= 0 {
		width = DefaultFrameWidth
	}
	if height <= 0 {
		height = DefaultFrameHeight
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &FrameEncoder{
		Width:   width,
		Height:  height,
		Quality: quality,
		scaler:  draw.ApproxBiLinear,
	}
}

// Encode scales src into a Width x Height canvas and returns JPEG bytes.
// The aspect ratio is not preserved.
func (e *FrameEncoder) Encode(src image.Image) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("nil frame")
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	dst := image.NewRGBA(image.Rect(0, 0, e.Width, e.Height))
	e.scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
