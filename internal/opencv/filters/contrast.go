package filters

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"stereo-mapper/internal/opencv/safe"
)

// Contrast equalizes a grayscale frame with CLAHE. Boards seen under uneven light often fail
// the first corner search and succeed on the equalized image.
type Contrast struct {
	ClipLimit float64
	TileSize  int
}

func NewContrast() *Contrast {
	return &Contrast{ClipLimit: 3.0, TileSize: 8}
}

func (c *Contrast) Apply(input *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(input, "contrast equalization"); err != nil {
		return nil, err
	}
	if input.Channels() != 1 {
		return nil, fmt.Errorf("contrast equalization needs a single channel image, got %d channels", input.Channels())
	}

	dst, err := safe.NewMatWithTag(input.Rows(), input.Cols(), input.Type(), "clahe")
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	clahe := gocv.NewCLAHEWithParams(c.ClipLimit, image.Pt(c.TileSize, c.TileSize))
	defer clahe.Close()

	if err := clahe.Apply(input.GetMat(), dst.Ptr()); err != nil {
		dst.Close()
		return nil, fmt.Errorf("contrast equalization: %w", err)
	}
	return dst, nil
}
