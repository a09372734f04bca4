package stereo

import (
	"fmt"
	"image"
	"math"
)

// DisparityFrame is a dense disparity map in pixels. Pixels without a match hold Invalid,
// which is below every disparity the matcher can produce.
type DisparityFrame struct {
	Width   int
	Height  int
	Data    []float32
	Invalid float32
}

// NewDisparityFrame returns a frame with every pixel set to invalid.
func NewDisparityFrame(width, height int, invalid float32) *DisparityFrame {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = invalid
	}
	return &DisparityFrame{Width: width, Height: height, Data: data, Invalid: invalid}
}

func (f *DisparityFrame) At(x, y int) float32 {
	return f.Data[y*f.Width+x]
}

func (f *DisparityFrame) Set(x, y int, d float32) {
	f.Data[y*f.Width+x] = d
}

// Valid reports whether the pixel holds a finite disparity other than the invalid marker.
func (f *DisparityFrame) Valid(x, y int) bool {
	d := f.At(x, y)
	return d != f.Invalid && !math.IsNaN(float64(d)) && !math.IsInf(float64(d), 0)
}

// MinMax returns the smallest and largest values present, invalid pixels included.
func (f *DisparityFrame) MinMax() (float32, float32) {
	if len(f.Data) == 0 {
		return 0, 0
	}
	lo, hi := f.Data[0], f.Data[0]
	for _, d := range f.Data[1:] {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return lo, hi
}

// ValidCount returns the number of pixels with a usable disparity.
func (f *DisparityFrame) ValidCount() int {
	n := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if f.Valid(x, y) {
				n++
			}
		}
	}
	return n
}

// Normalize stretches the frame's value range onto 0-255 for display. A frame with a single
// value maps to all zeros. The result is for viewing only; reprojection uses the raw frame.
func (f *DisparityFrame) Normalize() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	lo, hi := f.MinMax()
	if hi-lo <= 0 {
		return out
	}
	scale := 255 / float64(hi-lo)
	for i, d := range f.Data {
		out.Pix[(i/f.Width)*out.Stride+i%f.Width] = uint8(math.Round(float64(d-lo) * scale))
	}
	return out
}

func checkSameSize(left, right *image.Gray) error {
	if left == nil || right == nil {
		return fmt.Errorf("stereo pair is missing an image")
	}
	if left.Bounds().Size() != right.Bounds().Size() {
		return fmt.Errorf("stereo pair size mismatch: left %v, right %v",
			left.Bounds().Size(), right.Bounds().Size())
	}
	return nil
}
