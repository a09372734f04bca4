package conversion

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"stereo-mapper/internal/opencv/safe"
)

// ConvertToGrayscale converts a BGR or BGRA frame to single-channel intensity. Gray input is
// cloned.
func ConvertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	dst := safe.NewEmpty("gray")
	if err := ConvertToGrayscaleInto(src, dst); err != nil {
		dst.Close()
		return nil, err
	}
	return dst, nil
}

// ConvertToGrayscaleInto writes the intensity of src into dst, reusing dst's storage when the
// shape matches.
func ConvertToGrayscaleInto(src, dst *safe.Mat) error {
	if err := safe.ValidateMatForOperation(src, "grayscale conversion"); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if dst == nil || !dst.IsValid() {
		return fmt.Errorf("grayscale conversion needs a valid destination")
	}

	switch src.Channels() {
	case 1:
		if err := src.Ptr().CopyTo(dst.Ptr()); err != nil {
			return fmt.Errorf("gray copy: %w", err)
		}
	case 3:
		if err := gocv.CvtColor(src.GetMat(), dst.Ptr(), gocv.ColorBGRToGray); err != nil {
			return fmt.Errorf("BGR to gray: %w", err)
		}
	case 4:
		if err := gocv.CvtColor(src.GetMat(), dst.Ptr(), gocv.ColorBGRAToGray); err != nil {
			return fmt.Errorf("BGRA to gray: %w", err)
		}
	default:
		return fmt.Errorf("unsupported channel count: %d", src.Channels())
	}
	return nil
}

// GrayImage copies a single-channel 8-bit Mat into a Go image.
func GrayImage(src *safe.Mat) (*image.Gray, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to gray image conversion"); err != nil {
		return nil, err
	}
	if src.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("gray image conversion requires CV_8UC1, got type %d", int(src.Type()))
	}

	rows, cols := src.Rows(), src.Cols()
	data := src.Ptr().ToBytes()
	if len(data) != rows*cols {
		return nil, fmt.Errorf("unexpected buffer size %d for %dx%d gray Mat", len(data), cols, rows)
	}

	img := image.NewGray(image.Rect(0, 0, cols, rows))
	copy(img.Pix, data)
	return img, nil
}

// RGBAImage copies a BGR Mat into an opaque RGBA image, swapping the channel order.
func RGBAImage(src *safe.Mat) (*image.RGBA, error) {
	if err := safe.ValidateColorConversion(src, gocv.ColorBGRToRGB); err != nil {
		return nil, err
	}
	if src.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("color image conversion requires CV_8UC3, got type %d", int(src.Type()))
	}

	rows, cols := src.Rows(), src.Cols()
	data := src.Ptr().ToBytes()
	if len(data) != rows*cols*3 {
		return nil, fmt.Errorf("unexpected buffer size %d for %dx%d BGR Mat", len(data), cols, rows)
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for i, j := 0, 0; i < len(data); i, j = i+3, j+4 {
		img.Pix[j] = data[i+2]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// GrayToMat copies a Go gray image into a CV_8UC1 Mat.
func GrayToMat(img *image.Gray) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	b := img.Bounds()
	if err := safe.ValidateDimensions(b.Dx(), b.Dy(), "gray image to Mat"); err != nil {
		return nil, err
	}

	data := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		data = append(data, img.Pix[off:off+b.Dx()]...)
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, data)
	if err != nil {
		return nil, fmt.Errorf("gray Mat creation failed: %w", err)
	}
	defer mat.Close()
	return safe.NewMatFromMat(mat)
}

// RGBAToMat copies a Go RGBA image into a BGR Mat, dropping alpha.
func RGBAToMat(img *image.RGBA) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	b := img.Bounds()
	if err := safe.ValidateDimensions(b.Dx(), b.Dy(), "RGBA image to Mat"); err != nil {
		return nil, err
	}

	data := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := img.RGBAAt(x, y)
			data = append(data, p.B, p.G, p.R)
		}
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC3, data)
	if err != nil {
		return nil, fmt.Errorf("BGR Mat creation failed: %w", err)
	}
	defer mat.Close()
	return safe.NewMatFromMat(mat)
}

// DenseMat copies a gonum matrix into a CV_64FC1 Mat, the layout the calib3d functions take
// for camera matrices, rotations and distortion vectors.
func DenseMat(m mat.Matrix) (*safe.Mat, error) {
	if m == nil {
		return nil, fmt.Errorf("input matrix is nil")
	}
	rows, cols := m.Dims()
	dst, err := safe.NewMatWithTag(rows, cols, gocv.MatTypeCV64FC1, "dense")
	if err != nil {
		return nil, err
	}
	p := dst.Ptr()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p.SetDoubleAt(r, c, m.At(r, c))
		}
	}
	return dst, nil
}
