package calib3d

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"stereo-mapper/internal/calib"
	"stereo-mapper/internal/opencv/capture"
	"stereo-mapper/internal/opencv/conversion"
	"stereo-mapper/internal/opencv/safe"
	"stereo-mapper/internal/pipeline"
)

// Rectifier remaps raw camera frames with the undistort-rectify tables of a calibration. The
// tables are built once by OpenCV; the working Mats are reused, so a Rectifier serves one
// goroutine.
type Rectifier struct {
	leftX, leftY   *safe.Mat
	rightX, rightY *safe.Mat
	leftOut        *safe.Mat
	rightOut       *safe.Mat
	leftGray       *safe.Mat
	rightGray      *safe.Mat
}

// NewRectifier matches pipeline.RectifierFactory.
func NewRectifier(c *calib.Calibration) (pipeline.Rectifier, error) {
	if c == nil || c.Rectification == nil {
		return nil, fmt.Errorf("calibration has no rectification")
	}
	rect := c.Rectification

	r := &Rectifier{}
	var err error
	if r.leftX, r.leftY, err = undistortRectifyMap(c.Left, rect.R1, rect.P1, rect.Size); err != nil {
		r.Close()
		return nil, fmt.Errorf("left rectification map: %w", err)
	}
	if r.rightX, r.rightY, err = undistortRectifyMap(c.Right, rect.R2, rect.P2, rect.Size); err != nil {
		r.Close()
		return nil, fmt.Errorf("right rectification map: %w", err)
	}

	r.leftOut = safe.NewEmpty("rectified-left")
	r.rightOut = safe.NewEmpty("rectified-right")
	r.leftGray = safe.NewEmpty("rectified-left-gray")
	r.rightGray = safe.NewEmpty("rectified-right-gray")
	return r, nil
}

// undistortRectifyMap runs cv::initUndistortRectifyMap for one camera and returns the separate
// CV_32FC1 x and y tables.
func undistortRectifyMap(in calib.Intrinsics, rotation, projection mat.Matrix, size image.Point) (*safe.Mat, *safe.Mat, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, nil, fmt.Errorf("invalid map size %v", size)
	}

	k, err := conversion.DenseMat(in.CameraMatrix())
	if err != nil {
		return nil, nil, err
	}
	defer k.Close()
	coeffs := in.Distortion.Coefficients()
	dist, err := conversion.DenseMat(mat.NewDense(1, len(coeffs), coeffs))
	if err != nil {
		return nil, nil, err
	}
	defer dist.Close()
	rot, err := conversion.DenseMat(rotation)
	if err != nil {
		return nil, nil, err
	}
	defer rot.Close()
	proj, err := conversion.DenseMat(projection)
	if err != nil {
		return nil, nil, err
	}
	defer proj.Close()

	mapX := safe.NewEmpty("remap-x")
	mapY := safe.NewEmpty("remap-y")
	err = gocv.InitUndistortRectifyMap(k.GetMat(), dist.GetMat(), rot.GetMat(), proj.GetMat(), size, int(gocv.MatTypeCV32FC1), mapX.GetMat(), mapY.GetMat())
	if err == nil && (mapX.Empty() || mapX.Size() != size) {
		err = fmt.Errorf("map was not produced for size %v", size)
	}
	if err != nil {
		mapX.Close()
		mapY.Close()
		return nil, nil, err
	}
	return mapX, mapY, nil
}

func (r *Rectifier) Rectify(left, right pipeline.Frame) (*pipeline.RectifiedPair, error) {
	l, err := capture.FrameMat(left)
	if err != nil {
		return nil, err
	}
	rt, err := capture.FrameMat(right)
	if err != nil {
		return nil, err
	}
	if err := safe.ValidateSameSize(l, rt, "rectification"); err != nil {
		return nil, err
	}
	if l.Size() != r.leftX.Size() {
		return nil, fmt.Errorf("frame size %v does not match calibration size %v", l.Size(), r.leftX.Size())
	}

	if err := gocv.Remap(l.GetMat(), r.leftOut.Ptr(), r.leftX.Ptr(), r.leftY.Ptr(), gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{}); err != nil {
		return nil, fmt.Errorf("left remap: %w", err)
	}
	if err := gocv.Remap(rt.GetMat(), r.rightOut.Ptr(), r.rightX.Ptr(), r.rightY.Ptr(), gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{}); err != nil {
		return nil, fmt.Errorf("right remap: %w", err)
	}

	if err := conversion.ConvertToGrayscaleInto(r.leftOut, r.leftGray); err != nil {
		return nil, fmt.Errorf("left rectified gray: %w", err)
	}
	if err := conversion.ConvertToGrayscaleInto(r.rightOut, r.rightGray); err != nil {
		return nil, fmt.Errorf("right rectified gray: %w", err)
	}

	pair := &pipeline.RectifiedPair{}
	if pair.Left, err = conversion.GrayImage(r.leftGray); err != nil {
		return nil, err
	}
	if pair.Right, err = conversion.GrayImage(r.rightGray); err != nil {
		return nil, err
	}
	if r.leftOut.Channels() == 3 {
		if pair.Color, err = conversion.RGBAImage(r.leftOut); err != nil {
			return nil, err
		}
	} else {
		pair.Color = grayToRGBA(pair.Left)
	}
	return pair, nil
}

func (r *Rectifier) Close() error {
	for _, m := range []*safe.Mat{r.leftX, r.leftY, r.rightX, r.rightY, r.leftOut, r.rightOut, r.leftGray, r.rightGray} {
		if m != nil {
			m.Close()
		}
	}
	return nil
}

func grayToRGBA(g *image.Gray) *image.RGBA {
	out := image.NewRGBA(g.Bounds())
	draw.Draw(out, out.Bounds(), g, g.Bounds().Min, draw.Src)
	return out
}
