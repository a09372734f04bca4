package calib3d

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"stereo-mapper/internal/calib"
	"stereo-mapper/internal/opencv/capture"
	"stereo-mapper/internal/opencv/conversion"
	"stereo-mapper/internal/opencv/filters"
	"stereo-mapper/internal/opencv/safe"
	"stereo-mapper/internal/pipeline"
)

// ChessboardDetector finds inner checkerboard corners with OpenCV and refines them to
// sub-pixel accuracy.
type ChessboardDetector struct {
	pattern  image.Point
	count    int
	refine   bool
	equalize *filters.Contrast // second search on a CLAHE-equalized image, nil disables
}

func NewChessboardDetector(board *calib.Checkerboard) *ChessboardDetector {
	return &ChessboardDetector{
		pattern:  board.Size(),
		count:    board.Len(),
		refine:   true,
		equalize: filters.NewContrast(),
	}
}

// Detect reports Found only when every inner corner was located.
func (d *ChessboardDetector) Detect(frame pipeline.Frame) (pipeline.Detection, error) {
	src, err := capture.FrameMat(frame)
	if err != nil {
		return pipeline.Detection{}, err
	}
	gray, err := conversion.ConvertToGrayscale(src)
	if err != nil {
		return pipeline.Detection{}, fmt.Errorf("corner detection: %w", err)
	}
	defer gray.Close()

	corners := gocv.NewMat()
	defer corners.Close()

	if !d.find(gray, &corners) {
		if d.equalize == nil {
			return pipeline.Detection{}, nil
		}
		eq, err := d.equalize.Apply(gray)
		if err != nil {
			return pipeline.Detection{}, fmt.Errorf("corner detection: %w", err)
		}
		defer eq.Close()
		if !d.find(eq, &corners) {
			return pipeline.Detection{}, nil
		}
	}

	if d.refine {
		criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, 30, 0.001)
		if err := gocv.CornerSubPix(gray.GetMat(), &corners, image.Pt(11, 11), image.Pt(-1, -1), criteria); err != nil {
			return pipeline.Detection{}, fmt.Errorf("corner refinement: %w", err)
		}
	}

	pts := make([]r2.Point, corners.Rows())
	for i := range pts {
		v := corners.GetVecfAt(i, 0)
		pts[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return pipeline.Detection{Corners: pts, Found: true}, nil
}

func (d *ChessboardDetector) find(gray *safe.Mat, corners *gocv.Mat) bool {
	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage
	return gocv.FindChessboardCorners(gray.GetMat(), d.pattern, corners, flags) && corners.Rows() == d.count
}

// DrawCorners overlays a detection on a BGR image the way OpenCV renders chessboard results.
// Misses get a red border so the operator can tell which camera lost the board.
func DrawCorners(img *safe.Mat, pattern image.Point, det pipeline.Detection) error {
	if err := safe.ValidateMatForOperation(img, "draw corners"); err != nil {
		return err
	}
	if !det.Found || len(det.Corners) == 0 {
		return gocv.Rectangle(img.Ptr(), image.Rect(0, 0, img.Cols()-1, img.Rows()-1), color.RGBA{R: 255, A: 255}, 4)
	}

	corners := gocv.NewMatWithSize(len(det.Corners), 1, gocv.MatTypeCV32FC2)
	defer corners.Close()
	for i, p := range det.Corners {
		corners.SetFloatAt(i, 0, float32(p.X))
		corners.SetFloatAt(i, 1, float32(p.Y))
	}
	return gocv.DrawChessboardCorners(img.Ptr(), pattern, corners, true)
}
