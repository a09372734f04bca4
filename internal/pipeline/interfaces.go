package pipeline

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"stereo-mapper/internal/calib"
)

// Frame is one camera image owned by the caller of ReadPair. Close returns its storage.
type Frame interface {
	Size() image.Point
	Close()
}

// StereoSource yields one frame from each camera per call. A read failure from either camera
// is reported as an error; the source is not retried.
type StereoSource interface {
	ReadPair(ctx context.Context) (left, right Frame, err error)
	Close() error
}

// SourceOpener acquires both cameras. Each loop opens its own source and closes it on exit.
type SourceOpener func(ctx context.Context) (StereoSource, error)

// Detection is the outcome of looking for the checkerboard in one frame.
type Detection struct {
	Corners []r2.Point
	Found   bool
}

// CornerDetector finds the inner corners of the board in the detector's scan order, which
// matches calib.Checkerboard point order.
type CornerDetector interface {
	Detect(frame Frame) (Detection, error)
}

// IntrinsicSolver fits one camera's matrix and distortion from planar views. Solvers that
// also recover the board pose of each view return them to seed the stereo solve.
type IntrinsicSolver interface {
	Calibrate(objects [][]r3.Vector, images [][]r2.Point, size image.Point) (calib.CameraFit, error)
}

// RectifiedPair is a frame pair warped into the shared rectified geometry.
type RectifiedPair struct {
	Left  *image.Gray
	Right *image.Gray
	// Color is the rectified left frame in RGB order; reprojection colors come from it.
	Color *image.RGBA
	// LeftFrame and RightFrame are the rectified frames for preview, nil when the
	// rectifier does not produce them.
	LeftFrame  Frame
	RightFrame Frame
}

func (p *RectifiedPair) Close() {
	if p == nil {
		return
	}
	if p.LeftFrame != nil {
		p.LeftFrame.Close()
	}
	if p.RightFrame != nil {
		p.RightFrame.Close()
	}
}

// Rectifier applies precomputed rectification maps to raw frames.
type Rectifier interface {
	Rectify(left, right Frame) (*RectifiedPair, error)
	Close() error
}

// RectifierFactory builds a Rectifier once per calibration.
type RectifierFactory func(c *calib.Calibration) (Rectifier, error)

// Preview shows intermediate images and reports operator interrupts.
type Preview interface {
	ShowCapture(left, right Frame, leftDet, rightDet Detection)
	ShowMatch(pair *RectifiedPair, disparity *image.Gray)
	// Interrupted polls for a quit request. It is called once per loop iteration and a request
	// is reported to one poll only, so quitting capture leaves matching running.
	Interrupted() bool
	Close() error
}

// NopPreview is used for headless runs.
type NopPreview struct{}

func (NopPreview) ShowCapture(Frame, Frame, Detection, Detection) {}
func (NopPreview) ShowMatch(*RectifiedPair, *image.Gray) {}
func (NopPreview) Interrupted() bool { return false }
func (NopPreview) Close() error { return nil }
