package preview

import (
	"image"

	"gocv.io/x/gocv"

	"stereo-mapper/internal/logger"
	"stereo-mapper/internal/opencv/calib3d"
	"stereo-mapper/internal/opencv/capture"
	"stereo-mapper/internal/opencv/conversion"
	"stereo-mapper/internal/opencv/safe"
	"stereo-mapper/internal/pipeline"
)

const (
	keyEsc = 27
	keyQ   = 'q'
)

// Window shows camera and disparity images in HighGUI windows. Every method must run on the
// goroutine that created it.
type Window struct {
	pattern   image.Point
	left      *gocv.Window
	right     *gocv.Window
	disparity *gocv.Window
	logger    logger.Logger
}

// New opens the preview windows. pattern is the board's inner corner grid used when drawing
// detections.
func New(pattern image.Point, log logger.Logger) *Window {
	return &Window{
		pattern:   pattern,
		left:      gocv.NewWindow("left"),
		right:     gocv.NewWindow("right"),
		disparity: gocv.NewWindow("disparity"),
		logger:    log,
	}
}

func (w *Window) ShowCapture(left, right pipeline.Frame, leftDet, rightDet pipeline.Detection) {
	w.showDetection(w.left, left, leftDet)
	w.showDetection(w.right, right, rightDet)
}

func (w *Window) showDetection(win *gocv.Window, frame pipeline.Frame, det pipeline.Detection) {
	src, err := capture.FrameMat(frame)
	if err != nil {
		w.logger.Warning("Preview", "frame not displayable", map[string]interface{}{"error": err.Error()})
		return
	}
	canvas, err := src.Clone()
	if err != nil {
		return
	}
	defer canvas.Close()

	if err := calib3d.DrawCorners(canvas, w.pattern, det); err != nil {
		w.logger.Debug("Preview", "draw corners failed", map[string]interface{}{"error": err.Error()})
	}
	win.IMShow(canvas.GetMat())
}

func (w *Window) ShowMatch(pair *pipeline.RectifiedPair, disparity *image.Gray) {
	if pair != nil {
		show(w.left, func() (*safe.Mat, error) { return conversion.RGBAToMat(pair.Color) })
		show(w.right, func() (*safe.Mat, error) { return conversion.GrayToMat(pair.Right) })
	}
	show(w.disparity, func() (*safe.Mat, error) { return conversion.GrayToMat(disparity) })
}

func show(win *gocv.Window, convert func() (*safe.Mat, error)) {
	m, err := convert()
	if err != nil {
		return
	}
	defer m.Close()
	win.IMShow(m.GetMat())
}

// Interrupted pumps the HighGUI event loop and reports whether q or Esc was pressed since the
// last call. A press is consumed, so it ends only the loop that polled it.
func (w *Window) Interrupted() bool {
	if !isQuitKey(w.left.WaitKey(1)) {
		return false
	}
	w.logger.Info("Preview", "quit requested from preview window", nil)
	return true
}

// isQuitKey reports whether a WaitKey result is q or Esc. Some backends set modifier bits
// above the low byte.
func isQuitKey(key int) bool {
	if key < 0 {
		return false
	}
	switch key & 0xff {
	case keyQ, keyEsc:
		return true
	}
	return false
}

func (w *Window) Close() error {
	for _, win := range []*gocv.Window{w.left, w.right, w.disparity} {
		win.Close()
	}
	return nil
}
