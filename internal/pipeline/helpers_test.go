package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"stereo-mapper/internal/calib"
)

var frameSize = image.Pt(640, 480)

// fakeFrame carries the index of the view it was read for.
type fakeFrame struct {
	size   image.Point
	view   int
	camera string
	closed *int
	mu     *sync.Mutex
}

func (f *fakeFrame) Size() image.Point { return f.size }

func (f *fakeFrame) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.closed++
}

// fakeSource yields frames for views 0..reads-1 and then fails.
type fakeSource struct {
	reads      int
	failAt     int // read index that fails; -1 never
	rightSize  image.Point
	served     int
	frameClose int
	closeCalls int
	mu         sync.Mutex
}

func newFakeSource(failAt int) *fakeSource {
	return &fakeSource{failAt: failAt, rightSize: frameSize}
}

func (s *fakeSource) ReadPair(context.Context) (Frame, Frame, error) {
	if s.failAt >= 0 && s.served == s.failAt {
		return nil, nil, errors.New("device disconnected")
	}
	view := s.served
	s.served++
	left := &fakeFrame{size: frameSize, view: view, camera: "left", closed: &s.frameClose, mu: &s.mu}
	right := &fakeFrame{size: s.rightSize, view: view, camera: "right", closed: &s.frameClose, mu: &s.mu}
	return left, right, nil
}

func (s *fakeSource) Close() error {
	s.closeCalls++
	return nil
}

func (s *fakeSource) opener() SourceOpener {
	return func(context.Context) (StereoSource, error) { return s, nil }
}

// scriptedDetector returns detections from a per-view script; views beyond it find the board
// in both cameras.
type scriptedDetector struct {
	rig    *syntheticRig
	script map[int][2]bool
}

func (d *scriptedDetector) Detect(frame Frame) (Detection, error) {
	f := frame.(*fakeFrame)
	found := [2]bool{true, true}
	if s, ok := d.script[f.view]; ok {
		found = s
	}
	idx := 0
	if f.camera == "right" {
		idx = 1
	}
	if !found[idx] {
		return Detection{}, nil
	}
	view := f.view % len(d.rig.left)
	if idx == 0 {
		return Detection{Corners: d.rig.left[view], Found: true}, nil
	}
	return Detection{Corners: d.rig.right[view], Found: true}, nil
}

// syntheticRig projects a board through a known stereo pair.
type syntheticRig struct {
	board     *calib.Checkerboard
	leftIn    calib.Intrinsics
	rightIn   calib.Intrinsics
	rotation  r3.Vector
	translate r3.Vector
	left      [][]r2.Point
	right     [][]r2.Point
}

func newSyntheticRig(t *testing.T) *syntheticRig {
	t.Helper()

	board, err := calib.NewCheckerboard(9, 6, 0.025)
	require.NoError(t, err)

	rig := &syntheticRig{
		board:     board,
		leftIn:    calib.Intrinsics{Fx: 600, Fy: 600, Cx: 320, Cy: 240, Distortion: calib.Distortion{K1: -0.05}},
		rightIn:   calib.Intrinsics{Fx: 605, Fy: 603, Cx: 322, Cy: 241},
		rotation:  r3.Vector{X: 0.005, Y: -0.02, Z: 0.003},
		translate: r3.Vector{X: -0.1, Y: 0.001},
	}
	relative := calib.Pose{R: calib.Rodrigues(rig.rotation), T: rig.translate}

	views := []struct{ rot, trans r3.Vector }{
		{r3.Vector{X: 0.1, Y: 0.05}, r3.Vector{X: -0.1, Y: -0.06, Z: 0.7}},
		{r3.Vector{X: -0.2, Y: 0.1, Z: 0.05}, r3.Vector{X: -0.08, Y: -0.05, Z: 0.8}},
		{r3.Vector{X: 0.05, Y: -0.25}, r3.Vector{X: -0.12, Y: -0.07, Z: 0.65}},
		{r3.Vector{X: 0.3, Y: 0.2, Z: -0.1}, r3.Vector{X: -0.05, Y: -0.04, Z: 0.9}},
	}
	for _, v := range views {
		pose := calib.Pose{R: calib.Rodrigues(v.rot), T: v.trans}
		var left, right []r2.Point
		for _, p := range board.Points() {
			c1 := pose.Apply(p)
			l, ok := rig.leftIn.Project(c1)
			require.True(t, ok)
			r, ok := rig.rightIn.Project(relative.Apply(c1))
			require.True(t, ok)
			left = append(left, l)
			right = append(right, r)
		}
		rig.left = append(rig.left, left)
		rig.right = append(rig.right, right)
	}
	return rig
}

func (rig *syntheticRig) correspondences(t *testing.T, views int) *calib.Correspondences {
	t.Helper()
	corr := calib.NewCorrespondences()
	for i := 0; i < views; i++ {
		require.NoError(t, corr.Add(rig.board, rig.left[i%len(rig.left)], rig.right[i%len(rig.right)]))
	}
	return corr
}

// oracleSolver returns the true intrinsics of whichever camera the image points came from.
type oracleSolver struct {
	rig   *syntheticRig
	rms   float64
	calls int
}

func (s *oracleSolver) Calibrate(_ [][]r3.Vector, images [][]r2.Point, _ image.Point) (calib.CameraFit, error) {
	s.calls++
	in := s.rig.rightIn
	for _, view := range s.rig.left {
		if len(images) > 0 && images[0][0] == view[0] {
			in = s.rig.leftIn
		}
	}
	in.RMS = s.rms
	return calib.CameraFit{Intrinsics: in}, nil
}

// shiftRectifier ignores the raw frames and returns a random texture pair shifted by a fixed
// disparity.
type shiftRectifier struct {
	left, right *image.Gray
	color       *image.RGBA
	closed      bool
}

func newShiftRectifier(width, height, shift int) *shiftRectifier {
	rng := rand.New(rand.NewSource(3))
	r := &shiftRectifier{
		left:  image.NewGray(image.Rect(0, 0, width, height)),
		right: image.NewGray(image.Rect(0, 0, width, height)),
		color: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	for i := range r.left.Pix {
		r.left.Pix[i] = uint8(rng.Intn(256))
	}
	for y := 0; y < height; y++ {
		for x := 0; x+shift < width; x++ {
			r.right.SetGray(x, y, r.left.GrayAt(x+shift, y))
		}
		for x := 0; x < width; x++ {
			r.color.SetRGBA(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return r
}

func (r *shiftRectifier) Rectify(Frame, Frame) (*RectifiedPair, error) {
	return &RectifiedPair{Left: r.left, Right: r.right, Color: r.color}, nil
}

func (r *shiftRectifier) Close() error {
	r.closed = true
	return nil
}

// countingPreview interrupts after a number of polls; negative never interrupts.
type countingPreview struct {
	NopPreview
	after    int
	polls    int
	captures int
	matches  int
}

func (p *countingPreview) Interrupted() bool {
	p.polls++
	return p.after >= 0 && p.polls > p.after
}

func (p *countingPreview) ShowCapture(Frame, Frame, Detection, Detection) { p.captures++ }

func (p *countingPreview) ShowMatch(*RectifiedPair, *image.Gray) { p.matches++ }

// keyPressPreview reports a single quit key press on poll number at, then none.
type keyPressPreview struct {
	NopPreview
	at    int
	polls int
}

func (p *keyPressPreview) Interrupted() bool {
	p.polls++
	return p.polls == p.at
}
