package calib

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Extrinsics is the pose of camera 2 relative to camera 1: x2 = R x1 + T.
// RMS is the reprojection error over both cameras after refinement, in pixels, and ViewRMS
// holds the same figure per view.
type Extrinsics struct {
	R       *mat.Dense
	T       r3.Vector
	RMS     float64
	ViewRMS []float64
}

// Baseline returns the distance between the optical centers in target units.
func (e Extrinsics) Baseline() float64 {
	return e.T.Norm()
}

// CameraFit is a single-camera calibration: the lens model plus, when the solver reports
// them, the board pose of every view in that camera's frame.
type CameraFit struct {
	Intrinsics Intrinsics
	Poses      []Pose
}

// SolveExtrinsics estimates the rigid pose between two cameras whose intrinsics are already
// known and held fixed. Board poses are estimated from the corners.
func SolveExtrinsics(corr *Correspondences, left, right Intrinsics) (Extrinsics, error) {
	return SolveExtrinsicsSeeded(corr, CameraFit{Intrinsics: left}, CameraFit{Intrinsics: right})
}

// SolveExtrinsicsSeeded is SolveExtrinsics starting from the per-view board poses of the two
// single-camera fits. Poses are used only when there is one per view; otherwise they are
// estimated from the corners. The relative pose and every camera-1 board pose are then
// refined jointly against the corners of both cameras.
func SolveExtrinsicsSeeded(corr *Correspondences, left, right CameraFit) (Extrinsics, error) {
	if corr == nil || corr.Views() < MinViews {
		views := 0
		if corr != nil {
			views = corr.Views()
		}
		return Extrinsics{}, fmt.Errorf("%w: stereo solve needs %d views, got %d", ErrInsufficientViews, MinViews, views)
	}
	if err := left.Intrinsics.CheckValid(); err != nil {
		return Extrinsics{}, fmt.Errorf("left intrinsics: %w", err)
	}
	if err := right.Intrinsics.CheckValid(); err != nil {
		return Extrinsics{}, fmt.Errorf("right intrinsics: %w", err)
	}

	views := corr.Views()
	objects := corr.ObjectPoints()
	leftPoses, err := seedPoses(left, objects, corr.ImagePoints1(), "camera 1")
	if err != nil {
		return Extrinsics{}, err
	}
	rightPoses, err := seedPoses(right, objects, corr.ImagePoints2(), "camera 2")
	if err != nil {
		return Extrinsics{}, err
	}

	rotationSum := mat.NewDense(3, 3, nil)
	var translationSum r3.Vector
	for i := 0; i < views; i++ {
		var rel mat.Dense
		rel.Mul(rightPoses[i].R, leftPoses[i].R.T())
		rotationSum.Add(rotationSum, &rel)
		translationSum = translationSum.Add(rightPoses[i].T.Sub(mulVec(&rel, leftPoses[i].T)))
	}
	r0, ok := nearestRotation(rotationSum)
	if !ok {
		return Extrinsics{}, fmt.Errorf("%w: rotation averaging failed", ErrDegenerateGeometry)
	}
	t0 := translationSum.Mul(1 / float64(views))

	prob := &stereoProblem{
		objects: objects,
		image1:  corr.ImagePoints1(),
		image2:  corr.ImagePoints2(),
		left:    left.Intrinsics,
		right:   right.Intrinsics,
	}
	x0 := make([]float64, 0, 6+6*views)
	x0 = appendPose(x0, Pose{R: r0, T: t0})
	for _, p := range leftPoses {
		x0 = appendPose(x0, p)
	}

	best, bestCost := levenbergMarquardt(prob.residuals, x0, prob.size(), 100)

	viewRMS := prob.viewRMS(best)
	ext := Extrinsics{
		R:       Rodrigues(r3.Vector{X: best[0], Y: best[1], Z: best[2]}),
		T:       r3.Vector{X: best[3], Y: best[4], Z: best[5]},
		RMS:     math.Sqrt(bestCost / float64(prob.size()/2)),
		ViewRMS: viewRMS,
	}

	if !isFiniteMatrix(ext.R) || !isFiniteVector(ext.T) || math.IsNaN(ext.RMS) || math.IsInf(ext.RMS, 0) {
		return Extrinsics{}, fmt.Errorf("%w: stereo solve produced non-finite pose", ErrCalibrationFailed)
	}
	if ext.Baseline() < 1e-12 {
		return Extrinsics{}, fmt.Errorf("%w: cameras share an optical center", ErrDegenerateGeometry)
	}
	return ext, nil
}

func seedPoses(fit CameraFit, objects [][]r3.Vector, images [][]r2.Point, camera string) ([]Pose, error) {
	if len(fit.Poses) == len(objects) {
		poses := make([]Pose, len(fit.Poses))
		valid := true
		for i, p := range fit.Poses {
			if p.R == nil || !isFiniteMatrix(p.R) || !isFiniteVector(p.T) {
				valid = false
				break
			}
			poses[i] = p
		}
		if valid {
			return poses, nil
		}
	}

	poses := make([]Pose, len(objects))
	for i := range objects {
		p, err := EstimatePlanarPose(fit.Intrinsics, objects[i], images[i])
		if err != nil {
			return nil, fmt.Errorf("view %d %s pose: %w", i, camera, err)
		}
		poses[i] = p
	}
	return poses, nil
}

func appendPose(x []float64, p Pose) []float64 {
	rv := RotationVector(p.R)
	return append(x, rv.X, rv.Y, rv.Z, p.T.X, p.T.Y, p.T.Z)
}

func poseAt(x []float64, offset int) Pose {
	return Pose{
		R: Rodrigues(r3.Vector{X: x[offset], Y: x[offset+1], Z: x[offset+2]}),
		T: r3.Vector{X: x[offset+3], Y: x[offset+4], Z: x[offset+5]},
	}
}

// stereoProblem packs the relative pose (rotation vector then translation) followed by one
// camera-1 board pose per view. Residuals are the pixel errors of every corner in camera 1
// and then camera 2, view by view.
type stereoProblem struct {
	objects [][]r3.Vector
	image1  [][]r2.Point
	image2  [][]r2.Point
	left    Intrinsics
	right   Intrinsics
}

// behindCamera is the residual assigned to each coordinate of a point that projects behind a
// camera.
const behindCamera = 1e3

func (p *stereoProblem) size() int {
	n := 0
	for _, object := range p.objects {
		n += 4 * len(object)
	}
	return n
}

func (p *stereoProblem) residuals(dst, x []float64) {
	rel := poseAt(x, 0)
	k := 0
	for i, object := range p.objects {
		board := poseAt(x, 6+6*i)
		for j, pt := range object {
			c1 := board.Apply(pt)
			k = putResidual(dst, k, p.left, c1, p.image1[i][j])
			k = putResidual(dst, k, p.right, rel.Apply(c1), p.image2[i][j])
		}
	}
}

func putResidual(dst []float64, k int, in Intrinsics, c r3.Vector, observed r2.Point) int {
	projected, ok := in.Project(c)
	if !ok {
		dst[k], dst[k+1] = behindCamera, behindCamera
		return k + 2
	}
	dst[k] = projected.X - observed.X
	dst[k+1] = projected.Y - observed.Y
	return k + 2
}

func (p *stereoProblem) viewRMS(x []float64) []float64 {
	r := make([]float64, p.size())
	p.residuals(r, x)

	out := make([]float64, len(p.objects))
	k := 0
	for i, object := range p.objects {
		n := 4 * len(object)
		var sum float64
		for _, v := range r[k : k+n] {
			sum += v * v
		}
		if n > 0 {
			out[i] = math.Sqrt(sum / float64(n/2))
		}
		k += n
	}
	return out
}
