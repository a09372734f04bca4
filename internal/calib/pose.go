package calib

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform taking points from a source frame into a camera frame: x' = R x + T.
type Pose struct {
	R *mat.Dense
	T r3.Vector
}

func (p Pose) Apply(x r3.Vector) r3.Vector {
	return mulVec(p.R, x).Add(p.T)
}

// EstimatePlanarPose recovers the pose of a planar target (all z = 0) from its projections in a
// camera with known intrinsics. The image points are undistorted first, the plane-to-image
// homography is solved by normalized DLT and decomposed into rotation and translation.
func EstimatePlanarPose(in Intrinsics, object []r3.Vector, image []r2.Point) (Pose, error) {
	if len(object) != len(image) {
		return Pose{}, fmt.Errorf("point count mismatch: %d object, %d image", len(object), len(image))
	}
	if len(object) < 4 {
		return Pose{}, fmt.Errorf("%w: planar pose needs at least 4 points, got %d", ErrDegenerateGeometry, len(object))
	}

	src := make([]r2.Point, len(object))
	dst := make([]r2.Point, len(image))
	for i := range object {
		if math.Abs(object[i].Z) > 1e-9 {
			return Pose{}, fmt.Errorf("%w: target point %d is off the z=0 plane", ErrDegenerateGeometry, i)
		}
		src[i] = r2.Point{X: object[i].X, Y: object[i].Y}
		dst[i] = in.Normalize(image[i])
	}

	h, err := homography(src, dst)
	if err != nil {
		return Pose{}, err
	}

	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return Pose{}, fmt.Errorf("%w: homography has no rotational part", ErrDegenerateGeometry)
	}
	lambda := 1 / norm
	// The target must lie in front of the camera.
	if h3.Z < 0 {
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2v := h2.Mul(lambda)
	r3v := r1.Cross(r2v)
	t := h3.Mul(lambda)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rot, ok := nearestRotation(approx)
	if !ok {
		return Pose{}, fmt.Errorf("%w: rotation orthonormalization failed", ErrDegenerateGeometry)
	}

	return Pose{R: rot, T: t}, nil
}

// homography solves dst ~ H src with the normalized direct linear transform.
func homography(src, dst []r2.Point) (*mat.Dense, error) {
	ts, ok := similarityNormalizer(src)
	if !ok {
		return nil, fmt.Errorf("%w: source points are coincident", ErrDegenerateGeometry)
	}
	td, ok := similarityNormalizer(dst)
	if !ok {
		return nil, fmt.Errorf("%w: image points are coincident", ErrDegenerateGeometry)
	}

	// Four points give eight equations; pad to a square system so the SVD exposes all nine
	// singular values.
	rows := 2 * len(src)
	if rows < 9 {
		rows = 9
	}
	a := mat.NewDense(rows, 9, nil)
	for i := range src {
		x, y := applyNormalizer(ts, src[i])
		u, v := applyNormalizer(td, dst[i])
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, fmt.Errorf("%w: homography SVD did not converge", ErrDegenerateGeometry)
	}
	values := svd.Values(nil)
	// A rank below 8 means the points do not pin down a unique homography.
	if len(values) < 9 || values[7] < 1e-9*values[0] {
		return nil, fmt.Errorf("%w: points are collinear", ErrDegenerateGeometry)
	}

	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	var h mat.Dense
	h.Product(&tdInv, hn, ts)
	return &h, nil
}

// similarityNormalizer returns the transform moving the centroid to the origin with a mean
// distance of sqrt(2).
func similarityNormalizer(pts []r2.Point) (*mat.Dense, bool) {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))

	var mean float64
	for _, p := range pts {
		mean += p.Sub(c).Norm()
	}
	mean /= float64(len(pts))
	if mean < 1e-15 {
		return nil, false
	}

	s := math.Sqrt2 / mean
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	}), true
}

func applyNormalizer(t mat.Matrix, p r2.Point) (float64, float64) {
	return t.At(0, 0)*p.X + t.At(0, 2), t.At(1, 1)*p.Y + t.At(1, 2)
}
