package calib

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rectification holds the rectifying rotations, the projections of the rectified cameras and
// the disparity-to-depth matrix Q for a horizontal stereo pair.
type Rectification struct {
	R1   *mat.Dense // 3x3
	R2   *mat.Dense // 3x3
	P1   *mat.Dense // 3x4
	P2   *mat.Dense // 3x4
	Q    *mat.Dense // 4x4
	Size image.Point
}

// Focal returns the shared focal length of the rectified cameras in pixels.
func (r *Rectification) Focal() float64 {
	return r.P1.At(0, 0)
}

// Rectify derives rectifying transforms so that both cameras share image rows. The relative
// rotation is split evenly between the cameras and the result is turned so the baseline lies
// along x. Principal points are kept from the input camera matrices rather than re-centered;
// only their y coordinate is averaged so corresponding rows line up. Disparity is therefore
// offset by cx1 - cx2, which Q accounts for.
func Rectify(left, right Intrinsics, ext Extrinsics, size image.Point) (*Rectification, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: invalid image size %v", ErrDegenerateGeometry, size)
	}
	if ext.R == nil {
		return nil, fmt.Errorf("%w: missing stereo rotation", ErrDegenerateGeometry)
	}

	halfInverse := Rodrigues(RotationVector(ext.R).Mul(-0.5))
	t := mulVec(halfInverse, ext.T)

	if math.Abs(t.X) < math.Abs(t.Y) {
		return nil, fmt.Errorf("%w: vertical stereo rigs are not supported", ErrDegenerateGeometry)
	}
	nt := t.Norm()
	if nt < 1e-12 {
		return nil, fmt.Errorf("%w: zero baseline", ErrDegenerateGeometry)
	}

	axis := r3.Vector{X: math.Copysign(1, t.X)}
	w := t.Cross(axis)
	if nw := w.Norm(); nw > 0 {
		w = w.Mul(math.Acos(math.Abs(t.X)/nt) / nw)
	}
	align := Rodrigues(w)

	var r1, r2 mat.Dense
	r1.Mul(align, halfInverse.T())
	r2.Mul(align, halfInverse)
	tx := mulVec(&r2, ext.T).X
	if math.Abs(tx) < 1e-12 {
		return nil, fmt.Errorf("%w: rectified baseline vanished", ErrDegenerateGeometry)
	}

	focal := math.Inf(1)
	for _, in := range []Intrinsics{left, right} {
		fc := in.Fy
		// Barrel distortion pulls the image corners in; shrink the focal length to keep them.
		if k1 := in.Distortion.K1; k1 < 0 {
			fc *= 1 + k1*float64(size.X*size.X+size.Y*size.Y)/(4*fc*fc)
		}
		focal = math.Min(focal, fc)
	}
	if !(focal > 0) || math.IsInf(focal, 0) {
		return nil, fmt.Errorf("%w: rectified focal length %v", ErrDegenerateGeometry, focal)
	}

	cx1, cx2 := left.Cx, right.Cx
	cy := (left.Cy + right.Cy) / 2

	p1 := mat.NewDense(3, 4, []float64{
		focal, 0, cx1, 0,
		0, focal, cy, 0,
		0, 0, 1, 0,
	})
	p2 := mat.NewDense(3, 4, []float64{
		focal, 0, cx2, tx * focal,
		0, focal, cy, 0,
		0, 0, 1, 0,
	})
	q := mat.NewDense(4, 4, []float64{
		1, 0, 0, -cx1,
		0, 1, 0, -cy,
		0, 0, 0, focal,
		0, 0, -1 / tx, (cx1 - cx2) / tx,
	})

	return &Rectification{R1: &r1, R2: &r2, P1: p1, P2: p2, Q: q, Size: size}, nil
}
