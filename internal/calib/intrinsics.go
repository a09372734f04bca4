package calib

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Distortion is the five-term Brown-Conrady lens model in OpenCV coefficient order
// (k1, k2, p1, p2, k3), applied to normalized image coordinates.
type Distortion struct {
	K1 float64
	K2 float64
	P1 float64
	P2 float64
	K3 float64
}

// NewDistortion reads up to five coefficients in OpenCV order. Missing trailing terms are zero.
func NewDistortion(coeffs []float64) (Distortion, error) {
	if len(coeffs) > 5 {
		return Distortion{}, fmt.Errorf("expected at most 5 distortion coefficients, got %d", len(coeffs))
	}
	padded := make([]float64, 5)
	copy(padded, coeffs)
	return Distortion{K1: padded[0], K2: padded[1], P1: padded[2], P2: padded[3], K3: padded[4]}, nil
}

// Coefficients returns the model in OpenCV order.
func (d Distortion) Coefficients() []float64 {
	return []float64{d.K1, d.K2, d.P1, d.P2, d.K3}
}

// Apply maps an undistorted normalized point to its distorted position.
func (d Distortion) Apply(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	radial := 1 + d.K1*r2 + d.K2*r2*r2 + d.K3*r2*r2*r2
	xd := x*radial + 2*d.P1*x*y + d.P2*(r2+2*x*x)
	yd := y*radial + d.P1*(r2+2*y*y) + 2*d.P2*x*y
	return xd, yd
}

// Remove inverts Apply with Newton-Raphson iterations, starting from the distorted point.
func (d Distortion) Remove(xd, yd float64) (float64, float64) {
	const (
		maxIterations = 20
		tolerance     = 1e-12
	)

	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		r2 := xu*xu + yu*yu
		r4 := r2 * r2
		radial := 1 + d.K1*r2 + d.K2*r4 + d.K3*r4*r2

		ex := xu*radial + 2*d.P1*xu*yu + d.P2*(r2+2*xu*xu) - xd
		ey := yu*radial + d.P1*(r2+2*yu*yu) + 2*d.P2*xu*yu - yd
		if ex*ex+ey*ey < tolerance*tolerance {
			break
		}

		dRadial := d.K1 + 2*d.K2*r2 + 3*d.K3*r4
		jxx := radial + 2*xu*xu*dRadial + 2*d.P1*yu + 6*d.P2*xu
		jxy := 2*xu*yu*dRadial + 2*d.P1*xu + 2*d.P2*yu
		jyx := 2*xu*yu*dRadial + 2*d.P2*yu + 2*d.P1*xu
		jyy := radial + 2*yu*yu*dRadial + 2*d.P2*xu + 6*d.P1*yu

		det := jxx*jyy - jxy*jyx
		if det == 0 {
			break
		}
		xu -= (jyy*ex - jxy*ey) / det
		yu -= (-jyx*ex + jxx*ey) / det
	}
	return xu, yu
}

// Intrinsics is one camera's lens model: pinhole matrix plus distortion. RMS is the
// reprojection error reported by the solver that produced it, in pixels.
type Intrinsics struct {
	Fx         float64
	Fy         float64
	Cx         float64
	Cy         float64
	Distortion Distortion
	RMS        float64
}

// CheckValid rejects models a solver could not have meaningfully produced.
func (in Intrinsics) CheckValid() error {
	for _, v := range append([]float64{in.Fx, in.Fy, in.Cx, in.Cy, in.RMS}, in.Distortion.Coefficients()...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite intrinsic parameter", ErrCalibrationFailed)
		}
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("%w: invalid focal length fx=%v fy=%v", ErrCalibrationFailed, in.Fx, in.Fy)
	}
	return nil
}

// CameraMatrix returns
//
//	[[fx 0 cx],
//	 [0 fy cy],
//	 [0  0  1]]
func (in Intrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		in.Fx, 0, in.Cx,
		0, in.Fy, in.Cy,
		0, 0, 1,
	})
}

// Project maps a point in camera coordinates to a distorted pixel. ok is false for points
// at or behind the camera plane.
func (in Intrinsics) Project(p r3.Vector) (px r2.Point, ok bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	x, y := in.Distortion.Apply(p.X/p.Z, p.Y/p.Z)
	return r2.Point{X: in.Fx*x + in.Cx, Y: in.Fy*y + in.Cy}, true
}

// Normalize maps a distorted pixel to undistorted normalized coordinates.
func (in Intrinsics) Normalize(px r2.Point) r2.Point {
	x, y := in.Distortion.Remove((px.X-in.Cx)/in.Fx, (px.Y-in.Cy)/in.Fy)
	return r2.Point{X: x, Y: y}
}
