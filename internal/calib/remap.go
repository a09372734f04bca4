package calib

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RectificationMap is the per-camera mapping between source and rectified pixels, the model
// behind OpenCV's initUndistortRectifyMap tables. It is built once per calibration and only
// read afterwards.
type RectificationMap struct {
	Width  int
	Height int

	intrinsics Intrinsics
	rotation   *mat.Dense // rectifying rotation
	projection *mat.Dense // rectified camera matrix, left 3x3 of P
	inverse    *mat.Dense // (projection * rotation)^-1
}

// NewRectificationMap builds the mapping for one camera from its intrinsics, its rectifying
// rotation and its rectified projection matrix (3x4; only the left 3x3 block is used).
func NewRectificationMap(in Intrinsics, rotation, projection mat.Matrix, size image.Point) (*RectificationMap, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid map size %v", size)
	}
	if err := in.CheckValid(); err != nil {
		return nil, err
	}

	newK := mat.DenseCopyOf(projection).Slice(0, 3, 0, 3).(*mat.Dense)
	var kr, inv mat.Dense
	kr.Mul(newK, rotation)
	if err := inv.Inverse(&kr); err != nil {
		return nil, fmt.Errorf("%w: rectified projection is singular: %v", ErrDegenerateGeometry, err)
	}

	return &RectificationMap{
		Width:      size.X,
		Height:     size.Y,
		intrinsics: in,
		rotation:   mat.DenseCopyOf(rotation),
		projection: mat.DenseCopyOf(newK),
		inverse:    &inv,
	}, nil
}

// RectifiedToSource maps a rectified pixel to the raw, distorted source pixel.
func (m *RectificationMap) RectifiedToSource(p r2.Point) r2.Point {
	ray := mulVec(m.inverse, r3.Vector{X: p.X, Y: p.Y, Z: 1})
	x, y := m.intrinsics.Distortion.Apply(ray.X/ray.Z, ray.Y/ray.Z)
	return r2.Point{
		X: m.intrinsics.Fx*x + m.intrinsics.Cx,
		Y: m.intrinsics.Fy*y + m.intrinsics.Cy,
	}
}

// SourceToRectified is the inverse of RectifiedToSource: it removes lens distortion, applies
// the rectifying rotation and projects with the rectified camera.
func (m *RectificationMap) SourceToRectified(p r2.Point) r2.Point {
	n := m.intrinsics.Normalize(p)
	ray := mulVec(m.rotation, r3.Vector{X: n.X, Y: n.Y, Z: 1})
	img := mulVec(m.projection, ray)
	return r2.Point{X: img.X / img.Z, Y: img.Y / img.Z}
}

// RectifyPoints maps raw pixels into rectified coordinates.
func (m *RectificationMap) RectifyPoints(pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = m.SourceToRectified(p)
	}
	return out
}
