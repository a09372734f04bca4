package calib

import (
	"fmt"
	"image"
	"math"
)

// Calibration bundles everything the live loop needs from a stereo calibration. All fields are
// written once by NewCalibration and read-only afterwards.
type Calibration struct {
	Left          Intrinsics
	Right         Intrinsics
	Extrinsics    Extrinsics
	Rectification *Rectification
	LeftMap       *RectificationMap
	RightMap      *RectificationMap
}

// NewCalibration derives rectification and both lookup maps from solved intrinsics and
// extrinsics.
func NewCalibration(left, right Intrinsics, ext Extrinsics, size image.Point) (*Calibration, error) {
	rect, err := Rectify(left, right, ext, size)
	if err != nil {
		return nil, fmt.Errorf("stereo rectification: %w", err)
	}
	leftMap, err := NewRectificationMap(left, rect.R1, rect.P1, size)
	if err != nil {
		return nil, fmt.Errorf("left rectification map: %w", err)
	}
	rightMap, err := NewRectificationMap(right, rect.R2, rect.P2, size)
	if err != nil {
		return nil, fmt.Errorf("right rectification map: %w", err)
	}

	return &Calibration{
		Left:          left,
		Right:         right,
		Extrinsics:    ext,
		Rectification: rect,
		LeftMap:       leftMap,
		RightMap:      rightMap,
	}, nil
}

// EpipolarErrors returns, for every corner pair in corr, the vertical offset between the two
// rectified positions. A good calibration keeps these well under a pixel.
func (c *Calibration) EpipolarErrors(corr *Correspondences) []float64 {
	var out []float64
	for i := 0; i < corr.Views(); i++ {
		l := c.LeftMap.RectifyPoints(corr.ImagePoints1()[i])
		r := c.RightMap.RectifyPoints(corr.ImagePoints2()[i])
		for j := range l {
			out = append(out, math.Abs(l[j].Y-r[j].Y))
		}
	}
	return out
}
