package calib

import (
	"fmt"
	"image"

	"github.com/golang/geo/r3"
)

// Checkerboard holds the inner-corner positions of a planar calibration target in the
// target's own frame. Points are ordered row by row with the column index varying fastest,
// which is the scan order of OpenCV's chessboard detector.
type Checkerboard struct {
	cols   int
	rows   int
	square float64
	points []r3.Vector
}

// NewCheckerboard builds the target model for a board with cols x rows inner corners and
// square edges of the given length in meters.
func NewCheckerboard(cols, rows int, square float64) (*Checkerboard, error) {
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("checkerboard needs at least 2x2 inner corners, got %dx%d", cols, rows)
	}
	if !(square > 0) {
		return nil, fmt.Errorf("checkerboard square size must be positive, got %v", square)
	}

	points := make([]r3.Vector, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			points = append(points, r3.Vector{X: float64(col) * square, Y: float64(row) * square})
		}
	}

	return &Checkerboard{cols: cols, rows: rows, square: square, points: points}, nil
}

// Size returns the grid as (columns, rows), the pattern size corner detectors expect.
func (b *Checkerboard) Size() image.Point {
	return image.Pt(b.cols, b.rows)
}

func (b *Checkerboard) Len() int {
	return len(b.points)
}

func (b *Checkerboard) SquareSize() float64 {
	return b.square
}

// Points returns a copy of the corner positions.
func (b *Checkerboard) Points() []r3.Vector {
	out := make([]r3.Vector, len(b.points))
	copy(out, b.points)
	return out
}
