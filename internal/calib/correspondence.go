package calib

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Correspondences accumulates board views seen by both cameras. The three sequences always
// have the same length: a view is added to all of them or to none.
type Correspondences struct {
	objectPoints [][]r3.Vector
	imagePoints1 [][]r2.Point
	imagePoints2 [][]r2.Point
}

func NewCorrespondences() *Correspondences {
	return &Correspondences{}
}

// Add records one view of the board. Both corner sets must match the board's corner count.
func (c *Correspondences) Add(board *Checkerboard, left, right []r2.Point) error {
	if len(left) != board.Len() || len(right) != board.Len() {
		return fmt.Errorf("corner count mismatch: board has %d, left %d, right %d",
			board.Len(), len(left), len(right))
	}

	l := make([]r2.Point, len(left))
	copy(l, left)
	r := make([]r2.Point, len(right))
	copy(r, right)

	c.objectPoints = append(c.objectPoints, board.Points())
	c.imagePoints1 = append(c.imagePoints1, l)
	c.imagePoints2 = append(c.imagePoints2, r)
	return nil
}

// Views returns the number of recorded views.
func (c *Correspondences) Views() int {
	return len(c.objectPoints)
}

func (c *Correspondences) ObjectPoints() [][]r3.Vector {
	return c.objectPoints
}

func (c *Correspondences) ImagePoints1() [][]r2.Point {
	return c.imagePoints1
}

func (c *Correspondences) ImagePoints2() [][]r2.Point {
	return c.imagePoints2
}
