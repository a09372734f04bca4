package calib

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type syntheticRig struct {
	board     *Checkerboard
	left      Intrinsics
	right     Intrinsics
	rotation  *mat.Dense
	translate r3.Vector
	poses     []Pose
	corr      *Correspondences
}

func newSyntheticRig(t *testing.T) *syntheticRig {
	t.Helper()

	board, err := NewCheckerboard(9, 6, 0.025)
	require.NoError(t, err)

	rig := &syntheticRig{
		board: board,
		left: Intrinsics{
			Fx: 600, Fy: 600, Cx: 320, Cy: 240,
			Distortion: Distortion{K1: -0.1, K2: 0.01, P1: 0.001},
		},
		right: Intrinsics{
			Fx: 610, Fy: 605, Cx: 326, Cy: 238,
			Distortion: Distortion{K1: -0.08, P2: -0.0005},
		},
		rotation:  Rodrigues(r3.Vector{X: 0.01, Y: -0.03, Z: 0.005}),
		translate: r3.Vector{X: -0.12, Y: 0.002, Z: 0.001},
		corr:      NewCorrespondences(),
	}

	views := []struct {
		rot   r3.Vector
		trans r3.Vector
	}{
		{r3.Vector{X: 0.1, Y: 0.05}, r3.Vector{X: -0.1, Y: -0.06, Z: 0.7}},
		{r3.Vector{X: -0.2, Y: 0.1, Z: 0.05}, r3.Vector{X: -0.08, Y: -0.05, Z: 0.8}},
		{r3.Vector{X: 0.05, Y: -0.25}, r3.Vector{X: -0.12, Y: -0.07, Z: 0.65}},
		{r3.Vector{X: 0.3, Y: 0.2, Z: -0.1}, r3.Vector{X: -0.05, Y: -0.04, Z: 0.9}},
		{r3.Vector{Y: 0.35, Z: 0.2}, r3.Vector{X: -0.1, Y: -0.08, Z: 0.75}},
	}

	for _, v := range views {
		pose := Pose{R: Rodrigues(v.rot), T: v.trans}
		rig.poses = append(rig.poses, pose)

		var left, right []r2.Point
		for _, p := range board.Points() {
			c1 := pose.Apply(p)
			c2 := mulVec(rig.rotation, c1).Add(rig.translate)
			l, ok := rig.left.Project(c1)
			require.True(t, ok)
			r, ok := rig.right.Project(c2)
			require.True(t, ok)
			left = append(left, l)
			right = append(right, r)
		}
		require.NoError(t, rig.corr.Add(board, left, right))
	}
	return rig
}

func requireMatrixNear(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	require.True(t, mat.EqualApprox(want, got, tol), "want\n%v\ngot\n%v",
		mat.Formatted(want), mat.Formatted(got))
}
