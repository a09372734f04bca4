package calib

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckerboard(t *testing.T) {
	board, err := NewCheckerboard(9, 6, 0.025)
	require.NoError(t, err)

	points := board.Points()
	require.Len(t, points, 54)
	assert.Equal(t, 9, board.Size().X)
	assert.Equal(t, 6, board.Size().Y)

	for i, p := range points {
		assert.Zero(t, p.Z, "point %d", i)
	}

	// Column index varies fastest.
	assert.InDelta(t, 0.025, points[1].X, 1e-12)
	assert.InDelta(t, 0.0, points[1].Y, 1e-12)
	assert.InDelta(t, 0.0, points[9].X, 1e-12)
	assert.InDelta(t, 0.025, points[9].Y, 1e-12)
	assert.InDelta(t, 8*0.025, points[53].X, 1e-12)
	assert.InDelta(t, 5*0.025, points[53].Y, 1e-12)
}

func TestCheckerboardDeterministic(t *testing.T) {
	a, err := NewCheckerboard(9, 6, 0.025)
	require.NoError(t, err)
	b, err := NewCheckerboard(9, 6, 0.025)
	require.NoError(t, err)
	assert.Equal(t, a.Points(), b.Points())
}

func TestCheckerboardScalesLinearly(t *testing.T) {
	a, err := NewCheckerboard(9, 6, 0.025)
	require.NoError(t, err)
	b, err := NewCheckerboard(9, 6, 0.05)
	require.NoError(t, err)

	pa, pb := a.Points(), b.Points()
	for i := range pa {
		assert.InDelta(t, 2*pa[i].X, pb[i].X, 1e-12)
		assert.InDelta(t, 2*pa[i].Y, pb[i].Y, 1e-12)
	}
}

func TestCheckerboardPointsIsACopy(t *testing.T) {
	board, err := NewCheckerboard(3, 3, 1)
	require.NoError(t, err)
	p := board.Points()
	p[0].X = 42
	assert.Zero(t, board.Points()[0].X)
}

func TestNewCheckerboardRejectsBadInput(t *testing.T) {
	_, err := NewCheckerboard(1, 6, 0.025)
	assert.Error(t, err)
	_, err = NewCheckerboard(9, 6, 0)
	assert.Error(t, err)
	_, err = NewCheckerboard(9, 6, -1)
	assert.Error(t, err)
}

func TestCorrespondencesAdd(t *testing.T) {
	board, err := NewCheckerboard(3, 2, 0.1)
	require.NoError(t, err)
	corners := make([]r2.Point, board.Len())

	corr := NewCorrespondences()
	require.NoError(t, corr.Add(board, corners, corners))
	assert.Equal(t, 1, corr.Views())

	err = corr.Add(board, corners, corners[:2])
	assert.Error(t, err)
	assert.Equal(t, 1, corr.Views())
	assert.Len(t, corr.ObjectPoints(), 1)
	assert.Len(t, corr.ImagePoints1(), 1)
	assert.Len(t, corr.ImagePoints2(), 1)
}
