package calib

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestRodriguesRoundTrip(t *testing.T) {
	for _, v := range []r3.Vector{
		{},
		{X: 0.1},
		{X: 0.01, Y: -0.03, Z: 0.005},
		{X: -1.2, Y: 0.4, Z: 0.9},
		{Z: math.Pi - 1e-9},
		{X: math.Pi / math.Sqrt2, Y: -math.Pi / math.Sqrt2},
	} {
		r := Rodrigues(v)
		assert.InDelta(t, 1.0, mat.Det(r), 1e-9)

		back := RotationVector(r)
		requireMatrixNear(t, r, Rodrigues(back), 1e-6)
	}
}

func TestRodriguesQuarterTurn(t *testing.T) {
	r := Rodrigues(r3.Vector{Z: math.Pi / 2})
	got := mulVec(r, r3.Vector{X: 1})
	assert.InDelta(t, 0, got.X, 1e-12)
	assert.InDelta(t, 1, got.Y, 1e-12)
	assert.InDelta(t, 0, got.Z, 1e-12)
}

func TestNearestRotation(t *testing.T) {
	want := Rodrigues(r3.Vector{X: 0.2, Y: -0.1, Z: 0.4})
	noisy := mat.DenseCopyOf(want)
	noisy.Set(0, 1, noisy.At(0, 1)+1e-3)
	noisy.Scale(1.5, noisy)

	got, ok := nearestRotation(noisy)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, mat.Det(got), 1e-9)
	requireMatrixNear(t, want, got, 2e-3)
}
