package cloud

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"stereo-mapper/internal/stereo"
)

// testQ is the disparity-to-depth matrix of a rectified pair with focal length f, principal
// point (cx, cy) in both cameras and baseline b along x.
func testQ(f, cx, cy, b float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, -cx,
		0, 1, 0, -cy,
		0, 0, 0, f,
		0, 0, 1 / b, 0,
	})
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestReprojectMaskLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		disp := stereo.NewDisparityFrame(32, 24, -1)
		for i := range disp.Data {
			// Coarse values so ties with the minimum are common.
			disp.Data[i] = float32(rng.Intn(6)) - 1
		}
		lo, _ := disp.MinMax()
		want := 0
		for _, d := range disp.Data {
			if d > lo {
				want++
			}
		}

		pc, err := Reproject(disp, solidImage(32, 24, color.RGBA{A: 255}), testQ(500, 16, 12, 0.1), MaskRelativeMin)
		require.NoError(t, err)
		assert.Equal(t, want, pc.Len(), "trial %d", trial)
	}
}

func TestReprojectConstantFrameIsEmpty(t *testing.T) {
	disp := stereo.NewDisparityFrame(8, 8, -1)
	for i := range disp.Data {
		disp.Data[i] = 7
	}

	pc, err := Reproject(disp, solidImage(8, 8, color.RGBA{A: 255}), testQ(500, 4, 4, 0.1), MaskRelativeMin)
	require.NoError(t, err)
	assert.Zero(t, pc.Len())

	_, _, ok := pc.Bounds()
	assert.False(t, ok)
}

func TestReprojectSentinelMode(t *testing.T) {
	disp := stereo.NewDisparityFrame(4, 1, -1)
	disp.Set(0, 0, 2)
	disp.Set(1, 0, float32(math.Inf(1)))
	disp.Set(2, 0, -3) // below the marker: dropped by relative-min, kept by sentinel

	img := solidImage(4, 1, color.RGBA{A: 255})
	q := testQ(100, 0, 0, 1)

	pc, err := Reproject(disp, img, q, MaskSentinel)
	require.NoError(t, err)
	assert.Equal(t, 2, pc.Len())

	pc, err = Reproject(disp, img, q, MaskRelativeMin)
	require.NoError(t, err)
	assert.Equal(t, 3, pc.Len())
}

func TestReprojectGeometryAndColor(t *testing.T) {
	disp := stereo.NewDisparityFrame(3, 2, -1)
	disp.Set(2, 1, 10)

	img := solidImage(3, 2, color.RGBA{A: 255})
	img.SetRGBA(2, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	pc, err := Reproject(disp, img, testQ(500, 1, 0.5, 0.2), MaskRelativeMin)
	require.NoError(t, err)
	require.Equal(t, 1, pc.Len())

	// z = f*b/d, x = (u-cx)*b/d, y = (v-cy)*b/d
	p := pc.Points[0]
	assert.InDelta(t, 10, p.Position.Z, 1e-9)
	assert.InDelta(t, 0.02, p.Position.X, 1e-9)
	assert.InDelta(t, 0.01, p.Position.Y, 1e-9)
	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, p.Color)
}

func TestReprojectZeroDisparityKeepsPoint(t *testing.T) {
	disp := stereo.NewDisparityFrame(2, 1, -1)
	disp.Set(1, 0, 0)

	pc, err := Reproject(disp, solidImage(2, 1, color.RGBA{A: 255}), testQ(500, 0, 0, 0.1), MaskRelativeMin)
	require.NoError(t, err)
	require.Equal(t, 1, pc.Len())
	assert.True(t, math.IsInf(pc.Points[0].Position.Z, 0))
}

func TestReprojectRejectsBadInput(t *testing.T) {
	disp := stereo.NewDisparityFrame(4, 4, -1)
	img := solidImage(4, 4, color.RGBA{})
	q := testQ(1, 0, 0, 1)

	_, err := Reproject(nil, img, q, MaskRelativeMin)
	assert.Error(t, err)
	_, err = Reproject(disp, nil, q, MaskRelativeMin)
	assert.Error(t, err)
	_, err = Reproject(disp, solidImage(3, 4, color.RGBA{}), q, MaskRelativeMin)
	assert.Error(t, err)
	_, err = Reproject(disp, img, mat.NewDense(3, 3, nil), MaskRelativeMin)
	assert.Error(t, err)
	_, err = Reproject(disp, img, q, MaskMode("nearest"))
	assert.Error(t, err)
}

func TestParseMaskMode(t *testing.T) {
	m, err := ParseMaskMode("Sentinel")
	require.NoError(t, err)
	assert.Equal(t, MaskSentinel, m)

	m, err = ParseMaskMode("")
	require.NoError(t, err)
	assert.Equal(t, MaskRelativeMin, m)

	_, err = ParseMaskMode("strict")
	assert.Error(t, err)
}

func TestFrontalPlaneReprojectsToConstantDepth(t *testing.T) {
	const width, height, shift = 96, 48, 6
	const focal, baseline = 480.0, 0.1

	rng := rand.New(rand.NewSource(5))
	left := image.NewGray(image.Rect(0, 0, width, height))
	right := image.NewGray(image.Rect(0, 0, width, height))
	for i := range left.Pix {
		left.Pix[i] = uint8(rng.Intn(256))
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x+shift < width {
				right.SetGray(x, y, left.GrayAt(x+shift, y))
			}
		}
	}

	cfg := stereo.DefaultBlockMatcherConfig()
	cfg.SubPixel = false
	bm, err := stereo.NewBlockMatcher(cfg)
	require.NoError(t, err)
	disp, err := bm.Compute(left, right)
	require.NoError(t, err)
	require.Greater(t, disp.ValidCount(), 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if disp.Valid(x, y) {
				require.Equal(t, float32(shift), disp.At(x, y))
			}
		}
	}

	pc, err := Reproject(disp, solidImage(width, height, color.RGBA{R: 9, A: 255}), testQ(focal, width/2, height/2, baseline), MaskRelativeMin)
	require.NoError(t, err)
	assert.Equal(t, disp.ValidCount(), pc.Len())

	wantZ := focal * baseline / shift
	for _, p := range pc.Points {
		assert.InDelta(t, wantZ, p.Position.Z, 1e-9)
	}

	lo, hi, ok := pc.Bounds()
	require.True(t, ok)
	assert.InDelta(t, wantZ, lo.Z, 1e-9)
	assert.InDelta(t, wantZ, hi.Z, 1e-9)
	assert.Less(t, lo.X, hi.X)
}
