package stereo

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shiftedPair returns a random texture and a copy shifted left by shift pixels, so every left
// pixel at x reappears in the right image at x-shift.
func shiftedPair(width, height, shift int, seed int64) (*image.Gray, *image.Gray) {
	rng := rand.New(rand.NewSource(seed))
	left := image.NewGray(image.Rect(0, 0, width, height))
	right := image.NewGray(image.Rect(0, 0, width, height))
	for i := range left.Pix {
		left.Pix[i] = uint8(rng.Intn(256))
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x+shift < width {
				right.SetGray(x, y, left.GrayAt(x+shift, y))
			} else {
				right.Pix[right.PixOffset(x, y)] = uint8(rng.Intn(256))
			}
		}
	}
	return left, right
}

func newMatcher(t *testing.T, subPixel bool) *BlockMatcher {
	t.Helper()
	cfg := DefaultBlockMatcherConfig()
	cfg.SubPixel = subPixel
	m, err := NewBlockMatcher(cfg)
	require.NoError(t, err)
	return m
}

func TestBlockMatcherRecoversUniformShift(t *testing.T) {
	const width, height, shift = 80, 40, 5
	left, right := shiftedPair(width, height, shift, 7)
	m := newMatcher(t, false)

	disp, err := m.Compute(left, right)
	require.NoError(t, err)
	require.Equal(t, width, disp.Width)
	require.Equal(t, height, disp.Height)

	half := m.Config().BlockSize / 2
	xStart := half + m.Config().NumDisparities - 1
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			inside := x >= xStart && x < width-half && y >= half && y < height-half
			if inside {
				require.Equal(t, float32(shift), disp.At(x, y), "pixel (%d,%d)", x, y)
			} else {
				require.Equal(t, m.Invalid(), disp.At(x, y), "border pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestBlockMatcherSubPixelStaysNearIntegerShift(t *testing.T) {
	const width, height, shift = 80, 40, 9
	left, right := shiftedPair(width, height, shift, 11)
	m := newMatcher(t, true)

	disp, err := m.Compute(left, right)
	require.NoError(t, err)

	valid := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !disp.Valid(x, y) {
				continue
			}
			valid++
			assert.InDelta(t, shift, disp.At(x, y), 0.5, "pixel (%d,%d)", x, y)
		}
	}
	assert.Greater(t, valid, 0)
}

func TestBlockMatcherTexturelessInputHasNoMatches(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 64, 32))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	m := newMatcher(t, true)

	disp, err := m.Compute(flat, flat)
	require.NoError(t, err)
	assert.Zero(t, disp.ValidCount())

	lo, hi := disp.MinMax()
	assert.Equal(t, m.Invalid(), lo)
	assert.Equal(t, m.Invalid(), hi)
}

func TestBlockMatcherImageSmallerThanSearchWindow(t *testing.T) {
	left, right := shiftedPair(20, 10, 2, 3)
	m := newMatcher(t, false)

	disp, err := m.Compute(left, right)
	require.NoError(t, err)
	assert.Zero(t, disp.ValidCount())
}

func TestBlockMatcherInvalidIsBelowSearchRange(t *testing.T) {
	cfg := DefaultBlockMatcherConfig()
	cfg.MinDisparity = 4
	m, err := NewBlockMatcher(cfg)
	require.NoError(t, err)
	assert.Equal(t, float32(3), m.Invalid())
}

func TestBlockMatcherRejectsMismatchedPair(t *testing.T) {
	m := newMatcher(t, false)

	_, err := m.Compute(image.NewGray(image.Rect(0, 0, 64, 32)), image.NewGray(image.Rect(0, 0, 63, 32)))
	assert.Error(t, err)

	_, err = m.Compute(nil, image.NewGray(image.Rect(0, 0, 64, 32)))
	assert.Error(t, err)
}

func TestBlockMatcherConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BlockMatcherConfig)
	}{
		{"disparities not multiple of 16", func(c *BlockMatcherConfig) { c.NumDisparities = 20 }},
		{"zero disparities", func(c *BlockMatcherConfig) { c.NumDisparities = 0 }},
		{"even block", func(c *BlockMatcherConfig) { c.BlockSize = 14 }},
		{"tiny block", func(c *BlockMatcherConfig) { c.BlockSize = 3 }},
		{"prefilter cap", func(c *BlockMatcherConfig) { c.PreFilterCap = 64 }},
		{"negative texture threshold", func(c *BlockMatcherConfig) { c.TextureThreshold = -1 }},
		{"negative uniqueness", func(c *BlockMatcherConfig) { c.UniquenessRatio = -5 }},
	}

	require.NoError(t, DefaultBlockMatcherConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBlockMatcherConfig()
			tt.mutate(&cfg)
			_, err := NewBlockMatcher(cfg)
			assert.Error(t, err)
		})
	}
}

func TestPickRejectsAmbiguousMinimum(t *testing.T) {
	m := newMatcher(t, false)

	_, ok := m.pick([]int32{100, 10, 90, 95, 11, 100})
	assert.False(t, ok, "a second minimum within the uniqueness margin must invalidate the match")

	d, ok := m.pick([]int32{100, 10, 11, 95, 90, 100})
	assert.True(t, ok, "adjacent near-ties are allowed")
	assert.Equal(t, float32(1), d)
}

func TestPickSubPixelOffset(t *testing.T) {
	m := newMatcher(t, true)

	d, ok := m.pick([]int32{100, 40, 10, 70, 100})
	require.True(t, ok)
	// (40 - 70) / (2 * (70 - 10)) = -0.25
	assert.InDelta(t, 1.75, d, 1e-6)

	d, ok = m.pick([]int32{100, 70, 10, 70, 100})
	require.True(t, ok)
	assert.InDelta(t, 2, d, 1e-6)
}
