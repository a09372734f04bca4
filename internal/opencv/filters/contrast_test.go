package filters

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"stereo-mapper/internal/opencv/conversion"
	"stereo-mapper/internal/opencv/safe"
)

func TestContrastKeepsShape(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Pix[y*img.Stride+x] = uint8(100 + (x/8)%2*10)
		}
	}
	src, err := conversion.GrayToMat(img)
	require.NoError(t, err)
	defer src.Close()

	out, err := NewContrast().Apply(src)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, src.Size(), out.Size())
	assert.Equal(t, gocv.MatTypeCV8UC1, out.Type())
	assert.NotSame(t, src, out)
}

func TestContrastRejectsColor(t *testing.T) {
	src, err := safe.NewMat(8, 8, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	defer src.Close()

	_, err = NewContrast().Apply(src)
	assert.Error(t, err)
}
