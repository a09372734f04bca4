package capture

import (
	"context"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"stereo-mapper/internal/logger"
	"stereo-mapper/internal/opencv/memory"
	"stereo-mapper/internal/opencv/safe"
)

func TestFrameReturnsMatToPool(t *testing.T) {
	pool := memory.NewManager(logger.NewNop(), 2)
	defer pool.Cleanup()

	mat, err := pool.GetMat(4, 6, gocv.MatTypeCV8UC3)
	require.NoError(t, err)

	f := newFrame(mat, pool)
	assert.Equal(t, image.Pt(6, 4), f.Size())

	f.Close()
	f.Close()
	assert.Equal(t, 1, pool.Pooled())
	assert.Zero(t, pool.GetStats().ActiveMats)
}

func TestFrameMat(t *testing.T) {
	mat, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer mat.Close()

	got, err := FrameMat(mat)
	require.NoError(t, err)
	assert.Same(t, mat, got)

	f := newFrame(mat, nil)
	got, err = FrameMat(f)
	require.NoError(t, err)
	assert.Same(t, mat, got)

	_, err = FrameMat(nil)
	assert.Error(t, err)
}

func TestOpenRigMissingSource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.avi")
	_, err := OpenRig(RigConfig{Left: missing, Right: missing}, nil, logger.NewNop())
	assert.Error(t, err)
}

func TestOpenerHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Opener(RigConfig{Left: 0, Right: 1}, nil, logger.NewNop())(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
