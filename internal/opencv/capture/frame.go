package capture

import (
	"fmt"
	"image"
	"sync"

	"stereo-mapper/internal/opencv/memory"
	"stereo-mapper/internal/opencv/safe"
	"stereo-mapper/internal/pipeline"
)

// Frame is a BGR camera image backed by a pooled Mat. Close hands the Mat back to the pool;
// the Mat must not be used afterwards.
type Frame struct {
	mat  *safe.Mat
	pool *memory.Manager
	once sync.Once
}

func newFrame(mat *safe.Mat, pool *memory.Manager) *Frame {
	return &Frame{mat: mat, pool: pool}
}

func (f *Frame) Size() image.Point {
	return f.mat.Size()
}

func (f *Frame) Mat() *safe.Mat {
	return f.mat
}

func (f *Frame) Close() {
	f.once.Do(func() {
		if f.pool != nil {
			f.pool.ReleaseMat(f.mat)
			return
		}
		f.mat.Close()
	})
}

// FrameMat returns the Mat behind a frame produced by this package, or the frame itself when
// it already is a safe.Mat.
func FrameMat(f pipeline.Frame) (*safe.Mat, error) {
	switch v := f.(type) {
	case *Frame:
		return v.mat, nil
	case *safe.Mat:
		return v, nil
	case nil:
		return nil, fmt.Errorf("frame is nil")
	default:
		return nil, fmt.Errorf("unsupported frame type %T", f)
	}
}
