package memory

import (
	"sync"

	"stereo-mapper/internal/opencv/safe"
)

// bucket is a bounded stack of same-shape Mats.
type bucket struct {
	mats    []*safe.Mat
	maxSize int
	mu      sync.Mutex
}

func newBucket(maxSize int) *bucket {
	return &bucket{
		mats:    make([]*safe.Mat, 0, maxSize),
		maxSize: maxSize,
	}
}

func (b *bucket) get() *safe.Mat {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.mats) > 0 {
		mat := b.mats[len(b.mats)-1]
		b.mats = b.mats[:len(b.mats)-1]
		if mat.IsValid() && !mat.Empty() {
			return mat
		}
		mat.Close()
	}
	return nil
}

func (b *bucket) put(mat *safe.Mat) bool {
	if mat == nil || !mat.IsValid() || mat.Empty() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.mats) >= b.maxSize {
		return false
	}
	b.mats = append(b.mats, mat)
	return true
}

func (b *bucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mats)
}

func (b *bucket) cleanup() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := len(b.mats)
	for _, mat := range b.mats {
		mat.Close()
	}
	b.mats = b.mats[:0]
	return count
}
