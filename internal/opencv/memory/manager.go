package memory

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"stereo-mapper/internal/logger"
	"stereo-mapper/internal/opencv/safe"
)

// Manager recycles frame-sized Mats between loop iterations so the live loop does not
// allocate a fresh camera buffer per frame.
type Manager struct {
	pools       map[PoolKey]*bucket
	allocations map[uint64]int64
	perKey      int
	mu          sync.Mutex
	stats       Stats
	logger      logger.Logger
}

type PoolKey struct {
	Rows    int
	Cols    int
	MatType gocv.MatType
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PoolHits       int64
	PoolMisses     int64
	MaxAllowed     int64
}

func NewManager(log logger.Logger, perKey int) *Manager {
	if perKey <= 0 {
		perKey = 4
	}
	return &Manager{
		pools:       make(map[PoolKey]*bucket),
		allocations: make(map[uint64]int64),
		perKey:      perKey,
		stats: Stats{
			MaxAllowed: 512 * 1024 * 1024,
		},
		logger: log,
	}
}

// GetMat returns a Mat of the requested shape, reusing a pooled one when possible. Pixel
// content of a reused Mat is stale.
func (m *Manager) GetMat(rows, cols int, matType gocv.MatType) (*safe.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stats.TotalAllocated-m.stats.TotalReleased > m.stats.MaxAllowed {
		return nil, fmt.Errorf("memory limit exceeded: %d bytes allocated",
			m.stats.TotalAllocated-m.stats.TotalReleased)
	}

	key := PoolKey{Rows: rows, Cols: cols, MatType: matType}
	size := safe.ByteSize(rows, cols, matType)

	if pool, exists := m.pools[key]; exists {
		if mat := pool.get(); mat != nil {
			m.stats.PoolHits++
			m.track(mat, size)
			return mat, nil
		}
	}

	m.stats.PoolMisses++
	mat, err := safe.NewMatWithTag(rows, cols, matType, "pooled")
	if err != nil {
		return nil, err
	}
	m.track(mat, size)

	m.logger.Debug("MemoryManager", "allocated Mat", map[string]interface{}{
		"rows": rows, "cols": cols, "bytes": size,
	})
	return mat, nil
}

func (m *Manager) track(mat *safe.Mat, size int64) {
	m.allocations[mat.ID()] = size
	m.stats.TotalAllocated += size
	m.stats.ActiveMats++
}

// ReleaseMat hands a Mat back. Untracked Mats and Mats beyond the pool bound are closed.
func (m *Manager) ReleaseMat(mat *safe.Mat) {
	if mat == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	size, exists := m.allocations[mat.ID()]
	if !exists {
		m.logger.Warning("MemoryManager", "releasing untracked Mat", map[string]interface{}{
			"tag": mat.Tag(),
		})
		mat.Close()
		return
	}
	delete(m.allocations, mat.ID())
	m.stats.TotalReleased += size
	m.stats.ActiveMats--

	key := PoolKey{Rows: mat.Rows(), Cols: mat.Cols(), MatType: mat.Type()}
	pool, ok := m.pools[key]
	if !ok {
		pool = newBucket(m.perKey)
		m.pools[key] = pool
	}
	if !pool.put(mat) {
		mat.Close()
	}
}

func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// MemoryFields reports the pool counters as log fields.
func (m *Manager) MemoryFields() map[string]interface{} {
	stats := m.GetStats()
	return map[string]interface{}{
		"active_mats":  stats.ActiveMats,
		"pooled_mats":  m.Pooled(),
		"pool_hits":    stats.PoolHits,
		"pool_misses":  stats.PoolMisses,
		"bytes_in_use": stats.TotalAllocated - stats.TotalReleased,
	}
}

// Pooled returns the number of idle Mats across all shapes.
func (m *Manager) Pooled() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, pool := range m.pools {
		n += pool.size()
	}
	return n
}

// Cleanup closes pooled Mats. Mats still handed out stay with their holders.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	matCount := 0
	for key, pool := range m.pools {
		matCount += pool.cleanup()
		delete(m.pools, key)
	}

	m.logger.Debug("MemoryManager", "pool cleaned up", map[string]interface{}{
		"closed": matCount,
	})
}
