package orchestrator

import (
	"context"
	"runtime"

	"dogspeed/internal/metrics"
)

// HeapStats is the part of the allocator state the compactor looks at.
type HeapStats struct {
	Alloc uint64
	Free  uint64
}

func readHeap() HeapStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	free := uint64(0)
	if ms.HeapSys > ms.HeapAlloc {
		free = ms.HeapSys - ms.HeapAlloc
	}
	return HeapStats{Alloc: ms.HeapAlloc, Free: free}
}

// Compactor forces a collection once the live heap passes a moving
// threshold, then resets the threshold to free/4 + alloc.
type Compactor struct {
	read    func() HeapStats
	collect func()
	metrics *metrics.Metrics

	threshold   uint64
	collections uint64
}

func NewCompactor(m *metrics.Metrics) *Compactor {
	return &Compactor{read: readHeap, collect: runtime.GC, metrics: m}
}

func (c *Compactor) Threshold() uint64 { return c.threshold }

func (c *Compactor) Collections() uint64 { return c.collections }

// Step runs one compaction check. The first call always collects.
func (c *Compactor) Step(ctx context.Context) error {
	st := c.read()
	collected := false
	if c.threshold == 0 || st.Alloc > c.threshold {
		c.collect()
		c.collections++
		collected = true
		st = c.read()
	}
	c.threshold = st.Free/4 + st.Alloc
	c.metrics.Heap(st.Alloc, c.threshold, collected)
	return nil
}
