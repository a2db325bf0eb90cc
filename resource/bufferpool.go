package resource

import "sync"

// bufferSizeClasses are the size buckets a BufferPool maintains, each
// rounding a request up to the next class, matching
// resources.rs::BufferPool's size-bucketing strategy for avoiding an
// allocation on every bounded-copy resource access.
var bufferSizeClasses = []int{64, 256, 1024, 4096, 16384, 65536}

func classFor(size int) int {
	for _, c := range bufferSizeClasses {
		if size <= c {
			return c
		}
	}
	return size
}

// BufferPoolStats tracks reuse effectiveness, mirroring BufferPoolStats in
// the source.
type BufferPoolStats struct {
	Hits   uint64
	Misses uint64
}

// BufferPool is a size-bucketed pool of reusable byte buffers, backing the
// BoundedCopy memory strategy.
type BufferPool struct {
	mu     sync.Mutex
	free   map[int][][]byte
	stats  BufferPoolStats
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{free: make(map[int][][]byte)}
}

// Get returns a buffer of at least size bytes, reusing a pooled one of the
// same size class when available.
func (p *BufferPool) Get(size int) []byte {
	class := classFor(size)
	p.mu.Lock()
	defer p.mu.Unlock()
	bucket := p.free[class]
	if len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.free[class] = bucket[:len(bucket)-1]
		p.stats.Hits++
		return buf[:size]
	}
	p.stats.Misses++
	return make([]byte, size, class)
}

// Put returns a buffer to the pool, bucketed by its capacity's size class.
func (p *BufferPool) Put(buf []byte) {
	class := classFor(cap(buf))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free[class] = append(p.free[class], buf[:0])
}

// Stats returns a snapshot of hit/miss counters.
func (p *BufferPool) Stats() BufferPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Clear discards every pooled buffer.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = make(map[int][][]byte)
}
