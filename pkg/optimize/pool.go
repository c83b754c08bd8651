package optimize

import (
	"bytes"
	"sync"
)

// BufferPool recycles byte buffers for encoders that produce many
// similarly sized outputs.
type BufferPool struct {
	pool   sync.Pool
	maxCap int
}

// NewBufferPool creates a pool that drops buffers grown beyond maxCap.
func NewBufferPool(maxCap int) *BufferPool {
	return &BufferPool{
		maxCap: maxCap,
		pool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool. The caller must not use it afterwards.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || (p.maxCap > 0 && buf.Cap() > p.maxCap) {
		return
	}
	p.pool.Put(buf)
}
