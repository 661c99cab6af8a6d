// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"sync/atomic"
	"unsafe"
)

// Sample is an RAII-style handle on one chunk's payload. It is returned
// by Publisher.Loan and Subscriber.Receive and must be released exactly
// once via Release. There is no exported way to hand a loaned Sample to
// subscribers; Publisher.Send loans and sends its own chunk.
//
// A Sample is not safe for concurrent use from multiple goroutines; it
// is a single owner's handle, mirroring the chunk's own single-owner
// ref-count discipline (spec.md §3, §9 "exactly-once release").
type Sample struct {
	base     unsafe.Pointer
	layout   segmentLayout
	pool     *chunkPool
	index    uint32
	released int32 // atomic: 0 live, 1 released — guards double-release
}

func newSample(base unsafe.Pointer, layout segmentLayout, pool *chunkPool, index uint32) *Sample {
	return &Sample{base: base, layout: layout, pool: pool, index: index}
}

func (s *Sample) header() *chunkHeader {
	return s.layout.chunkHeader(s.base, s.index)
}

// Bytes returns the chunk's payload, sliced to the number of bytes the
// producer reported writing. Valid only until Release.
func (s *Sample) Bytes() []byte {
	size := s.header().size.LoadAcquire()
	return s.layout.payload(s.base, s.index, size)
}

// Capacity returns the chunk's payload sliced to chunkSize bytes,
// independent of how many bytes were written.
func (s *Sample) Capacity(chunkSize uint32) []byte {
	return s.layout.payload(s.base, s.index, chunkSize)
}

// Timestamp returns the UnixNano time the producer loaned this chunk.
func (s *Sample) Timestamp() int64 {
	return s.header().timestamp.LoadAcquire()
}

// Sequence returns the sequence number the loaning Publisher assigned
// when this chunk was loaned. The counter is per Publisher handle, not
// shared across publishers of the same pool.
func (s *Sample) Sequence() uint64 {
	return s.header().sequence.LoadAcquire()
}

// Release drops this Sample's reference on the underlying chunk. If the
// ref-count reaches zero, the chunk is returned to the pool's free list.
// Calling Release more than once is a safe no-op: the atomic released
// flag guards against the double-release spec.md §8's invariants name
// explicitly ("a chunk is never on the free list while any Sample
// references it, and never released twice for the same acquisition").
func (s *Sample) Release() {
	if !atomic.CompareAndSwapInt32(&s.released, 0, 1) {
		return
	}
	h := s.header()
	if h.refCount.AddAcqRel(-1) == 0 {
		s.pool.release(s.layout, s.base, s.index)
	}
}

// addRef increments the chunk's reference count for a new owner (one
// per subscriber a Send reaches) before that owner's Sample exists.
// Callers must hold a reference on the chunk already (the producer's
// loan) when calling this, so the count never transiently reaches zero
// while being fanned out.
func addRef(h *chunkHeader) {
	h.refCount.AddAcqRel(1)
}
