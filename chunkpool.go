// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"time"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// chunkHeader is the fixed metadata preceding each chunk's payload
// bytes. It carries the state machine from spec.md §3 (Free → Loaned →
// Sent → Received → Free) and, while ChunkFree, doubles as a free-list
// link node: nextFree chains chunks into the pool's LIFO stack so the
// allocator needs no side array the size of MaxChunks.
type chunkHeader struct {
	_         pad
	state     atomix.Uint32
	refCount  atomix.Int32
	nextFree  atomix.Uint32 // valid only while state == ChunkFree
	size      atomix.Uint32 // bytes written by the producer
	sequence  atomix.Uint64 // loaning Publisher's own monotonic counter, set on loan
	timestamp atomix.Int64  // UnixNano, set on loan
	_         padHeader
}

// chunkPool is the lock-free LIFO allocator embedded in the
// controlBlock. The free list is a Treiber stack: top packs a chunk
// index in the low 32 bits and an ABA-guard tag in the high 32 bits, so
// a concurrent pop/push interleaving that revisits the same index is
// never mistaken for a stable top (spec.md §3's ABA-safety requirement).
//
// Grounded on the CAS-retry-with-spin.Wait idiom shared by every
// lock-free structure in code.hybscloud.com/lfq (mpsc.go, mpmc.go); the
// LIFO shape itself (spec.md mandates a stack, not a ring) has no direct
// analogue in that package, whose queues are all FIFO, so the shape is
// spec-original while the retry mechanics are adopted wholesale. See
// DESIGN.md.
type chunkPool struct {
	_         pad
	top       atomix.Uint64 // packed: index(32) | tag(32)
	_         pad
	freeCount atomix.Int32 // monitoring only, relaxed
	_         pad
	waitSet   WaitSet
	_         pad
	maxChunks uint32
}

const chunkPoolNil = ^uint32(0)

func packTop(idx uint32, tag uint32) uint64 {
	return uint64(tag)<<32 | uint64(idx)
}

func unpackTop(v uint64) (idx uint32, tag uint32) {
	return uint32(v), uint32(v >> 32)
}

// init threads every chunk onto the free list and marks each header
// Free. Called once by the creating process before it publishes
// controlBlock.initialized.
func (p *chunkPool) init(layout segmentLayout, base unsafe.Pointer, maxChunks uint32) {
	p.maxChunks = maxChunks
	for i := uint32(0); i < maxChunks; i++ {
		h := layout.chunkHeader(base, i)
		h.state.StoreRelaxed(uint32(ChunkFree))
		h.refCount.StoreRelaxed(0)
		if i+1 < maxChunks {
			h.nextFree.StoreRelaxed(i + 1)
		} else {
			h.nextFree.StoreRelaxed(chunkPoolNil)
		}
	}
	p.top.StoreRelease(packTop(0, 0))
	p.freeCount.StoreRelaxed(int32(maxChunks))
}

// acquire pops a chunk off the free list and transitions it to Loaned.
// It returns (index, true) on success, or (_, false) if the pool is
// empty.
func (p *chunkPool) acquire(layout segmentLayout, base unsafe.Pointer) (uint32, bool) {
	sw := spin.Wait{}
	for {
		top := p.top.LoadAcquire()
		idx, tag := unpackTop(top)
		if idx == chunkPoolNil {
			return 0, false
		}
		h := layout.chunkHeader(base, idx)
		next := h.nextFree.LoadAcquire()
		newTop := packTop(next, tag+1)
		if p.top.CompareAndSwapAcqRel(top, newTop) {
			h.state.StoreRelease(uint32(ChunkLoaned))
			h.refCount.StoreRelease(1)
			p.freeCount.AddRelaxed(-1)
			return idx, true
		}
		sw.Once()
	}
}

// release pushes idx back onto the free list and transitions it to
// Free. The caller must have already observed refCount drop to zero.
func (p *chunkPool) release(layout segmentLayout, base unsafe.Pointer, idx uint32) {
	h := layout.chunkHeader(base, idx)
	h.state.StoreRelease(uint32(ChunkFree))
	sw := spin.Wait{}
	for {
		top := p.top.LoadAcquire()
		oldIdx, tag := unpackTop(top)
		h.nextFree.StoreRelease(oldIdx)
		newTop := packTop(idx, tag+1)
		if p.top.CompareAndSwapAcqRel(top, newTop) {
			p.freeCount.AddRelaxed(1)
			p.waitSet.Set(flagFreeChunkAvailable)
			return
		}
		sw.Once()
	}
}

// acquireWithPolicy applies LoanPolicy around acquire: Error returns
// immediately, Wait/Block poll the pool's wait-set for the configured
// bound.
func (p *chunkPool) acquireWithPolicy(layout segmentLayout, base unsafe.Pointer, policy LoanPolicy, waitTimeout, blockTimeout time.Duration) (uint32, error) {
	if idx, ok := p.acquire(layout, base); ok {
		return idx, nil
	}
	var timeout time.Duration
	switch policy {
	case LoanPolicyError:
		return 0, ErrChunkPoolExhausted
	case LoanPolicyWait:
		timeout = waitTimeout
	case LoanPolicyBlock:
		timeout = blockTimeout
	default:
		return 0, ErrChunkPoolExhausted
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrChunkPoolExhausted
		}
		p.waitSet.Clear(flagFreeChunkAvailable)
		if idx, ok := p.acquire(layout, base); ok {
			return idx, nil
		}
		if !p.waitSet.WaitAny(flagFreeChunkAvailable, remaining) {
			return 0, ErrChunkPoolExhausted
		}
	}
}

// ChunkPoolStats is a point-in-time snapshot of chunk pool occupancy, read with
// relaxed loads since it is diagnostic rather than load-bearing (spec.md
// §9 "statistics fields use relaxed ordering... monitoring only").
type ChunkPoolStats struct {
	Capacity  uint32
	FreeCount int32
}

func (p *chunkPool) stats() ChunkPoolStats {
	return ChunkPoolStats{
		Capacity:  p.maxChunks,
		FreeCount: p.freeCount.LoadRelaxed(),
	}
}
