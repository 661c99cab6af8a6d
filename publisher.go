// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// Publisher is the single producer-side handle on a segment. It loans
// chunks from the pool, lets the caller fill them, and multicasts the
// filled chunk's index to every subscriber slot in the registry
// snapshot taken at Send's call entry.
type Publisher struct {
	mgr  *SharedMemoryManager
	name string
	cfg  Config
	hook EventHook

	sendSeq uint64 // producer-local monotonic counter for Sample.Sequence

	mu     sync.Mutex
	closed bool

	limiters map[uint32]*stMinLimiter
}

// stMinLimiter enforces a minimum inter-send interval per subscriber
// (spec.md §5's STmin), independent of and authoritative over any
// token-bucket pacing a caller layers on top with golang.org/x/time/rate
// (which this package uses only for the Subscriber scanner's polling
// cadence, never for this gate — STmin must be exact, not statistically
// averaged over a window).
type stMinLimiter struct {
	stMin    time.Duration
	lastSent atomic.Int64 // UnixNano
}

func (l *stMinLimiter) allow(now time.Time) bool {
	if l.stMin <= 0 {
		return true
	}
	nanos := now.UnixNano()
	last := l.lastSent.Load()
	if nanos-last < int64(l.stMin) {
		return false
	}
	return l.lastSent.CompareAndSwap(last, nanos)
}

// NewPublisher creates (or, if name already exists and cfg's geometry
// matches, attaches as the sole producer to) the named segment and
// returns a Publisher bound to it. It fails with ErrTopologyMismatch if
// a Publisher is already attached to an SPMC segment.
func NewPublisher(name string, cfg Config, opts ...Option) (*Publisher, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	mgr, err := Create(name, cfg)
	if err != nil {
		if !IsSegmentExists(err) {
			o.hook.OnSegmentError(name, "create", err)
			return nil, err
		}
		mgr, err = Attach(name, cfg)
		if err != nil {
			o.hook.OnSegmentError(name, "attach", err)
			return nil, err
		}
		o.hook.OnSegmentOpened(name, cfg)
	} else {
		o.hook.OnSegmentCreated(name, cfg)
	}

	cb := mgr.controlBlock()
	if cfg.IPCType != MPSC && cfg.IPCType != MPMC {
		if !cb.publisherAttached.CompareAndSwapAcqRel(0, 1) {
			_ = mgr.Close()
			return nil, ErrTopologyMismatch
		}
	} else {
		cb.publisherAttached.AddAcqRel(1)
	}

	return &Publisher{
		mgr:      mgr,
		name:     name,
		cfg:      mgr.cfg,
		hook:     o.hook,
		limiters: make(map[uint32]*stMinLimiter),
	}, nil
}

// Loan reserves a chunk from the pool under cfg.LoanPolicy and returns a
// Sample the caller owns exclusively until it calls Release. Publisher
// has no exported method that sends a Sample obtained from Loan; Send
// loans and sends its own chunk.
func (p *Publisher) Loan() (*Sample, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	cb := p.mgr.controlBlock()
	idx, err := cb.pool.acquireWithPolicy(p.mgr.layout, p.mgr.base(), p.cfg.LoanPolicy, p.cfg.WaitTimeout, p.cfg.BlockTimeout)
	if err != nil {
		stats := cb.pool.stats()
		allocated := uint32(stats.Capacity) - uint32(stats.FreeCount)
		p.hook.OnLoanFailed(p.name, p.cfg.LoanPolicy, allocated, stats.Capacity)
		p.hook.OnPoolExhausted(p.name, stats.Capacity)
		return nil, err
	}
	h := p.mgr.layout.chunkHeader(p.mgr.base(), idx)
	h.timestamp.StoreRelease(time.Now().UnixNano())
	h.sequence.StoreRelease(atomic.AddUint64(&p.sendSeq, 1))
	return newSample(p.mgr.base(), p.mgr.layout, &cb.pool, idx), nil
}

// Send writes into a freshly loaned chunk via fill, then multicasts it
// to every currently-active subscriber slot, applying cfg's
// DefaultQueueFullPolicy and each subscriber's STmin gate independently.
// The chunk's own reference is dropped once every subscriber has been
// offered it (or skipped by STmin/queue-full); the Sample Send creates
// internally is never exposed to the caller.
func (p *Publisher) Send(fill func(buf []byte) (int, error)) error {
	sample, err := p.Loan()
	if err != nil {
		return err
	}
	buf := sample.Capacity(p.cfg.ChunkSize)
	n, err := fill(buf)
	if err != nil {
		sample.Release()
		return err
	}
	h := sample.header()
	h.size.StoreRelease(uint32(n))
	h.state.StoreRelease(uint32(ChunkSent))
	return p.commit(sample)
}

// commit fans sample.index out to every active subscriber and drops the
// producer's own reference.
func (p *Publisher) commit(sample *Sample) error {
	cb := p.mgr.controlBlock()
	registry := p.mgr.layout.registry(p.mgr.base())
	snapshot := registry.snapshot(make([]uint32, 0, p.cfg.MaxSubscribers))

	now := time.Now()
	var delivered uint32
	for _, slot := range snapshot {
		limiter := p.limiterFor(slot)
		if !limiter.allow(now) {
			continue
		}
		q := p.mgr.layout.queue(p.mgr.base(), slot)
		addRef(sample.header())
		abandoned, hadAbandoned, err := q.enqueueWithPolicy(sample.index, p.cfg.DefaultQueueFullPolicy, p.cfg.WaitTimeout, p.cfg.BlockTimeout)
		if err != nil {
			// Could not enqueue for this subscriber under its policy:
			// undo the speculative addRef.
			releaseChunkRef(p.mgr.layout, p.mgr.base(), &cb.pool, sample.index)
			p.hook.OnQueueFull(p.name, slot, p.cfg.DefaultQueueFullPolicy)
			continue
		}
		if hadAbandoned {
			// Overwrite policy displaced the previously-oldest entry for
			// this subscriber: its ref-share never gets a Release from a
			// Sample since the subscriber never saw it, so drop it here
			// or the chunk can never return to Free (spec.md §4.3, §4.5).
			releaseChunkRef(p.mgr.layout, p.mgr.base(), &cb.pool, abandoned)
			p.hook.OnQueueOverrun(p.name, slot, p.cfg.DefaultQueueFullPolicy)
		}
		delivered++
	}
	p.hook.OnMessageSent(p.name, sample.index, delivered)
	sample.Release()
	return nil
}

func (p *Publisher) limiterFor(slot uint32) *stMinLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[slot]
	if !ok {
		l = &stMinLimiter{stMin: p.cfg.STmin}
		p.limiters[slot] = l
	}
	return l
}

// releaseChunkRef decrements a chunk's reference count, returning it to
// the pool if it reaches zero, without going through a Sample (used when
// an internally-created reference — not the caller's own Sample — needs
// to be dropped).
func releaseChunkRef(layout segmentLayout, base unsafe.Pointer, pool *chunkPool, idx uint32) {
	h := layout.chunkHeader(base, idx)
	if h.refCount.AddAcqRel(-1) == 0 {
		pool.release(layout, base, idx)
	}
}

// Close detaches this Publisher. If the segment's IPCType is
// single-producer, the slot is freed for a future Publisher to attach.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	cb := p.mgr.controlBlock()
	if p.cfg.IPCType != MPSC && p.cfg.IPCType != MPMC {
		cb.publisherAttached.StoreRelease(0)
	} else {
		cb.publisherAttached.AddAcqRel(-1)
	}
	return p.mgr.Close()
}

// Stats returns a point-in-time view of the underlying chunk pool,
// reporting it through the chunk-pool-stats hook as it does.
func (p *Publisher) Stats() ChunkPoolStats {
	stats := p.mgr.controlBlock().pool.stats()
	p.hook.OnChunkPoolStats(p.name, stats)
	return stats
}
