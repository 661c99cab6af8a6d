// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Subscriber is one consumer-side handle on a segment. It claims a
// registry slot (and the backing channel queue that comes with it) on
// construction and releases it on Close, so a crashed-and-restarted
// subscriber process reappears as a fresh slot rather than resurrecting
// a stale one.
type Subscriber struct {
	mgr  *SharedMemoryManager
	name string
	cfg  Config
	hook EventHook
	slot uint32

	closed int32 // atomic

	scanCancel context.CancelFunc
	scanWG     sync.WaitGroup
	receivedCt atomic.Uint64
}

// NewSubscriber claims a slot on the named segment's subscriber
// registry. The segment must already exist; use NewPublisher on the
// producer side to create it first.
func NewSubscriber(name string, cfg Config, opts ...Option) (*Subscriber, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	mgr, err := Attach(name, cfg)
	if err != nil {
		o.hook.OnSegmentError(name, "attach", err)
		return nil, err
	}
	o.hook.OnSegmentOpened(name, cfg)
	registry := mgr.layout.registry(mgr.base())
	slot, err := registry.claim()
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}
	mgr.layout.queue(mgr.base(), slot).init(mgr.cfg.SubscriberQueueCapacity)

	o.hook.OnSubscriberJoined(name, slot)
	return &Subscriber{mgr: mgr, name: name, cfg: mgr.cfg, hook: o.hook, slot: slot}, nil
}

// Receive pops the next available chunk index from this subscriber's
// queue under the given policy and returns a Sample referencing it.
func (s *Subscriber) Receive(policy EmptyPolicy) (*Sample, error) {
	if atomic.LoadInt32(&s.closed) != 0 {
		return nil, ErrClosed
	}
	q := s.mgr.layout.queue(s.mgr.base(), s.slot)
	idx, err := q.dequeueWithPolicy(policy, s.cfg.WaitTimeout, s.cfg.BlockTimeout)
	if err != nil {
		return nil, err
	}
	h := s.mgr.layout.chunkHeader(s.mgr.base(), idx)
	h.state.StoreRelease(uint32(ChunkReceived))
	s.receivedCt.Add(1)
	s.hook.OnMessageReceived(s.name, idx)
	cb := s.mgr.controlBlock()
	return newSample(s.mgr.base(), s.mgr.layout, &cb.pool, idx), nil
}

// Scan starts a background goroutine that polls Receive at the rate
// limiter's pace and invokes handler for each Sample it dequeues,
// releasing the Sample automatically once handler returns. It runs
// until ctx is cancelled or Close is called.
//
// rate.Limiter paces the scanner's polling loop only — how often it
// asks the queue whether anything is ready — never the authoritative
// per-send STmin gate enforced by the Publisher, matching the
// distinction drawn in stMinLimiter's doc comment.
func (s *Subscriber) Scan(ctx context.Context, limiter *rate.Limiter, handler func(*Sample)) {
	ctx, cancel := context.WithCancel(ctx)
	s.scanCancel = cancel
	s.scanWG.Add(1)
	go func() {
		defer s.scanWG.Done()
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			sample, err := s.Receive(EmptyPolicySkip)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					continue
				}
			}
			handler(sample)
			sample.Release()
		}
	}()
}

// SubscriberStats is a point-in-time view of this subscriber's activity.
type SubscriberStats struct {
	Slot         uint32
	Received     uint64
	QueueOverrun uint64
}

// Stats returns a snapshot of this subscriber's receive counters.
func (s *Subscriber) Stats() SubscriberStats {
	q := s.mgr.layout.queue(s.mgr.base(), s.slot)
	return SubscriberStats{
		Slot:         s.slot,
		Received:     s.receivedCt.Load(),
		QueueOverrun: q.Overruns(),
	}
}

// Close cancels any running Scan, releases this subscriber's registry
// slot, drains the messages still in its queue (dropping each one's
// reference on its chunk), and unmaps the segment once every local
// handle has closed. Close is idempotent.
func (s *Subscriber) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanWG.Wait()
	}
	s.mgr.layout.registry(s.mgr.base()).release(s.slot)
	cb := s.mgr.controlBlock()
	q := s.mgr.layout.queue(s.mgr.base(), s.slot)
	for {
		idx, err := q.tryDequeue()
		if err != nil {
			break
		}
		releaseChunkRef(s.mgr.layout, s.mgr.base(), &cb.pool, idx)
	}
	s.hook.OnSubscriberLeft(s.name, s.slot)
	return s.mgr.Close()
}
