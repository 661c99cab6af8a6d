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

// channelQueueSlot is one physical element of a channelQueue's ring: a
// chunk index plus the FAA/SCQ round-number tag that guards against a
// slow producer/consumer wrapping the ring mid-operation.
//
// Grounded on lfq's mpsc.go mpscSlot[T]; here T is fixed to uint32 (a
// chunk index) since the payload itself never leaves the chunk pool.
type channelQueueSlot struct {
	cycle atomix.Uint64
	chunk uint32
	_     [4]byte
}

// channelQueue is the per-subscriber bounded ring carrying chunk
// indices from publisher(s) to exactly one subscriber (spec.md §4). It
// uses the same FAA-based SCQ physical layout regardless of topology:
// a single producer's Enqueue is simply the degenerate case of the FAA
// claim (one writer incrementing tail), so one wire shape serves every
// IPCType without the Lamport cached-index queue's extra complexity.
// See DESIGN.md for the tradeoff against a topology-specific layout.
//
// capacity is the usable depth n; the physical ring holds 2n slots, as
// in lfq's MPSC.
type channelQueue struct {
	_             pad
	head          atomix.Uint64 // single consumer
	_             pad
	tail          atomix.Uint64 // FAA claim point
	_             pad
	waitSet       WaitSet
	_             pad
	overrunCount  atomix.Uint64 // QueueFullDrop/Overwrite events, relaxed
	_             pad
	capacity      uint32
	size          uint32
	mask          uint64
}

// channelQueueSize returns the byte footprint of a channelQueue with
// the given usable capacity, including its 2n physical slot array,
// for layout.go's offset arithmetic.
func channelQueueSize(capacity uint32) uintptr {
	n := uintptr(roundToPow2(capacity))
	return unsafe.Sizeof(channelQueue{}) + 2*n*unsafe.Sizeof(channelQueueSlot{})
}

func roundToPow2(n uint32) uint32 {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// slots returns the physical slot array, which immediately follows the
// channelQueue header in the segment.
func (q *channelQueue) slots() []channelQueueSlot {
	p := unsafe.Add(unsafe.Pointer(q), unsafe.Sizeof(channelQueue{}))
	return unsafe.Slice((*channelQueueSlot)(p), q.size)
}

// init sets up the ring's cycle tags. Called once by whichever side
// creates the segment.
func (q *channelQueue) init(capacity uint32) {
	n := roundToPow2(capacity)
	q.capacity = n
	q.size = n * 2
	q.mask = uint64(q.size) - 1
	slots := q.slots()
	for i := range slots {
		slots[i].cycle.StoreRelaxed(uint64(i) / uint64(n))
	}
}

// tryEnqueue attempts a non-blocking push of a chunk index. It returns
// ErrQueueFull if the ring has no free slot under the current cycle.
func (q *channelQueue) tryEnqueue(chunk uint32) error {
	slots := q.slots()
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		head := q.head.LoadRelaxed()
		if tail >= head+uint64(q.capacity) {
			return ErrQueueFull
		}

		myTail := q.tail.AddAcqRel(1) - 1
		slot := &slots[myTail&q.mask]
		expectedCycle := myTail / uint64(q.capacity)
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			slot.chunk = chunk
			slot.cycle.StoreRelease(expectedCycle + 1)
			q.waitSet.Set(flagMessageSent)
			return nil
		}
		if slotCycle < expectedCycle {
			return ErrQueueFull
		}
		sw.Once()
	}
}

// tryDequeue attempts a non-blocking pop. Single-consumer only.
func (q *channelQueue) tryDequeue() (uint32, error) {
	slots := q.slots()
	head := q.head.LoadRelaxed()
	cycle := head / uint64(q.capacity)
	slot := &slots[head&q.mask]
	slotCycle := slot.cycle.LoadAcquire()

	if slotCycle != cycle+1 {
		return 0, ErrQueueEmpty
	}
	chunk := slot.chunk
	nextEnqCycle := (head + uint64(q.size)) / uint64(q.capacity)
	slot.cycle.StoreRelease(nextEnqCycle)
	q.head.StoreRelaxed(head + 1)
	q.waitSet.Set(flagRoomAvailable)
	return chunk, nil
}

// enqueueDrop implements QueueFullDrop: on a full queue it simply
// reports the overrun without touching the ring.
func (q *channelQueue) enqueueDrop(chunk uint32) error {
	err := q.tryEnqueue(chunk)
	if err == ErrQueueFull {
		q.overrunCount.AddRelaxed(1)
	}
	return err
}

// enqueueOverwrite implements QueueFullOverwrite: on a full queue it
// forces the consumer's head forward by one slot (abandoning the
// previously oldest entry) and retries once.
func (q *channelQueue) enqueueOverwrite(chunk uint32) (dropped uint32, hadOverrun bool, err error) {
	if err := q.tryEnqueue(chunk); err == nil {
		return 0, false, nil
	} else if err != ErrQueueFull {
		return 0, false, err
	}
	if old, derr := q.tryDequeue(); derr == nil {
		q.overrunCount.AddRelaxed(1)
		if err := q.tryEnqueue(chunk); err == nil {
			return old, true, nil
		}
	}
	return 0, false, ErrQueueFull
}

// enqueueWithPolicy applies QueueFullPolicy. For QueueFullOverwrite the
// abandoned chunk's index is returned so the caller (Publisher.Send)
// can release the pool's reference on it.
func (q *channelQueue) enqueueWithPolicy(chunk uint32, policy QueueFullPolicy, waitTimeout, blockTimeout time.Duration) (abandoned uint32, hadAbandoned bool, err error) {
	switch policy {
	case QueueFullDrop:
		return 0, false, q.enqueueDrop(chunk)
	case QueueFullOverwrite:
		return q.enqueueOverwrite(chunk)
	case QueueFullWait, QueueFullBlock:
		timeout := waitTimeout
		if policy == QueueFullBlock {
			timeout = blockTimeout
		}
		deadline := time.Now().Add(timeout)
		for {
			if err := q.tryEnqueue(chunk); err == nil {
				return 0, false, nil
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, false, ErrQueueFull
			}
			q.waitSet.Clear(flagRoomAvailable)
			if err := q.tryEnqueue(chunk); err == nil {
				return 0, false, nil
			}
			if !q.waitSet.WaitAny(flagRoomAvailable, remaining) {
				return 0, false, ErrQueueFull
			}
		}
	default:
		return 0, false, q.enqueueDrop(chunk)
	}
}

// dequeueWithPolicy applies EmptyPolicy.
func (q *channelQueue) dequeueWithPolicy(policy EmptyPolicy, waitTimeout, blockTimeout time.Duration) (uint32, error) {
	if chunk, err := q.tryDequeue(); err == nil {
		return chunk, nil
	}
	switch policy {
	case EmptyPolicySkip, EmptyPolicyError:
		return 0, ErrQueueEmpty
	case EmptyPolicyWait, EmptyPolicyBlock:
		timeout := waitTimeout
		if policy == EmptyPolicyBlock {
			timeout = blockTimeout
		}
		deadline := time.Now().Add(timeout)
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, ErrQueueEmpty
			}
			q.waitSet.Clear(flagMessageSent)
			if chunk, err := q.tryDequeue(); err == nil {
				return chunk, nil
			}
			if !q.waitSet.WaitAny(flagMessageSent, remaining) {
				return 0, ErrQueueEmpty
			}
		}
	default:
		return 0, ErrQueueEmpty
	}
}

// Overruns reports the number of QueueFullDrop/Overwrite events observed
// so far (monitoring only, relaxed per spec.md §9).
func (q *channelQueue) Overruns() uint64 {
	return q.overrunCount.LoadRelaxed()
}
