// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

// IPCType records the producer/consumer topology a segment was created
// with. Publisher enforces consistency against it: an SPMC segment
// rejects a second Publisher.
type IPCType uint32

const (
	// SPMC is single-producer, multi-consumer: one Publisher, any number
	// of Subscribers. Each subscriber's channel queue is the same
	// FAA-based ring buffer the other topologies use, with one producer.
	SPMC IPCType = iota
	// MPSC is multi-producer, single-consumer: any number of Publishers,
	// one Subscriber. The subscriber's single channel queue is an
	// FAA-based MPSC ring buffer.
	MPSC
	// MPMC is multi-producer, multi-consumer: any number of Publishers
	// and Subscribers. Every subscriber's channel queue is an FAA-based
	// MPSC ring buffer (multiple publishers enqueue into it; exactly one
	// subscriber dequeues from it).
	MPMC
)

func (t IPCType) String() string {
	switch t {
	case SPMC:
		return "SPMC"
	case MPSC:
		return "MPSC"
	case MPMC:
		return "MPMC"
	default:
		return "IPCType(?)"
	}
}

// ChunkState is the lifecycle state stored in a ChunkHeader.
type ChunkState uint32

const (
	// ChunkFree: linked in the pool free list, ref_count == 0.
	ChunkFree ChunkState = iota
	// ChunkLoaned: held by a producer's Sample, not in the free list,
	// ref_count == 1.
	ChunkLoaned
	// ChunkSent: multicast to the subscriber snapshot; ref_count equals
	// the number of outstanding consumer Samples plus producer retention.
	ChunkSent
	// ChunkReceived: observed by at least one subscriber's receive call.
	// Transition to this state is idempotent across subscribers in a
	// broadcast topology.
	ChunkReceived
)

func (s ChunkState) String() string {
	switch s {
	case ChunkFree:
		return "Free"
	case ChunkLoaned:
		return "Loaned"
	case ChunkSent:
		return "Sent"
	case ChunkReceived:
		return "Received"
	default:
		return "ChunkState(?)"
	}
}

// LoanPolicy governs Publisher.Loan behavior on pool exhaustion.
type LoanPolicy uint32

const (
	// LoanPolicyError returns ErrChunkPoolExhausted immediately.
	LoanPolicyError LoanPolicy = iota
	// LoanPolicyWait polls the pool wait-set for a bounded time
	// (default 10ms) before giving up.
	LoanPolicyWait
	// LoanPolicyBlock parks on the pool wait-set with a longer timeout
	// (default 100ms) before giving up.
	LoanPolicyBlock
)

// QueueFullPolicy governs Publisher.Send behavior when a subscriber's
// channel queue has no free slot.
type QueueFullPolicy uint32

const (
	// QueueFullDrop abandons the send for this subscriber: the chunk's
	// ref_count is decremented for this subscriber's share and the
	// queue's overrun_count is incremented.
	QueueFullDrop QueueFullPolicy = iota
	// QueueFullOverwrite advances the queue's head by one (abandoning
	// the previously-oldest entry) and increments overrun_count.
	QueueFullOverwrite
	// QueueFullWait polls briefly (bounded spin) for the consumer to
	// make room.
	QueueFullWait
	// QueueFullBlock parks on the queue's wait-set until the consumer
	// publishes a room-available flag, then retries.
	QueueFullBlock
)

// EmptyPolicy governs Subscriber.Receive behavior when the channel
// queue has nothing to dequeue.
type EmptyPolicy uint32

const (
	// EmptyPolicySkip returns ErrQueueEmpty immediately.
	EmptyPolicySkip EmptyPolicy = iota
	// EmptyPolicyWait polls briefly (bounded spin) for new data.
	EmptyPolicyWait
	// EmptyPolicyBlock parks on the queue's wait-set until the producer
	// signals a message-sent flag, then retries.
	EmptyPolicyBlock
	// EmptyPolicyError is an alias of Skip for API symmetry with the
	// configured default QueueFullPolicy/LoanPolicy naming in spec.md §6.
	EmptyPolicyError
)

// pad is cache-line padding to prevent false sharing between
// hot atomic fields placed in the shared segment.
type pad [64]byte

// padShort pads an 8-byte field out to a full cache line.
type padShort [64 - 8]byte

// padHeader pads a ChunkHeader's fixed fields out to a full cache line
// so consecutive chunks never share a cache line between a producer
// writing the header and a consumer reading the adjacent chunk's payload.
type padHeader [64 - 32]byte
