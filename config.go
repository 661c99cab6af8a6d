// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import "time"

// layoutVersion is stored in the ControlBlock and checked on attach.
// Bump it whenever the on-segment layout changes shape.
const layoutVersion uint32 = 1

// Config is the geometry and policy contract for one topic/segment.
// The creator's Config is authoritative; attachers must supply a Config
// whose geometry matches exactly or they receive ErrShmSizeMismatch.
//
// This is the shape of the external configuration collaborator named in
// spec.md §6 ("only the shape is contractual"); shmipc receives it as a
// plain value, per spec.md §9's guidance to model singleton managers as
// injected collaborators rather than as a linked configuration service.
type Config struct {
	// ChunkSize is the payload capacity in bytes of every chunk.
	ChunkSize uint32
	// MaxChunks is the pool capacity (number of chunks in the segment).
	MaxChunks uint32
	// MaxSubscribers is the fixed capacity of the subscriber registry
	// and the number of ChannelQueue slots reserved in the segment.
	MaxSubscribers uint32
	// QueueCapacity is the per-subscriber channel queue depth. Must be
	// a power of two.
	QueueCapacity uint32
	// IPCType is the topology this segment was created for.
	IPCType IPCType

	// LoanPolicy governs Publisher.Loan on pool exhaustion. Zero value
	// is LoanPolicyError.
	LoanPolicy LoanPolicy
	// DefaultQueueFullPolicy governs Publisher.Send when a
	// subscriber's queue is full. Zero value is QueueFullDrop.
	DefaultQueueFullPolicy QueueFullPolicy
	// AutoCleanup, when true, has the creating SharedMemoryManager
	// unlink the segment when its process-local handle count reaches
	// zero. Administrative unlink (spec.md §3 "Destruction... is an
	// administrative action") otherwise remains the caller's
	// responsibility.
	AutoCleanup bool

	// SubscriberQueueCapacity overrides QueueCapacity for a specific
	// Subscriber's own receive channel if nonzero; most callers leave
	// this zero and use QueueCapacity uniformly across the segment.
	SubscriberQueueCapacity uint32
	// EmptyPolicy is the empty-queue policy setting for a Subscriber.
	// Zero value is EmptyPolicySkip. Subscriber.Receive takes its
	// EmptyPolicy as an argument and does not read this field.
	EmptyPolicy EmptyPolicy
	// STmin is the minimum inter-send interval, in nanoseconds, that a
	// Publisher enforces toward each subscriber slot. Zero disables the
	// limiter. Only the Publisher's own Config.STmin is used (a
	// Subscriber's value is not read), and the last-send time is kept
	// per Publisher handle in process memory, not in the segment.
	STmin time.Duration

	// WaitTimeout bounds the LoanPolicyWait / QueueFullWait /
	// EmptyPolicyWait spin. Defaults to 10ms per spec.md §5.
	WaitTimeout time.Duration
	// BlockTimeout bounds the LoanPolicyBlock / QueueFullBlock /
	// EmptyPolicyBlock park. Defaults to 100ms per spec.md §5.
	BlockTimeout time.Duration
}

const (
	defaultWaitTimeout  = 10 * time.Millisecond
	defaultBlockTimeout = 100 * time.Millisecond
)

// normalized returns a copy of cfg with zero-value timeouts and
// capacities replaced by their spec.md-mandated defaults.
func (cfg Config) normalized() Config {
	out := cfg
	if out.WaitTimeout == 0 {
		out.WaitTimeout = defaultWaitTimeout
	}
	if out.BlockTimeout == 0 {
		out.BlockTimeout = defaultBlockTimeout
	}
	if out.SubscriberQueueCapacity == 0 {
		out.SubscriberQueueCapacity = out.QueueCapacity
	}
	return out
}

// validate checks the geometry invariants from spec.md §3/§6: chunk
// size/count/subscriber count must be nonzero, queue capacity must be a
// power of two.
func (cfg Config) validate() error {
	if cfg.ChunkSize == 0 {
		return &Error{Kind: KindArgument, msg: "ChunkSize must be > 0"}
	}
	if cfg.MaxChunks == 0 {
		return &Error{Kind: KindArgument, msg: "MaxChunks must be > 0"}
	}
	if cfg.MaxSubscribers == 0 {
		return &Error{Kind: KindArgument, msg: "MaxSubscribers must be > 0"}
	}
	if cfg.QueueCapacity == 0 || cfg.QueueCapacity&(cfg.QueueCapacity-1) != 0 {
		return &Error{Kind: KindArgument, msg: "QueueCapacity must be a power of two"}
	}
	return nil
}

// geometryEqual reports whether two configs describe the same on-segment
// layout. Policy/timeout fields are per-endpoint and are deliberately
// excluded: two processes may run different loan/queue-full policies
// against the same geometry.
func geometryEqual(a, b Config) bool {
	return a.ChunkSize == b.ChunkSize &&
		a.MaxChunks == b.MaxChunks &&
		a.MaxSubscribers == b.MaxSubscribers &&
		a.QueueCapacity == b.QueueCapacity &&
		a.IPCType == b.IPCType
}
