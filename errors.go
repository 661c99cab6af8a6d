// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates a non-blocking operation could not proceed
// immediately. No shmipc operation returns it: an empty pool or a
// full/empty queue is reported as ErrChunkPoolExhausted, ErrQueueFull or
// ErrQueueEmpty, which IsWouldBlock does not match. It is an alias for
// [iox.ErrWouldBlock] for ecosystem consistency with code.hybscloud.com/lfq
// and code.hybscloud.com/iobuf.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// Sentinel errors for the taxonomy in spec.md §7. Each wraps a Kind so
// callers can classify failures with errors.Is / errors.As without
// string matching, while still comparing equal to the bare sentinel for
// the common case.
var (
	// ErrInvalidArgument: a nil handle or an out-of-range chunk index
	// was passed to an operation.
	ErrInvalidArgument = &Error{Kind: KindArgument, msg: "invalid argument"}
	// ErrInvalidState: a chunk was not in the required state for the
	// requested transition (e.g. Send called on a non-Loaned chunk).
	ErrInvalidState = &Error{Kind: KindState, msg: "invalid chunk state"}
	// ErrInvalidChunkIndex: a chunk index outside [0, max_chunks) or
	// otherwise inconsistent with the pool's generation was used.
	ErrInvalidChunkIndex = &Error{Kind: KindArgument, msg: "invalid chunk index"}
	// ErrShmNotFound: attach was requested for a segment that does not
	// exist and was not asked to create one.
	ErrShmNotFound = &Error{Kind: KindSegment, msg: "shared memory segment not found"}
	// ErrShmSizeMismatch: an attaching process's geometry does not
	// match the creator's fixed geometry.
	ErrShmSizeMismatch = &Error{Kind: KindSegment, msg: "shared memory geometry mismatch"}
	// ErrShmVersionMismatch: the segment's stored layout version tag
	// does not match this build's expected layout version.
	ErrShmVersionMismatch = &Error{Kind: KindSegment, msg: "shared memory layout version mismatch"}
	// ErrShmInitTimeout: attach gave up waiting for the creator to
	// publish the initialized bit.
	ErrShmInitTimeout = &Error{Kind: KindSegment, msg: "timed out waiting for segment initialization"}
	// ErrChunkPoolExhausted: no free chunk was available under the
	// configured LoanPolicy within its bound.
	ErrChunkPoolExhausted = &Error{Kind: KindCapacity, msg: "chunk pool exhausted"}
	// ErrRegistryFull: the subscriber registry has no free slot for a
	// new receive channel.
	ErrRegistryFull = &Error{Kind: KindCapacity, msg: "subscriber registry full"}
	// ErrQueueFull: a channel queue rejected an enqueue under a
	// non-blocking/exhausted QueueFullPolicy.
	ErrQueueFull = &Error{Kind: KindCapacity, msg: "channel queue full"}
	// ErrQueueEmpty: Receive found nothing to dequeue under a
	// non-blocking EmptyPolicy.
	ErrQueueEmpty = &Error{Kind: KindCapacity, msg: "channel queue empty"}
	// ErrTimeout: a bounded wait expired. The Wait/Block loan and queue
	// policies do not return it: on expiry they return
	// ErrChunkPoolExhausted, ErrQueueFull or ErrQueueEmpty.
	ErrTimeout = &Error{Kind: KindTimeout, msg: "operation timed out"}
	// ErrTopologyMismatch: a second Publisher attempted to attach to a
	// single-producer segment, or similar topology violations.
	ErrTopologyMismatch = &Error{Kind: KindState, msg: "ipc topology violation"}
	// ErrClosed: the handle was already closed/disconnected.
	ErrClosed = &Error{Kind: KindState, msg: "handle already closed"}
	// errSegmentExists: Create was called for a name that already has a
	// backing segment. Unexported: callers should use NewPublisher, which
	// falls back to Attach automatically, rather than branch on this.
	errSegmentExists = &Error{Kind: KindOS, msg: "segment already exists"}
)

// IsSegmentExists reports whether err indicates Create found an
// existing segment under the requested name.
func IsSegmentExists(err error) bool {
	return errors.Is(err, errSegmentExists)
}

// Kind classifies an Error without binding callers to a specific
// sentinel instance, per spec.md §7's "kinds, not source names".
type Kind uint8

const (
	KindCapacity Kind = iota
	KindState
	KindSegment
	KindTimeout
	KindArgument
	KindOS
)

func (k Kind) String() string {
	switch k {
	case KindCapacity:
		return "capacity"
	case KindState:
		return "state"
	case KindSegment:
		return "segment"
	case KindTimeout:
		return "timeout"
	case KindArgument:
		return "argument"
	case KindOS:
		return "os"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every fast-path shmipc operation
// returns. No exceptions/panics cross the shared-memory boundary; every
// fallible operation declares its failure through this type (spec.md §7,
// §9 "Exception-based error flow... Replace entirely with
// result-returning APIs").
type Error struct {
	Kind Kind
	msg  string
	// Cause carries the underlying OS error for KindOS failures
	// (ShmError semantics from spec.md §7).
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("shmipc: %s: %v", e.msg, e.Cause)
	}
	return "shmipc: " + e.msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports equality by Kind+message so wrapped instances (e.g. those
// carrying a Cause) still compare equal to the bare sentinel via
// errors.Is.
func (e *Error) Is(target error) bool {
	var o *Error
	if !errors.As(target, &o) {
		return false
	}
	return e.Kind == o.Kind && e.msg == o.msg
}

// osError wraps a POSIX failure surfaced during segment creation/attach
// as KindOS, per spec.md §7 "propagated as ShmError with original code".
func osError(msg string, cause error) *Error {
	return &Error{Kind: KindOS, msg: msg, Cause: cause}
}

// withCause returns a copy of a sentinel Error carrying cause, so
// callers can still errors.Is(err, shmipc.ErrShmSizeMismatch) while also
// inspecting the underlying detail via errors.Unwrap.
func withCause(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, msg: sentinel.msg, Cause: cause}
}
