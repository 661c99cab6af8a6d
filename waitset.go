// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// Flags set on a WaitSet word. A single word serves every wait/wake
// pair associated with one resource: the pool's free-chunk signal, or a
// queue's room-available/message-sent signals.
const (
	flagFreeChunkAvailable uint64 = 1 << 0
	flagRoomAvailable      uint64 = 1 << 1
	flagMessageSent        uint64 = 1 << 2
)

// WaitSet is the 64-bit word of event flags described in spec.md §9:
// "Concentrate [busy-waiting] in the wait-set abstraction... Higher-level
// policies call into the wait-set." It lives inline in shared memory (as
// a field of ControlBlock or ChannelQueue) so every process mapping the
// segment observes the same flags.
//
// This module targets portable behavior over raw futex/WaitOnAddress
// syscalls: Wait is a bounded spin-then-backoff poll
// (code.hybscloud.com/spin for the tight retry, code.hybscloud.com/iox's
// Backoff for the adaptive phase once contention is detected), which is
// correct across processes without requiring a platform-specific futex
// binding. See DESIGN.md for the tradeoff.
type WaitSet struct {
	flags atomix.Uint64
}

// Set raises the given bits (release) so a concurrently polling Wait
// observes them.
func (w *WaitSet) Set(mask uint64) {
	for {
		old := w.flags.LoadAcquire()
		next := old | mask
		if next == old {
			return
		}
		if w.flags.CompareAndSwapAcqRel(old, next) {
			return
		}
	}
}

// Clear lowers the given bits.
func (w *WaitSet) Clear(mask uint64) {
	for {
		old := w.flags.LoadAcquire()
		next := old &^ mask
		if next == old {
			return
		}
		if w.flags.CompareAndSwapAcqRel(old, next) {
			return
		}
	}
}

// Peek reports whether any bit in mask is currently set, without
// consuming it.
func (w *WaitSet) Peek(mask uint64) bool {
	return w.flags.LoadAcquire()&mask != 0
}

// WaitAny blocks (spin, then adaptive backoff) until any bit in mask is
// observed set, or timeout elapses. It returns true if a flag was
// observed, false on timeout. WaitAny never clears the flags it
// observes — callers that use a flag as a one-shot notification must
// Clear it themselves once they've acted on it.
func (w *WaitSet) WaitAny(mask uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	sw := spin.Wait{}
	var bo iox.Backoff
	for {
		if w.Peek(mask) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		sw.Once()
		bo.Wait()
	}
}
