// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import "github.com/rs/zerolog"

// EventHook observes the ten event kinds spec.md §6 names (loan-failure,
// pool-exhausted, queue-full, message-sent, queue-overrun,
// message-received, shm-created, shm-opened, shm-error,
// chunk-pool-stats), plus subscriber join/leave for the registry's own
// lifecycle. Every method runs on the caller's own goroutine.
// OnMessageSent/OnMessageReceived fire once per Send/Receive;
// OnLoanFailed/OnPoolExhausted fire from a failed Loan, and
// OnQueueFull/OnQueueOverrun from Send's fan-out, so those six run on
// the send/receive path. OnChunkPoolStats fires from Publisher.Stats, and
// the rest only from segment/registry lifecycle transitions.
//
// Grounded on source/inc/ipc/IPCEventHooks.hpp's IPCEventHooks interface,
// trimmed to the kinds spec.md §6 actually mandates.
type EventHook interface {
	OnLoanFailed(name string, policy LoanPolicy, allocatedCount, maxChunks uint32)
	OnPoolExhausted(name string, maxChunks uint32)
	OnQueueFull(name string, slot uint32, policy QueueFullPolicy)
	OnMessageSent(name string, chunkIndex uint32, subscriberCount uint32)
	OnQueueOverrun(name string, slot uint32, policy QueueFullPolicy)
	OnMessageReceived(name string, chunkIndex uint32)
	OnSegmentCreated(name string, cfg Config)
	OnSegmentOpened(name string, cfg Config)
	OnSegmentError(name string, op string, err error)
	OnChunkPoolStats(name string, stats ChunkPoolStats)
	OnSubscriberJoined(name string, slot uint32)
	OnSubscriberLeft(name string, slot uint32)
}

// noopHook is the default EventHook: every method is a no-op.
type noopHook struct{}

func (noopHook) OnLoanFailed(string, LoanPolicy, uint32, uint32) {}
func (noopHook) OnPoolExhausted(string, uint32)                  {}
func (noopHook) OnQueueFull(string, uint32, QueueFullPolicy)     {}
func (noopHook) OnMessageSent(string, uint32, uint32)            {}
func (noopHook) OnQueueOverrun(string, uint32, QueueFullPolicy)  {}
func (noopHook) OnMessageReceived(string, uint32)                {}
func (noopHook) OnSegmentCreated(string, Config)                 {}
func (noopHook) OnSegmentOpened(string, Config)                  {}
func (noopHook) OnSegmentError(string, string, error)            {}
func (noopHook) OnChunkPoolStats(string, ChunkPoolStats)         {}
func (noopHook) OnSubscriberJoined(string, uint32)               {}
func (noopHook) OnSubscriberLeft(string, uint32)                 {}

// zerologHook adapts EventHook onto a zerolog.Logger, one structured
// event per lifecycle transition.
type zerologHook struct {
	log zerolog.Logger
}

// NewZerologHook returns an EventHook that writes every lifecycle event
// to logger as a structured zerolog event.
func NewZerologHook(logger zerolog.Logger) EventHook {
	return zerologHook{log: logger}
}

func (h zerologHook) OnLoanFailed(name string, policy LoanPolicy, allocatedCount, maxChunks uint32) {
	h.log.Warn().Str("segment", name).Uint32("policy", uint32(policy)).
		Uint32("allocated", allocatedCount).Uint32("max_chunks", maxChunks).
		Msg("loan failed")
}

func (h zerologHook) OnPoolExhausted(name string, maxChunks uint32) {
	h.log.Warn().Str("segment", name).Uint32("max_chunks", maxChunks).Msg("chunk pool exhausted")
}

func (h zerologHook) OnQueueFull(name string, slot uint32, policy QueueFullPolicy) {
	h.log.Warn().Str("segment", name).Uint32("slot", slot).Uint32("policy", uint32(policy)).
		Msg("subscriber queue full")
}

func (h zerologHook) OnMessageSent(name string, chunkIndex uint32, subscriberCount uint32) {
	h.log.Debug().Str("segment", name).Uint32("chunk", chunkIndex).
		Uint32("subscribers", subscriberCount).Msg("message sent")
}

func (h zerologHook) OnQueueOverrun(name string, slot uint32, policy QueueFullPolicy) {
	h.log.Warn().Str("segment", name).Uint32("slot", slot).Uint32("policy", uint32(policy)).
		Msg("subscriber queue overrun")
}

func (h zerologHook) OnMessageReceived(name string, chunkIndex uint32) {
	h.log.Debug().Str("segment", name).Uint32("chunk", chunkIndex).Msg("message received")
}

func (h zerologHook) OnSegmentCreated(name string, cfg Config) {
	h.log.Info().Str("segment", name).Str("ipc_type", cfg.IPCType.String()).
		Uint32("max_chunks", cfg.MaxChunks).Uint32("max_subscribers", cfg.MaxSubscribers).
		Msg("segment created")
}

func (h zerologHook) OnSegmentOpened(name string, cfg Config) {
	h.log.Info().Str("segment", name).Str("ipc_type", cfg.IPCType.String()).
		Msg("segment opened")
}

func (h zerologHook) OnSegmentError(name string, op string, err error) {
	h.log.Error().Str("segment", name).Str("op", op).Err(err).Msg("shared memory error")
}

func (h zerologHook) OnChunkPoolStats(name string, stats ChunkPoolStats) {
	h.log.Debug().Str("segment", name).Uint32("capacity", stats.Capacity).
		Int32("free", stats.FreeCount).Msg("chunk pool stats")
}

func (h zerologHook) OnSubscriberJoined(name string, slot uint32) {
	h.log.Info().Str("segment", name).Uint32("slot", slot).Msg("subscriber joined")
}

func (h zerologHook) OnSubscriberLeft(name string, slot uint32) {
	h.log.Info().Str("segment", name).Uint32("slot", slot).Msg("subscriber left")
}
