// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import "unsafe"

// The segment is laid out as a single contiguous byte range:
//
//	[ ControlBlock ][ ChunkHeader × MaxChunks ][ payload bytes × MaxChunks ][ SubscriberRegistry ][ ChannelQueue × MaxSubscribers ]
//
// Every offset below is computed from Config by computeLayout. The
// offsets themselves are not stored in the segment: the creator stores
// its geometry in the ControlBlock, and an attaching process recomputes
// the offsets from its own Config and checks its geometry against the
// stored one before touching anything past the ControlBlock.
//
// Fields are overlaid onto the mapped bytes with unsafe.Pointer casts
// rather than encoding/decoding: every field that crosses the process
// boundary is a fixed-width atomic-sized integer, so the overlay is
// portable across processes built from the same Go toolchain/GOARCH,
// which is the only configuration shmipc supports (spec.md's Non-goals
// exclude cross-architecture interop).
type segmentLayout struct {
	controlBlockOffset uintptr
	chunkHeadersOffset uintptr
	chunkHeaderStride  uintptr
	payloadOffset      uintptr
	payloadStride      uintptr
	registryOffset     uintptr
	queuesOffset       uintptr
	queueStride        uintptr
	totalSize          uintptr
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// computeLayout derives every section offset from a validated Config.
func computeLayout(cfg Config) segmentLayout {
	const cacheLine = 64

	var l segmentLayout
	l.controlBlockOffset = 0
	cbSize := alignUp(unsafe.Sizeof(controlBlock{}), cacheLine)

	l.chunkHeadersOffset = l.controlBlockOffset + cbSize
	l.chunkHeaderStride = alignUp(unsafe.Sizeof(chunkHeader{}), cacheLine)
	chunkHeadersSize := l.chunkHeaderStride * uintptr(cfg.MaxChunks)

	l.payloadOffset = l.chunkHeadersOffset + chunkHeadersSize
	l.payloadStride = alignUp(uintptr(cfg.ChunkSize), cacheLine)
	payloadSize := l.payloadStride * uintptr(cfg.MaxChunks)

	l.registryOffset = l.payloadOffset + payloadSize
	registrySize := alignUp(subscriberRegistrySize(cfg.MaxSubscribers), cacheLine)

	l.queuesOffset = l.registryOffset + registrySize
	l.queueStride = alignUp(channelQueueSize(cfg.QueueCapacity), cacheLine)
	queuesSize := l.queueStride * uintptr(cfg.MaxSubscribers)

	l.totalSize = l.queuesOffset + queuesSize
	return l
}

// ptrAt returns a pointer to the byte at offset within base, the mapped
// segment's first byte.
func ptrAt(base unsafe.Pointer, offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(base) + offset)
}

func (l segmentLayout) controlBlock(base unsafe.Pointer) *controlBlock {
	return (*controlBlock)(ptrAt(base, l.controlBlockOffset))
}

func (l segmentLayout) chunkHeader(base unsafe.Pointer, idx uint32) *chunkHeader {
	return (*chunkHeader)(ptrAt(base, l.chunkHeadersOffset+l.chunkHeaderStride*uintptr(idx)))
}

func (l segmentLayout) payload(base unsafe.Pointer, idx uint32, size uint32) []byte {
	p := ptrAt(base, l.payloadOffset+l.payloadStride*uintptr(idx))
	return unsafe.Slice((*byte)(p), size)
}

func (l segmentLayout) registry(base unsafe.Pointer) *subscriberRegistry {
	return (*subscriberRegistry)(ptrAt(base, l.registryOffset))
}

func (l segmentLayout) queue(base unsafe.Pointer, slot uint32) *channelQueue {
	return (*channelQueue)(ptrAt(base, l.queuesOffset+l.queueStride*uintptr(slot)))
}
