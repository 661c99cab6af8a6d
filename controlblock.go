// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import "code.hybscloud.com/atomix"

// controlBlock is the fixed header at offset 0 of every segment. It is
// the first thing an attacher reads, before trusting any other byte in
// the mapping: version and geometry are checked here so a mismatched
// build or config fails fast with a typed error instead of silently
// misreading the rest of the segment.
type controlBlock struct {
	_ pad
	// version is the layoutVersion this segment was created with.
	version atomix.Uint32
	// initialized transitions 0→1 once the creator has finished writing
	// every section (chunk pool free list, registry, queue headers).
	// Attachers spin on this before touching anything past the
	// controlBlock itself.
	initialized atomix.Uint32
	_           pad

	// Geometry, copied from Config at creation time and re-validated by
	// every attacher against its own Config.
	chunkSize      uint32
	maxChunks      uint32
	maxSubscribers uint32
	queueCapacity  uint32
	ipcType        uint32
	_              pad

	// publisherAttached enforces single-producer topologies: SPMC
	// segments reject a second concurrent Publisher. CAS 0→1 on attach,
	// reset to 0 on Publisher.Close.
	publisherAttached atomix.Uint32
	_                 pad

	// refCount is reserved space in the segment; no code in this package
	// reads or writes it. The Config.AutoCleanup unlink decision is made
	// from SharedMemoryManager's own process-local count instead.
	refCount atomix.Int64
	_        pad

	pool chunkPool
}

func (cb *controlBlock) geometry() Config {
	return Config{
		ChunkSize:      cb.chunkSize,
		MaxChunks:      cb.maxChunks,
		MaxSubscribers: cb.maxSubscribers,
		QueueCapacity:  cb.queueCapacity,
		IPCType:        IPCType(cb.ipcType),
	}
}

func (cb *controlBlock) setGeometry(cfg Config) {
	cb.chunkSize = cfg.ChunkSize
	cb.maxChunks = cfg.MaxChunks
	cb.maxSubscribers = cfg.MaxSubscribers
	cb.queueCapacity = cfg.QueueCapacity
	cb.ipcType = uint32(cfg.IPCType)
}
