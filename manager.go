// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// shmPath turns a topic name ("/robot.telemetry") into the filesystem
// path POSIX shm_open would use on Linux. golang.org/x/sys/unix exposes
// open/ftruncate/mmap/munmap/unlink directly but not shm_open itself, so
// this package talks to the tmpfs-backed /dev/shm path shm_open resolves
// to on every Linux target it supports — the same approach used by
// libc's own shm_open implementation.
func shmPath(name string) (string, error) {
	if len(name) == 0 || name[0] != '/' || filepath.Clean(name) != name {
		return "", &Error{Kind: KindArgument, msg: "segment name must be an absolute single-component path, e.g. \"/robot.telemetry\""}
	}
	return filepath.Join(shmDir, name[1:]), nil
}

// SharedMemoryManager owns the memory-mapped segment backing one topic.
// It is the process-local collaborator Publisher/Subscriber/IPCFactory
// hold; segment creation, attach, and unmap go through it exclusively so
// every caller sees one consistent geometry (spec.md §3).
type SharedMemoryManager struct {
	mu       sync.Mutex
	name     string
	path     string
	fd       int
	data     []byte
	layout   segmentLayout
	cfg      Config
	creator  bool
	refs     int
}

// Create allocates a new named segment sized for cfg and initializes
// every section (control block, chunk pool free list, registry,
// per-subscriber queues). It fails with a *Error wrapping EEXIST
// (KindOS) if the name is already in use — creation is not idempotent;
// use Attach for an existing segment.
func Create(name string, cfg Config) (*SharedMemoryManager, error) {
	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}
	layout := computeLayout(cfg)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0600)
	if err != nil {
		if err == unix.EEXIST {
			return nil, withCause(errSegmentExists, err)
		}
		return nil, osError("shm_open create", err)
	}
	if err := unix.Ftruncate(fd, int64(layout.totalSize)); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return nil, osError("ftruncate", err)
	}
	data, err := unix.Mmap(fd, 0, int(layout.totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return nil, osError("mmap", err)
	}

	m := &SharedMemoryManager{name: name, path: path, fd: fd, data: data, layout: layout, cfg: cfg, creator: true, refs: 1}

	base := unsafe.Pointer(&data[0])
	cb := layout.controlBlock(base)
	cb.setGeometry(cfg)
	cb.version.StoreRelaxed(layoutVersion)
	cb.pool.init(layout, base, cfg.MaxChunks)
	layout.registry(base).init(cfg.MaxSubscribers)
	for i := uint32(0); i < cfg.MaxSubscribers; i++ {
		layout.queue(base, i).init(cfg.SubscriberQueueCapacity)
	}
	cb.initialized.StoreRelease(1)

	log.Info().Str("segment", name).Uint32("chunk_size", cfg.ChunkSize).
		Uint32("max_chunks", cfg.MaxChunks).Str("ipc_type", cfg.IPCType.String()).
		Msg("shmipc: segment created")
	return m, nil
}

// Attach maps an existing named segment and validates its stored
// geometry against cfg. It polls the control block's initialized flag
// for up to cfg.WaitTimeout (falling back to the default) before giving
// up with ErrShmInitTimeout, covering the window between a creator's
// Ftruncate/Mmap and its final initialized store.
func Attach(name string, cfg Config) (*SharedMemoryManager, error) {
	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, ErrShmNotFound
		}
		return nil, osError("shm_open attach", err)
	}

	layout := computeLayout(cfg)
	data, err := unix.Mmap(fd, 0, int(layout.totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, osError("mmap", err)
	}

	base := unsafe.Pointer(&data[0])
	cb := layout.controlBlock(base)

	deadline := time.Now().Add(cfg.WaitTimeout)
	for cb.initialized.LoadAcquire() == 0 {
		if time.Now().After(deadline) {
			_ = unix.Munmap(data)
			_ = unix.Close(fd)
			return nil, ErrShmInitTimeout
		}
		time.Sleep(time.Millisecond)
	}

	if cb.version.LoadAcquire() != layoutVersion {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		return nil, ErrShmVersionMismatch
	}
	if !geometryEqual(cb.geometry(), cfg) {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		return nil, withCause(ErrShmSizeMismatch, fmt.Errorf("stored=%+v requested=%+v", cb.geometry(), cfg))
	}

	m := &SharedMemoryManager{name: name, path: path, fd: fd, data: data, layout: layout, cfg: cfg, creator: false, refs: 1}
	return m, nil
}

func (m *SharedMemoryManager) base() unsafe.Pointer {
	return unsafe.Pointer(&m.data[0])
}

func (m *SharedMemoryManager) controlBlock() *controlBlock {
	return m.layout.controlBlock(m.base())
}

// Stats returns a point-in-time view of the segment's chunk pool.
// Publisher exposes the same data through its own Stats method for
// convenience; this is the one true source.
func (m *SharedMemoryManager) Stats() ChunkPoolStats {
	return m.controlBlock().pool.stats()
}

// Close unmaps the segment. If this manager created the segment and
// Config.AutoCleanup is set, it also unlinks the name once the process's
// local reference count reaches zero. That unlink does not check whether
// other processes or other managers still have the segment mapped;
// without AutoCleanup the name is never unlinked automatically.
func (m *SharedMemoryManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs--
	if m.refs > 0 {
		return nil
	}
	err := unix.Munmap(m.data)
	_ = unix.Close(m.fd)
	if m.creator && m.cfg.AutoCleanup {
		if uerr := unix.Unlink(m.path); uerr != nil && err == nil {
			err = osError("unlink", uerr)
		}
		log.Info().Str("segment", m.name).Msg("shmipc: segment unlinked")
	}
	return err
}

func (m *SharedMemoryManager) acquireRef() {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
}
