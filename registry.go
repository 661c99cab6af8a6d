// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// subscriberRegistry is the double-buffered directory described in
// spec.md §4.4: two equally-sized arrays of active slot indices, plus a
// single atomic word (meta) that packs which buffer is presently valid
// for readers together with its occupied length, so a reader always
// observes a (buffer, count) pair that was published together by one
// release-store rather than two separately-torn fields.
//
// Readers (Publisher.Send, scanner threads) never take the write lock:
// they load meta once, then copy out of whichever buffer it names.
// Writers (Subscriber join/leave, rare relative to the send hot path)
// serialize on a CAS spinlock before mirroring the live buffer into the
// other slot and mutating it, matching spec.md §4.4's "writers... are
// serialized by a combination of CAS on the slot-active flag and the
// snapshot flip; this is not a general multi-writer concurrent set". A
// process-local sync.Mutex cannot live in the shared segment (it is not
// valid to use a Go runtime mutex value shared across process address
// spaces), so the write lock here is itself a CAS spin-lock over a
// shared atomix.Uint32 — see DESIGN.md.
type subscriberRegistry struct {
	_         pad
	slotLock  atomix.Uint32 // slot-claim spinlock: fetch_add is racy alone across retries, this serializes the CAS scan
	_         pad
	writeLock atomix.Uint32 // register/unregister spinlock
	_         pad
	claimCtr  atomix.Uint64 // fetch_add claim cursor for slot allocation, monotonic
	_         pad
	meta      atomix.Uint32 // packed: bit0 = active buffer index, bits[1:] = count
	_         pad
	capacity  uint32
	_         [4]byte
}

func subscriberRegistrySize(maxSubscribers uint32) uintptr {
	// slotActive[capacity] + two snapshot buffers of capacity uint32 each.
	return unsafe.Sizeof(subscriberRegistry{}) +
		uintptr(maxSubscribers)*unsafe.Sizeof(atomix.Uint32{}) +
		2*uintptr(maxSubscribers)*unsafe.Sizeof(uint32(0))
}

func packMeta(bufIdx uint32, count uint32) uint32 {
	return count<<1 | (bufIdx & 1)
}

func unpackMeta(m uint32) (bufIdx uint32, count uint32) {
	return m & 1, m >> 1
}

// slotActive returns the per-slot occupancy flags (claim ownership),
// independent of the snapshot buffers below.
func (r *subscriberRegistry) slotActive() []atomix.Uint32 {
	p := unsafe.Add(unsafe.Pointer(r), unsafe.Sizeof(subscriberRegistry{}))
	return unsafe.Slice((*atomix.Uint32)(p), r.capacity)
}

// snapshotBuf returns buffer 0 or 1 of the double-buffered active-slot
// list.
func (r *subscriberRegistry) snapshotBuf(which uint32) []uint32 {
	base := unsafe.Add(unsafe.Pointer(r), unsafe.Sizeof(subscriberRegistry{}))
	base = unsafe.Add(base, uintptr(r.capacity)*unsafe.Sizeof(atomix.Uint32{}))
	base = unsafe.Add(base, uintptr(which)*uintptr(r.capacity)*unsafe.Sizeof(uint32(0)))
	return unsafe.Slice((*uint32)(base), r.capacity)
}

func (r *subscriberRegistry) init(capacity uint32) {
	r.capacity = capacity
	for i := range r.slotActive() {
		r.slotActive()[i].StoreRelaxed(0)
	}
	r.meta.StoreRelease(packMeta(0, 0))
}

func (r *subscriberRegistry) lock(l *atomix.Uint32) {
	sw := spin.Wait{}
	for !l.CompareAndSwapAcqRel(0, 1) {
		sw.Once()
	}
}

func (r *subscriberRegistry) unlock(l *atomix.Uint32) {
	l.StoreRelease(0)
}

// claim reserves a free slot (marks its occupancy flag) and publishes it
// into the active snapshot, returning the slot index. Returns
// ErrRegistryFull if every slot is occupied.
func (r *subscriberRegistry) claim() (uint32, error) {
	slots := r.slotActive()

	r.lock(&r.slotLock)
	var chosen uint32 = chunkPoolNil
	for attempt := uint32(0); attempt < r.capacity; attempt++ {
		idx := uint32(r.claimCtr.AddAcqRel(1)-1) % r.capacity
		if slots[idx].LoadAcquire() == 0 {
			slots[idx].StoreRelease(1)
			chosen = idx
			break
		}
	}
	r.unlock(&r.slotLock)
	if chosen == chunkPoolNil {
		return 0, ErrRegistryFull
	}

	r.lock(&r.writeLock)
	m := r.meta.LoadAcquire()
	curBuf, count := unpackMeta(m)
	nextBuf := 1 - curBuf
	src := r.snapshotBuf(curBuf)
	dst := r.snapshotBuf(nextBuf)
	copy(dst, src[:count])
	dst[count] = chosen
	r.meta.StoreRelease(packMeta(nextBuf, count+1))
	r.unlock(&r.writeLock)

	return chosen, nil
}

// release marks slot free and removes it from the active snapshot,
// compacting the list to preserve iteration order. Idempotent against a
// slot that is already free.
func (r *subscriberRegistry) release(slot uint32) {
	r.lock(&r.writeLock)
	m := r.meta.LoadAcquire()
	curBuf, count := unpackMeta(m)
	nextBuf := 1 - curBuf
	src := r.snapshotBuf(curBuf)
	dst := r.snapshotBuf(nextBuf)

	newCount := uint32(0)
	for i := uint32(0); i < count; i++ {
		if src[i] == slot {
			continue
		}
		dst[newCount] = src[i]
		newCount++
	}
	r.meta.StoreRelease(packMeta(nextBuf, newCount))
	r.unlock(&r.writeLock)

	r.slotActive()[slot].StoreRelease(0)
}

// snapshot copies the presently-active slot list into dst[:0] (reusing
// its backing array if large enough) with a single acquire load of meta,
// so a registration/unregistration that lands mid-call never mutates the
// buffer this call is reading from (spec.md §4.4 reader contract).
func (r *subscriberRegistry) snapshot(dst []uint32) []uint32 {
	m := r.meta.LoadAcquire()
	bufIdx, count := unpackMeta(m)
	src := r.snapshotBuf(bufIdx)
	if cap(dst) < int(count) {
		dst = make([]uint32, count)
	}
	dst = dst[:count]
	copy(dst, src[:count])
	return dst
}
