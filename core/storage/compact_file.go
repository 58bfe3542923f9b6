package storage

import (
	"encoding/binary"

	cairnerrors "github.com/cairndb/cairn/core/errors"
)

// Layout constants for the compact file format (spec §3, §6.3).
const (
	// HSIZE is the fixed file header: ep_reserved, lp_alloc, lp_first, each
	// an 8-byte little-endian word.
	HSIZE = 24

	// SPSIZE is the size in bytes of one starter-page slot.
	SPSIZE = 400

	// EPSIZE is the size in bytes of one extension-page slot.
	EPSIZE = 1024

	// maxExtPerPage bounds how many extension pages a single logical page
	// may reference. The starter page reserves a fixed-size pointer array
	// sized for this maximum, so the same byte layout works for every
	// starter regardless of how many extensions a given page actually uses.
	maxExtPerPage = 48

	spPtrBytes   = maxExtPerPage * 8
	spInlineCap  = SPSIZE - 2 - spPtrBytes
	epOwnerBytes = 8
	epPayload    = EPSIZE - epOwnerBytes

	// LPMAX is the largest logical page this layout can represent.
	LPMAX = spInlineCap + maxExtPerPage*epPayload
)

// freeOwner marks an extension-page slot as unused (not referenced by any
// starter page) in its owner prefix.
const freeOwner = ^uint64(0)

// noFree terminates the on-disk free list (spec §3: "terminated by u64::MAX").
const noFree = ^uint64(0)

// CompactFile turns an AtomicFile (or any Device) into a store of
// variable-sized logical pages, per spec §4.3.
type CompactFile struct {
	dev Device

	epReserved uint64 // number of EPSIZE blocks reserved for the starter array
	lpAlloc    uint64 // next never-used logical page id
	lpFirst    uint64 // head of the on-disk free list, or noFree
	epCount    uint64 // number of extension-page slots currently allocated

	lpFreedThisTxn []uint64          // FreePage calls since the last Save/Rollback
	epFree         map[uint64]bool   // extension slots free but not yet compacted away
	owners         map[uint64]uint64 // cache of ext-slot -> owning lp, filled lazily
}

// OpenCompactFile reads (or initialises, if dev is empty) the compact-file
// header from dev.
func OpenCompactFile(dev Device) (*CompactFile, error) {
	cf := &CompactFile{
		dev:    dev,
		epFree: make(map[uint64]bool),
		owners: make(map[uint64]uint64),
	}
	if dev.Size() < HSIZE {
		cf.epReserved = 1
		cf.lpFirst = noFree
		if err := cf.writeHeader(); err != nil {
			return nil, err
		}
		if err := dev.Commit(HSIZE + cf.epReserved*EPSIZE); err != nil {
			return nil, err
		}
		return cf, nil
	}
	if err := cf.readHeader(); err != nil {
		return nil, err
	}
	total := dev.Size()
	extBytes := total - HSIZE - cf.epReserved*EPSIZE
	cf.epCount = extBytes / EPSIZE
	return cf, nil
}

func (cf *CompactFile) readHeader() error {
	buf := make([]byte, HSIZE)
	if err := cf.dev.ReadAt(0, buf); err != nil {
		return err
	}
	cf.epReserved = binary.LittleEndian.Uint64(buf[0:8])
	cf.lpAlloc = binary.LittleEndian.Uint64(buf[8:16])
	cf.lpFirst = binary.LittleEndian.Uint64(buf[16:24])
	return nil
}

func (cf *CompactFile) writeHeader() error {
	buf := make([]byte, HSIZE)
	binary.LittleEndian.PutUint64(buf[0:8], cf.epReserved)
	binary.LittleEndian.PutUint64(buf[8:16], cf.lpAlloc)
	binary.LittleEndian.PutUint64(buf[16:24], cf.lpFirst)
	return cf.dev.WriteAt(0, buf)
}

func (cf *CompactFile) capacity() uint64 {
	return (cf.epReserved * EPSIZE) / SPSIZE
}

func (cf *CompactFile) starterOffset(lp uint64) uint64 {
	return HSIZE + lp*SPSIZE
}

func (cf *CompactFile) extOffset(globalIdx uint64) uint64 {
	return HSIZE + globalIdx*EPSIZE
}

func extCount(size int) int {
	if size <= spInlineCap {
		return 0
	}
	remaining := size - spInlineCap
	return (remaining + epPayload - 1) / epPayload
}

// AllocPage reserves a fresh logical page id: from the in-transaction free
// list, then the on-disk free list, then a brand-new id.
func (cf *CompactFile) AllocPage() (uint64, error) {
	if n := len(cf.lpFreedThisTxn); n > 0 {
		lp := cf.lpFreedThisTxn[n-1]
		cf.lpFreedThisTxn = cf.lpFreedThisTxn[:n-1]
		return lp, nil
	}
	if cf.lpFirst != noFree {
		lp := cf.lpFirst
		if err := cf.growStarterArray(lp); err != nil {
			return 0, err
		}
		next := make([]byte, 8)
		if err := cf.dev.ReadAt(cf.starterOffset(lp)+2, next); err != nil {
			return 0, err
		}
		cf.lpFirst = binary.LittleEndian.Uint64(next)
		return lp, nil
	}
	lp := cf.lpAlloc
	cf.lpAlloc++
	if err := cf.growStarterArray(lp); err != nil {
		return 0, err
	}
	return lp, nil
}

// FreePage marks lp for reuse; the free list is not updated on disk until
// Save.
func (cf *CompactFile) FreePage(lp uint64) {
	cf.lpFreedThisTxn = append(cf.lpFreedThisTxn, lp)
}

// growStarterArray ensures the starter array has a slot for lp, relocating
// extension pages out of the way as needed (spec §4.3 step 1).
func (cf *CompactFile) growStarterArray(lp uint64) error {
	for lp >= cf.capacity() {
		evicted := cf.epReserved
		if err := cf.relocateExtSlot(evicted, cf.epReserved+cf.epCount); err != nil {
			return err
		}
		cf.epReserved++
	}
	return nil
}

// relocateExtSlot moves the extension page at global index `from` to global
// index `to`, fixing up the owning starter's pointer array (or the
// epFree bookkeeping, if the slot was unused).
func (cf *CompactFile) relocateExtSlot(from, to uint64) error {
	if from == to {
		return nil
	}
	buf := make([]byte, EPSIZE)
	if err := cf.dev.ReadAt(cf.extOffset(from), buf); err != nil {
		return err
	}
	owner := binary.LittleEndian.Uint64(buf[0:8])
	if owner == freeOwner {
		if cf.epFree[from] {
			delete(cf.epFree, from)
			cf.epFree[to] = true
		}
		return cf.dev.WriteAt(cf.extOffset(to), buf)
	}
	if err := cf.rewriteOwnerPointer(owner, from, to); err != nil {
		return err
	}
	return cf.dev.WriteAt(cf.extOffset(to), buf)
}

// rewriteOwnerPointer finds `from` in owner's extension-pointer array and
// replaces it with `to`.
func (cf *CompactFile) rewriteOwnerPointer(owner, from, to uint64) error {
	soff := cf.starterOffset(owner)
	sizeBuf := make([]byte, 2)
	if err := cf.dev.ReadAt(soff, sizeBuf); err != nil {
		return err
	}
	size := int(binary.LittleEndian.Uint16(sizeBuf))
	n := extCount(size)
	ptrs := make([]byte, n*8)
	if n > 0 {
		if err := cf.dev.ReadAt(soff+2, ptrs); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		if binary.LittleEndian.Uint64(ptrs[i*8:i*8+8]) == from {
			binary.LittleEndian.PutUint64(ptrs[i*8:i*8+8], to)
			return cf.dev.WriteAt(soff+2+uint64(i*8), ptrs[i*8:i*8+8])
		}
	}
	return cairnerrors.NewStorage("relocate extension page", errOwnerPointerNotFound)
}

type compactError string

func (e compactError) Error() string { return string(e) }

const errOwnerPointerNotFound = compactError("compact file: owning starter page does not reference this extension slot")
const errOversizedPage = compactError("compact file: page exceeds LPMAX")
const errPageNotAllocated = compactError("compact file: page not allocated")

// allocExtSlot returns a free extension-page global index, preferring
// slots queued by earlier frees this save cycle, else extending the tail.
func (cf *CompactFile) allocExtSlot() uint64 {
	for idx := range cf.epFree {
		delete(cf.epFree, idx)
		return idx
	}
	idx := cf.epReserved + cf.epCount
	cf.epCount++
	return idx
}

// WritePage writes the full contents of logical page lp, growing or
// shrinking its extension-page chain as needed.
func (cf *CompactFile) WritePage(lp uint64, data []byte) error {
	if len(data) > LPMAX {
		return cairnerrors.NewStorage("write page", errOversizedPage)
	}
	if err := cf.growStarterArray(lp); err != nil {
		return err
	}

	soff := cf.starterOffset(lp)
	oldHeader := make([]byte, 2+spPtrBytes)
	if err := cf.dev.ReadAt(soff, oldHeader); err != nil {
		return err
	}
	oldSize := int(binary.LittleEndian.Uint16(oldHeader[0:2]))
	oldExt := extCount(oldSize)
	ptrs := oldHeader[2 : 2+spPtrBytes]

	newExt := extCount(len(data))
	switch {
	case newExt < oldExt:
		for i := newExt; i < oldExt; i++ {
			idx := binary.LittleEndian.Uint64(ptrs[i*8 : i*8+8])
			cf.epFree[idx] = true
		}
	case newExt > oldExt:
		for i := oldExt; i < newExt; i++ {
			idx := cf.allocExtSlot()
			binary.LittleEndian.PutUint64(ptrs[i*8:i*8+8], idx)
		}
	}

	out := make([]byte, 2+spPtrBytes)
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(data)))
	copy(out[2:2+spPtrBytes], ptrs)
	if err := cf.dev.WriteAt(soff, out); err != nil {
		return err
	}

	inline := data
	if len(inline) > spInlineCap {
		inline = data[:spInlineCap]
	}
	if len(inline) > 0 {
		if err := cf.dev.WriteAt(soff+2+spPtrBytes, inline); err != nil {
			return err
		}
	}

	rest := data[len(inline):]
	for i := 0; i < newExt; i++ {
		idx := binary.LittleEndian.Uint64(ptrs[i*8 : i*8+8])
		chunk := make([]byte, epOwnerBytes, EPSIZE)
		binary.LittleEndian.PutUint64(chunk[0:8], lp)
		start := i * epPayload
		end := start + epPayload
		if end > len(rest) {
			end = len(rest)
		}
		chunk = append(chunk, rest[start:end]...)
		if err := cf.dev.WriteAt(cf.extOffset(idx), chunk); err != nil {
			return err
		}
	}

	return nil
}

// ReadPage returns the full contents of logical page lp.
func (cf *CompactFile) ReadPage(lp uint64) ([]byte, error) {
	soff := cf.starterOffset(lp)
	header := make([]byte, 2+spPtrBytes)
	if err := cf.dev.ReadAt(soff, header); err != nil {
		return nil, err
	}
	size := int(binary.LittleEndian.Uint16(header[0:2]))
	if size == 0 {
		return nil, cairnerrors.NewStorage("read page", errPageNotAllocated)
	}
	ext := extCount(size)
	ptrs := header[2 : 2+spPtrBytes]

	result := make([]byte, 0, size)
	inline := size
	if inline > spInlineCap {
		inline = spInlineCap
	}
	inlineBuf := make([]byte, inline)
	if inline > 0 {
		if err := cf.dev.ReadAt(soff+2+spPtrBytes, inlineBuf); err != nil {
			return nil, err
		}
	}
	result = append(result, inlineBuf...)

	remaining := size - inline
	for i := 0; i < ext && remaining > 0; i++ {
		idx := binary.LittleEndian.Uint64(ptrs[i*8 : i*8+8])
		take := epPayload
		if take > remaining {
			take = remaining
		}
		buf := make([]byte, epOwnerBytes+take)
		if err := cf.dev.ReadAt(cf.extOffset(idx), buf); err != nil {
			return nil, err
		}
		result = append(result, buf[epOwnerBytes:]...)
		remaining -= take
	}
	return result, nil
}

// Save persists the free list and compacts the extension-page tail, per
// spec §4.3 step "save()".
func (cf *CompactFile) Save() error {
	for _, lp := range cf.lpFreedThisTxn {
		soff := cf.starterOffset(lp)
		rec := make([]byte, 2+8)
		binary.LittleEndian.PutUint16(rec[0:2], 0)
		binary.LittleEndian.PutUint64(rec[2:10], cf.lpFirst)
		if err := cf.dev.WriteAt(soff, rec); err != nil {
			return err
		}
		cf.lpFirst = lp
	}
	cf.lpFreedThisTxn = nil

	for len(cf.epFree) > 0 {
		last := cf.epReserved + cf.epCount - 1
		if cf.epFree[last] {
			delete(cf.epFree, last)
			cf.epCount--
			continue
		}
		var target uint64
		for idx := range cf.epFree {
			target = idx
			break
		}
		delete(cf.epFree, target)
		if err := cf.relocateExtSlot(last, target); err != nil {
			return err
		}
		cf.epCount--
	}

	if err := cf.writeHeader(); err != nil {
		return err
	}
	return cf.dev.Commit(HSIZE + cf.epReserved*EPSIZE + cf.epCount*EPSIZE)
}

// Rollback discards in-memory allocator state accumulated since the last
// Save, reloading it from the on-disk header.
func (cf *CompactFile) Rollback() error {
	cf.lpFreedThisTxn = nil
	cf.epFree = make(map[uint64]bool)
	return cf.readHeader()
}

// Size reports the number of bytes the compact file currently occupies.
func (cf *CompactFile) Size() uint64 {
	return HSIZE + cf.epReserved*EPSIZE + cf.epCount*EPSIZE
}
