package storage

import (
	"encoding/binary"
	"sort"

	"github.com/cairndb/cairn/core/checksum"
	cairnerrors "github.com/cairndb/cairn/core/errors"
)

// journalHeaderSize: end_marker(8) + new_size(8) + BLAKE3 digest of the
// record stream(32).
const journalHeaderSize = 8 + 8 + checksum.Size

// pendingWrite is one buffered write awaiting commit.
type pendingWrite struct {
	start uint64
	data  []byte
}

func (w pendingWrite) end() uint64 { return w.start + uint64(len(w.data)) }

// AtomicFile wraps a main Device and an "update" Device, making Commit
// two-phase: writes that land beyond the current main size are streamed
// straight to main (they can't corrupt existing data); writes that land
// within the current size are journalled to the update device first, so a
// crash between the journal write and the main-device write can be
// recovered by replaying the journal on next Open.
type AtomicFile struct {
	main   Device
	update Device

	writes []pendingWrite
}

// NewAtomicFile wraps main/update devices that have already been opened and
// (if update.Size() indicates an unfinished commit) replayed via Recover.
func NewAtomicFile(main, update Device) *AtomicFile {
	return &AtomicFile{main: main, update: update}
}

// Size returns the logical size of the file: the main device's size,
// adjusted for any buffered writes that extend past it.
func (a *AtomicFile) Size() uint64 {
	size := a.main.Size()
	for _, w := range a.writes {
		if w.end() > size {
			size = w.end()
		}
	}
	return size
}

// ReadAt reads through any buffered writes not yet committed, falling back
// to the main device for untouched ranges.
func (a *AtomicFile) ReadAt(off uint64, buf []byte) error {
	need := uint64(len(buf))
	end := off + need
	mainSize := a.main.Size()
	if end <= mainSize {
		if err := a.main.ReadAt(off, buf); err != nil {
			return err
		}
	} else if off < mainSize {
		head := mainSize - off
		if err := a.main.ReadAt(off, buf[:head]); err != nil {
			return err
		}
	}
	for _, w := range a.writes {
		overlapStart := max64(off, w.start)
		overlapEnd := min64(end, w.end())
		if overlapStart >= overlapEnd {
			continue
		}
		copy(buf[overlapStart-off:overlapEnd-off], w.data[overlapStart-w.start:overlapEnd-w.start])
	}
	return nil
}

// WriteAt buffers a write; it is not visible to the main device until
// Commit.
func (a *AtomicFile) WriteAt(off uint64, buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	a.writes = append(a.writes, pendingWrite{start: off, data: cp})
	return nil
}

// Commit performs the two-phase protocol described in spec §4.2.
func (a *AtomicFile) Commit(size uint64) error {
	mainSize := a.main.Size()

	var direct, journalled []pendingWrite
	for _, w := range a.writes {
		if w.start >= mainSize {
			direct = append(direct, w)
		} else {
			journalled = append(journalled, w)
		}
	}

	// Direct writes cannot corrupt existing data (they land beyond the
	// current size), so they can go straight to main.
	for _, w := range direct {
		if err := a.main.WriteAt(w.start, w.data); err != nil {
			return err
		}
	}

	if len(journalled) > 0 {
		sort.Slice(journalled, func(i, j int) bool { return journalled[i].start < journalled[j].start })
		digest, err := a.writeJournal(journalled, size)
		if err != nil {
			return err
		}
		if err := a.finalizeJournal(size, digest); err != nil {
			return err
		}
		for _, w := range journalled {
			if err := a.main.WriteAt(w.start, w.data); err != nil {
				return err
			}
		}
	}

	if err := a.main.Commit(size); err != nil {
		return err
	}

	if err := a.resetJournal(); err != nil {
		return err
	}

	a.writes = nil
	return nil
}

// writeJournal serialises the update stream with end_marker=0 first (so a
// crash mid-write leaves the marker at zero, meaning "ignore me"), and
// returns the BLAKE3 digest of the record stream for finalizeJournal to
// store alongside the real end_marker.
func (a *AtomicFile) writeJournal(writes []pendingWrite, newSize uint64) ([checksum.Size]byte, error) {
	var zero [checksum.Size]byte
	header := make([]byte, journalHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], 0)
	binary.LittleEndian.PutUint64(header[8:16], newSize)
	if err := a.update.WriteAt(0, header); err != nil {
		return zero, err
	}

	var stream []byte
	off := uint64(journalHeaderSize)
	for _, w := range writes {
		rec := make([]byte, 16)
		binary.LittleEndian.PutUint64(rec[0:8], w.start)
		binary.LittleEndian.PutUint64(rec[8:16], uint64(len(w.data)))
		if err := a.update.WriteAt(off, rec); err != nil {
			return zero, err
		}
		off += 16
		if err := a.update.WriteAt(off, w.data); err != nil {
			return zero, err
		}
		off += uint64(len(w.data))
		stream = append(stream, rec...)
		stream = append(stream, w.data...)
	}
	if err := a.update.Commit(off); err != nil {
		return zero, err
	}
	return checksum.Sum(stream), nil
}

// finalizeJournal rewrites end_marker to a nonzero value and stores the
// record stream's digest, meaning "replay me on recovery if you find this
// file in this state, but verify me first".
func (a *AtomicFile) finalizeJournal(newSize uint64, digest [checksum.Size]byte) error {
	header := make([]byte, journalHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], 1)
	binary.LittleEndian.PutUint64(header[8:16], newSize)
	copy(header[16:], digest[:])
	if err := a.update.WriteAt(0, header); err != nil {
		return err
	}
	return a.update.Commit(a.update.Size())
}

// resetJournal zeroes end_marker once the main device has the new data
// durably, so recovery after this point is a no-op.
func (a *AtomicFile) resetJournal() error {
	header := make([]byte, journalHeaderSize)
	if err := a.update.WriteAt(0, header); err != nil {
		return err
	}
	return a.update.Commit(journalHeaderSize)
}

// Rollback discards buffered, uncommitted writes.
func (a *AtomicFile) Rollback() {
	a.writes = nil
}

// Recover replays an unfinished commit found in the update device into
// main. Call once, right after opening both devices, before using the
// AtomicFile.
func Recover(main, update Device) error {
	if update.Size() < journalHeaderSize {
		return nil
	}
	header := make([]byte, journalHeaderSize)
	if err := update.ReadAt(0, header); err != nil {
		return err
	}
	endMarker := binary.LittleEndian.Uint64(header[0:8])
	newSize := binary.LittleEndian.Uint64(header[8:16])
	if endMarker == 0 {
		return nil
	}
	var wantDigest [checksum.Size]byte
	copy(wantDigest[:], header[16:16+checksum.Size])

	var stream []byte
	var writes []pendingWrite
	off := uint64(journalHeaderSize)
	updateSize := update.Size()
	for off+16 <= updateSize {
		rec := make([]byte, 16)
		if err := update.ReadAt(off, rec); err != nil {
			return err
		}
		start := binary.LittleEndian.Uint64(rec[0:8])
		length := binary.LittleEndian.Uint64(rec[8:16])
		off += 16
		if off+length > updateSize {
			break
		}
		data := make([]byte, length)
		if err := update.ReadAt(off, data); err != nil {
			return err
		}
		off += length
		stream = append(stream, rec...)
		stream = append(stream, data...)
		writes = append(writes, pendingWrite{start: start, data: data})
	}

	if !checksum.Verify(stream, wantDigest) {
		return cairnerrors.NewStorage("recover", cairnerrors.ErrInternal)
	}

	for _, w := range writes {
		if err := main.WriteAt(w.start, w.data); err != nil {
			return err
		}
	}
	if err := main.Commit(newSize); err != nil {
		return err
	}
	zero := make([]byte, journalHeaderSize)
	if err := update.WriteAt(0, zero); err != nil {
		return err
	}
	return update.Commit(journalHeaderSize)
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
