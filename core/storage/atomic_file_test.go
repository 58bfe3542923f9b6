package storage

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cairndb/cairn/core/checksum"
)

func TestAtomicFileCommitVisible(t *testing.T) {
	main := NewMemDevice()
	update := NewMemDevice()
	af := NewAtomicFile(main, update)

	if err := af.WriteAt(0, []byte("hello world")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := af.Commit(11); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := make([]byte, 11)
	if err := main.ReadAt(0, got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestAtomicFileJournalsInRangeWrites(t *testing.T) {
	main := NewMemDevice()
	main.Commit(20) // establish an existing size so subsequent in-range writes are journalled

	update := NewMemDevice()
	af := NewAtomicFile(main, update)

	if err := af.WriteAt(5, []byte("PATCH")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := af.Commit(20); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := make([]byte, 5)
	main.ReadAt(5, got)
	if string(got) != "PATCH" {
		t.Fatalf("got %q, want PATCH", got)
	}
}

func TestRecoverReplaysUnfinishedCommit(t *testing.T) {
	main := NewMemDevice()
	main.Commit(20)
	update := NewMemDevice()
	af := NewAtomicFile(main, update)

	if err := af.WriteAt(2, []byte("REPLAYED")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := af.Commit(20); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Simulate a crash: re-inject an unfinished journal by hand and confirm
	// Recover replays it into a fresh main device.
	crashedMain := NewMemDevice()
	crashedMain.Commit(20)
	crashedUpdate := NewMemDevice()

	rec := make([]byte, 16)
	binary.LittleEndian.PutUint64(rec[0:8], 2) // start = 2
	binary.LittleEndian.PutUint64(rec[8:16], 8) // len = 8
	stream := append(append([]byte{}, rec...), []byte("REPLAYED")...)
	digest := checksum.Sum(stream)

	header := make([]byte, journalHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], 1) // end_marker != 0
	binary.LittleEndian.PutUint64(header[8:16], 20)
	copy(header[16:], digest[:])
	crashedUpdate.WriteAt(0, header)
	crashedUpdate.WriteAt(journalHeaderSize, rec)
	crashedUpdate.WriteAt(journalHeaderSize+16, []byte("REPLAYED"))
	crashedUpdate.Commit(uint64(journalHeaderSize + 16 + 8))

	if err := Recover(crashedMain, crashedUpdate); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	got := make([]byte, 8)
	crashedMain.ReadAt(2, got)
	if string(got) != "REPLAYED" {
		t.Fatalf("got %q after recovery, want REPLAYED", got)
	}
	if crashedUpdate.Size() < journalHeaderSize {
		t.Fatal("update device should retain a zeroed header after recovery")
	}
}

func TestRecoverNoOpWhenMarkerZero(t *testing.T) {
	main := NewMemDevice()
	main.Commit(10)
	original := make([]byte, 10)
	main.ReadAt(0, original)

	update := NewMemDevice()
	update.Commit(journalHeaderSize) // end_marker defaults to zero

	if err := Recover(main, update); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	after := make([]byte, 10)
	main.ReadAt(0, after)
	if !bytes.Equal(original, after) {
		t.Fatal("Recover should not modify main when end_marker is zero")
	}
}
