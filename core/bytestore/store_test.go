package bytestore

import (
	"bytes"
	"testing"

	"github.com/cairndb/cairn/core/storage"
)

func newTestAccess(t *testing.T) *storage.AccessPagedData {
	t.Helper()
	dev := storage.NewMemDevice()
	cf, err := storage.OpenCompactFile(dev)
	if err != nil {
		t.Fatalf("OpenCompactFile: %v", err)
	}
	return storage.NewSharedPagedData(cf).OpenWriter()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s, err := New(newTestAccess(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := [][]byte{
		[]byte(""),
		[]byte("short"),
		bytes.Repeat([]byte("x"), payloadSize),
		bytes.Repeat([]byte("y"), payloadSize+1),
		bytes.Repeat([]byte("z"), payloadSize*5+17),
	}
	for _, want := range cases {
		id, err := s.Encode(want)
		if err != nil {
			t.Fatalf("Encode(%d bytes): %v", len(want), err)
		}
		got, err := s.Decode(id)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("round trip mismatch for %d-byte input: got %d bytes", len(want), len(got))
		}
	}
}

func TestEncodeAllocatesDisjointIDRanges(t *testing.T) {
	s, _ := New(newTestAccess(t))
	a, _ := s.Encode(bytes.Repeat([]byte("a"), 200))
	b, _ := s.Encode(bytes.Repeat([]byte("b"), 200))
	if b <= a {
		t.Fatalf("second chain's id %d did not follow the first chain's id %d", b, a)
	}
	gotA, _ := s.Decode(a)
	gotB, _ := s.Decode(b)
	if !bytes.Equal(gotA, bytes.Repeat([]byte("a"), 200)) || !bytes.Equal(gotB, bytes.Repeat([]byte("b"), 200)) {
		t.Fatal("chains overlapped or corrupted each other")
	}
}

func TestDelcodeRemovesChain(t *testing.T) {
	s, _ := New(newTestAccess(t))
	id, _ := s.Encode(bytes.Repeat([]byte("q"), payloadSize*3))
	if err := s.Delcode(id); err != nil {
		t.Fatalf("Delcode: %v", err)
	}
	got, err := s.Decode(id)
	if err != nil {
		t.Fatalf("Decode after delete: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Decode after Delcode returned %d bytes, want 0 (chain should be gone)", len(got))
	}
}

func TestOpenSeedsIDAllocFromHighestFragment(t *testing.T) {
	access := newTestAccess(t)
	s1, _ := New(access)
	s1.Encode(bytes.Repeat([]byte("m"), payloadSize*2))
	root := s1.Root()

	s2, err := Open(access, root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := s2.Encode([]byte("after reopen"))
	if err != nil {
		t.Fatalf("Encode after reopen: %v", err)
	}
	if id <= s1.idAlloc {
		t.Fatalf("reopened store did not continue the id sequence: got %d, prior alloc was %d", id, s1.idAlloc)
	}
}
