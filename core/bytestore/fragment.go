// Package bytestore stores arbitrary-length byte strings as chains of
// fixed-size fragments in a sortedfile.File keyed by fragment id (spec
// §4.7), the way the table layer stores wide string/binary column
// values out of line.
package bytestore

import (
	"encoding/binary"

	"github.com/cairndb/cairn/core/sortedfile"
)

// payloadSize is the number of user bytes carried by one fragment; 8-byte
// id + 1-byte len header + 63 bytes of payload keeps the fixed record at
// a round 72 bytes.
const payloadSize = 63

// FragmentRecSize is the fixed on-page size of one Fragment record.
const FragmentRecSize = 8 + 1 + payloadSize

// Fragment is one 63-byte chunk of a longer byte string. Bit 0 of len
// marks the final fragment in its chain; bits 1-7 hold the payload
// length actually used (0-63).
type Fragment struct {
	ID       uint64
	Length   int
	Terminal bool
	Payload  [payloadSize]byte
}

func (f Fragment) Compare(other []byte) int {
	otherID := binary.LittleEndian.Uint64(other[0:8])
	switch {
	case f.ID < otherID:
		return -1
	case f.ID > otherID:
		return 1
	default:
		return 0
	}
}

func (f Fragment) Save(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], f.ID)
	lenByte := byte(f.Length&0x7F) << 1
	if f.Terminal {
		lenByte |= 1
	}
	buf[8] = lenByte
	copy(buf[9:9+payloadSize], f.Payload[:])
}

// FragmentFactory decodes a stored Fragment's raw bytes.
func FragmentFactory(buf []byte) sortedfile.Record {
	id := binary.LittleEndian.Uint64(buf[0:8])
	lenByte := buf[8]
	frag := Fragment{
		ID:       id,
		Length:   int(lenByte >> 1),
		Terminal: lenByte&1 != 0,
	}
	copy(frag.Payload[:], buf[9:9+payloadSize])
	return frag
}

// idKey is a bare fragment id used to probe the file without constructing
// a full Fragment.
type idKey uint64

func (k idKey) Compare(other []byte) int {
	otherID := binary.LittleEndian.Uint64(other[0:8])
	switch {
	case uint64(k) < otherID:
		return -1
	case uint64(k) > otherID:
		return 1
	default:
		return 0
	}
}

func (k idKey) Save(buf []byte) { binary.LittleEndian.PutUint64(buf[0:8], uint64(k)) }
