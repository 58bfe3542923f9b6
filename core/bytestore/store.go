package bytestore

import (
	"github.com/cairndb/cairn/core/sortedfile"
	"github.com/cairndb/cairn/core/storage"
)

// idKeyRecord lets Get/Remove probe the underlying file by bare id
// without constructing a full Fragment.
type idKeyRecord = idKey

// Store holds arbitrary byte strings as fragment chains. id_alloc tracks
// the highest fragment id ever handed out so Encode can allocate a fresh,
// contiguous id range.
type Store struct {
	file    *sortedfile.File
	idAlloc uint64
}

// New creates an empty byte store.
func New(access *storage.AccessPagedData) (*Store, error) {
	f, err := sortedfile.NewFile(access, FragmentRecSize, FragmentFactory)
	if err != nil {
		return nil, err
	}
	return &Store{file: f}, nil
}

// Open reconstructs a Store over an existing fragment file, seeding
// id_alloc from the highest stored fragment id (spec: "seeded on open by
// reading the last record via dsc(MAX)").
func Open(access *storage.AccessPagedData, root uint64) (*Store, error) {
	s := &Store{file: sortedfile.OpenFile(access, root, FragmentRecSize, FragmentFactory)}
	c, err := s.file.Dsc()
	if err != nil {
		return nil, err
	}
	if rec, ok := c.Next(); ok {
		s.idAlloc = rec.(Fragment).ID
	}
	return s, nil
}

// Root returns the fragment file's root page, to persist alongside the
// owning table or column so Open can find it again.
func (s *Store) Root() uint64 { return s.file.Root() }

// Encode splits data into 63-byte fragments, allocates a contiguous id
// range for them, writes the chain, and returns the first fragment's id.
func (s *Store) Encode(data []byte) (uint64, error) {
	firstID := s.idAlloc + 1
	id := firstID
	for i := 0; ; i += payloadSize {
		end := min(i+payloadSize, len(data))
		chunk := data[i:end]
		terminal := end >= len(data)

		var frag Fragment
		frag.ID = id
		frag.Length = len(chunk)
		frag.Terminal = terminal
		copy(frag.Payload[:], chunk)
		if err := s.file.Insert(frag); err != nil {
			return 0, err
		}
		id++
		if terminal {
			break
		}
	}
	s.idAlloc = id - 1
	return firstID, nil
}

// Decode walks the fragment chain starting at id until it sees the
// terminal fragment or the chain breaks (a missing id), concatenating
// payloads along the way.
func (s *Store) Decode(id uint64) ([]byte, error) {
	var out []byte
	cur := id
	for {
		rec, ok, err := s.file.Get(idKeyRecord(cur))
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		frag := rec.(Fragment)
		out = append(out, frag.Payload[:frag.Length]...)
		if frag.Terminal {
			break
		}
		cur++
	}
	return out, nil
}

// Delcode removes every fragment in the chain starting at id.
func (s *Store) Delcode(id uint64) error {
	cur := id
	for {
		rec, ok, err := s.file.Get(idKeyRecord(cur))
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		frag := rec.(Fragment)
		if _, err := s.file.Remove(idKeyRecord(cur)); err != nil {
			return err
		}
		if frag.Terminal {
			break
		}
		cur++
	}
	return nil
}
