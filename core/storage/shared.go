package storage

import (
	"sync"

	"github.com/cairndb/cairn/core/cache"
	"github.com/cairndb/cairn/internal/logging"
)

// SharedPagedData mediates the one-writer/many-readers access pattern over
// a CompactFile: a single mutex guards the page cache map and the stash
// while the writer mutates pages and the compact file directly (spec
// §4.5).
type SharedPagedData struct {
	mu    sync.Mutex
	file  *CompactFile
	cache cache.Cache[uint64, []byte]
	stash *Stash
}

// NewSharedPagedData wraps an already-open CompactFile.
func NewSharedPagedData(file *CompactFile) *SharedPagedData {
	cfg := cache.DefaultConfig()
	cfg.MaxSize = 0 // unbounded: spec's base cache has no eviction policy (§10 of SPEC_FULL.md)
	return &SharedPagedData{
		file:  file,
		cache: cache.NewLRUCache[uint64, []byte](cfg),
		stash: NewStash(),
	}
}

// AccessPagedData is a reader or writer handle over the shared data. Reader
// handles carry a captured time; the writer handle (Time == 0 is not
// special-cased — Writing distinguishes the two) bypasses the stash.
type AccessPagedData struct {
	shared   *SharedPagedData
	time     uint64
	writing  bool
	readOpen bool
}

// OpenReader captures a snapshot time and returns a handle that observes
// pages as of that moment.
func (s *SharedPagedData) OpenReader() *AccessPagedData {
	return &AccessPagedData{shared: s, time: s.stash.BeginRead(), readOpen: true}
}

// OpenWriter returns a handle that always observes (and mutates) the
// current page contents.
func (s *SharedPagedData) OpenWriter() *AccessPagedData {
	return &AccessPagedData{shared: s, writing: true}
}

// Close releases a reader's time token. Writers need not call Close.
func (a *AccessPagedData) Close() {
	if a.readOpen {
		a.shared.stash.EndRead(a.time)
		a.readOpen = false
	}
}

// GetPage returns the bytes of logical page pid as observed by this
// handle's snapshot (for a reader) or the live contents (for the writer).
func (a *AccessPagedData) GetPage(pid uint64) ([]byte, error) {
	s := a.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if !a.writing {
		if v, ok := s.stash.Get(pid, a.time); ok {
			return v, nil
		}
	}
	if v, ok := s.cache.Get(pid); ok {
		return v, nil
	}
	v, err := s.file.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	s.cache.Put(pid, v)
	return v, nil
}

// SetPage installs new as the current contents of pid. Only the writer
// handle may call this: the previous value is stashed first so any reader
// that began before this call keeps observing it.
func (a *AccessPagedData) SetPage(pid uint64, newValue []byte) error {
	s := a.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.cache.Get(pid); ok {
		s.stash.Set(pid, old)
	} else if old, err := s.file.ReadPage(pid); err == nil {
		s.stash.Set(pid, old)
	}
	s.cache.Put(pid, newValue)
	return s.file.WritePage(pid, newValue)
}

// AllocPage allocates a fresh logical page id. Writer-only.
func (a *AccessPagedData) AllocPage() (uint64, error) {
	return a.shared.file.AllocPage()
}

// FreePage marks a logical page for reuse at the next Save. Writer-only.
func (a *AccessPagedData) FreePage(pid uint64) {
	a.shared.file.FreePage(pid)
	a.shared.mu.Lock()
	a.shared.cache.Remove(pid)
	a.shared.mu.Unlock()
}

// Save flushes the compact file and advances the stash's logical clock so
// subsequently opened readers see the new state, while readers already in
// flight keep their stashed pre-images.
func (a *AccessPagedData) Save() error {
	s := a.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Save(); err != nil {
		return err
	}
	newTime := s.stash.Tick()
	logging.CommitEvent(s.file.Size(), 0, "time", newTime)
	return nil
}

// Rollback discards the writer's uncommitted allocator state without
// advancing time.
func (a *AccessPagedData) Rollback() error {
	s := a.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Rollback()
}
