package storage

import (
	"os"

	"golang.org/x/sys/unix"

	cairnerrors "github.com/cairndb/cairn/core/errors"
)

// FileDevice is the Device implementation used outside of tests: a real OS
// file, advisory-locked for exclusive write access. Cairn is single-writer
// by contract (spec §5); the flock is defense in depth against a second OS
// process opening the same file for writing, not a substitute for the
// in-process SharedPagedData mutex.
type FileDevice struct {
	f      *os.File
	locked bool
}

// OpenFileDevice opens (creating if necessary) the file at path. When
// writable is true an exclusive advisory lock is taken; OpenFileDevice
// fails immediately if another process already holds it.
func OpenFileDevice(path string, writable bool) (*FileDevice, error) {
	flag := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, cairnerrors.NewIO("open", path, err)
	}
	d := &FileDevice{f: f}
	if writable {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			return nil, cairnerrors.NewIO("lock", path, err)
		}
		d.locked = true
	} else {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
			f.Close()
			return nil, cairnerrors.NewIO("lock", path, err)
		}
	}
	return d, nil
}

func (d *FileDevice) Size() uint64 {
	info, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}

func (d *FileDevice) ReadAt(off uint64, buf []byte) error {
	_, err := d.f.ReadAt(buf, int64(off))
	if err != nil {
		return cairnerrors.NewStorage("read page", err)
	}
	return nil
}

func (d *FileDevice) WriteAt(off uint64, buf []byte) error {
	_, err := d.f.WriteAt(buf, int64(off))
	if err != nil {
		return cairnerrors.NewStorage("write page", err)
	}
	return nil
}

func (d *FileDevice) Commit(size uint64) error {
	if err := d.f.Truncate(int64(size)); err != nil {
		return cairnerrors.NewStorage("truncate", err)
	}
	if err := d.f.Sync(); err != nil {
		return cairnerrors.NewStorage("fsync", err)
	}
	return nil
}

// Close releases the lock (if held) and the underlying file handle.
func (d *FileDevice) Close() error {
	if d.locked {
		_ = unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	}
	return d.f.Close()
}
