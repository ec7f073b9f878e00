package persistence

import (
	"errors"
	"fmt"
	"sync"
)

// Driver errors.
var (
	ErrOutOfRange = errors.New("access outside storage region")
	ErrCapacity   = errors.New("storage region too small for layout")
	ErrBufferSize = errors.New("buffer does not match field width")
)

// Driver is a raw byte-addressable storage region.
//
// Writes may be buffered until Commit; an implementation must not expose a
// partially committed region to a later boot.
type Driver interface {
	// Len returns the size of the region in bytes.
	Len() int

	// ReadAt copies len(p) bytes starting at off into p.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt stages p at off.
	WriteAt(p []byte, off int64) (int, error)

	// Commit makes all staged writes durable.
	Commit() error
}

func checkRange(size int, n int, off int64) error {
	if off < 0 || off+int64(n) > int64(size) {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, off, off+int64(n), size)
	}
	return nil
}

// MemoryDriver is a volatile Driver backed by a byte slice.
// Commit snapshots the working buffer so tests can inspect durable state.
type MemoryDriver struct {
	mu        sync.Mutex
	buf       []byte
	committed []byte
	commits   int

	// CommitErr, when set, is returned by Commit and the snapshot is not taken.
	CommitErr error
}

// NewMemoryDriver creates a zero-filled region of the given size.
func NewMemoryDriver(size int) *MemoryDriver {
	return &MemoryDriver{
		buf:       make([]byte, size),
		committed: make([]byte, size),
	}
}

// Len returns the region size.
func (d *MemoryDriver) Len() int {
	return len(d.buf)
}

// ReadAt reads from the working buffer.
func (d *MemoryDriver) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(len(d.buf), len(p), off); err != nil {
		return 0, err
	}
	return copy(p, d.buf[off:]), nil
}

// WriteAt writes into the working buffer.
func (d *MemoryDriver) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(len(d.buf), len(p), off); err != nil {
		return 0, err
	}
	return copy(d.buf[off:], p), nil
}

// Commit snapshots the working buffer.
func (d *MemoryDriver) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CommitErr != nil {
		return d.CommitErr
	}
	copy(d.committed, d.buf)
	d.commits++
	return nil
}

// Committed returns a copy of the last committed image.
func (d *MemoryDriver) Committed() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]byte, len(d.committed))
	copy(out, d.committed)
	return out
}

// Commits returns how many successful commits happened.
func (d *MemoryDriver) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

// Reset discards uncommitted writes, simulating a power cycle.
func (d *MemoryDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.buf, d.committed)
}
