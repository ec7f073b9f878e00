package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// erasedByte is the value of never-written cells in a fresh image.
const erasedByte = 0xFF

// FileDriver is a Driver that keeps an image of the region in a file.
//
// Writes are staged in memory. Commit writes the whole image to a temporary
// file in the same directory and renames it over the image, so an interrupted
// commit leaves the previous image intact.
type FileDriver struct {
	mu   sync.Mutex
	path string
	buf  []byte
}

// OpenFile loads the image at path, or creates an erased image of the given
// size when the file does not exist. Images shorter than size are extended
// with erased cells; longer images are truncated to size.
func OpenFile(path string, size int) (*FileDriver, error) {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = erasedByte
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}
	copy(buf, data)

	return &FileDriver{path: path, buf: buf}, nil
}

// Path returns the image file path.
func (d *FileDriver) Path() string {
	return d.path
}

// Len returns the region size.
func (d *FileDriver) Len() int {
	return len(d.buf)
}

// ReadAt reads from the staged image.
func (d *FileDriver) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(len(d.buf), len(p), off); err != nil {
		return 0, err
	}
	return copy(p, d.buf[off:]), nil
}

// WriteAt stages p at off.
func (d *FileDriver) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(len(d.buf), len(p), off); err != nil {
		return 0, err
	}
	return copy(d.buf[off:], p), nil
}

// Commit atomically replaces the image file with the staged image.
func (d *FileDriver) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(d.buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing image %s: %w", d.path, err)
	}
	return nil
}
