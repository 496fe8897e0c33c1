//go:build !windows

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"
)

// DefaultRegionPath resolves a producer object name to its path,
// preferring /dev/shm where the producer publishes on Linux.
func DefaultRegionPath(name string) string {
	if _, err := os.Stat("/dev/shm"); err == nil {
		return filepath.Join("/dev/shm", name)
	}
	return filepath.Join(os.TempDir(), name)
}

// FileMapping attaches to a pre-existing shared memory file. It never
// creates or resizes the file; the producer owns the object.
type FileMapping struct {
	path string
	file *os.File
}

// OpenFileMapping opens the producer's shared memory object read-only.
// A missing file reports ErrNotPresent so callers can distinguish
// "producer not running" from real IO failures.
func OpenFileMapping(path string) (*FileMapping, error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotPresent)
		}
		return nil, fmt.Errorf("open shared memory file: %w", err)
	}
	return &FileMapping{path: path, file: file}, nil
}

// View maps the region's current contents read-only. The size is
// re-read on every call; the returned Region must be closed before the
// next View of the same mapping is decoded.
func (m *FileMapping) View() (Region, error) {
	info, err := m.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat shared memory file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("shared memory file has zero size: %w", ErrViewFailed)
	}
	size := uint32(info.Size())

	data, err := syscall.Mmap(int(m.file.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap shared memory file: %w (%w)", err, ErrViewFailed)
	}
	return &mappedRegion{data: data, size: size}, nil
}

func (m *FileMapping) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

type mappedRegion struct {
	data []byte
	size uint32
}

func (r *mappedRegion) Size() uint32 {
	return r.size
}

func (r *mappedRegion) Base() unsafe.Pointer {
	return unsafe.Pointer(&r.data[0])
}

func (r *mappedRegion) Bytes() []byte {
	return r.data
}

func (r *mappedRegion) Close() error {
	if r.data == nil {
		return nil
	}
	err := syscall.Munmap(r.data)
	r.data = nil
	return err
}
