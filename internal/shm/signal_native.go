//go:build !windows

package shm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"
)

// EpochSignal watches a monotonically increasing u32 counter the
// producer bumps at offset 0 of a small shared file each time it
// publishes a snapshot. Waiting is a fast-path compare, a short spin,
// then a poll; the producer signals by storing, never by syscall, so
// there is nothing to block on OS-side.
type EpochSignal struct {
	path string
	file *os.File
	data []byte
	last uint32
}

// OpenEpochSignal attaches to the producer's signal counter file.
// Missing file reports ErrNotPresent.
func OpenEpochSignal(path string) (*EpochSignal, error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotPresent)
		}
		return nil, fmt.Errorf("open signal file: %w", err)
	}

	info, err := file.Stat()
	if err != nil || info.Size() < 4 {
		_ = file.Close()
		if err == nil {
			err = fmt.Errorf("signal file too small")
		}
		return nil, fmt.Errorf("stat signal file: %w", err)
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, 4, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, &WaitError{Op: path, Code: err}
	}

	s := &EpochSignal{path: path, file: file, data: data}
	s.last = s.current()
	return s, nil
}

func (s *EpochSignal) current() uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&s.data[0])))
}

// Wait blocks until the counter moves past the value seen by the
// previous Wait. Unbounded unless the context ends.
func (s *EpochSignal) Wait(ctx context.Context) error {
	if s.data == nil {
		return &WaitError{Op: s.path, Code: ErrNotPresent}
	}

	// Fast path: the producer already published since the last wait.
	if cur := s.current(); cur != s.last {
		s.last = cur
		return nil
	}

	// Brief spin before settling into the poll cadence.
	spinDeadline := time.Now().Add(time.Microsecond)
	for time.Now().Before(spinDeadline) {
		runtime.Gosched()
		if cur := s.current(); cur != s.last {
			s.last = cur
			return nil
		}
	}

	ticker := time.NewTicker(signalPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if cur := s.current(); cur != s.last {
				s.last = cur
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *EpochSignal) Close() error {
	var err error
	if s.data != nil {
		if unmapErr := syscall.Munmap(s.data); unmapErr != nil {
			err = unmapErr
		}
		s.data = nil
	}
	if s.file != nil {
		if closeErr := s.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		s.file = nil
	}
	return err
}
