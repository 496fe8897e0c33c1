// Package shm provides access to the producer-owned shared memory
// objects: the snapshot region and the data-valid signal. The producer
// creates and owns both; this side only attaches, reads, and releases.
//
// Mappings and signals are process-lifetime handles. Views are not:
// the producer may invalidate or resize the region between publishes,
// so a fresh view is acquired for every decode pass and released when
// the pass ends.
package shm

import (
	"errors"
	"unsafe"
)

var (
	// ErrNotPresent means the producer has not published the shared
	// region (or signal) under the expected name.
	ErrNotPresent = errors.New("shared object not present")

	// ErrViewFailed means the mapping exists but a view of its current
	// contents could not be established.
	ErrViewFailed = errors.New("view acquisition failed")

	ErrOutOfBounds = errors.New("offset out of bounds")
)

// Region is one read-only view of the shared snapshot, valid until
// Close. Base exposes the raw address for zero-copy cursor decoding;
// Bytes exposes the same memory as a slice for range extraction.
type Region interface {
	Size() uint32
	Base() unsafe.Pointer
	Bytes() []byte
	Close() error
}

// Mapping is the process-lifetime handle to the producer's region.
// View establishes a fresh Region over the current contents; each call
// re-reads the region's size, since the producer may have grown it.
type Mapping interface {
	View() (Region, error)
	Close() error
}
