package shm

import "unsafe"

// MemoryMapping is an in-process stand-in for a producer mapping,
// backed by a plain byte slice. Tests and the filesim producer use it;
// the decode path cannot tell it apart from a real mapping.
type MemoryMapping struct {
	data []byte
}

// NewMemoryMapping wraps an existing buffer. The buffer is shared, not
// copied, so a test can mutate it between views the way a live
// producer would.
func NewMemoryMapping(data []byte) *MemoryMapping {
	return &MemoryMapping{data: data}
}

func (m *MemoryMapping) View() (Region, error) {
	if len(m.data) == 0 {
		return nil, ErrViewFailed
	}
	return &memoryRegion{data: m.data}, nil
}

func (m *MemoryMapping) Close() error {
	m.data = nil
	return nil
}

type memoryRegion struct {
	data []byte
}

func (r *memoryRegion) Size() uint32 {
	return uint32(len(r.data))
}

func (r *memoryRegion) Base() unsafe.Pointer {
	return unsafe.Pointer(&r.data[0])
}

func (r *memoryRegion) Bytes() []byte {
	return r.data
}

func (r *memoryRegion) Close() error {
	r.data = nil
	return nil
}
