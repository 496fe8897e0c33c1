// Package testutil builds synthetic producer snapshots for tests. The
// builder writes the same byte layout the decoders in internal/sdk
// read, so tests exercise real wire bytes rather than pre-built structs.
package testutil

import (
	"encoding/binary"
	"math"

	"github.com/pitlane/simtap/internal/sdk"
)

// Header field offsets within the snapshot.
const (
	offVersion           = 0
	offStatus            = 4
	offTickRate          = 8
	offSessionInfoUpdate = 12
	offSessionInfoLen    = 16
	offSessionInfoOffset = 20
	offNumVars           = 24
	offVarHeaderOffset   = 28
	offNumBuf            = 32
	offBufLen            = 36
	offVarBufs           = 48
)

// SnapshotBuilder assembles a snapshot byte region slot by slot.
// Methods chain; Build returns the backing slice.
type SnapshotBuilder struct {
	buf     []byte
	numVars int32
	varOff  int32
}

// NewSnapshotBuilder creates a builder over a zeroed region. Variable
// descriptors are written starting at varHeaderOffset.
func NewSnapshotBuilder(size int, varHeaderOffset int32) *SnapshotBuilder {
	b := &SnapshotBuilder{
		buf:    make([]byte, size),
		varOff: varHeaderOffset,
	}
	b.putI32(offVersion, 2)
	b.putI32(offVarHeaderOffset, varHeaderOffset)
	b.putI32(offNumBuf, sdk.MaxBufs)
	return b
}

// WithTickRate sets the producer's sample rate field.
func (b *SnapshotBuilder) WithTickRate(hz int32) *SnapshotBuilder {
	b.putI32(offTickRate, hz)
	return b
}

// WithStatus sets the status flags field.
func (b *SnapshotBuilder) WithStatus(status int32) *SnapshotBuilder {
	b.putI32(offStatus, status)
	return b
}

// AddVar appends one variable descriptor. typeCode is written raw so
// tests can plant out-of-range discriminants.
func (b *SnapshotBuilder) AddVar(typeCode, offset, count int32, countAsTime bool, name, desc, unit string) *SnapshotBuilder {
	at := b.varOff + b.numVars*sdk.VarHeaderSize
	b.putI32(int(at), typeCode)
	b.putI32(int(at)+4, offset)
	b.putI32(int(at)+8, count)
	if countAsTime {
		b.buf[at+12] = 1
	}
	b.putStr(int(at)+16, name, sdk.MaxString)
	b.putStr(int(at)+16+sdk.MaxString, desc, sdk.MaxDesc)
	b.putStr(int(at)+16+sdk.MaxString+sdk.MaxDesc, unit, sdk.MaxString)

	b.numVars++
	b.putI32(offNumVars, b.numVars)
	return b
}

// SetBuf fills rotating buffer slot i.
func (b *SnapshotBuilder) SetBuf(i int, tick, bufOffset int32) *SnapshotBuilder {
	at := offVarBufs + i*sdk.VarBufSize
	b.putI32(at, tick)
	b.putI32(at+4, bufOffset)
	return b
}

// SetBufLen sets the per-buffer stride field.
func (b *SnapshotBuilder) SetBufLen(n int32) *SnapshotBuilder {
	b.putI32(offBufLen, n)
	return b
}

// WithSessionInfo places a session YAML document at offset and records
// it in the header.
func (b *SnapshotBuilder) WithSessionInfo(doc string, offset, update int32) *SnapshotBuilder {
	copy(b.buf[offset:], doc)
	b.putI32(offSessionInfoOffset, offset)
	b.putI32(offSessionInfoLen, int32(len(doc)))
	b.putI32(offSessionInfoUpdate, update)
	return b
}

// WriteBytes places raw payload bytes at an absolute offset.
func (b *SnapshotBuilder) WriteBytes(offset int32, p []byte) *SnapshotBuilder {
	copy(b.buf[offset:], p)
	return b
}

// WriteFloat32 places one float32 sample at an absolute offset.
func (b *SnapshotBuilder) WriteFloat32(offset int32, v float32) *SnapshotBuilder {
	binary.LittleEndian.PutUint32(b.buf[offset:], math.Float32bits(v))
	return b
}

// Build returns the assembled region.
func (b *SnapshotBuilder) Build() []byte {
	return b.buf
}

func (b *SnapshotBuilder) putI32(off int, v int32) {
	binary.LittleEndian.PutUint32(b.buf[off:], uint32(v))
}

func (b *SnapshotBuilder) putStr(off int, s string, width int) {
	if len(s) > width {
		s = s[:width]
	}
	copy(b.buf[off:off+width], s)
}
