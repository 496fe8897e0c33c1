// Package sdk decodes the producer's shared-memory telemetry layout.
// The layout is externally fixed: a header struct, a table of variable
// descriptors, and a set of rotating sample buffers. Field order and
// every reserved-byte run below mirror the producer byte for byte.
package sdk

import (
	"fmt"

	"github.com/pitlane/simtap/internal/wire"
)

// Producer layout constants.
const (
	// MaxBufs is the number of rotating sample buffers the producer
	// publishes. The header always carries exactly this many entries.
	MaxBufs = 4

	// MaxString and MaxDesc are the fixed widths of the descriptor
	// string fields (NUL padded, not NUL terminated when full).
	MaxString = 32
	MaxDesc   = 64

	// VarHeaderSize is the on-wire size of one variable descriptor:
	// type + offset + count + flag + 3 pad + name + desc + unit.
	VarHeaderSize = 4 + 4 + 4 + 1 + 3 + MaxString + MaxDesc + MaxString

	// VarBufSize is the on-wire size of one rotating buffer slot:
	// tick + offset + 16 reserved bytes.
	VarBufSize = 4 + 4 + 16

	// HeaderSize is the on-wire size of the fixed snapshot header:
	// ten i32 fields, 8 reserved bytes, then the VarBuf array.
	HeaderSize = 10*4 + 8 + MaxBufs*VarBufSize

	// Well-known names the producer publishes its objects under.
	DefaultMappingName = "irsdk_mem"
	DefaultSignalName  = "irsdk_data_valid"
)

// VarType is the enumerated sample type of one telemetry variable.
// The raw code comes from untrusted producer memory, so construction
// always goes through the fallible decoder.
type VarType int32

const (
	VarChar VarType = iota
	VarBool
	VarInt
	VarBitField
	VarFloat
	VarDouble
)

// UnknownVarTypeError reports a discriminant outside the known range.
// It carries the offending raw code unmodified.
type UnknownVarTypeError struct {
	Code int32
}

func (e *UnknownVarTypeError) Error() string {
	return fmt.Sprintf("unknown var type code %d", e.Code)
}

// TryDecodeFrom reads one i32 discriminant and validates it. Any code
// outside [0,5] is a decode failure, never a default or a coercion.
func (t *VarType) TryDecodeFrom(c *wire.Cursor) error {
	raw := c.ReadInt32()
	if raw < int32(VarChar) || raw > int32(VarDouble) {
		return &UnknownVarTypeError{Code: raw}
	}
	*t = VarType(raw)
	return nil
}

// Width returns the byte width of one sample of this type.
func (t VarType) Width() int {
	switch t {
	case VarChar, VarBool:
		return 1
	case VarInt, VarBitField, VarFloat:
		return 4
	case VarDouble:
		return 8
	}
	return 0
}

func (t VarType) String() string {
	switch t {
	case VarChar:
		return "char"
	case VarBool:
		return "bool"
	case VarInt:
		return "int32"
	case VarBitField:
		return "bitfield32"
	case VarFloat:
		return "float32"
	case VarDouble:
		return "float64"
	}
	return fmt.Sprintf("vartype(%d)", int32(t))
}
