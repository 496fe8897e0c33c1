package sdk

import "github.com/pitlane/simtap/internal/wire"

// Value holds the decoded samples of one variable from one snapshot.
// Exactly one of the slices is populated, matching Type.
type Value struct {
	Type    VarType
	Chars   []byte
	Bools   []bool
	Ints    []int32
	Bits    []uint32
	Floats  []float32
	Doubles []float64
}

// DecodeValue reads Count samples of the variable's type starting at
// the cursor, which the caller has positioned at payload+h.Offset.
// Unconditional: the type was validated when the descriptor decoded.
func DecodeValue(c *wire.Cursor, h *VarHeader) Value {
	v := Value{Type: h.Type}
	n := int(h.Count)
	switch h.Type {
	case VarChar:
		v.Chars = c.ReadBytes(n)
	case VarBool:
		v.Bools = make([]bool, n)
		for i := range v.Bools {
			v.Bools[i] = c.ReadBool()
		}
	case VarInt:
		v.Ints = make([]int32, n)
		for i := range v.Ints {
			v.Ints[i] = c.ReadInt32()
		}
	case VarBitField:
		v.Bits = make([]uint32, n)
		for i := range v.Bits {
			v.Bits[i] = wire.Read[uint32](c)
		}
	case VarFloat:
		v.Floats = make([]float32, n)
		for i := range v.Floats {
			v.Floats[i] = wire.Read[float32](c)
		}
	case VarDouble:
		v.Doubles = make([]float64, n)
		for i := range v.Doubles {
			v.Doubles[i] = wire.Read[float64](c)
		}
	}
	return v
}

// Len returns the number of decoded samples.
func (v Value) Len() int {
	switch v.Type {
	case VarChar:
		return len(v.Chars)
	case VarBool:
		return len(v.Bools)
	case VarInt:
		return len(v.Ints)
	case VarBitField:
		return len(v.Bits)
	case VarFloat:
		return len(v.Floats)
	case VarDouble:
		return len(v.Doubles)
	}
	return 0
}

// Float64At coerces sample i to float64 for display and recording.
// Char and BitField samples come back as their unsigned numeric value.
func (v Value) Float64At(i int) float64 {
	switch v.Type {
	case VarChar:
		return float64(v.Chars[i])
	case VarBool:
		if v.Bools[i] {
			return 1
		}
		return 0
	case VarInt:
		return float64(v.Ints[i])
	case VarBitField:
		return float64(v.Bits[i])
	case VarFloat:
		return float64(v.Floats[i])
	case VarDouble:
		return v.Doubles[i]
	}
	return 0
}
