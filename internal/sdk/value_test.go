package sdk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitlane/simtap/internal/sdk"
	"github.com/pitlane/simtap/internal/testutil"
)

func TestDecodeValueFloat(t *testing.T) {
	buf := testutil.NewSnapshotBuilder(512, 256).
		WriteFloat32(64, 83.4).
		Build()

	h := &sdk.VarHeader{Type: sdk.VarFloat, Offset: 0, Count: 1}
	c := cursorOver(buf)
	c.Seek(64)

	v := sdk.DecodeValue(c, h)
	assert.Equal(t, 1, v.Len())
	assert.InDelta(t, 83.4, v.Float64At(0), 1e-5)
	assert.Equal(t, uintptr(68), c.Offset())
}

func TestDecodeValueChars(t *testing.T) {
	buf := testutil.NewSnapshotBuilder(512, 256).
		WriteBytes(32, []byte("P.Chase\x00\x00\x00\x00\x00\x00\x00\x00\x00")).
		Build()

	h := &sdk.VarHeader{Type: sdk.VarChar, Offset: 0, Count: 16}
	c := cursorOver(buf)
	c.Seek(32)

	v := sdk.DecodeValue(c, h)
	assert.Equal(t, 16, v.Len())
	assert.Equal(t, byte('P'), v.Chars[0])
	assert.Equal(t, uintptr(48), c.Offset())
}

func TestDecodeValueMixedTypes(t *testing.T) {
	buf := testutil.NewSnapshotBuilder(512, 256).
		WriteBytes(0, []byte{1, 0, 1}).    // bools
		WriteBytes(8, []byte{0x2A, 0, 0, 0}). // int32 42
		Build()

	c := cursorOver(buf)
	bools := sdk.DecodeValue(c, &sdk.VarHeader{Type: sdk.VarBool, Count: 3})
	assert.Equal(t, []bool{true, false, true}, bools.Bools)
	assert.Equal(t, 1.0, bools.Float64At(0))

	c.Seek(8)
	ints := sdk.DecodeValue(c, &sdk.VarHeader{Type: sdk.VarInt, Count: 1})
	assert.Equal(t, int32(42), ints.Ints[0])
	assert.Equal(t, 42.0, ints.Float64At(0))
}
