package sdk

import (
	"bytes"

	"github.com/pitlane/simtap/internal/wire"
)

// VarBuf describes one rotating sample buffer slot. TickCount increases
// monotonically each time the producer republishes the slot.
type VarBuf struct {
	TickCount int32
	BufOffset int32
}

// DecodeFrom reads the two live fields and skips the slot's reserved
// tail. Unconditional: integer fields cannot fail to decode.
func (b *VarBuf) DecodeFrom(c *wire.Cursor) {
	b.TickCount = c.ReadInt32()
	b.BufOffset = c.ReadInt32()
	c.Advance(16) // reserved
}

// VarHeader describes one declared telemetry variable. The table of
// these starts at SdkHeader.VarHeaderOffset and has SdkHeader.NumVars
// entries, each VarHeaderSize bytes.
type VarHeader struct {
	Type        VarType
	Offset      int32
	Count       int32
	CountAsTime bool
	Name        string
	Desc        string
	Unit        string
}

// TryDecodeFrom decodes one descriptor transactionally. The record
// opens with a fallible VarType; if that is rejected the cursor is left
// at the record's start, so a caller walking the table can skip the
// entry or abort without desynchronizing later reads.
func (h *VarHeader) TryDecodeFrom(c *wire.Cursor) error {
	return c.Scoped(func(p *wire.Cursor) error {
		if err := h.Type.TryDecodeFrom(p); err != nil {
			return err
		}
		h.Offset = p.ReadInt32()
		h.Count = p.ReadInt32()
		h.CountAsTime = p.ReadBool()
		p.Advance(3) // pad to 4-byte boundary
		h.Name = cstr(p.ReadBytes(MaxString))
		h.Desc = cstr(p.ReadBytes(MaxDesc))
		h.Unit = cstr(p.ReadBytes(MaxString))
		return nil
	})
}

// ByteLen is the total sample size of this variable in the payload.
func (h *VarHeader) ByteLen() int {
	return h.Type.Width() * int(h.Count)
}

// SdkHeader is the fixed struct at offset 0 of every snapshot. Decoded
// once per signaled snapshot; all table and buffer offsets in it are
// relative to the view base.
type SdkHeader struct {
	Version           int32
	Status            int32
	TickRate          int32
	SessionInfoUpdate int32
	SessionInfoLen    int32
	SessionInfoOffset int32
	NumVars           int32
	VarHeaderOffset   int32
	NumBuf            int32
	BufLen            int32
	VarBufs           [MaxBufs]VarBuf
}

// DecodeFrom reads the header fields in declared order. Unconditional:
// the header carries no discriminants, only integers and the VarBuf
// array.
func (h *SdkHeader) DecodeFrom(c *wire.Cursor) {
	h.Version = c.ReadInt32()
	h.Status = c.ReadInt32()
	h.TickRate = c.ReadInt32()
	h.SessionInfoUpdate = c.ReadInt32()
	h.SessionInfoLen = c.ReadInt32()
	h.SessionInfoOffset = c.ReadInt32()
	h.NumVars = c.ReadInt32()
	h.VarHeaderOffset = c.ReadInt32()
	h.NumBuf = c.ReadInt32()
	h.BufLen = c.ReadInt32()
	c.Advance(8) // reserved
	for i := range h.VarBufs {
		h.VarBufs[i].DecodeFrom(c)
	}
}

// cstr trims a fixed-width NUL-padded field to its string value.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
