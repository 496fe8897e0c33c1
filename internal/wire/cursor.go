// Package wire implements position-tracked decoding over a raw,
// externally owned memory region. The producer writes C-style structs
// into shared memory; this package is the only place that touches the
// bytes directly. Everything above it is expressed in terms of Cursor.
package wire

import "unsafe"

// Cursor tracks a base address and a byte offset into a region it does
// not own. The caller keeps the backing view alive for as long as the
// cursor (or anything decoded from it) is in use.
//
// Offsets are not bounds-checked here. The producer's header declares
// where tables live, and the region is sized by the producer; a cursor
// pointed outside the view is a caller bug, the same as an out-of-range
// slice index.
type Cursor struct {
	base unsafe.Pointer
	off  uintptr
}

// NewCursor returns a cursor positioned at the start of the region.
func NewCursor(base unsafe.Pointer) *Cursor {
	return &Cursor{base: base}
}

// Offset reports the current byte offset from the base.
func (c *Cursor) Offset() uintptr {
	return c.off
}

// Advance moves the cursor forward by n bytes without reading.
// Used for reserved/padding runs in the producer layout.
func (c *Cursor) Advance(n uintptr) {
	c.off += n
}

// Seek repositions the cursor to an absolute offset, typically one
// announced by a previously decoded field (a table or buffer offset).
func (c *Cursor) Seek(off uintptr) {
	c.off = off
}

// Read copies sizeof(T) bytes at the cursor and advances past them.
// T must be a type for which every bit pattern is a valid value:
// fixed-width integers, floats, and arrays of those. Enumerated types
// go through their fallible decoder instead.
func Read[T any](c *Cursor) T {
	v := *(*T)(unsafe.Add(c.base, c.off))
	c.off += unsafe.Sizeof(v)
	return v
}

// ReadInt32 reads one little-endian i32, the producer's workhorse type.
func (c *Cursor) ReadInt32() int32 {
	return Read[int32](c)
}

// ReadBool reads one byte as a flag.
func (c *Cursor) ReadBool() bool {
	return Read[byte](c) != 0
}

// ReadBytes copies n bytes into a fresh slice and advances past them.
// The copy detaches the result from the view's lifetime.
func (c *Cursor) ReadBytes(n int) []byte {
	out := make([]byte, n)
	src := unsafe.Slice((*byte)(unsafe.Add(c.base, c.off)), n)
	copy(out, src)
	c.off += uintptr(n)
	return out
}

// Scoped runs fn against a clone of the cursor and commits the clone's
// final position back only if fn succeeds. On failure the receiver is
// left exactly where it was, so a rejected record never desynchronizes
// reads that follow it.
func (c *Cursor) Scoped(fn func(*Cursor) error) error {
	clone := *c
	if err := fn(&clone); err != nil {
		return err
	}
	*c = clone
	return nil
}

// Decoder is the unconditional decode capability: given well-formed
// bytes at the cursor, decoding cannot fail.
type Decoder interface {
	DecodeFrom(c *Cursor)
}

// FallibleDecoder is the fallible decode capability for records that
// validate an enumerated discriminant and may reject it. Implementations
// are expected to decode through Scoped so a failure leaves the cursor
// untouched.
type FallibleDecoder interface {
	TryDecodeFrom(c *Cursor) error
}
