// Package binfmt provides a bounds-checked little-endian cursor over a byte
// slice and the FormatError type shared by the binary readers.
package binfmt

import (
	"encoding/binary"
	"fmt"
)

// FormatError reports malformed binary or structured input.
// Offset is -1 when no byte position applies.
type FormatError struct {
	Path   string
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%s: invalid format: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: invalid format at 0x%08x: %s", e.Path, e.Offset, e.Reason)
}

// Errorf builds a FormatError for path at offset.
func Errorf(path string, offset int64, format string, args ...any) *FormatError {
	return &FormatError{Path: path, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Cursor reads fixed-width values from buf. Every read past the end of the
// buffer returns a *FormatError naming the offending offset.
type Cursor struct {
	path string
	buf  []byte
	pos  int64
}

// NewCursor returns a cursor positioned at the start of buf. path is only
// used in error messages.
func NewCursor(path string, buf []byte) *Cursor {
	return &Cursor{path: path, buf: buf}
}

// Path returns the name used in diagnostics.
func (c *Cursor) Path() string { return c.path }

// Len returns the size of the underlying buffer.
func (c *Cursor) Len() int64 { return int64(len(c.buf)) }

// Pos returns the current read position.
func (c *Cursor) Pos() int64 { return c.pos }

// Seek moves to an absolute position. Seeking to Len() is allowed.
func (c *Cursor) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(c.buf)) {
		return Errorf(c.path, pos, "seek out of range (size %d)", len(c.buf))
	}
	c.pos = pos
	return nil
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int64) ([]byte, error) {
	if n < 0 {
		return nil, Errorf(c.path, c.pos, "negative length %d", n)
	}
	if c.pos+n > int64(len(c.buf)) {
		return nil, Errorf(c.path, c.pos, "read of %d bytes past end of data (size %d)", n, len(c.buf))
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Magic reads len(want) bytes and fails if they differ from want. The error
// offset is the position of the magic itself.
func (c *Cursor) Magic(want string) error {
	at := c.pos
	got, err := c.Bytes(int64(len(want)))
	if err != nil {
		return err
	}
	if string(got) != want {
		return Errorf(c.path, at, "expected %s magic, got %q (hex: %x)", want, got, got)
	}
	return nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) Int16() (int16, error) {
	v, err := c.Uint16()
	return int16(v), err
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err
}
