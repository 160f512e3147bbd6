// Package storage defines the byte-addressable persistent store the firmware
// keeps its configuration, chord index, macros and programs in.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrOutOfRange = errors.New("storage address out of range")
	ErrIO         = errors.New("storage i/o failure")
)

// Backend is a synchronous, non-reentrant persistent store. Writes may
// complete lazily; WaitForLastWrite returns once every earlier write is
// visible to subsequent reads.
type Backend interface {
	io.ReaderAt
	io.WriterAt
	Memset(off int64, v byte, n int) error
	Memmove(dst, src int64, n int) error
	WaitForLastWrite() error
	Size() int64
}

// Region is a bounded window onto a Backend. All offsets are relative to
// Base and checked against Size before reaching the backend.
type Region struct {
	Backend Backend
	Base    int64
	Len     int64
}

// NewRegion returns the window [base, base+n) of b.
func NewRegion(b Backend, base, n int64) (*Region, error) {
	if base < 0 || n < 0 || base+n > b.Size() {
		return nil, fmt.Errorf("%w: region %d+%d exceeds backend size %d", ErrOutOfRange, base, n, b.Size())
	}
	return &Region{Backend: b, Base: base, Len: n}, nil
}

func (r *Region) check(off int64, n int) error {
	if off < 0 || n < 0 || off+int64(n) > r.Len {
		return fmt.Errorf("%w: %d+%d in region of %d bytes", ErrOutOfRange, off, n, r.Len)
	}
	return nil
}

// Size implements Backend.
func (r *Region) Size() int64 { return r.Len }

// ReadAt implements io.ReaderAt.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if err := r.check(off, len(p)); err != nil {
		return 0, err
	}
	return r.Backend.ReadAt(p, r.Base+off)
}

// WriteAt implements io.WriterAt.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if err := r.check(off, len(p)); err != nil {
		return 0, err
	}
	return r.Backend.WriteAt(p, r.Base+off)
}

// Memset implements Backend.
func (r *Region) Memset(off int64, v byte, n int) error {
	if err := r.check(off, n); err != nil {
		return err
	}
	return r.Backend.Memset(r.Base+off, v, n)
}

// Memmove implements Backend.
func (r *Region) Memmove(dst, src int64, n int) error {
	if err := r.check(dst, n); err != nil {
		return err
	}
	if err := r.check(src, n); err != nil {
		return err
	}
	return r.Backend.Memmove(r.Base+dst, r.Base+src, n)
}

// WaitForLastWrite implements Backend.
func (r *Region) WaitForLastWrite() error { return r.Backend.WaitForLastWrite() }

// Byte reads one byte at off.
func (r *Region) Byte(off int64) (byte, error) {
	var b [1]byte
	if _, err := r.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return b[0], nil
}

// SetByte writes one byte at off.
func (r *Region) SetByte(off int64, v byte) error {
	_, err := r.WriteAt([]byte{v}, off)
	return err
}

// Short reads a little-endian uint16 at off.
func (r *Region) Short(off int64) (uint16, error) {
	var b [2]byte
	if _, err := r.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// SetShort writes a little-endian uint16 at off.
func (r *Region) SetShort(off int64, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := r.WriteAt(b[:], off)
	return err
}

// Bytes reads n bytes at off into a new slice.
func (r *Region) Bytes(off int64, n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := r.ReadAt(p, off); err != nil {
		return nil, err
	}
	return p, nil
}
