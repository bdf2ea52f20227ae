package wire

import (
	"bytes"
	"encoding/binary"
	goerrs "errors"
	"math"
	"unicode/utf8"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
)

var ErrInvalidString = goerrs.New("string is not valid UTF-8")

// Reader walks a tightly packed little-endian host record. Every read goes
// through take, which is the only place offsets are checked against the
// buffer; a short buffer produces an Underflow error instead of a panic.
type Reader struct {
	name string
	buf  []byte
	off  int
}

func NewReader(name string, buf []byte) *Reader {
	return &Reader{name: name, buf: buf}
}

func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) || r.off+n < r.off {
		return nil, &errors.Underflow{
			MessageName: r.name,
			MsgSize:     len(r.buf),
			MinimumSize: r.off + n,
		}
	}

	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) Skip(n int) error {
	_, err := r.take(n)
	return err
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

// Rest returns a copy of everything after the current offset.
func (r *Reader) Rest() []byte {
	b, _ := r.take(r.Remaining())
	return bytes.Clone(b)
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) Float64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// FixedString consumes exactly n bytes and returns the text before the first
// NUL (or all n bytes when no terminator is present).
func (r *Reader) FixedString(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	if end := bytes.IndexByte(b, 0); end >= 0 {
		b = b[:end]
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidString
	}
	return string(b), nil
}

// CString consumes a NUL-terminated string, terminator included.
func (r *Reader) CString() (string, error) {
	end := bytes.IndexByte(r.buf[r.off:], 0)
	if end < 0 {
		return "", &errors.Underflow{
			MessageName: r.name + "::CString",
			MsgSize:     len(r.buf),
			MinimumSize: len(r.buf) + 1,
		}
	}

	b, _ := r.take(end + 1)
	b = b[:end]
	if !utf8.Valid(b) {
		return "", ErrInvalidString
	}
	return string(b), nil
}
