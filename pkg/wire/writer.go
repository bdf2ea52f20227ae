package wire

import (
	"encoding/binary"
	"math"
)

// Writer builds tightly packed little-endian records, the inverse of Reader.
type Writer struct {
	out []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{out: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte {
	return w.out
}

func (w *Writer) Len() int {
	return len(w.out)
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.out = binary.LittleEndian.AppendUint32(w.out, v)
	return w
}

func (w *Writer) Int32(v int32) *Writer {
	return w.Uint32(uint32(v))
}

func (w *Writer) Int64(v int64) *Writer {
	w.out = binary.LittleEndian.AppendUint64(w.out, uint64(v))
	return w
}

func (w *Writer) Float32(v float32) *Writer {
	return w.Uint32(math.Float32bits(v))
}

func (w *Writer) Float64(v float64) *Writer {
	w.out = binary.LittleEndian.AppendUint64(w.out, math.Float64bits(v))
	return w
}

// FixedString writes s into an n-byte zero-padded slot, truncating so that
// at least one terminator byte remains.
func (w *Writer) FixedString(s string, n int) *Writer {
	slot := make([]byte, n)
	if n > 0 {
		copy(slot[:n-1], s)
	}
	w.out = append(w.out, slot...)
	return w
}

func (w *Writer) CString(s string) *Writer {
	w.out = append(w.out, s...)
	w.out = append(w.out, 0)
	return w
}

func (w *Writer) Raw(b []byte) *Writer {
	w.out = append(w.out, b...)
	return w
}
