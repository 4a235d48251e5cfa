package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/hollowcore/profiler/internal/errkind"
)

// FieldWriter builds a self-describing TLV payload: each field is written
// as its declared primitive type, in the order the message's tag declares
// in spec.md §3. There is no field-kind tag byte — the order is fixed per
// message type, matching spec.md's "payload encoding is a self-describing
// TLV of primitive fields in the order declared in §3" (self-describing in
// length, not in type: a u32/u64 is TL-framed by its fixed width, a string
// by a length-prefixed byte run).
type FieldWriter struct {
	order binary.ByteOrder
	buf   []byte
}

// NewFieldWriter creates a FieldWriter using order for every scalar.
func NewFieldWriter(order binary.ByteOrder) *FieldWriter {
	return &FieldWriter{order: order}
}

func (w *FieldWriter) PutUint32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *FieldWriter) PutUint64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *FieldWriter) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutBytes writes a u32 length prefix followed by raw bytes.
func (w *FieldWriter) PutBytes(v []byte) {
	w.PutUint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// PutString writes a u32 length prefix followed by the string's bytes.
func (w *FieldWriter) PutString(v string) { w.PutBytes([]byte(v)) }

// Bytes returns the accumulated payload.
func (w *FieldWriter) Bytes() []byte { return w.buf }

// FieldReader parses a payload produced by FieldWriter, in the same fixed
// field order the writer used.
type FieldReader struct {
	order binary.ByteOrder
	buf   []byte
	pos   int
}

// NewFieldReader creates a FieldReader over payload using order.
func NewFieldReader(order binary.ByteOrder, payload []byte) *FieldReader {
	return &FieldReader{order: order, buf: payload}
}

func (r *FieldReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errkind.NewDataShape(fmt.Errorf("protocol: truncated field: need %d bytes, have %d", n, len(r.buf)-r.pos))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *FieldReader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *FieldReader) Uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *FieldReader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *FieldReader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *FieldReader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Done reports whether every byte of the payload has been consumed. A
// message handler should check this to catch a field-count mismatch
// between peers as a data-shape error.
func (r *FieldReader) Done() bool { return r.pos == len(r.buf) }
