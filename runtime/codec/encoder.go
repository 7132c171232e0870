// Package codec holds the wire format used by code that "packgen generate"
// emits. Values are written to a flat little-endian byte stream: scalars at
// their fixed width, strings and byte slices behind a 4-byte length, optional
// values behind a one byte presence flag and collections behind a 4-byte
// element count.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kanengo/packgen/internal/umath"
	"github.com/kanengo/packgen/runtime/pool"
)

type encoderError struct {
	err error
}

func (e encoderError) Error() string {
	if e.err == nil {
		return "encoder:"
	}

	return "encoder: " + e.err.Error()
}

func (e encoderError) Unwrap() error {
	return e.err
}

func makeEncoderError(format string, args ...any) encoderError {
	return encoderError{err: fmt.Errorf(format, args...)}
}

// Encoder appends values to a growing byte buffer.
type Encoder struct {
	buf    []byte
	pooled bool
}

// NewEncoder returns an Encoder. The optional size is a capacity hint.
func NewEncoder(size ...int) *Encoder {
	if len(size) > 0 && size[0] > 0 {
		if bs, err := pool.GetPowerOfTwoSizeBytes(size[0]); err == nil && bs != nil {
			return &Encoder{buf: (*bs)[:0], pooled: true}
		}
		return &Encoder{buf: make([]byte, 0, umath.FindNearestPow2(size[0]))}
	}

	return &Encoder{buf: make([]byte, 0, 128)}
}

func (e *Encoder) grow(bytesNeeded int) {
	l := len(e.buf)
	c := cap(e.buf)

	if l+bytesNeeded <= c {
		return
	}

	newSize := umath.FindNearestPow2(l + bytesNeeded)
	var buf []byte
	if bs, err := pool.GetPowerOfTwoSizeBytes(newSize); err == nil && bs != nil {
		buf = (*bs)[:0]
	} else {
		buf = make([]byte, 0, newSize)
	}
	buf = append(buf, e.buf...)

	if e.pooled {
		_ = pool.FreePowerOfTwoSizeBytes(e.buf)
	}
	e.buf = buf
	e.pooled = true
}

func (e *Encoder) Uint64(val uint64) {
	e.grow(8)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, val)
}

func (e *Encoder) Uint32(val uint32) {
	e.grow(4)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, val)
}

func (e *Encoder) Uint16(val uint16) {
	e.grow(2)
	e.buf = binary.LittleEndian.AppendUint16(e.buf, val)
}

func (e *Encoder) Uint8(val uint8) {
	e.grow(1)
	e.buf = append(e.buf, val)
}

func (e *Encoder) Uint(val uint) {
	e.Uint64(uint64(val))
}

func (e *Encoder) Int(val int) {
	e.Uint64(uint64(val))
}

func (e *Encoder) Int64(val int64) {
	e.Uint64(uint64(val))
}

func (e *Encoder) Int32(val int32) {
	e.Uint32(uint32(val))
}

func (e *Encoder) Int16(val int16) {
	e.Uint16(uint16(val))
}

func (e *Encoder) Int8(val int8) {
	e.Uint8(uint8(val))
}

func (e *Encoder) Byte(val byte) {
	e.Uint8(val)
}

func (e *Encoder) Bool(b bool) {
	if b {
		e.Uint8(1)
	} else {
		e.Uint8(0)
	}
}

func (e *Encoder) Float32(val float32) {
	e.Uint32(math.Float32bits(val))
}

func (e *Encoder) Float64(val float64) {
	e.Uint64(math.Float64bits(val))
}

func (e *Encoder) Complex64(val complex64) {
	e.Float32(real(val))
	e.Float32(imag(val))
}

func (e *Encoder) Complex128(val complex128) {
	e.Float64(real(val))
	e.Float64(imag(val))
}

// String writes a 4-byte length followed by the bytes of val.
func (e *Encoder) String(val string) {
	n := len(val)
	if n > math.MaxInt32 {
		panic(makeEncoderError("unable to encode string; length doesn't fit in 4 bytes"))
	}
	e.Uint32(uint32(n))
	if n == 0 {
		return
	}
	e.grow(n)
	e.buf = append(e.buf, val...)
}

// Bytes writes a 4-byte length followed by val. A nil slice is written with
// length -1 so that it decodes back to nil.
func (e *Encoder) Bytes(val []byte) {
	if val == nil {
		e.Int32(-1)
		return
	}
	n := len(val)
	if n > math.MaxInt32 {
		panic(makeEncoderError("unable to encode bytes; length doesn't fit in 4 bytes"))
	}
	e.Uint32(uint32(n))
	if n == 0 {
		return
	}
	e.grow(n)
	e.buf = append(e.buf, val...)
}

// Len writes an element count.
func (e *Encoder) Len(l int) {
	if l < 0 {
		panic(makeEncoderError("unable to encode a negative length %d", l))
	}
	if l > math.MaxInt32 {
		panic(makeEncoderError("length %d can't be represented in 4 bytes", l))
	}

	e.Int32(int32(l))
}

// Data returns the encoded bytes. The slice is only valid until Release.
func (e *Encoder) Data() []byte {
	return e.buf
}

// Release hands the buffer back to the pool. The Encoder must not be used
// afterwards.
func (e *Encoder) Release() {
	if e.pooled {
		_ = pool.FreePowerOfTwoSizeBytes(e.buf)
	}
	e.buf = nil
	e.pooled = false
}
