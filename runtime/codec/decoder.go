package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

type decoderError struct {
	err error
}

func (e decoderError) Error() string {
	if e.err == nil {
		return "decoder:"
	}

	return "decoder: " + e.err.Error()
}

func (e decoderError) Unwrap() error {
	return e.err
}

func makeDecoderError(format string, args ...any) decoderError {
	return decoderError{err: fmt.Errorf(format, args...)}
}

// Decoder reads values written by an Encoder, in the same order.
type Decoder struct {
	buf   []byte
	index int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) check(n int) {
	if n < 0 || len(d.buf)-d.index < n {
		panic(makeDecoderError("not enough space to decode %d bytes at offset %d (have %d)", n, d.index, len(d.buf)-d.index))
	}
}

// Remaining reports the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.index
}

func (d *Decoder) Uint64() (val uint64) {
	size := 8
	d.check(size)

	val = binary.LittleEndian.Uint64(d.buf[d.index : d.index+size])
	d.index += size

	return
}

func (d *Decoder) Uint32() (val uint32) {
	size := 4
	d.check(size)

	val = binary.LittleEndian.Uint32(d.buf[d.index : d.index+size])
	d.index += size

	return
}

func (d *Decoder) Uint16() (val uint16) {
	size := 2
	d.check(size)

	val = binary.LittleEndian.Uint16(d.buf[d.index : d.index+size])
	d.index += size

	return
}

func (d *Decoder) Uint8() (val uint8) {
	d.check(1)

	val = d.buf[d.index]
	d.index++

	return
}

func (d *Decoder) Uint() uint {
	return uint(d.Uint64())
}

func (d *Decoder) Byte() byte {
	return d.Uint8()
}

func (d *Decoder) Int64() int64 {
	return int64(d.Uint64())
}

func (d *Decoder) Int32() int32 {
	return int32(d.Uint32())
}

func (d *Decoder) Int16() int16 {
	return int16(d.Uint16())
}

func (d *Decoder) Int8() int8 {
	return int8(d.Uint8())
}

func (d *Decoder) Int() int {
	return int(d.Uint64())
}

func (d *Decoder) Bool() bool {
	switch b := d.Uint8(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		panic(makeDecoderError("invalid bool byte %d at offset %d", b, d.index-1))
	}
}

func (d *Decoder) Float32() float32 {
	return math.Float32frombits(d.Uint32())
}

func (d *Decoder) Float64() float64 {
	return math.Float64frombits(d.Uint64())
}

func (d *Decoder) Complex64() complex64 {
	re := d.Float32()
	im := d.Float32()
	return complex(re, im)
}

func (d *Decoder) Complex128() complex128 {
	re := d.Float64()
	im := d.Float64()
	return complex(re, im)
}

func (d *Decoder) String() string {
	size := int(d.Uint32())
	d.check(size)

	val := string(d.buf[d.index : d.index+size])
	d.index += size

	return val
}

// Bytes returns a copy of the next length-prefixed byte slice. Length -1
// yields nil.
func (d *Decoder) Bytes() []byte {
	size := d.Int32()
	if size == -1 {
		return nil
	}
	d.check(int(size))

	val := make([]byte, size)
	copy(val, d.buf[d.index:d.index+int(size)])
	d.index += int(size)

	return val
}

// Len reads an element count. The count is not checked against Remaining:
// elements may encode to zero bytes. Generated code allocates the collection
// before reading its elements, so a corrupt count of up to 2^31-1 allocates
// that many elements before decoding fails.
func (d *Decoder) Len() int {
	n := int(d.Int32())
	if n < 0 {
		panic(makeDecoderError("negative length %d", n))
	}

	return n
}

// FixedLen reads an element count that must equal n, the length of a fixed
// size array.
func (d *Decoder) FixedLen(n int) {
	if got := d.Len(); got != n {
		panic(makeDecoderError("array length mismatch: got %d, want %d", got, n))
	}
}
