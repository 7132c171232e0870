package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	enc := NewEncoder()
	enc.Int(10)
	enc.Int8(-8)
	enc.Int16(16)
	enc.Int32(-32)
	enc.Int64(math.MinInt64)
	enc.Uint(11)
	enc.Uint8(255)
	enc.Uint16(math.MaxUint16)
	enc.Uint32(math.MaxUint32)
	enc.Uint64(math.MaxUint64)
	enc.String("hello, encoder")
	enc.Float32(-32.32)
	enc.Float64(64.64)
	enc.Complex64(complex(1, -2))
	enc.Complex128(complex(-3, 4))
	enc.Bool(true)
	enc.Bool(false)
	enc.Bytes(nil)
	enc.Bytes([]byte{})
	enc.Bytes([]byte{1, 2, 3, 4, 5, 6, 7})

	dec := NewDecoder(enc.Data())
	for _, test := range []struct {
		name string
		got  any
		want any
	}{
		{"Int", dec.Int(), 10},
		{"Int8", dec.Int8(), int8(-8)},
		{"Int16", dec.Int16(), int16(16)},
		{"Int32", dec.Int32(), int32(-32)},
		{"Int64", dec.Int64(), int64(math.MinInt64)},
		{"Uint", dec.Uint(), uint(11)},
		{"Uint8", dec.Uint8(), uint8(255)},
		{"Uint16", dec.Uint16(), uint16(math.MaxUint16)},
		{"Uint32", dec.Uint32(), uint32(math.MaxUint32)},
		{"Uint64", dec.Uint64(), uint64(math.MaxUint64)},
		{"String", dec.String(), "hello, encoder"},
		{"Float32", dec.Float32(), float32(-32.32)},
		{"Float64", dec.Float64(), 64.64},
		{"Complex64", dec.Complex64(), complex64(complex(1, -2))},
		{"Complex128", dec.Complex128(), complex(-3, 4)},
		{"Bool", dec.Bool(), true},
		{"Bool", dec.Bool(), false},
		{"NilBytes", dec.Bytes() == nil, true},
		{"EmptyBytes", dec.Bytes(), []byte{}},
		{"Bytes", dec.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7}},
	} {
		if diff := cmp.Diff(test.want, test.got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", test.name, diff)
		}
	}
	if n := dec.Remaining(); n != 0 {
		t.Fatalf("Remaining: got %d, want 0", n)
	}
}

func TestFraming(t *testing.T) {
	enc := NewEncoder()
	enc.Int32(7)
	enc.String("ab")
	enc.Len(2)
	enc.Bool(true)

	want := []byte{
		7, 0, 0, 0, // int32
		2, 0, 0, 0, 'a', 'b', // length-prefixed string
		2, 0, 0, 0, // count
		1, // presence
	}
	if !bytes.Equal(enc.Data(), want) {
		t.Fatalf("got % x, want % x", enc.Data(), want)
	}
}

func TestEncoderGrowth(t *testing.T) {
	enc := NewEncoder(4)
	payload := bytes.Repeat([]byte{0xab}, 1000)
	enc.Bytes(payload)
	enc.Uint64(1)

	dec := NewDecoder(enc.Data())
	if got := dec.Bytes(); !bytes.Equal(got, payload) {
		t.Fatalf("Bytes: got %d bytes, want %d", len(got), len(payload))
	}
	if got := dec.Uint64(); got != 1 {
		t.Fatalf("Uint64: got %d, want 1", got)
	}
	enc.Release()
}

func TestTicks(t *testing.T) {
	for _, test := range []struct {
		name string
		t    time.Time
	}{
		{"zero", time.Time{}},
		{"unix", time.Unix(0, 0).UTC()},
		{"recent", time.Date(2024, 2, 29, 13, 14, 15, 123456700, time.UTC)},
		{"before unix", time.Date(1900, 1, 1, 0, 0, 0, 100, time.UTC)},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := FromTicks(Ticks(test.t))
			if !got.Equal(test.t) {
				t.Fatalf("FromTicks(Ticks(%v)) = %v", test.t, got)
			}
		})
	}

	if got := Ticks(time.Time{}); got != 0 {
		t.Errorf("Ticks(zero): got %d, want 0", got)
	}
	if got, want := Ticks(time.Unix(1, 0)), int64(unixEpochSeconds+1)*TicksPerSecond; got != want {
		t.Errorf("Ticks(unix+1s): got %d, want %d", got, want)
	}
}

func TestSpecials(t *testing.T) {
	when := time.Date(2023, 7, 1, 8, 0, 0, 0, time.UTC)
	enc := NewEncoder()
	enc.Time(when)
	enc.Duration(90 * time.Second)
	if got := len(enc.Data()); got != 16 {
		t.Fatalf("encoded size: got %d, want 16", got)
	}

	dec := NewDecoder(enc.Data())
	if got := dec.Time(); !got.Equal(when) {
		t.Errorf("Time: got %v, want %v", got, when)
	}
	if got := dec.Duration(); got != 90*time.Second {
		t.Errorf("Duration: got %v, want %v", got, 90*time.Second)
	}
}

func TestShortBuffer(t *testing.T) {
	for _, test := range []struct {
		name string
		data []byte
		read func(d *Decoder)
	}{
		{"uint64", []byte{1, 2, 3}, func(d *Decoder) { d.Uint64() }},
		{"string", []byte{5, 0, 0, 0, 'a'}, func(d *Decoder) { _ = d.String() }},
		{"negative len", []byte{0xff, 0xff, 0xff, 0xff}, func(d *Decoder) { d.Len() }},
		{"bad bool", []byte{2}, func(d *Decoder) { d.Bool() }},
		{"fixed len", []byte{3, 0, 0, 0}, func(d *Decoder) { d.FixedLen(4) }},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := func() (err error) {
				defer func() { err = CatchPanics(recover()) }()
				test.read(NewDecoder(test.data))
				return nil
			}()
			if err == nil {
				t.Fatal("unexpected success")
			}
		})
	}
}

type point struct {
	X, Y int32
}

func (p *point) Pack(enc *Encoder) {
	enc.Int32(p.X)
	enc.Int32(p.Y)
}

func (p *point) Unpack(dec *Decoder) {
	p.X = dec.Int32()
	p.Y = dec.Int32()
}

func TestAny(t *testing.T) {
	Register[*point]()

	enc := NewEncoder()
	enc.Any(&point{X: 1, Y: 2})
	enc.Any(point{X: 3, Y: 4})
	enc.Any(nil)

	dec := NewDecoder(enc.Data())
	if diff := cmp.Diff(&point{X: 1, Y: 2}, dec.Any()); diff != "" {
		t.Errorf("pointer (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(point{X: 3, Y: 4}, dec.Any()); diff != "" {
		t.Errorf("value (-want +got):\n%s", diff)
	}
	if got := dec.Any(); got != nil {
		t.Errorf("nil: got %v", got)
	}
}

func TestAnyUnregistered(t *testing.T) {
	type unregistered struct{ point }
	_, err := Marshal(packFunc(func(enc *Encoder) { enc.Any(unregistered{}) }))
	if err == nil {
		t.Fatal("unexpected success")
	}
}

type packFunc func(enc *Encoder)

func (f packFunc) Pack(enc *Encoder) { f(enc) }

func TestFail(t *testing.T) {
	_, err := Marshal(packFunc(func(enc *Encoder) {
		enc.Int32(1)
		Fail("Order", "Payment", "PG0001", "interface member")
	}))

	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Marshal: got %v, want *UnsupportedError", err)
	}
	want := &UnsupportedError{Type: "Order", Member: "Payment", Code: "PG0001", Message: "interface member"}
	if diff := cmp.Diff(want, unsupported); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestCatchPanicsRethrows(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("CatchPanics swallowed a foreign panic")
		}
	}()
	_ = CatchPanics(errors.New("boom"))
}

func TestUnmarshalTrailingBytes(t *testing.T) {
	data, err := Marshal(&point{X: 5, Y: 6})
	if err != nil {
		t.Fatal(err)
	}

	var p point
	if err := Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	if p != (point{X: 5, Y: 6}) {
		t.Fatalf("got %+v", p)
	}

	if err := Unmarshal(append(data, 0), &p); err == nil {
		t.Fatal("Unmarshal: unexpected success with trailing bytes")
	}
	if err := Unmarshal(data[:5], &p); err == nil {
		t.Fatal("Unmarshal: unexpected success with short data")
	}
}

func TestLenIgnoresRemaining(t *testing.T) {
	// Empty elements take no bytes, so a count larger than the remaining
	// input is valid on its own.
	d := NewDecoder([]byte{0xff, 0xff, 0xff, 0x7f})
	if got := d.Len(); got != math.MaxInt32 {
		t.Fatalf("Len() = %d, want %d", got, math.MaxInt32)
	}
	if d.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", d.Remaining())
	}
}
