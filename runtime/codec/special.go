package codec

import (
	"time"

	"google.golang.org/protobuf/proto"
)

// Pair is a key/value pair. Pairs are written as Key followed by Value.
type Pair[K, V any] struct {
	Key   K
	Value V
}

func MakePair[K, V any](k K, v V) Pair[K, V] {
	return Pair[K, V]{Key: k, Value: v}
}

const (
	// TicksPerSecond is the resolution of encoded timestamps (100ns ticks).
	TicksPerSecond = 10_000_000
	nanosPerTick   = int64(time.Second) / TicksPerSecond

	// Seconds between 0001-01-01 UTC, the tick epoch, and the Unix epoch.
	unixEpochSeconds = 62135596800
)

// Ticks returns t as the number of 100ns ticks since 0001-01-01 UTC.
func Ticks(t time.Time) int64 {
	return (t.Unix()+unixEpochSeconds)*TicksPerSecond + int64(t.Nanosecond())/nanosPerTick
}

// FromTicks is the inverse of Ticks. The result is in UTC; precision below
// 100ns is not preserved.
func FromTicks(ticks int64) time.Time {
	sec := ticks / TicksPerSecond
	rem := ticks % TicksPerSecond
	if rem < 0 {
		sec--
		rem += TicksPerSecond
	}
	return time.Unix(sec-unixEpochSeconds, rem*nanosPerTick).UTC()
}

// Time writes t as a single 64-bit tick count.
func (e *Encoder) Time(t time.Time) {
	e.Int64(Ticks(t))
}

func (d *Decoder) Time() time.Time {
	return FromTicks(d.Int64())
}

// Duration writes d as a single 64-bit nanosecond count.
func (e *Encoder) Duration(d time.Duration) {
	e.Int64(int64(d))
}

func (d *Decoder) Duration() time.Duration {
	return time.Duration(d.Int64())
}

// Proto writes the length-prefixed protobuf encoding of value.
func (e *Encoder) Proto(value proto.Message) {
	bs, err := proto.MarshalOptions{Deterministic: true}.Marshal(value)
	if err != nil {
		panic(makeEncoderError("error encoding to proto %T: %w", value, err))
	}
	if bs == nil {
		bs = []byte{}
	}
	e.Bytes(bs)
}

// Proto reads a message written by Encoder.Proto into value.
func (d *Decoder) Proto(value proto.Message) {
	if err := proto.Unmarshal(d.Bytes(), value); err != nil {
		panic(makeDecoderError("error decoding to proto %T: %w", value, err))
	}
}
