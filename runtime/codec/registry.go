package codec

import (
	"fmt"
	"reflect"
	"sync"
)

// Packer is implemented by types that can write themselves to an Encoder.
type Packer interface {
	Pack(enc *Encoder)
}

// Unpacker is implemented by types that can read themselves from a Decoder.
type Unpacker interface {
	Unpack(dec *Decoder)
}

// AutoPack is implemented by every type packgen generates code for.
type AutoPack interface {
	Packer
	Unpacker
}

var (
	typesMu  sync.Mutex
	types    map[string]reflect.Type
	typeKeys map[reflect.Type]string
)

// Register records T so that values of type T, and of the type T points to,
// can travel inside an interface value via Encoder.Any and Decoder.Any.
// Generated code registers every generated type from an init function.
func Register[T AutoPack]() {
	var value T
	t := reflect.TypeOf(value)

	typesMu.Lock()
	defer typesMu.Unlock()

	if types == nil {
		types = make(map[string]reflect.Type)
		typeKeys = make(map[reflect.Type]string)
	}

	register := func(t reflect.Type) {
		key := typKey(t)
		if existing, ok := types[key]; ok {
			if existing == t {
				return
			}
			panic(fmt.Sprintf("multiple types (%v and %v) have the same type string %q", existing, t, key))
		}
		types[key] = t
		typeKeys[t] = key
	}

	register(t)
	if t.Kind() == reflect.Pointer {
		register(t.Elem())
	}
}

func typKey(t reflect.Type) string {
	pkg := t.PkgPath()
	if pkg == "" && t.Kind() == reflect.Pointer {
		pkg = t.Elem().PkgPath()
	}

	return fmt.Sprintf("%s(%s)", t.String(), pkg)
}

func lookupKey(t reflect.Type) (string, bool) {
	typesMu.Lock()
	defer typesMu.Unlock()

	key, ok := typeKeys[t]
	return key, ok
}

func lookupType(key string) (reflect.Type, bool) {
	typesMu.Lock()
	defer typesMu.Unlock()

	t, ok := types[key]
	return t, ok
}

// pointerTo returns a pointer to value. If value is not addressable, pointerTo
// will make an addressable copy of value and return a pointer to the copy.
func pointerTo(value any) any {
	v := reflect.ValueOf(value)
	if !v.CanAddr() {
		v = reflect.New(v.Type()).Elem()
		v.Set(reflect.ValueOf(value))
	}

	return v.Addr().Interface()
}

// Any writes a dynamically typed value: its registered type key followed by
// its packed form. A nil value is written as an empty key.
func (e *Encoder) Any(value any) {
	if value == nil {
		e.String("")
		return
	}

	t := reflect.TypeOf(value)
	key, ok := lookupKey(t)
	if !ok {
		panic(makeEncoderError("value of type %v was not registered with codec.Register", t))
	}
	e.String(key)

	if p, ok := value.(Packer); ok {
		p.Pack(e)
		return
	}
	if p, ok := pointerTo(value).(Packer); ok {
		p.Pack(e)
		return
	}

	panic(makeEncoderError("value of type %v is not a codec.Packer", t))
}

// Any reads a value written by Encoder.Any.
func (d *Decoder) Any() any {
	key := d.String()
	if key == "" {
		return nil
	}

	t, ok := lookupType(key)
	if !ok {
		panic(makeDecoderError("received value for non-registered type %q", key))
	}

	var ptr reflect.Value
	if t.Kind() == reflect.Pointer {
		ptr = reflect.New(t.Elem())
	} else {
		ptr = reflect.New(t)
	}

	u, ok := ptr.Interface().(Unpacker)
	if !ok {
		panic(makeDecoderError("received value for non-unpackable type %v", t))
	}
	u.Unpack(d)

	if t.Kind() != reflect.Pointer {
		return ptr.Elem().Interface()
	}

	return ptr.Interface()
}
