package codec

import (
	"bytes"
)

// Marshal packs v into a new byte slice.
func Marshal(v Packer) (data []byte, err error) {
	enc := NewEncoder()
	defer enc.Release()
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, CatchPanics(r)
		}
	}()

	v.Pack(enc)
	return bytes.Clone(enc.Data()), nil
}

// Unmarshal unpacks data into v. It fails if data holds trailing bytes.
func Unmarshal(data []byte, v Unpacker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = CatchPanics(r)
		}
	}()

	dec := NewDecoder(data)
	v.Unpack(dec)
	if n := dec.Remaining(); n != 0 {
		return makeDecoderError("%d trailing bytes after %T", n, v)
	}

	return nil
}
