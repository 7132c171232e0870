package codegen

import (
	"fmt"
	"go/types"
	"strings"
)

// Kind is the closed set of wire shapes a member's type can take.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindEnum
	KindNullable
	KindArray
	KindCollection
	KindSpecial
	KindNested
	KindInterface
	KindUnsupported
)

var kindNames = [...]string{
	KindPrimitive:   "primitive",
	KindEnum:        "enum",
	KindNullable:    "nullable",
	KindArray:       "array",
	KindCollection:  "collection",
	KindSpecial:     "special",
	KindNested:      "nested",
	KindInterface:   "interface",
	KindUnsupported: "unsupported",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Prim is the scalar kind of a primitive shape. The name of each kind is the
// name of the Encoder and Decoder methods that handle it.
type Prim uint8

const (
	PrimBool Prim = iota
	PrimInt
	PrimInt8
	PrimInt16
	PrimInt32
	PrimInt64
	PrimUint
	PrimUint8
	PrimUint16
	PrimUint32
	PrimUint64
	PrimFloat32
	PrimFloat64
	PrimComplex64
	PrimComplex128
	PrimString
	PrimBytes
	PrimAny
)

var primNames = [...]string{
	PrimBool:       "Bool",
	PrimInt:        "Int",
	PrimInt8:       "Int8",
	PrimInt16:      "Int16",
	PrimInt32:      "Int32",
	PrimInt64:      "Int64",
	PrimUint:       "Uint",
	PrimUint8:      "Uint8",
	PrimUint16:     "Uint16",
	PrimUint32:     "Uint32",
	PrimUint64:     "Uint64",
	PrimFloat32:    "Float32",
	PrimFloat64:    "Float64",
	PrimComplex64:  "Complex64",
	PrimComplex128: "Complex128",
	PrimString:     "String",
	PrimBytes:      "Bytes",
	PrimAny:        "Any",
}

func (p Prim) String() string {
	return primNames[p]
}

// goType is the Go type the Encoder method for p accepts.
func (p Prim) goType() string {
	switch p {
	case PrimBytes:
		return "[]byte"
	case PrimAny:
		return "any"
	default:
		return strings.ToLower(primNames[p])
	}
}

// collectionForm tells how a collection is enumerated.
type collectionForm uint8

const (
	formMap  collectionForm = iota // builtin map[K]V
	formSeq                        // named type with All() iter.Seq[E]
	formSeq2                       // named type with All() iter.Seq2[K, V]
	formIter                       // the declared type is iter.Seq[E] itself
)

// Shape is the classified wire shape of a type. A member's shape is computed
// once and read by both the encode and decode synthesizers.
type Shape struct {
	Kind Kind
	Type types.Type // the classified type; for Nullable, the pointer type

	Prim Prim   // KindPrimitive
	Elem *Shape // KindNullable, KindArray, KindCollection

	// KindArray: fixed array length, or -1 for slices.
	Len int64

	// KindCollection.
	Form   collectionForm
	HasLen bool // the collection has a Len() int accessor

	// KindSpecial.
	Special *special
	Parts   []*Shape // constituents, in wire order
	Names   []string // field names of Parts, for tuples and pairs

	// KindNested: the type is opted in for generation (as opposed to only
	// having hand-written Pack and Unpack methods).
	OptedIn bool

	// KindUnsupported and KindInterface.
	Code   Code
	Reason string
}

func (s *Shape) String() string {
	switch s.Kind {
	case KindPrimitive:
		return fmt.Sprintf("primitive(%s)", s.Prim)
	case KindNullable, KindArray, KindCollection:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Elem)
	case KindSpecial:
		parts := make([]string, len(s.Parts))
		for i, p := range s.Parts {
			parts[i] = p.String()
		}
		if len(parts) == 0 {
			return fmt.Sprintf("special(%s)", s.Special.id)
		}
		return fmt.Sprintf("special(%s; %s)", s.Special.id, strings.Join(parts, ", "))
	case KindUnsupported, KindInterface:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Code.Name())
	default:
		return s.Kind.String()
	}
}

// problem returns the first shape in s, in wire order, that cannot be
// serialized at all.
func (s *Shape) problem() *Shape {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case KindUnsupported, KindInterface:
		return s
	}
	if p := s.Elem.problem(); p != nil {
		return p
	}
	for _, part := range s.Parts {
		if p := part.problem(); p != nil {
			return p
		}
	}
	return nil
}
