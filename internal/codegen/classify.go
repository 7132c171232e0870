package codegen

import (
	"fmt"
	"go/types"

	"golang.org/x/tools/go/types/typeutil"
)

// classifier maps declared member types to shapes. One classifier serves
// one work item; the opted-in set it reads is shared and read-only.
type classifier struct {
	optedIn optedInSet

	active typeutil.Map // types being classified, to catch recursive collections
	enums  map[*types.Named]bool
}

func newClassifier(optedIn optedInSet) *classifier {
	return &classifier{optedIn: optedIn, enums: map[*types.Named]bool{}}
}

var basicPrims = map[types.BasicKind]Prim{
	types.Bool:       PrimBool,
	types.Int:        PrimInt,
	types.Int8:       PrimInt8,
	types.Int16:      PrimInt16,
	types.Int32:      PrimInt32,
	types.Int64:      PrimInt64,
	types.Uint:       PrimUint,
	types.Uint8:      PrimUint8,
	types.Uint16:     PrimUint16,
	types.Uint32:     PrimUint32,
	types.Uint64:     PrimUint64,
	types.Float32:    PrimFloat32,
	types.Float64:    PrimFloat64,
	types.Complex64:  PrimComplex64,
	types.Complex128: PrimComplex128,
	types.String:     PrimString,
}

// classify returns the shape of t. A pointer is unwrapped exactly once into
// a nullable shape.
func (c *classifier) classify(t types.Type) *Shape {
	t = types.Unalias(t)
	if p, ok := t.(*types.Pointer); ok {
		if _, ok := types.Unalias(p.Elem()).(*types.Pointer); ok {
			return unsupported(t, CodeNestedOptional, "nested pointer %s is not supported; use a single level of indirection", typeString(t))
		}
		return &Shape{Kind: KindNullable, Type: t, Elem: c.classifyValue(types.Unalias(p.Elem()))}
	}
	return c.classifyValue(t)
}

func (c *classifier) classifyValue(t types.Type) *Shape {
	if isInvalid(t) {
		return unsupported(t, CodeUnsupportedType, "type is invalid (maybe run \"go mod tidy\"?)")
	}

	if s := lookupSpecial(t); s != nil {
		shape := &Shape{Kind: KindSpecial, Type: t, Special: s}
		if s.parts != nil {
			ts, names := s.parts(t)
			for _, part := range ts {
				shape.Parts = append(shape.Parts, c.classify(part))
			}
			shape.Names = names
		}
		return shape
	}

	if tp, ok := t.(*types.TypeParam); ok {
		return unsupported(t, CodeUnsupportedType, "type parameter %s has no wire form", tp.Obj().Name())
	}

	if c.active.At(t) != nil {
		return unsupported(t, CodeUnsupportedType, "collection %s contains itself", typeString(t))
	}
	c.active.Set(t, true)
	defer c.active.Delete(t)

	if elems := iterSeq(t); elems != nil {
		return &Shape{Kind: KindCollection, Type: t, Form: formIter, Elem: c.element(elems)}
	}
	if s := c.sequence(t); s != nil {
		return s
	}

	named, isNamed := t.(*types.Named)
	if isNamed && !isInterfaceType(t) {
		if c.optedIn[named.Origin()] || embedsMarker(named) {
			return &Shape{Kind: KindNested, Type: t, OptedIn: true}
		}
		if hasProcedurePair(t) {
			return &Shape{Kind: KindNested, Type: t}
		}
	}

	switch u := t.Underlying().(type) {
	case *types.Basic:
		prim, ok := basicPrims[u.Kind()]
		if !ok {
			return unsupported(t, CodeUnsupportedType, "%s has no wire form", typeString(t))
		}
		if isNamed && u.Info()&types.IsInteger != 0 && c.isEnum(named) {
			return &Shape{Kind: KindEnum, Type: t}
		}
		return &Shape{Kind: KindPrimitive, Type: t, Prim: prim}

	case *types.Slice:
		if b, ok := types.Unalias(u.Elem()).(*types.Basic); ok && b.Kind() == types.Uint8 {
			return &Shape{Kind: KindPrimitive, Type: t, Prim: PrimBytes}
		}
		return &Shape{Kind: KindArray, Type: t, Len: -1, Elem: c.classify(u.Elem())}

	case *types.Array:
		return &Shape{Kind: KindArray, Type: t, Len: u.Len(), Elem: c.classify(u.Elem())}

	case *types.Map:
		return &Shape{Kind: KindCollection, Type: t, Form: formMap, HasLen: true, Elem: c.element([]types.Type{u.Key(), u.Elem()})}

	case *types.Interface:
		if u.Empty() {
			return &Shape{Kind: KindPrimitive, Type: t, Prim: PrimAny}
		}
		return &Shape{
			Kind:   KindInterface,
			Type:   t,
			Code:   CodeInterfaceMember,
			Reason: fmt.Sprintf("interface %s cannot be serialized; only interfaces with an All() iter.Seq method are supported", typeString(t)),
		}

	case *types.Struct:
		if isNamed {
			return unsupported(t, CodeMissingProcedure, "%s is neither serializable nor has Pack and Unpack methods", typeString(t))
		}
		return unsupported(t, CodeUnsupportedType, "struct with %d fields cannot be serialized as a tuple (1 to %d fields)", u.NumFields(), maxTupleArity)

	case *types.Pointer:
		return unsupported(t, CodeUnsupportedType, "named pointer type %s is not supported", typeString(t))
	}

	return unsupported(t, CodeUnsupportedType, "%s has no wire form", typeString(t))
}

// sequence classifies t as a collection if its method set has an All method
// returning iter.Seq[E] or iter.Seq2[K, V].
func (c *classifier) sequence(t types.Type) *Shape {
	if _, ok := t.(*types.Named); !ok && !isInterfaceType(t) {
		return nil
	}
	all := methodSig(t, "All")
	if all == nil || all.Params().Len() != 0 || all.Results().Len() != 1 {
		return nil
	}
	elems := iterSeq(all.Results().At(0).Type())
	if elems == nil {
		return nil
	}

	form := formSeq
	if len(elems) == 2 {
		form = formSeq2
	}
	s := &Shape{Kind: KindCollection, Type: t, Form: form, Elem: c.element(elems)}
	if l := methodSig(t, "Len"); l != nil && l.Params().Len() == 0 && l.Results().Len() == 1 {
		if b, ok := types.Unalias(l.Results().At(0).Type()).(*types.Basic); ok && b.Kind() == types.Int {
			s.HasLen = true
		}
	}
	return s
}

// element returns the element shape of a collection. Two element types form
// an untyped key/value pair.
func (c *classifier) element(elems []types.Type) *Shape {
	if len(elems) == 1 {
		return c.classify(elems[0])
	}
	return &Shape{
		Kind:    KindSpecial,
		Special: pairSpecial,
		Parts:   []*Shape{c.classify(elems[0]), c.classify(elems[1])},
		Names:   []string{"Key", "Value"},
	}
}

// isEnum reports whether t has at least one package-level constant.
func (c *classifier) isEnum(t *types.Named) bool {
	if v, ok := c.enums[t]; ok {
		return v
	}
	enum := false
	if pkg := t.Obj().Pkg(); pkg != nil {
		scope := pkg.Scope()
		for _, name := range scope.Names() {
			if k, ok := scope.Lookup(name).(*types.Const); ok && types.Identical(k.Type(), t) {
				enum = true
				break
			}
		}
	}
	c.enums[t] = enum
	return enum
}

// embedsMarker reports whether t embeds packgen.Serializable. It recognizes
// opted-in types of packages that are not part of the pass.
func embedsMarker(t *types.Named) bool {
	st, ok := t.Underlying().(*types.Struct)
	if !ok {
		return false
	}
	for i := 0; i < st.NumFields(); i++ {
		if f := st.Field(i); f.Embedded() && isSerializableMarker(f.Type()) {
			return true
		}
	}
	return false
}

func unsupported(t types.Type, code Code, format string, args ...any) *Shape {
	return &Shape{Kind: KindUnsupported, Type: t, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// typeString formats t for diagnostics, qualifying by package name.
func typeString(t types.Type) string {
	return types.TypeString(t, func(p *types.Package) string { return p.Name() })
}
