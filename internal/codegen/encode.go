package codegen

import (
	"fmt"
	"go/types"
	"strings"
)

type printFn func(format string, args ...any)

// procGen emits the body of one generated procedure. Temporaries are named
// by a prefix and a per-procedure counter (v0, v1, e0, ...), so that nested
// loops and branches never shadow each other.
type procGen struct {
	tSet  *typeSet
	p     printFn
	temps map[string]int
}

func newProcGen(tSet *typeSet, p printFn) *procGen {
	return &procGen{tSet: tSet, p: p, temps: map[string]int{}}
}

func (g *procGen) tmp(prefix string) string {
	n := g.temps[prefix]
	g.temps[prefix]++
	return fmt.Sprintf("%s%d", prefix, n)
}

func (g *procGen) codec() importPkg {
	return g.tSet.importPackage(codecPackagePath, "codec")
}

// fail emits a statement that fails at runtime with the given problem.
func (g *procGen) fail(typ, member string, code Code, msg string) {
	g.p(`%s(%q, %q, %q, %q)`, g.codec().qualify("Fail"), typ, member, string(code), msg)
}

// packMember emits the statements writing member m of receiver x.
func (g *procGen) packMember(m *member, s *Shape) {
	e := m.get()
	if m.access != accessField {
		v := g.tmp("v")
		g.p(`%s := %s`, v, e)
		e = v
	}
	g.encode(e, s)
}

// encode emits the statements writing the expression e of shape s to enc.
// e must be addressable or a pointer dereference.
//
//	enc(e: primitive)        = enc.[Prim](e)
//	enc(e: enum)             = enc.Int32(int32(e))
//	enc(e: *T)               = if e == nil { enc.Bool(false) } else { enc.Bool(true); enc(*e: T) }
//	enc(e: []T, [N]T)        = enc.Len(len(e)); for _, v := range e { enc(v: T) }
//	enc(e: collection of T)  = enc.Len(count); for v := range seq(e) { enc(v: T) }
//	enc(e: special)          = registered codec
//	enc(e: nested)           = (e).Pack(enc)
func (g *procGen) encode(e string, s *Shape) {
	switch s.Kind {
	case KindPrimitive:
		g.p(`enc.%s(%s)`, s.Prim, convertTo(e, s))

	case KindEnum:
		g.p(`enc.Int32(int32(%s))`, e)

	case KindNullable:
		g.p(`if %s == nil {`, e)
		g.p(`enc.Bool(false)`)
		g.p(`} else {`)
		g.p(`enc.Bool(true)`)
		g.encode(deref(e), s.Elem)
		g.p(`}`)

	case KindArray:
		g.p(`enc.Len(len(%s))`, e)
		v := g.tmp("e")
		g.p(`for _, %s := range %s {`, v, e)
		g.encode(v, s.Elem)
		g.p(`}`)

	case KindCollection:
		g.encodeCollection(e, s)

	case KindSpecial:
		s.Special.pack(g, e, s)

	case KindNested:
		g.p(`(%s).Pack(enc)`, e)

	default:
		panic(fmt.Sprintf("encode: unexpected shape %v for %s", s, e))
	}
}

func (g *procGen) encodeCollection(e string, s *Shape) {
	nilable := s.Form == formIter || isInterfaceType(s.Type)
	if nilable {
		g.p(`if %s == nil {`, e)
		g.p(`enc.Len(0)`)
		g.p(`} else {`)
	}

	seq := e
	if s.Form == formSeq || s.Form == formSeq2 {
		seq = sel(e, "All()")
	}

	switch {
	case s.Form == formMap:
		g.p(`enc.Len(len(%s))`, e)
	case s.HasLen:
		g.p(`enc.Len(%s)`, sel(e, "Len()"))
	default:
		n := g.tmp("n")
		g.p(`%s := 0`, n)
		g.p(`for range %s {`, seq)
		g.p(`%s++`, n)
		g.p(`}`)
		g.p(`enc.Len(%s)`, n)
	}

	if isUntypedPair(s.Elem) {
		k, v := g.tmp("k"), g.tmp("v")
		g.p(`for %s, %s := range %s {`, k, v, seq)
		g.encode(k, s.Elem.Parts[0])
		g.encode(v, s.Elem.Parts[1])
		g.p(`}`)
	} else {
		v := g.tmp("e")
		g.p(`for %s := range %s {`, v, seq)
		g.encode(v, s.Elem)
		g.p(`}`)
	}

	if nilable {
		g.p(`}`)
	}
}

// isUntypedPair reports whether s is the key/value element of a map or an
// iter.Seq2, which has no Go type of its own.
func isUntypedPair(s *Shape) bool {
	return s.Kind == KindSpecial && s.Special.id == pairID && s.Type == nil
}

// convertTo converts e to the argument type of the Encoder method for s.
func convertTo(e string, s *Shape) string {
	if !needsConversion(s) {
		return e
	}
	return fmt.Sprintf("%s(%s)", s.Prim.goType(), e)
}

// needsConversion reports whether a primitive's declared type differs from
// the type the Encoder and Decoder methods use.
func needsConversion(s *Shape) bool {
	if s.Prim == PrimAny {
		return false
	}
	_, named := types.Unalias(s.Type).(*types.Named)
	return named
}

// sel returns the selector expression e.name. A leading dereference is
// dropped since selectors dereference pointers implicitly.
func sel(e, name string) string {
	return strings.TrimPrefix(e, "*") + "." + name
}

func deref(e string) string {
	if len(e) == 0 {
		return "*"
	}
	if e[0] == '&' {
		return e[1:]
	}
	return "*" + e
}

func ref(e string) string {
	if len(e) == 0 {
		return "&"
	}
	if e[0] == '*' {
		return e[1:]
	}
	return "&" + e
}
