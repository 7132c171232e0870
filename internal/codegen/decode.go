package codegen

import (
	"fmt"
	"go/types"
	"strings"
)

// unpackMember emits the statements reading member m of receiver x.
// Read-only members are consumed into a discarded temporary so that the
// stream stays aligned with what Pack wrote.
func (g *procGen) unpackMember(m *member, s *Shape) {
	switch m.access {
	case accessField:
		g.decode("x."+m.name, s)
	case accessProperty:
		v := g.tmp("v")
		g.p(`var %s %s`, v, g.tSet.genTypeString(s.Type))
		g.decode(v, s)
		g.p(`x.%s(%s)`, m.setter, v)
	case accessReadOnly:
		v := g.tmp("v")
		g.p(`var %s %s`, v, g.tSet.genTypeString(s.Type))
		g.decode(v, s)
		g.p(`_ = %s`, v)
	default:
		panic(fmt.Sprintf("unpackMember: member %s cannot be unpacked", m.name))
	}
}

// decode emits the statements reading a value of shape s from dec into the
// lvalue v. It mirrors encode shape for shape.
func (g *procGen) decode(v string, s *Shape) {
	ts := g.tSet.genTypeString

	switch s.Kind {
	case KindPrimitive:
		call := fmt.Sprintf("dec.%s()", s.Prim)
		if needsConversion(s) {
			call = fmt.Sprintf("%s(%s)", ts(s.Type), call)
		}
		g.p(`%s = %s`, v, call)

	case KindEnum:
		g.p(`%s = %s(dec.Int32())`, v, ts(s.Type))

	case KindNullable:
		g.p(`if dec.Bool() {`)
		if ctor, ok := g.fromConstructor(s.Elem); ok {
			g.p(`%s = %s(dec)`, v, ctor)
		} else {
			p := g.tmp("p")
			g.p(`var %s %s`, p, ts(s.Elem.Type))
			g.decode(p, s.Elem)
			g.p(`%s = &%s`, v, p)
		}
		g.p(`} else {`)
		g.p(`%s = nil`, v)
		g.p(`}`)

	case KindArray:
		i := g.tmp("i")
		if s.Len < 0 {
			n := g.tmp("n")
			g.p(`%s := dec.Len()`, n)
			g.p(`%s = make(%s, %s)`, v, ts(s.Type), n)
			g.p(`for %s := 0; %s < %s; %s++ {`, i, i, n, i)
		} else {
			g.p(`dec.FixedLen(%d)`, s.Len)
			g.p(`for %s := 0; %s < %d; %s++ {`, i, i, s.Len, i)
		}
		g.decode(fmt.Sprintf("%s[%s]", v, i), s.Elem)
		g.p(`}`)

	case KindCollection:
		g.decodeCollection(v, s)

	case KindSpecial:
		s.Special.unpack(g, v, s)

	case KindNested:
		g.p(`(%s).Unpack(dec)`, v)

	default:
		panic(fmt.Sprintf("decode: unexpected shape %v for %s", s, v))
	}
}

// fromConstructor returns the New<Name>From function for a nested type that
// is generated in the package being generated.
func (g *procGen) fromConstructor(s *Shape) (string, bool) {
	if s.Kind != KindNested || !s.OptedIn {
		return "", false
	}
	named, ok := types.Unalias(s.Type).(*types.Named)
	if !ok || named.TypeParams().Len() > 0 || named.Obj().Pkg() != g.tSet.pkg.Types {
		return "", false
	}
	return "New" + named.Obj().Name() + "From", true
}

func (g *procGen) decodeCollection(v string, s *Shape) {
	ts := g.tSet.genTypeString
	st := chooseStrategy(s, g.tSet.pkg.Types)

	n := g.tmp("n")
	g.p(`%s := dec.Len()`, n)

	i := g.tmp("i")
	loop := func() { g.p(`for %s := 0; %s < %s; %s++ {`, i, i, n, i) }

	switch st.kind {
	case strategyAdd:
		g.allocate(v, s, st, n)
		loop()
		e := g.tmp("e")
		g.p(`var %s %s`, e, ts(s.Elem.Type))
		g.decode(e, s.Elem)
		g.insert(v, s, st, e)
		g.p(`}`)

	case strategyParts:
		g.allocate(v, s, st, n)
		loop()
		var parts []string
		if isUntypedPair(s.Elem) {
			for j, part := range s.Elem.Parts {
				t := g.tmp([]string{"k", "v"}[j])
				g.p(`var %s %s`, t, ts(part.Type))
				g.decode(t, part)
				parts = append(parts, t)
			}
		} else {
			e := g.tmp("e")
			g.p(`var %s %s`, e, ts(s.Elem.Type))
			g.decode(e, s.Elem)
			for _, name := range s.Elem.Names {
				parts = append(parts, sel(e, name))
			}
		}
		if st.method == "" {
			g.p(`%s[%s] = %s`, v, parts[0], parts[1])
		} else {
			g.insert(v, s, st, strings.Join(parts, ", "))
		}
		g.p(`}`)

	case strategyBuffer, strategyValues:
		b := g.tmp("b")
		g.p(`%s := make([]%s, %s)`, b, ts(s.Elem.Type), n)
		loop()
		g.decode(fmt.Sprintf("%s[%s]", b, i), s.Elem)
		g.p(`}`)
		if st.kind == strategyValues {
			g.p(`%s = %s(%s)`, v, g.tSet.importPackage("slices", "slices").qualify("Values"), b)
			break
		}
		arg := b
		if st.variadic {
			arg += "..."
		}
		g.p(`%s = %s%s(%s)`, v, derefIf(st.ctorPtr), g.funcRef(st.ctor, s.Type), arg)

	default:
		panic(fmt.Sprintf("decodeCollection: no strategy for %v", s))
	}
}

// allocate emits the statement assigning an empty collection to v.
func (g *procGen) allocate(v string, s *Shape, st strategy, n string) {
	ts := g.tSet.genTypeString
	switch st.alloc {
	case allocMap:
		g.p(`%s = make(%s, %s)`, v, ts(s.Type), n)
	case allocSlice:
		g.p(`%s = make(%s, 0, %s)`, v, ts(s.Type), n)
	case allocCtor:
		g.p(`%s = %s%s()`, v, derefIf(st.allocPtr), g.funcRef(st.allocFn, s.Type))
	case allocLiteral:
		g.p(`%s = %s{}`, v, ts(s.Type))
	}
}

// insert emits the call adding args to the collection v.
func (g *procGen) insert(v string, s *Shape, st strategy, args string) {
	if st.reassign {
		g.p(`%s = %s.%s(%s)`, v, v, st.method, args)
		return
	}
	g.p(`%s.%s(%s)`, v, st.method, args)
}

// funcRef returns a reference to the package-level function fn, instantiated
// with the type arguments of t if fn is generic.
func (g *procGen) funcRef(fn *types.Func, t types.Type) string {
	name := g.tSet.importPackage(fn.Pkg().Path(), fn.Pkg().Name()).qualify(fn.Name())
	sig := fn.Type().(*types.Signature)
	named, ok := types.Unalias(t).(*types.Named)
	if sig.TypeParams().Len() == 0 || !ok {
		return name
	}
	args := make([]string, named.TypeArgs().Len())
	for i := range args {
		args[i] = g.tSet.genTypeString(named.TypeArgs().At(i))
	}
	return fmt.Sprintf("%s[%s]", name, strings.Join(args, ", "))
}

func derefIf(ptr bool) string {
	if ptr {
		return "*"
	}
	return ""
}
