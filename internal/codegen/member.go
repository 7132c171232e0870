package codegen

import (
	"go/token"
	"go/types"
	"reflect"
	"slices"
	"strings"
)

// accessor describes how a member is read and written.
type accessor uint8

const (
	accessField     accessor = iota // x.F
	accessProperty                  // x.F() and x.SetF(v)
	accessReadOnly                  // x.F() only
	accessWriteOnly                 // x.SetF(v) only
	accessIndexer                   // x.F(i)
)

// member is one candidate member of a serializable type's closure.
type member struct {
	name     string
	typ      types.Type
	optional bool // typ is a pointer
	access   accessor
	ignored  bool
	included bool
	exported bool
	depth    int // embedding depth; 0 for the type's own members
	seq      int // discovery order within the closure
	pos      token.Pos
	setter   string // for accessProperty
}

// get returns the expression reading m from the receiver x.
func (m *member) get() string {
	if m.access == accessField {
		return "x." + m.name
	}
	return "x." + m.name + "()"
}

// Directive comments recognized on types, fields and methods.
const (
	directiveSerializable = "//packgen:serializable"
	directiveIgnore       = "//packgen:ignore"
	directiveInclude      = "//packgen:include"
)

// directives are the participation markers attached to a declaration.
type directives struct {
	serializable bool
	ignore       bool
	include      bool
}

// annotations holds the directives of every declaration, across all loaded
// packages, that carries one. It is filled before any work item runs.
type annotations map[types.Object]directives

func (a annotations) of(obj types.Object) directives {
	if a == nil || obj == nil {
		return directives{}
	}
	return a[obj]
}

// tagDirectives parses the `pack:"..."` struct tag.
func tagDirectives(tag string) directives {
	var d directives
	for _, v := range strings.Split(reflect.StructTag(tag).Get("pack"), ",") {
		switch strings.TrimSpace(v) {
		case "-":
			d.ignore = true
		case "include":
			d.include = true
		}
	}
	return d
}

// candidateKind distinguishes the entries of a closure.
type candidateKind uint8

const (
	candField    candidateKind = iota
	candMethod                 // a method, resolved into a property later
	candEmbedded               // an embedded field that is flattened, never a member
	candPromoted               // promoted through an embedded pointer or non-struct type; never a member
)

type candidate struct {
	kind  candidateKind
	name  string
	depth int
	seq   int
	field *types.Var
	tag   string
	fn    *types.Func
}

// slot is an entry of the closure's name index.
type slot struct {
	index     int // into closure.arena
	depth     int
	ambiguous bool
}

// closure is the full embedding and method closure of a type, with Go's
// selector rules applied: a name at a shallower depth hides the same name
// deeper down, and a name found twice at the same depth is ambiguous.
type closure struct {
	arena  []candidate
	byName map[string]slot
}

func (c *closure) add(cand candidate) {
	cand.seq = len(c.arena)
	if s, ok := c.byName[cand.name]; ok {
		if s.depth == cand.depth {
			s.ambiguous = true
			c.byName[cand.name] = s
		}
		// Shadowed by a shallower member.
		return
	}
	c.arena = append(c.arena, cand)
	c.byName[cand.name] = slot{index: len(c.arena) - 1, depth: cand.depth}
}

// lookup returns the visible, unambiguous candidate called name.
func (c *closure) lookup(name string) (*candidate, bool) {
	s, ok := c.byName[name]
	if !ok || s.ambiguous {
		return nil, false
	}
	return &c.arena[s.index], true
}

// buildClosure walks the embedding graph of t breadth first.
func buildClosure(t *types.Named) *closure {
	c := &closure{byName: map[string]slot{}}

	// A promoted level contributes names for shadowing and ambiguity only:
	// its fields and methods are reached through a member of its own.
	type level struct {
		t        types.Type
		depth    int
		promoted bool
	}
	seen := map[*types.Named]int{}
	current := []level{{t: t, depth: 0}}
	for len(current) > 0 {
		var next []level
		for _, l := range current {
			if n, ok := types.Unalias(l.t).(*types.Named); ok {
				origin := n.Origin()
				if d, ok := seen[origin]; ok && d < l.depth {
					// Already reached at a shallower depth.
					continue
				}
				seen[origin] = l.depth
			}

			kind := func(k candidateKind) candidateKind {
				if l.promoted {
					return candPromoted
				}
				return k
			}

			switch u := l.t.Underlying().(type) {
			case *types.Struct:
				for i := 0; i < u.NumFields(); i++ {
					f := u.Field(i)
					if !f.Embedded() {
						c.add(candidate{kind: kind(candField), name: f.Name(), depth: l.depth, field: f, tag: u.Tag(i)})
						continue
					}

					ft := types.Unalias(f.Type())
					switch {
					case isSerializableMarker(ft):
						c.add(candidate{kind: kind(candEmbedded), name: f.Name(), depth: l.depth})
					case isStructType(ft), isInterfaceType(ft):
						c.add(candidate{kind: kind(candEmbedded), name: f.Name(), depth: l.depth})
						next = append(next, level{t: ft, depth: l.depth + 1, promoted: l.promoted})
					default:
						// Embedded pointers and non-struct types are members
						// in their own right.
						c.add(candidate{kind: kind(candField), name: f.Name(), depth: l.depth, field: f, tag: u.Tag(i)})
						if p, ok := ft.(*types.Pointer); ok {
							ft = types.Unalias(p.Elem())
						}
						if _, ok := ft.(*types.Named); ok {
							next = append(next, level{t: ft, depth: l.depth + 1, promoted: true})
						}
					}
				}
			case *types.Interface:
				for i := 0; i < u.NumMethods(); i++ {
					m := u.Method(i)
					c.add(candidate{kind: kind(candMethod), name: m.Name(), depth: l.depth, fn: m})
				}
			}

			if n, ok := types.Unalias(l.t).(*types.Named); ok {
				if _, isIface := n.Underlying().(*types.Interface); !isIface {
					for i := 0; i < n.NumMethods(); i++ {
						m := n.Method(i)
						c.add(candidate{kind: kind(candMethod), name: m.Name(), depth: l.depth, fn: m})
					}
				}
			}
		}
		current = next
	}
	return c
}

func isStructType(t types.Type) bool {
	_, ok := t.Underlying().(*types.Struct)
	return ok
}

func isInterfaceType(t types.Type) bool {
	_, ok := t.Underlying().(*types.Interface)
	return ok
}

// members returns every field and property visible in c, selected or not.
// pkg is the package the generated code lives in.
func (c *closure) members(pkg *types.Package, notes annotations) []*member {
	accessible := func(obj types.Object) bool {
		return obj.Exported() || obj.Pkg() == pkg
	}

	var ms []*member
	for name, s := range c.byName {
		if s.ambiguous {
			continue
		}
		cand := &c.arena[s.index]
		switch cand.kind {
		case candField:
			if !accessible(cand.field) {
				continue
			}
			d := tagDirectives(cand.tag)
			n := notes.of(cand.field)
			ms = append(ms, &member{
				name:     name,
				typ:      cand.field.Type(),
				access:   accessField,
				ignored:  d.ignore || n.ignore,
				included: d.include || n.include,
				exported: cand.field.Exported(),
				depth:    cand.depth,
				seq:      cand.seq,
				pos:      cand.field.Pos(),
			})

		case candMethod:
			if !accessible(cand.fn) {
				continue
			}
			if m := c.property(cand, notes, accessible); m != nil {
				ms = append(ms, m)
			}
		}
	}

	// Fields before properties at each depth, each in discovery order.
	slices.SortFunc(ms, func(a, b *member) int {
		if a.depth != b.depth {
			return a.depth - b.depth
		}
		af, bf := a.access == accessField, b.access == accessField
		if af != bf {
			if af {
				return -1
			}
			return 1
		}
		return a.seq - b.seq
	})
	return ms
}

// property resolves the method cand into a property, or returns nil if cand
// is neither a getter, an indexer nor an orphan setter.
func (c *closure) property(cand *candidate, notes annotations, accessible func(types.Object) bool) *member {
	sig := cand.fn.Type().(*types.Signature)
	n := notes.of(cand.fn)
	m := &member{
		name:     cand.name,
		ignored:  n.ignore,
		included: n.include,
		exported: cand.fn.Exported(),
		depth:    cand.depth,
		seq:      cand.seq,
		pos:      cand.fn.Pos(),
	}

	switch {
	case sig.Results().Len() == 1 && sig.Params().Len() == 0 && !sig.Variadic():
		m.typ = sig.Results().At(0).Type()
		m.access = accessReadOnly
		setter := "Set" + cand.name
		if s, ok := c.lookup(setter); ok && s.kind == candMethod && accessible(s.fn) && isSetterOf(s.fn, m.typ) {
			m.access = accessProperty
			m.setter = setter
			sn := notes.of(s.fn)
			m.ignored = m.ignored || sn.ignore
			m.included = m.included || sn.include
		}
		return m

	case sig.Results().Len() == 1 && sig.Params().Len() > 0:
		m.typ = sig.Results().At(0).Type()
		m.access = accessIndexer
		return m

	case strings.HasPrefix(cand.name, "Set") && len(cand.name) > len("Set") && sig.Params().Len() == 1 && sig.Results().Len() == 0:
		if _, ok := c.lookup(strings.TrimPrefix(cand.name, "Set")); ok {
			// Part of a property, or a setter for a field of the same name.
			return nil
		}
		m.name = strings.TrimPrefix(cand.name, "Set")
		m.typ = sig.Params().At(0).Type()
		m.access = accessWriteOnly
		return m
	}
	return nil
}

func isSetterOf(fn *types.Func, t types.Type) bool {
	sig := fn.Type().(*types.Signature)
	return sig.Params().Len() == 1 && sig.Results().Len() == 0 && !sig.Variadic() &&
		types.Identical(sig.Params().At(0).Type(), t)
}

// selected reports whether m participates in serialization.
func (m *member) selected() bool {
	if m.ignored || isSerializableMarker(m.typ) {
		return false
	}
	switch m.access {
	case accessField, accessProperty:
		return m.included || m.exported
	case accessReadOnly:
		return m.included
	default:
		// Indexers and write-only members cannot be serialized.
		return false
	}
}

// selectMembers returns the ordered members of t that participate in
// serialization.
func selectMembers(t *types.Named, pkg *types.Package, notes annotations) []*member {
	var selected []*member
	for _, m := range buildClosure(t).members(pkg, notes) {
		if !m.selected() {
			continue
		}
		_, m.optional = types.Unalias(m.typ).(*types.Pointer)
		selected = append(selected, m)
	}
	return selected
}
