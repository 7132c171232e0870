package codegen

import (
	"go/types"
)

// strategyKind is how Unpack rebuilds a collection from its elements.
type strategyKind uint8

const (
	strategyNone   strategyKind = iota
	strategyAdd                 // allocate empty, then c.Add(e) per element
	strategyParts               // allocate empty, then c.Set(k, v) or c[k] = v per element
	strategyBuffer              // decode into a slice, then New<Name>(buf)
	strategyValues              // decode into a slice, then slices.Values(buf)
)

var strategyNames = [...]string{
	strategyNone:   "none",
	strategyAdd:    "add",
	strategyParts:  "parts",
	strategyBuffer: "buffer",
	strategyValues: "values",
}

func (k strategyKind) String() string { return strategyNames[k] }

// allocKind is how an empty collection is created.
type allocKind uint8

const (
	allocNone    allocKind = iota
	allocMap                // make(C, n)
	allocSlice              // make(C, 0, n)
	allocCtor               // New<Name>()
	allocLiteral            // C{}
)

type strategy struct {
	kind strategyKind

	// strategyAdd and strategyParts.
	method   string // empty for builtin map assignment
	reassign bool   // the method returns the updated collection
	alloc    allocKind
	allocFn  *types.Func
	allocPtr bool // allocFn returns *C

	// strategyBuffer.
	ctor     *types.Func
	ctorPtr  bool // ctor returns *C
	variadic bool
}

var (
	addMethods   = []string{"Add", "Append", "Push", "Insert"}
	partsMethods = []string{"Set", "Put", "Add", "Store", "Insert"}
)

// chooseStrategy picks the first viable way to rebuild the collection s in
// package pkg: an element-wise add method, a decomposed key/value insertion,
// a constructor taking a slice, or, for iter.Seq, the slice itself.
func chooseStrategy(s *Shape, pkg *types.Package) strategy {
	c := s.Type
	elem := s.Elem

	if s.Form == formIter {
		if isUntypedPair(elem) {
			return strategy{}
		}
		return strategy{kind: strategyValues}
	}

	alloc := allocation(c, pkg)

	// (a) An add method taking the element.
	if alloc.alloc != allocNone && elem.Type != nil {
		for _, name := range addMethods {
			if reassign, ok := acceptsArgs(c, name, []types.Type{elem.Type}); ok {
				alloc.kind, alloc.method, alloc.reassign = strategyAdd, name, reassign
				return alloc
			}
		}
	}

	// (b) The element decomposes into parts the collection accepts.
	if alloc.alloc != allocNone && len(elem.Parts) > 0 {
		parts := make([]types.Type, len(elem.Parts))
		for i, p := range elem.Parts {
			parts[i] = p.Type
		}
		if m, ok := c.Underlying().(*types.Map); ok && len(parts) == 2 &&
			types.AssignableTo(parts[0], m.Key()) && types.AssignableTo(parts[1], m.Elem()) {
			alloc.kind = strategyParts
			return alloc
		}
		for _, name := range partsMethods {
			if reassign, ok := acceptsArgs(c, name, parts); ok {
				alloc.kind, alloc.method, alloc.reassign = strategyParts, name, reassign
				return alloc
			}
		}
	}

	// (c) A constructor building the collection from a slice of elements.
	if elem.Type != nil {
		if fn, ptr, variadic, ok := sliceConstructor(c, elem.Type, pkg); ok {
			return strategy{kind: strategyBuffer, ctor: fn, ctorPtr: ptr, variadic: variadic}
		}
	}

	return strategy{}
}

// allocation returns how to create an empty collection of type c.
func allocation(c types.Type, pkg *types.Package) strategy {
	switch c.Underlying().(type) {
	case *types.Map:
		return strategy{alloc: allocMap}
	case *types.Slice:
		return strategy{alloc: allocSlice}
	case *types.Struct:
		if fn, ptr, ok := constructor(c, pkg, func(sig *types.Signature) bool {
			return sig.Params().Len() == 0
		}); ok {
			return strategy{alloc: allocCtor, allocFn: fn, allocPtr: ptr}
		}
		return strategy{alloc: allocLiteral}
	}
	return strategy{}
}

// acceptsArgs reports whether the method set of *c has a method name taking
// args and returning nothing or the collection itself.
func acceptsArgs(c types.Type, name string, args []types.Type) (reassign bool, ok bool) {
	sig := methodSig(c, name)
	if sig == nil || sig.Variadic() || sig.Params().Len() != len(args) {
		return false, false
	}
	for i, a := range args {
		if a == nil || !types.AssignableTo(a, sig.Params().At(i).Type()) {
			return false, false
		}
	}
	switch sig.Results().Len() {
	case 0:
		return false, true
	case 1:
		return true, types.Identical(sig.Results().At(0).Type(), c)
	}
	return false, false
}

// sliceConstructor finds New<Name>([]E) or New<Name>(...E) for the named
// collection c.
func sliceConstructor(c, elem types.Type, pkg *types.Package) (fn *types.Func, ptr, variadic, ok bool) {
	fn, ptr, ok = constructor(c, pkg, func(sig *types.Signature) bool {
		if sig.Params().Len() != 1 {
			return false
		}
		s, isSlice := sig.Params().At(0).Type().(*types.Slice)
		return isSlice && types.AssignableTo(elem, s.Elem())
	})
	if !ok {
		return nil, false, false, false
	}
	return fn, ptr, fn.Type().(*types.Signature).Variadic(), true
}

// constructor looks up New<Name> in the package declaring the named type c.
// The function must be accessible from pkg, accept a signature, and return
// c or *c. Generic constructors are instantiated with c's type arguments.
func constructor(c types.Type, pkg *types.Package, accept func(*types.Signature) bool) (*types.Func, bool, bool) {
	named, ok := types.Unalias(c).(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return nil, false, false
	}
	fn, ok := named.Obj().Pkg().Scope().Lookup("New" + named.Obj().Name()).(*types.Func)
	if !ok || (!fn.Exported() && fn.Pkg() != pkg) {
		return nil, false, false
	}

	sig := fn.Type().(*types.Signature)
	if tparams := sig.TypeParams(); tparams.Len() > 0 {
		if tparams.Len() != named.TypeArgs().Len() {
			return nil, false, false
		}
		targs := make([]types.Type, named.TypeArgs().Len())
		for i := range targs {
			targs[i] = named.TypeArgs().At(i)
		}
		inst, err := types.Instantiate(nil, sig, targs, true)
		if err != nil {
			return nil, false, false
		}
		sig = inst.(*types.Signature)
	}

	if !accept(sig) || sig.Results().Len() != 1 {
		return nil, false, false
	}
	switch r := sig.Results().At(0).Type(); {
	case types.Identical(r, c):
		return fn, false, true
	case isPointerTo(r, c) && !isInterfaceType(c):
		return fn, true, true
	}
	return nil, false, false
}

func isPointerTo(t, elem types.Type) bool {
	p, ok := t.(*types.Pointer)
	return ok && types.Identical(p.Elem(), elem)
}

// unbuildable returns the first collection within s, in wire order, that no
// strategy can rebuild.
func unbuildable(s *Shape, pkg *types.Package) *Shape {
	if s == nil {
		return nil
	}
	if s.Kind == KindCollection && chooseStrategy(s, pkg).kind == strategyNone {
		return s
	}
	if u := unbuildable(s.Elem, pkg); u != nil {
		return u
	}
	for _, part := range s.Parts {
		if u := unbuildable(part, pkg); u != nil {
			return u
		}
	}
	return nil
}
