package codegen

import (
	"go/types"
)

// maxTupleArity is the largest unnamed struct treated as a tuple.
const maxTupleArity = 7

// special is a hand-written codec for a well-known type. The table of
// specials is fixed and read-only, so concurrent work items share it freely.
type special struct {
	id string

	// parts returns the constituent types of t and their field names, in wire
	// order. It is nil for specials packed as a single value.
	parts func(t types.Type) ([]types.Type, []string)

	// pack emits the statements writing e; unpack emits the statements
	// reading into the lvalue v.
	pack   func(g *procGen, e string, s *Shape)
	unpack func(g *procGen, v string, s *Shape)
}

var (
	timeSpecial = &special{
		id: "time.Time",
		pack: func(g *procGen, e string, s *Shape) {
			g.p(`enc.Time(%s)`, e)
		},
		unpack: func(g *procGen, v string, s *Shape) {
			g.p(`%s = dec.Time()`, v)
		},
	}

	durationSpecial = &special{
		id: "time.Duration",
		pack: func(g *procGen, e string, s *Shape) {
			g.p(`enc.Duration(%s)`, e)
		},
		unpack: func(g *procGen, v string, s *Shape) {
			g.p(`%s = dec.Duration()`, v)
		},
	}

	pairSpecial = &special{
		id: pairID,
		parts: func(t types.Type) ([]types.Type, []string) {
			args := types.Unalias(t).(*types.Named).TypeArgs()
			return []types.Type{args.At(0), args.At(1)}, []string{"Key", "Value"}
		},
		pack:   packParts,
		unpack: unpackParts,
	}

	tupleSpecial = &special{
		id: "tuple",
		parts: func(t types.Type) ([]types.Type, []string) {
			st := types.Unalias(t).(*types.Struct)
			ts := make([]types.Type, st.NumFields())
			names := make([]string, st.NumFields())
			for i := 0; i < st.NumFields(); i++ {
				ts[i] = st.Field(i).Type()
				names[i] = st.Field(i).Name()
			}
			return ts, names
		},
		pack:   packParts,
		unpack: unpackParts,
	}

	protoSpecial = &special{
		id: "proto",
		pack: func(g *procGen, e string, s *Shape) {
			g.p(`enc.Proto(%s)`, ref(e))
		},
		unpack: func(g *procGen, v string, s *Shape) {
			g.p(`dec.Proto(%s)`, ref(v))
		},
	}
)

// pairID identifies pairSpecial. Code reached from its pack and unpack
// functions compares ids so the initializer does not depend on itself.
const pairID = "codec.Pair"

// specials maps qualified type names to their codecs.
var specials = map[string]*special{
	"time.Time":                timeSpecial,
	"time.Duration":            durationSpecial,
	codecPackagePath + ".Pair": pairSpecial,
}

// lookupSpecial returns the special codec for t, or nil.
func lookupSpecial(t types.Type) *special {
	switch x := types.Unalias(t).(type) {
	case *types.Named:
		if pkg := x.Obj().Pkg(); pkg != nil {
			if s, ok := specials[pkg.Path()+"."+x.Obj().Name()]; ok {
				return s
			}
		}
		if isProtoMessage(x) {
			return protoSpecial
		}
	case *types.Struct:
		if n := x.NumFields(); n >= 1 && n <= maxTupleArity {
			return tupleSpecial
		}
	}
	return nil
}

// packParts writes every part of a composite special in order.
func packParts(g *procGen, e string, s *Shape) {
	for i, part := range s.Parts {
		g.encode(sel(e, s.Names[i]), part)
	}
}

func unpackParts(g *procGen, v string, s *Shape) {
	for i, part := range s.Parts {
		g.decode(sel(v, s.Names[i]), part)
	}
}
