package codegen

import (
	"fmt"
	"go/types"
	"sort"
	"sync"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/types/typeutil"
)

const (
	packgenPackagePath = "github.com/kanengo/packgen"
	codecPackagePath   = packgenPackagePath + "/runtime/codec"
)

// typeSet holds the per-package state shared by all work items of a package:
// the imports of the generated file and the set of opted-in types.
type typeSet struct {
	pkg *packages.Package

	mu             sync.Mutex
	imported       []importPkg
	importedByPath map[string]importPkg
	importedByName map[string]importPkg
	used           map[string]bool // by path

	optedIn optedInSet
}

// optedInSet holds the origin of every opted-in named type of every loaded
// package. It is filled before any work item runs and only read afterwards.
type optedInSet map[*types.Named]bool

// importPkg is a package imported by the generated code.
type importPkg struct {
	path  string // e.g., "github.com/kanengo/packgen/runtime/codec"
	pkg   string // e.g., "codec", "time"
	alias string // e.g., foo in `import foo "context"`
	local bool   // is this the package being generated?
}

func (i importPkg) name() string {
	if i.local {
		return ""
	} else if i.alias != "" {
		return i.alias
	}
	return i.pkg
}

func (i importPkg) qualify(member string) string {
	if i.local {
		return member
	}

	return fmt.Sprintf("%s.%s", i.name(), member)
}

func newTypeSet(pkg *packages.Package, optedIn optedInSet) *typeSet {
	return &typeSet{
		pkg:            pkg,
		imported:       []importPkg{},
		importedByPath: make(map[string]importPkg),
		importedByName: make(map[string]importPkg),
		used:           make(map[string]bool),
		optedIn:        optedIn,
	}
}

// importPackage registers path as an import of the generated file and marks
// it used. Work items call it concurrently; aliases stay deterministic because
// reserveImports registers every package a pass can reach, in sorted order,
// before any work item runs.
func (tSet *typeSet) importPackage(path, pkg string) importPkg {
	tSet.mu.Lock()
	defer tSet.mu.Unlock()

	imp := tSet.register(path, pkg)
	tSet.used[path] = true
	return imp
}

func (tSet *typeSet) register(path, pkg string) importPkg {
	newImportPkg := func(path, pkg, alias string, local bool) importPkg {
		i := importPkg{
			path:  path,
			pkg:   pkg,
			alias: alias,
			local: local,
		}

		tSet.imported = append(tSet.imported, i)
		tSet.importedByPath[i.path] = i
		tSet.importedByName[i.name()] = i

		return i
	}

	if imp, ok := tSet.importedByPath[path]; ok {
		return imp
	}

	// A name is taken by another import or by a package-level declaration
	// of the generated package.
	taken := func(name string) bool {
		if _, ok := tSet.importedByName[name]; ok {
			return true
		}
		return tSet.pkg.Types != nil && tSet.pkg.Types.Scope().Lookup(name) != nil
	}

	local := path == tSet.pkg.PkgPath
	if local || !taken(pkg) {
		return newImportPkg(path, pkg, "", local)
	}

	var alias string
	counter := 1
	for {
		alias = fmt.Sprintf("%s%d", pkg, counter)
		if !taken(alias) {
			break
		}
		counter += 1
	}

	return newImportPkg(path, pkg, alias, local)
}

// reserveImports registers, without marking them used, the packages of every
// named type reachable from ts. Packages are registered in path order.
func (tSet *typeSet) reserveImports(ts []types.Type) {
	pkgs := map[string]string{}
	var seen typeutil.Map
	var walk func(t types.Type)
	walk = func(t types.Type) {
		if seen.At(t) != nil {
			return
		}
		seen.Set(t, true)

		switch x := t.(type) {
		case *types.Alias:
			walk(types.Unalias(x))
		case *types.Named:
			if p := x.Obj().Pkg(); p != nil {
				pkgs[p.Path()] = p.Name()
			}
			for i := 0; i < x.TypeArgs().Len(); i++ {
				walk(x.TypeArgs().At(i))
			}
			walk(x.Underlying())
			if iface, ok := x.Underlying().(*types.Interface); ok {
				for i := 0; i < iface.NumMethods(); i++ {
					walk(iface.Method(i).Type())
				}
			}
			for i := 0; i < x.NumMethods(); i++ {
				walk(x.Method(i).Type())
			}
		case *types.Pointer:
			walk(x.Elem())
		case *types.Slice:
			walk(x.Elem())
		case *types.Array:
			walk(x.Elem())
		case *types.Map:
			walk(x.Key())
			walk(x.Elem())
		case *types.Struct:
			for i := 0; i < x.NumFields(); i++ {
				walk(x.Field(i).Type())
			}
		case *types.Signature:
			for i := 0; i < x.Params().Len(); i++ {
				walk(x.Params().At(i).Type())
			}
			for i := 0; i < x.Results().Len(); i++ {
				walk(x.Results().At(i).Type())
			}
		}
	}
	for _, t := range ts {
		walk(t)
	}

	paths := make([]string, 0, len(pkgs))
	for p := range pkgs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	tSet.mu.Lock()
	defer tSet.mu.Unlock()
	// Packages the generated code always refers to by name go first, so that
	// they keep their plain names.
	tSet.register(codecPackagePath, "codec")
	tSet.register("slices", "slices")
	for _, p := range paths {
		tSet.register(p, pkgs[p])
	}
}

// imports returns the used, non-local imports sorted by path.
func (tSet *typeSet) imports() []importPkg {
	tSet.mu.Lock()
	defer tSet.mu.Unlock()

	var list []importPkg
	for _, imp := range tSet.imported {
		if imp.local || !tSet.used[imp.path] {
			continue
		}
		list = append(list, imp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].path < list[j].path
	})
	return list
}

// genTypeString returns the string representation of t as it should appear
// in the generated file, importing packages as needed.
func (tSet *typeSet) genTypeString(t types.Type) string {
	qualifier := func(pkg *types.Package) string {
		if pkg == tSet.pkg.Types {
			return ""
		}
		return tSet.importPackage(pkg.Path(), pkg.Name()).name()
	}

	return types.TypeString(t, qualifier)
}

func isPackgenType(t types.Type, path, name string, n int) bool {
	named, ok := types.Unalias(t).(*types.Named)
	return ok &&
		named.Obj().Pkg() != nil &&
		named.Obj().Pkg().Path() == path &&
		named.Obj().Name() == name &&
		named.TypeArgs().Len() == n
}

// isSerializableMarker reports whether t is packgen.Serializable.
func isSerializableMarker(t types.Type) bool {
	return isPackgenType(t, packgenPackagePath, "Serializable", 0)
}

func isEncoderPtr(t types.Type) bool {
	p, ok := t.(*types.Pointer)
	return ok && isPackgenType(p.Elem(), codecPackagePath, "Encoder", 0)
}

func isDecoderPtr(t types.Type) bool {
	p, ok := t.(*types.Pointer)
	return ok && isPackgenType(p.Elem(), codecPackagePath, "Decoder", 0)
}

func isInvalid(t types.Type) bool {
	b, ok := t.(*types.Basic)
	return ok && b.Kind() == types.Invalid
}

// iterSeq returns the element types of t if t is iter.Seq[E] (one element)
// or iter.Seq2[K, V] (two elements).
func iterSeq(t types.Type) []types.Type {
	named, ok := types.Unalias(t).(*types.Named)
	if !ok || named.Obj().Pkg() == nil || named.Obj().Pkg().Path() != "iter" {
		return nil
	}
	args := named.TypeArgs()
	switch {
	case named.Obj().Name() == "Seq" && args.Len() == 1:
		return []types.Type{args.At(0)}
	case named.Obj().Name() == "Seq2" && args.Len() == 2:
		return []types.Type{args.At(0), args.At(1)}
	}
	return nil
}

// methodSig looks up an accessible method called name in the method set of
// *t (or t, if t is an interface or pointer).
func methodSig(t types.Type, name string) *types.Signature {
	recv := t
	if _, ok := t.Underlying().(*types.Interface); !ok {
		if _, ok := t.(*types.Pointer); !ok {
			recv = types.NewPointer(t)
		}
	}
	sel := types.NewMethodSet(recv).Lookup(nil, name)
	if sel == nil {
		return nil
	}
	sig, _ := sel.Type().(*types.Signature)
	return sig
}

// hasProcedurePair reports whether *t has Pack(*codec.Encoder) and
// Unpack(*codec.Decoder) methods.
func hasProcedurePair(t types.Type) bool {
	pack := methodSig(t, "Pack")
	unpack := methodSig(t, "Unpack")
	return pack != nil && unpack != nil &&
		pack.Params().Len() == 1 && isEncoderPtr(pack.Params().At(0).Type()) && pack.Results().Len() == 0 &&
		unpack.Params().Len() == 1 && isDecoderPtr(unpack.Params().At(0).Type()) && unpack.Results().Len() == 0
}

// isProtoMessage reports whether *t implements proto.Message.
func isProtoMessage(t types.Type) bool {
	if _, ok := t.Underlying().(*types.Struct); !ok {
		return false
	}
	sig := methodSig(t, "ProtoReflect")
	return sig != nil && sig.Params().Len() == 0 && sig.Results().Len() == 1
}
