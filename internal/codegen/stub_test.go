package codegen

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const testPkgPath = "example.com/shop"

// stubSources are minimal versions of the packages that test sources and
// generated code import. They keep the tests independent of the go command.
var stubSources = map[string]string{
	"time": `package time

type Time struct {
	wall uint64
	ext  int64
}

type Duration int64

const (
	Nanosecond Duration = 1
	Second              = 1000000000 * Nanosecond
)
`,
	"iter": `package iter

type Seq[V any] func(yield func(V) bool)

type Seq2[K, V any] func(yield func(K, V) bool)
`,
	"slices": `package slices

import "iter"

func Values[Slice ~[]E, E any](s Slice) iter.Seq[E] {
	return func(yield func(E) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}
`,
	packgenPackagePath: `package packgen

type Serializable struct{}
`,
	codecPackagePath: codecStub(),
}

// codecStub declares the codec API generated code calls, with empty bodies.
func codecStub() string {
	var b strings.Builder
	b.WriteString(`package codec

import "time"

type Encoder struct{ buf []byte }

type Decoder struct{ buf []byte }

type Packer interface{ Pack(enc *Encoder) }

type Unpacker interface{ Unpack(dec *Decoder) }

type AutoPack interface {
	Packer
	Unpacker
}

type Pair[K, V any] struct {
	Key   K
	Value V
}

func Register[T AutoPack]() {}

func Fail(typ, member, code, message string) {}

func (*Encoder) Len(int)                 {}
func (*Encoder) Time(time.Time)          {}
func (*Encoder) Duration(time.Duration)  {}
func (*Decoder) Len() int                { return 0 }
func (*Decoder) FixedLen(int)            {}
func (*Decoder) Time() (t time.Time)     { return }
func (*Decoder) Duration() time.Duration { return 0 }
`)
	for i := range primNames {
		p := Prim(i)
		fmt.Fprintf(&b, "func (*Encoder) %s(%s) {}\n", p, p.goType())
		fmt.Fprintf(&b, "func (*Decoder) %s() (v %s) { return }\n", p, p.goType())
	}
	return b.String()
}

// stubImporter type-checks stubSources on demand.
type stubImporter struct {
	fset *token.FileSet
	pkgs map[string]*types.Package
}

func newStubImporter(fset *token.FileSet) *stubImporter {
	return &stubImporter{fset: fset, pkgs: map[string]*types.Package{}}
}

func (s *stubImporter) Import(path string) (*types.Package, error) {
	if pkg, ok := s.pkgs[path]; ok {
		return pkg, nil
	}
	src, ok := stubSources[path]
	if !ok {
		return nil, fmt.Errorf("no stub for package %q", path)
	}
	f, err := parser.ParseFile(s.fset, path+"/stub.go", src, 0)
	if err != nil {
		return nil, err
	}
	conf := types.Config{Importer: s, GoVersion: "go1.23"}
	pkg, err := conf.Check(path, s.fset, []*ast.File{f}, nil)
	if err != nil {
		return nil, fmt.Errorf("stub %s: %w", path, err)
	}
	s.pkgs[path] = pkg
	return pkg, nil
}

// loadPackage type-checks files, keyed by file name, as package
// example.com/shop in a temporary directory.
func loadPackage(t *testing.T, files map[string]string) (*token.FileSet, *packages.Package) {
	t.Helper()
	dir := t.TempDir()
	fset := token.NewFileSet()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var syntax []*ast.File
	var goFiles []string
	for _, name := range names {
		filename := filepath.Join(dir, name)
		f, err := parser.ParseFile(fset, filename, files[name], parser.ParseComments)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		syntax = append(syntax, f)
		goFiles = append(goFiles, filename)
	}

	info := &types.Info{
		Types:      map[ast.Expr]types.TypeAndValue{},
		Defs:       map[*ast.Ident]types.Object{},
		Uses:       map[*ast.Ident]types.Object{},
		Implicits:  map[ast.Node]types.Object{},
		Selections: map[*ast.SelectorExpr]*types.Selection{},
	}
	conf := types.Config{Importer: newStubImporter(fset), GoVersion: "go1.23"}
	tpkg, err := conf.Check(testPkgPath, fset, syntax, info)
	if err != nil {
		t.Fatalf("type-check: %v", err)
	}

	return fset, &packages.Package{
		ID:        testPkgPath,
		Name:      tpkg.Name(),
		PkgPath:   testPkgPath,
		GoFiles:   goFiles,
		Syntax:    syntax,
		Types:     tpkg,
		TypesInfo: info,
		Fset:      fset,
	}
}

// generateFiles runs a dry-run pass over files and returns the generated
// sources keyed by base file name, and the reported problems.
func generateFiles(t *testing.T, opts Options, files map[string]string) (map[string]string, []Problem) {
	t.Helper()
	fset, pkg := loadPackage(t, files)
	opts.DryRun = true
	rep := NewReporter(fset)
	out, _, err := generatePackages(context.Background(), fset, []*packages.Package{pkg}, rep, opts, opts.withDefaults().Logger)
	if err != nil {
		t.Fatalf("generatePackages: %v", err)
	}
	got := map[string]string{}
	for _, f := range out {
		got[filepath.Base(f.Path)] = string(f.Source)
	}
	return got, rep.Problems()
}

// typeCheckGenerated type-checks files together with a generated file.
func typeCheckGenerated(t *testing.T, files map[string]string, generated string) {
	t.Helper()
	fset := token.NewFileSet()
	var syntax []*ast.File
	for name, src := range files {
		f, err := parser.ParseFile(fset, name, src, parser.ParseComments)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		syntax = append(syntax, f)
	}
	f, err := parser.ParseFile(fset, DefaultOutput, generated, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse generated code: %v\n%s", err, generated)
	}
	syntax = append(syntax, f)

	conf := types.Config{Importer: newStubImporter(fset), GoVersion: "go1.23"}
	if _, err := conf.Check(testPkgPath, fset, syntax, nil); err != nil {
		t.Fatalf("generated code does not type-check: %v\n%s", err, generated)
	}
}

// lookupType returns the type of the package-level object name.
func lookupType(t *testing.T, pkg *packages.Package, name string) types.Type {
	t.Helper()
	obj := pkg.Types.Scope().Lookup(name)
	if obj == nil {
		t.Fatalf("%s not found", name)
	}
	return obj.Type()
}

// assertInOrder fails unless src contains every line of want, in order.
func assertInOrder(t *testing.T, src string, want ...string) {
	t.Helper()
	rest := src
	for _, w := range want {
		i := strings.Index(rest, w)
		if i < 0 {
			t.Fatalf("missing %q (in order) in:\n%s", w, src)
		}
		rest = rest[i+len(w):]
	}
}
