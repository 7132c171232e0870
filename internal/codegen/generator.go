// Package codegen derives Pack and Unpack methods for opted-in struct types.
//
// A pass loads packages, finds the types that embed packgen.Serializable or
// carry a //packgen:serializable directive, and turns each of them into a
// work item. A work item selects the type's members, classifies each member's
// type into a Shape and emits matching encode and decode statements from
// that single Shape. Problems are reported, never thrown: a member that
// cannot be serialized is replaced by a codec.Fail statement and its
// siblings are generated as usual.
package codegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/maps"
	"golang.org/x/tools/go/packages"

	"github.com/kanengo/packgen/internal/errgroup"
	"github.com/kanengo/packgen/internal/files"
	"github.com/kanengo/packgen/internal/traceio"
	"github.com/kanengo/packgen/runtime/version"
)

const (
	// DefaultOutput is the name of the generated file in each package.
	DefaultOutput = "packgen_gen.go"

	generatedHeader = `// Code generated by "packgen generate". DO NOT EDIT.`
	tracerName      = "github.com/kanengo/packgen/internal/codegen"
)

// Options configure a generation pass.
type Options struct {
	Output      string   // generated file name; defaults to DefaultOutput
	BuildTags   []string // extra build tags used when loading packages
	Concurrency int      // work items run in parallel; defaults to GOMAXPROCS
	Tests       bool     // also generate for types declared in _test.go files
	DryRun      bool     // compute the generated files without writing them
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// testOutput is the name of the generated file for types declared in test
// files.
func (o Options) testOutput() string {
	return strings.TrimSuffix(o.Output, ".go") + "_test.go"
}

// File is a generated file.
type File struct {
	Package string   // package path
	Path    string   // file path
	Types   []string // generated types, sorted
	Source  []byte
}

// Result is the outcome of a generation pass.
type Result struct {
	PassID   string
	Files    []File
	Stale    []string // generated files left in packages with no opted-in types
	Problems []Problem
}

// workItem is one opted-in type of a package.
type workItem struct {
	pkg   *packages.Package
	named *types.Named
	pos   token.Pos
	test  bool // declared in a _test.go file

	hasPack    bool // Pack is declared on the type
	hasUnpack  bool // Unpack is declared on the type
	hasNew     bool // New<Name> is declared in the package
	newUsable  bool // New<Name>() returns *<Name>
	hasNewFrom bool // New<Name>From is declared in the package
}

func (w *workItem) name() string {
	return w.named.Obj().Name()
}

// Generate generates code for the packages matched by pkgs, loaded relative
// to dir. Problems found in the loaded types do not make Generate fail; they
// are returned in the Result and the affected members fail at runtime.
func Generate(ctx context.Context, dir string, pkgs []string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	passID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("pass id: %w", err)
	}
	logger := opts.Logger.With("pass", passID)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "packgen.Generate",
		trace.WithAttributes(traceio.Pass(passID), traceio.PatternsKey.StringSlice(pkgs)))
	defer span.End()

	fset := token.NewFileSet()
	cfg := &packages.Config{
		Context:    ctx,
		Mode:       packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedImports | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:        dir,
		BuildFlags: buildFlags(opts.BuildTags),
		Fset:       fset,
		ParseFile:  parseFile(opts),
		Tests:      opts.Tests,
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	}
	loaded, err := packages.Load(cfg, pkgs...)
	if err != nil {
		return nil, fmt.Errorf("packages.Load: %w", err)
	}
	loaded = selectPackages(loaded)
	for _, pkg := range loaded {
		for _, e := range pkg.Errors {
			// The generated file is blanked while loading, so references to
			// previously generated code do not resolve. Such errors are
			// expected and do not stop the pass.
			logger.Debug("package error", "package", pkg.PkgPath, "err", e)
		}
	}

	rep := NewReporter(fset)
	out, stale, err := generatePackages(ctx, fset, loaded, rep, opts, logger)
	res := &Result{PassID: passID, Files: out, Stale: stale, Problems: rep.Problems()}
	span.SetAttributes(
		traceio.FilesKey.Int(len(out)),
		traceio.ProblemsKey.Int(len(res.Problems)),
	)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	logger.Info("generation done", "files", len(out), "stale", len(stale), "problems", len(res.Problems))
	return res, nil
}

func buildFlags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return []string{"-tags=" + strings.Join(tags, ",")}
}

// parseFile parses Go files for packages.Load. Previously generated files
// are reduced to their package clause, so that stale generated code neither
// breaks loading nor masks which methods the user declared.
func parseFile(opts Options) func(*token.FileSet, string, []byte) (*ast.File, error) {
	return func(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
		switch filepath.Base(filename) {
		case opts.Output, opts.testOutput():
			return parser.ParseFile(fset, filename, src, parser.PackageClauseOnly)
		}
		return parser.ParseFile(fset, filename, src, parser.ParseComments|parser.DeclarationErrors)
	}
}

// selectPackages drops test binaries and external test packages, and keeps
// one variant per package path: the one with the most files, which is the
// test variant when tests are loaded.
func selectPackages(loaded []*packages.Package) []*packages.Package {
	byPath := map[string]*packages.Package{}
	for _, pkg := range loaded {
		if strings.HasSuffix(pkg.PkgPath, ".test") || strings.HasSuffix(pkg.Name, "_test") {
			continue
		}
		if prev, ok := byPath[pkg.PkgPath]; !ok || len(pkg.Syntax) > len(prev.Syntax) {
			byPath[pkg.PkgPath] = pkg
		}
	}
	paths := maps.Keys(byPath)
	sort.Strings(paths)
	pkgs := make([]*packages.Package, len(paths))
	for i, p := range paths {
		pkgs[i] = byPath[p]
	}
	return pkgs
}

// generatePackages runs a pass over type-checked packages. It returns the
// generated files and the stale generated files it found, which are removed
// unless opts.DryRun is set.
func generatePackages(ctx context.Context, fset *token.FileSet, pkgs []*packages.Package, rep *Reporter, opts Options, logger *slog.Logger) ([]File, []string, error) {
	opts = opts.withDefaults()

	// Discover every work item first: nested types in any loaded package are
	// recognized through the shared opted-in set.
	optedIn := optedInSet{}
	notes := annotations{}
	itemsByPkg := make([][]*workItem, len(pkgs))
	for i, pkg := range pkgs {
		items := findSerializables(fset, pkg, notes, rep, opts, logger)
		for _, item := range items {
			optedIn[item.named] = true
		}
		itemsByPkg[i] = items
	}

	var out []File
	var stale []string
	var errs []error
	for i, pkg := range pkgs {
		var regular, tests []*workItem
		for _, item := range itemsByPkg[i] {
			if item.test {
				tests = append(tests, item)
			} else {
				regular = append(regular, item)
			}
		}
		for _, group := range []struct {
			name  string
			items []*workItem
		}{
			{opts.Output, regular},
			{opts.testOutput(), tests},
		} {
			g := &generator{
				pkg:     pkg,
				fset:    fset,
				tSet:    newTypeSet(pkg, optedIn),
				notes:   notes,
				rep:     rep,
				opts:    opts,
				logger:  logger.With("package", pkg.PkgPath),
				items:   group.items,
				outName: group.name,
			}
			f, old, err := g.generate(ctx)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if f != nil {
				out = append(out, *f)
			}
			if old != "" {
				stale = append(stale, old)
			}
		}
	}
	return out, stale, errors.Join(errs...)
}

// findSerializables returns the opted-in types declared in pkg and records
// the directives of pkg's fields and methods in notes.
func findSerializables(fset *token.FileSet, pkg *packages.Package, notes annotations, rep *Reporter, opts Options, logger *slog.Logger) []*workItem {
	if pkg.Types == nil || pkg.TypesInfo == nil {
		return nil
	}

	var items []*workItem
	for _, file := range pkg.Syntax {
		filename := fset.Position(file.Package).Filename
		test := strings.HasSuffix(filename, "_test.go")
		if test && !opts.Tests {
			continue
		}
		collectAnnotations(pkg, file, notes)

		for _, decl := range file.Decls {
			switch decl := decl.(type) {
			case *ast.GenDecl:
				if decl.Tok != token.TYPE {
					continue
				}
				for _, spec := range decl.Specs {
					typeSpec, ok := spec.(*ast.TypeSpec)
					if !ok {
						panic(errorf(fset, spec.Pos(), "type declaration has non-TypeSpec spec: %v", spec))
					}
					item, ok := newWorkItem(pkg, decl, typeSpec, rep)
					if !ok {
						continue
					}
					item.test = test
					items = append(items, item)
				}

			case *ast.FuncDecl:
				// Types declared inside functions have no package scope to
				// generate methods in.
				if decl.Body == nil {
					continue
				}
				ast.Inspect(decl.Body, func(n ast.Node) bool {
					d, ok := n.(*ast.GenDecl)
					if !ok || d.Tok != token.TYPE {
						return true
					}
					for _, spec := range d.Specs {
						if ts, ok := spec.(*ast.TypeSpec); ok && optsIn(pkg, d, ts) {
							logger.Debug("skipping local type", "type", ts.Name.Name, "pos", fset.Position(ts.Pos()).String())
						}
					}
					return true
				})
			}
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].name() < items[j].name()
	})
	return items
}

// optsIn reports whether the type declared by spec embeds
// packgen.Serializable or carries the serializable directive.
func optsIn(pkg *packages.Package, decl *ast.GenDecl, spec *ast.TypeSpec) bool {
	if hasDirective(spec.Doc, directiveSerializable) || (len(decl.Specs) == 1 && hasDirective(decl.Doc, directiveSerializable)) {
		return true
	}
	st, ok := spec.Type.(*ast.StructType)
	if !ok {
		return false
	}
	for _, f := range st.Fields.List {
		if len(f.Names) != 0 {
			continue
		}
		if tv, ok := pkg.TypesInfo.Types[f.Type]; ok && isSerializableMarker(tv.Type) {
			return true
		}
	}
	return false
}

func newWorkItem(pkg *packages.Package, decl *ast.GenDecl, spec *ast.TypeSpec, rep *Reporter) (*workItem, bool) {
	if spec.Assign.IsValid() {
		// Aliases are generated for through the type they denote.
		return nil, false
	}
	if !optsIn(pkg, decl, spec) {
		return nil, false
	}

	def, ok := pkg.TypesInfo.Defs[spec.Name]
	if !ok || def == nil {
		return nil, false
	}
	named, ok := def.Type().(*types.Named)
	if !ok {
		return nil, false
	}
	if _, ok := named.Underlying().(*types.Struct); !ok {
		rep.Report(CodeNotStruct, spec.Pos(), nil,
			"%s is marked serializable but is not a struct", named.Obj().Name())
		return nil, false
	}

	item := &workItem{pkg: pkg, named: named, pos: spec.Pos()}
	for i := 0; i < named.NumMethods(); i++ {
		switch named.Method(i).Name() {
		case "Pack":
			item.hasPack = true
		case "Unpack":
			item.hasUnpack = true
		}
	}

	scope := pkg.Types.Scope()
	if obj := scope.Lookup("New" + item.name()); obj != nil {
		item.hasNew = true
		if fn, ok := obj.(*types.Func); ok {
			sig := fn.Type().(*types.Signature)
			item.newUsable = sig.Params().Len() == 0 && sig.Results().Len() == 1 &&
				sig.TypeParams().Len() == named.TypeParams().Len() &&
				isPointerToNamed(sig.Results().At(0).Type(), named)
		}
	}
	item.hasNewFrom = scope.Lookup("New"+item.name()+"From") != nil
	return item, true
}

func isPointerToNamed(t types.Type, named *types.Named) bool {
	p, ok := t.(*types.Pointer)
	if !ok {
		return false
	}
	n, ok := types.Unalias(p.Elem()).(*types.Named)
	return ok && n.Origin() == named.Origin()
}

// collectAnnotations records the ignore and include directives of the
// fields and methods declared in file.
func collectAnnotations(pkg *packages.Package, file *ast.File, notes annotations) {
	record := func(ident *ast.Ident, groups ...*ast.CommentGroup) {
		var d directives
		for _, g := range groups {
			d.ignore = d.ignore || hasDirective(g, directiveIgnore)
			d.include = d.include || hasDirective(g, directiveInclude)
		}
		if !d.ignore && !d.include {
			return
		}
		if obj := pkg.TypesInfo.Defs[ident]; obj != nil {
			notes[obj] = d
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.StructType:
			for _, f := range n.Fields.List {
				for _, name := range f.Names {
					record(name, f.Doc, f.Comment)
				}
				if len(f.Names) == 0 {
					if ident := embeddedIdent(f.Type); ident != nil {
						record(ident, f.Doc, f.Comment)
					}
				}
			}
		case *ast.FuncDecl:
			if n.Recv != nil {
				record(n.Name, n.Doc)
			}
		}
		return true
	})
}

// embeddedIdent returns the identifier naming an embedded field.
func embeddedIdent(expr ast.Expr) *ast.Ident {
	switch x := expr.(type) {
	case *ast.Ident:
		return x
	case *ast.StarExpr:
		return embeddedIdent(x.X)
	case *ast.SelectorExpr:
		return x.Sel
	case *ast.IndexExpr:
		return embeddedIdent(x.X)
	case *ast.IndexListExpr:
		return embeddedIdent(x.X)
	}
	return nil
}

func hasDirective(g *ast.CommentGroup, directive string) bool {
	if g == nil {
		return false
	}
	for _, c := range g.List {
		if strings.TrimSpace(c.Text) == directive {
			return true
		}
	}
	return false
}

// generator emits one generated file: the work items of one package that
// share an output file.
type generator struct {
	pkg     *packages.Package
	fset    *token.FileSet
	tSet    *typeSet
	notes   annotations
	rep     *Reporter
	opts    Options
	logger  *slog.Logger
	items   []*workItem
	outName string
}

// generate emits the file of g. When g has no work items it returns the
// path of a stale generated file instead, if there is one.
func (g *generator) generate(ctx context.Context) (*File, string, error) {
	filename := filepath.Join(g.pkgDir(), g.outName)
	if len(g.items) == 0 {
		return g.removeStale(filename)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "packgen.package",
		trace.WithAttributes(
			traceio.Package(g.pkg.PkgPath),
			traceio.ItemsKey.Int(len(g.items)),
		))
	defer span.End()

	// Reserve every import the items can reach before they run, so that
	// aliases do not depend on scheduling.
	var reachable []types.Type
	for _, item := range g.items {
		reachable = append(reachable, item.named)
	}
	g.tSet.reserveImports(reachable)

	bodies := make([]bytes.Buffer, len(g.items))
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(g.opts.Concurrency)
	for i, item := range g.items {
		group.Go(func() error {
			_, span := otel.Tracer(tracerName).Start(ctx, "packgen.item",
				trace.WithAttributes(traceio.Type(item.name())))
			defer span.End()

			p := func(format string, args ...any) {
				_, _ = fmt.Fprintln(&bodies[i], fmt.Sprintf(format, args...))
			}
			g.generateItem(p, item)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, "", err
	}

	var src bytes.Buffer
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintln(&src, fmt.Sprintf(format, args...))
	}
	g.generateHeader(p)
	for i := range bodies {
		_, _ = src.Write(bodies[i].Bytes())
	}

	formatted, err := format.Source(src.Bytes())
	if err != nil {
		return nil, "", fmt.Errorf("format.Source %s: %w", filename, err)
	}

	f := &File{Package: g.pkg.PkgPath, Path: filename, Source: formatted}
	for _, item := range g.items {
		f.Types = append(f.Types, item.name())
	}
	if g.opts.DryRun {
		return f, "", nil
	}

	dst := files.NewWriter(filename)
	defer dst.Cleanup()
	if _, err := dst.Write(formatted); err != nil {
		return nil, "", err
	}
	if err := dst.Close(); err != nil {
		return nil, "", err
	}
	g.logger.Debug("wrote file", "file", filename, "types", len(f.Types))
	return f, "", nil
}

// removeStale deletes a previously generated file of a package that no
// longer has any work items, and returns its path. Hand-written files of the
// same name are left alone. In a dry run the file is only reported.
func (g *generator) removeStale(filename string) (*File, string, error) {
	if len(g.pkg.Syntax) == 0 {
		return nil, "", nil
	}
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, "", nil
	}
	if !bytes.HasPrefix(src, []byte(generatedHeader)) {
		return nil, "", nil
	}
	if g.opts.DryRun {
		return nil, filename, nil
	}
	g.logger.Debug("removing stale file", "file", filename)
	return nil, filename, os.Remove(filename)
}

func (g *generator) generateHeader(p printFn) {
	p(generatedHeader)
	p(`// packgen %s`, version.GeneratorVersion)
	p(``)
	p(`package %s`, g.pkg.Name)
	p(``)
	p(`import (`)
	for _, imp := range g.tSet.imports() {
		if imp.alias == "" {
			p(`	%s`, strconv.Quote(imp.path))
		} else {
			p(`	%s %s`, imp.alias, strconv.Quote(imp.path))
		}
	}
	p(`)`)
}

// generateItem emits the declarations of one work item.
func (g *generator) generateItem(p printFn, item *workItem) {
	name := item.name()
	codec := g.tSet.importPackage(codecPackagePath, "codec")
	decl, use := g.typeParams(item.named)
	recv := name + use

	members := selectMembers(item.named, g.pkg.Types, g.notes)
	shapes := make([]*Shape, len(members))
	packFails := make([]*Shape, len(members))
	unpackFails := make([]*Shape, len(members))
	cls := newClassifier(g.tSet.optedIn)
	if !item.hasPack || !item.hasUnpack {
		for i, m := range members {
			shapes[i] = cls.classify(m.typ)
			if prob := shapes[i].problem(); prob != nil {
				g.rep.Report(prob.Code, m.pos, []token.Pos{item.pos}, "%s.%s: %s", name, m.name, prob.Reason)
				packFails[i], unpackFails[i] = prob, prob
				continue
			}
			if item.hasUnpack {
				continue
			}
			if u := unbuildable(shapes[i], g.pkg.Types); u != nil {
				reason := fmt.Sprintf("cannot rebuild %s: it has no Add, Append, Push or Insert method, no key/value insertion and no constructor taking a slice", typeString(u.Type))
				g.rep.Report(CodeUnbuildableCollection, m.pos, []token.Pos{item.pos}, "%s.%s: %s", name, m.name, reason)
				unpackFails[i] = &Shape{Kind: KindUnsupported, Type: u.Type, Code: CodeUnbuildableCollection, Reason: reason}
			}
		}
	}

	p(``)
	if decl == "" {
		p(`var _ %s = (*%s)(nil)`, codec.qualify("AutoPack"), recv)
		p(``)
		p(`func init() { %s[*%s]() }`, codec.qualify("Register"), recv)
	}

	if !item.hasNew {
		p(``)
		p(`// New%s returns a new, empty %s.`, name, name)
		p(`func New%s%s() *%s {`, name, decl, recv)
		p(`	return &%s{}`, recv)
		p(`}`)
	}

	if !item.hasNewFrom {
		p(``)
		p(`// New%sFrom returns a new %s unpacked from dec.`, name, name)
		p(`func New%sFrom%s(dec *%s) *%s {`, name, decl, codec.qualify("Decoder"), recv)
		if !item.hasNew || item.newUsable {
			p(`	x := New%s%s()`, name, use)
		} else {
			p(`	x := &%s{}`, recv)
		}
		p(`	x.Unpack(dec)`)
		p(`	return x`)
		p(`}`)
	}

	if !item.hasPack {
		gen := newProcGen(g.tSet, p)
		p(``)
		p(`func (x *%s) Pack(enc *%s) {`, recv, codec.qualify("Encoder"))
		p(`	if x == nil {`)
		p(`		panic(%q)`, name+".Pack: nil receiver")
		p(`	}`)
		for i, m := range members {
			if f := packFails[i]; f != nil {
				gen.fail(name, m.name, f.Code, f.Reason)
				continue
			}
			gen.packMember(m, shapes[i])
		}
		p(`}`)
	}

	if !item.hasUnpack {
		gen := newProcGen(g.tSet, p)
		p(``)
		p(`func (x *%s) Unpack(dec *%s) {`, recv, codec.qualify("Decoder"))
		p(`	if x == nil {`)
		p(`		panic(%q)`, name+".Unpack: nil receiver")
		p(`	}`)
		for i, m := range members {
			if f := unpackFails[i]; f != nil {
				gen.fail(name, m.name, f.Code, f.Reason)
				continue
			}
			gen.unpackMember(m, shapes[i])
		}
		p(`}`)
	}

	g.logger.Debug("generated type", "type", name, "members", len(members))
}

// typeParams returns the type parameter list of t as declared, e.g.
// "[K comparable, V any]", and as used, e.g. "[K, V]".
func (g *generator) typeParams(t *types.Named) (decl, use string) {
	tparams := t.TypeParams()
	if tparams.Len() == 0 {
		return "", ""
	}
	var decls, uses []string
	for i := 0; i < tparams.Len(); i++ {
		tp := tparams.At(i)
		decls = append(decls, tp.Obj().Name()+" "+g.tSet.genTypeString(tp.Constraint()))
		uses = append(uses, tp.Obj().Name())
	}
	return "[" + strings.Join(decls, ", ") + "]", "[" + strings.Join(uses, ", ") + "]"
}

func (g *generator) pkgDir() string {
	if len(g.pkg.Syntax) == 0 {
		if len(g.pkg.GoFiles) > 0 {
			return filepath.Dir(g.pkg.GoFiles[0])
		}
		return "."
	}
	return filepath.Dir(g.fset.Position(g.pkg.Syntax[0].Package).Filename)
}

// errorf returns an error prefixed by the position of pos, relative to the
// working directory when possible.
func errorf(fset *token.FileSet, pos token.Pos, format string, args ...any) error {
	position := fset.Position(pos)
	if cwd, err := filepath.Abs("."); err == nil {
		if filename, err := filepath.Rel(cwd, position.Filename); err == nil {
			position.Filename = filename
		}
	}

	prefix := position.String()
	return fmt.Errorf("%s: %w", prefix, fmt.Errorf(format, args...))
}
