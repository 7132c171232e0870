package codegen

import (
	"cmp"
	"errors"
	"fmt"
	"go/token"
	"slices"
	"sync"
)

// Code identifies a kind of problem. Codes are stable across releases and are
// embedded in generated failure statements.
type Code string

const (
	// CodeInterfaceMember: a member has an interface type without the
	// sequence contract.
	CodeInterfaceMember Code = "PG0001"
	// CodeUnbuildableCollection: no strategy can rebuild a collection member
	// during decode.
	CodeUnbuildableCollection Code = "PG0002"
	// CodeMissingProcedure: a nested struct is neither opted in nor has
	// Pack and Unpack methods.
	CodeMissingProcedure Code = "PG0003"
	// CodeNotStruct: a type carrying the opt-in marker is not a struct.
	CodeNotStruct Code = "PG0004"
	// CodeNestedOptional: a pointer to a pointer.
	CodeNestedOptional Code = "PG0005"
	// CodeUnsupportedType: channels, funcs, unsafe pointers, type parameters
	// and other types without a wire form.
	CodeUnsupportedType Code = "PG0006"
)

var codeNames = map[Code]string{
	CodeInterfaceMember:       "InterfaceMember",
	CodeUnbuildableCollection: "UnbuildableCollection",
	CodeMissingProcedure:      "MissingProcedure",
	CodeNotStruct:             "NotStruct",
	CodeNestedOptional:        "NestedOptional",
	CodeUnsupportedType:       "UnsupportedType",
}

func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return string(c)
}

type Severity uint8

// SeverityError is the only severity packgen reports.
const SeverityError Severity = iota

func (s Severity) String() string {
	return "error"
}

// Problem is a positioned diagnostic produced while generating code.
type Problem struct {
	Code     Code
	Severity Severity
	Format   string
	Args     []any
	Pos      token.Position   // where the problem is, usually a member
	Related  []token.Position // e.g. the enclosing type declaration
}

func (p Problem) Message() string {
	return fmt.Sprintf(p.Format, p.Args...)
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", p.Pos, p.Severity, p.Code, p.Message())
}

// Reporter collects problems from concurrently running work items. It never
// panics and never stops a pass.
type Reporter struct {
	fset *token.FileSet

	mu       sync.Mutex
	problems []Problem
}

func NewReporter(fset *token.FileSet) *Reporter {
	return &Reporter{fset: fset}
}

// Report records a problem at pos. related positions are optional.
func (r *Reporter) Report(code Code, pos token.Pos, related []token.Pos, format string, args ...any) {
	p := Problem{
		Code:     code,
		Severity: SeverityError,
		Format:   format,
		Args:     args,
		Pos:      position(r.fset, pos),
	}
	for _, rel := range related {
		p.Related = append(p.Related, position(r.fset, rel))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems = append(r.problems, p)
}

// Problems returns the collected problems ordered by position and code.
func (r *Reporter) Problems() []Problem {
	r.mu.Lock()
	ps := slices.Clone(r.problems)
	r.mu.Unlock()

	slices.SortStableFunc(ps, func(a, b Problem) int {
		return cmp.Or(
			cmp.Compare(a.Pos.Filename, b.Pos.Filename),
			cmp.Compare(a.Pos.Line, b.Pos.Line),
			cmp.Compare(a.Pos.Column, b.Pos.Column),
			cmp.Compare(a.Code, b.Code),
			cmp.Compare(a.Message(), b.Message()),
		)
	})
	return ps
}

func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.problems)
}

// Err joins all problems into one error, or returns nil.
func (r *Reporter) Err() error {
	ps := r.Problems()
	errs := make([]error, len(ps))
	for i, p := range ps {
		errs[i] = p
	}
	return errors.Join(errs...)
}

func position(fset *token.FileSet, pos token.Pos) token.Position {
	if fset == nil || !pos.IsValid() {
		return token.Position{}
	}
	return fset.Position(pos)
}
