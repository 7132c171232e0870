// Packgen generates binary Pack and Unpack methods for Go structs.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kanengo/packgen/internal/codegen"
	"github.com/kanengo/packgen/internal/config"
	"github.com/kanengo/packgen/internal/tool"
	"github.com/kanengo/packgen/internal/traceio"
	"github.com/kanengo/packgen/runtime/logging"
	"github.com/kanengo/packgen/runtime/version"
)

//go:generate go install

const generateHelp = `Usage: packgen generate [flags] [packages]

Generate writes a packgen_gen.go file into every listed package (default ".")
that declares struct types embedding packgen.Serializable or marked with a
//packgen:serializable directive. Flags override packgen.toml.

Problems are printed as file:line:col: code: message. Generation still
writes the files, with the affected members failing at runtime, and exits
with status 1.

Flags:`

const checkHelp = `Usage: packgen check [flags] [packages]

Check runs generation without writing files and reports problems and
generated files that are out of date. It exits with status 1 if there is
anything to report.

Flags:`

const versionHelp = `Usage: packgen version

Version prints the generator version.`

func main() {
	commands := map[string]*tool.Command{
		"generate": generateCommand("generate", "generate Pack and Unpack methods", generateHelp, false),
		"check":    generateCommand("check", "report problems and out of date generated files", checkHelp, true),
		"version": {
			Name:        "version",
			Description: "print the generator version",
			Help:        versionHelp,
			Fn: func(context.Context, []string) error {
				fmt.Println("packgen", version.GeneratorVersion)
				return nil
			},
		},
	}
	os.Exit(tool.Run(context.Background(), "packgen", commands, os.Args[1:], os.Stderr))
}

type generateFlags struct {
	output      string
	tags        []string
	concurrency int
	tests       bool
	logLevel    string
	trace       string
	dryRun      bool
}

func generateCommand(name, description, help string, check bool) *tool.Command {
	var f generateFlags
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVarP(&f.output, "output", "o", "", "generated file name (default packgen_gen.go)")
	flags.StringSliceVar(&f.tags, "tags", nil, "comma-separated build tags used when loading packages")
	flags.IntVarP(&f.concurrency, "concurrency", "j", 0, "number of types generated in parallel (default GOMAXPROCS)")
	flags.BoolVar(&f.tests, "tests", false, "also generate for types declared in _test.go files")
	flags.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&f.trace, "trace", "", "write the spans of the pass to this file as JSON lines")
	if !check {
		flags.BoolVarP(&f.dryRun, "dry-run", "n", false, "report problems without writing files")
	}

	return &tool.Command{
		Name:        name,
		Description: description,
		Help:        help + "\n" + flags.FlagUsages(),
		Flags:       flags,
		Fn: func(ctx context.Context, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			applyFlags(flags, &f, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if f.trace != "" {
				shutdown, err := installTracer(f.trace)
				if err != nil {
					return err
				}
				defer shutdown()
			}
			return runGenerate(ctx, name, cfg, args, f.dryRun || check, check, os.Stdout, os.Stderr)
		},
	}
}

// installTracer records spans into path until the returned function is
// called.
func installTracer(path string) (func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace file: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceio.NewWriter(file)))
	otel.SetTracerProvider(tp)
	return func() {
		_ = tp.Shutdown(context.Background())
		_ = file.Close()
	}, nil
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(flags *pflag.FlagSet, f *generateFlags, cfg *config.Config) {
	if flags.Changed("output") {
		cfg.Output = f.output
	}
	if flags.Changed("tags") {
		cfg.BuildTags = f.tags
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if flags.Changed("tests") {
		cfg.Tests = f.tests
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}

func runGenerate(ctx context.Context, name string, cfg *config.Config, pkgs []string, dryRun, check bool, stdout, stderr io.Writer) error {
	if len(pkgs) == 0 {
		pkgs = []string{"."}
	}
	logger := slog.New(logging.NewLogHandler(stderr, logging.Options{Component: name}, cfg.Level()))

	res, err := codegen.Generate(ctx, ".", pkgs, codegen.Options{
		Output:      cfg.Output,
		BuildTags:   cfg.BuildTags,
		Concurrency: cfg.Concurrency,
		Tests:       cfg.Tests,
		DryRun:      dryRun,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	return report(res, dryRun, check, stdout, stderr)
}

// report prints the problems and summary of res. With check set, generated
// files that differ from disk and leftover generated files are reported as
// out of date. It returns an ExitError if anything was reported.
func report(res *codegen.Result, dryRun, check bool, stdout, stderr io.Writer) error {
	for _, p := range res.Problems {
		_, _ = fmt.Fprintf(stderr, "%s: %s: %s\n", relative(p.Pos.String()), p.Code, p.Message())
	}

	var size uint64
	var types int
	var stale []string
	for _, f := range res.Files {
		size += uint64(len(f.Source))
		types += len(f.Types)
		if check {
			if old, err := os.ReadFile(f.Path); err != nil || !bytes.Equal(old, f.Source) {
				stale = append(stale, f.Path)
			}
		}
	}
	for _, path := range stale {
		_, _ = fmt.Fprintf(stderr, "%s: out of date; run packgen generate\n", relative(path))
	}
	var leftover []string
	if check {
		// Generated files of packages without opted-in types.
		leftover = res.Stale
	}
	for _, path := range leftover {
		_, _ = fmt.Fprintf(stderr, "%s: no longer generated; run packgen generate\n", relative(path))
	}

	verb := "wrote"
	if dryRun {
		verb = "generated"
	}
	_, _ = fmt.Fprintf(stdout, "packgen: %s %d files (%s) for %d types, %d problems\n",
		verb, len(res.Files), humanize.Bytes(size), types, len(res.Problems))

	if len(res.Problems) > 0 || len(stale) > 0 || len(leftover) > 0 {
		return &tool.ExitError{Code: 1}
	}
	return nil
}

// relative rewrites a path, or a path prefixed position, relative to the
// working directory when possible.
func relative(pos string) string {
	cwd, err := filepath.Abs(".")
	if err != nil || !filepath.IsAbs(pos) {
		return pos
	}
	if rel, err := filepath.Rel(cwd, pos); err == nil && !startsWithDotDot(rel) {
		return rel
	}
	return pos
}

func startsWithDotDot(path string) bool {
	return path == ".." || len(path) > 2 && path[:3] == ".."+string(filepath.Separator)
}
