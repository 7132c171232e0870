package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kanengo/packgen/internal/codegen"
	"github.com/kanengo/packgen/internal/config"
	"github.com/kanengo/packgen/internal/tool"
)

func TestApplyFlags(t *testing.T) {
	cmd := generateCommand("generate", "", "", false)
	if err := cmd.Flags.Parse([]string{"--tags=a,b", "-j", "3", "--log-level=debug"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Output = "custom_gen.go"
	cfg.Tests = true
	var f generateFlags
	f.tags = []string{"a", "b"}
	f.concurrency = 3
	f.logLevel = "debug"
	applyFlags(cmd.Flags, &f, cfg)

	want := config.Default()
	want.Output = "custom_gen.go"
	want.Tests = true
	want.BuildTags = []string{"a", "b"}
	want.Concurrency = 3
	want.LogLevel = "debug"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestCheckHasNoDryRunFlag(t *testing.T) {
	if generateCommand("check", "", "", true).Flags.Lookup("dry-run") != nil {
		t.Errorf("check accepts --dry-run")
	}
	if generateCommand("generate", "", "", false).Flags.Lookup("dry-run") == nil {
		t.Errorf("generate lacks --dry-run")
	}
}

func TestRelative(t *testing.T) {
	cwd, err := filepath.Abs(".")
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		in, want string
	}{
		{filepath.Join(cwd, "item.go") + ":3:7", "item.go:3:7"},
		{"item.go:3:7", "item.go:3:7"},
		{filepath.Join(filepath.Dir(cwd), "other", "x.go"), filepath.Join(filepath.Dir(cwd), "other", "x.go")},
	} {
		if got := relative(test.in); got != test.want {
			t.Errorf("relative(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestReportCheck(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "a", "packgen_gen.go")
	outdated := filepath.Join(dir, "b", "packgen_gen.go")
	leftover := filepath.Join(dir, "c", "packgen_gen.go")
	for path, src := range map[string]string{current: "package a\n", outdated: "package b\n"} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res := &codegen.Result{
		Files: []codegen.File{
			{Path: current, Types: []string{"A"}, Source: []byte("package a\n")},
			{Path: outdated, Types: []string{"B"}, Source: []byte("package b\n\n// new\n")},
		},
		Stale: []string{leftover},
	}

	for _, test := range []struct {
		name    string
		check   bool
		wantErr bool
		want    []string
	}{
		{"check", true, true, []string{
			outdated + ": out of date; run packgen generate",
			leftover + ": no longer generated; run packgen generate",
		}},
		{"dry run", false, false, nil},
	} {
		t.Run(test.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := report(res, true, test.check, &stdout, &stderr)
			var exit *tool.ExitError
			if got := errors.As(err, &exit); got != test.wantErr {
				t.Errorf("report() = %v, want exit error %v", err, test.wantErr)
			}
			var lines []string
			if s := strings.TrimSpace(stderr.String()); s != "" {
				lines = strings.Split(s, "\n")
			}
			if diff := cmp.Diff(test.want, lines); diff != "" {
				t.Errorf("stderr (-want +got):\n%s", diff)
			}
			if !strings.Contains(stdout.String(), "generated 2 files") {
				t.Errorf("summary = %q", stdout.String())
			}
		})
	}
}
