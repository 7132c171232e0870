package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kanengo/packgen/internal/config"
)

func TestParse(t *testing.T) {
	const input = `
[generate]
output = "codec_gen.go"
build_tags = ["integration", "linux"]
concurrency = 4
log_level = "debug"
tests = true
`
	got, err := config.Parse("packgen.toml", input)
	if err != nil {
		t.Fatal(err)
	}
	want := &config.Config{
		Output:      "codec_gen.go",
		BuildTags:   []string{"integration", "linux"},
		Concurrency: 4,
		LogLevel:    "debug",
		Tests:       true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if got.Level() != slog.LevelDebug {
		t.Errorf("Level: got %v, want debug", got.Level())
	}
}

func TestParseDefaults(t *testing.T) {
	got, err := config.Parse("packgen.toml", "[generate]\nconcurrency = 2\n")
	if err != nil {
		t.Fatal(err)
	}
	want := config.Default()
	want.Concurrency = 2
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		input string
		want  string
	}{
		{"unknown key", "[generate]\ncolour = 1\n", "unknown keys"},
		{"unknown section", "[deploy]\nx = 1\n", "unknown section"},
		{"bad output", "[generate]\noutput = \"gen.txt\"\n", "not a .go file"},
		{"test output", "[generate]\noutput = \"gen_test.go\"\n", "test file"},
		{"path output", "[generate]\noutput = \"sub/gen.go\"\n", "file name"},
		{"negative concurrency", "[generate]\nconcurrency = -1\n", "negative"},
		{"bad level", "[generate]\nlog_level = \"loud\"\n", "log level"},
		{"bad tag", "[generate]\nbuild_tags = [\"a,b\"]\n", "build tag"},
		{"syntax", "[generate\n", "packgen.toml"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := config.Parse("packgen.toml", test.input)
			if err == nil {
				t.Fatal("unexpected success")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Fatalf("error %q does not contain %q", err, test.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	got, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(config.Default(), got); diff != "" {
		t.Fatalf("missing file (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("[generate]\ntests = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Tests {
		t.Fatal("Load: tests not set")
	}
}
