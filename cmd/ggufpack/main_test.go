package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/ggufpack/pkg/gguf"
)

func TestDefaultOutputPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		manifest, dir, want string
	}{
		{"models/rwkv.toml", "", filepath.Join("models", "rwkv.gguf")},
		{"models/rwkv.yaml", "/out", filepath.Join("/out", "rwkv.gguf")},
		{"pack.json", "", "pack.gguf"},
		{"noext", "", "noext.gguf"},
	}
	for _, tc := range tests {
		if got := defaultOutputPath(tc.manifest, tc.dir); got != tc.want {
			t.Errorf("defaultOutputPath(%q, %q) = %q, want %q", tc.manifest, tc.dir, got, tc.want)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "source_root: /models\noutput_dir: /out\nlog_level: debug\nlog_format: json\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := loadConfigFile(path)
	want := Config{SourceRoot: "/models", OutputDir: "/out", LogLevel: "debug", LogFormat: "json"}
	if cfg != want {
		t.Fatalf("loadConfigFile() = %+v, want %+v", cfg, want)
	}

	if cfg := loadConfigFile(filepath.Join(dir, "missing.yaml")); cfg != (Config{}) {
		t.Fatalf("missing file: got %+v, want zero Config", cfg)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("source_root: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if cfg := loadConfigFile(bad); cfg != (Config{}) {
		t.Fatalf("malformed file: got %+v, want zero Config", cfg)
	}
}

func TestBuildReport(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tiny.gguf")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	h := &gguf.Header{
		Metadata: []gguf.MetadataEntry{
			{Key: "general.name", Value: gguf.Str("tiny")},
			{Key: "tokenizer.ggml.token_type", Value: gguf.Array[gguf.Uint32]{3, 1, 1}},
		},
		Tensors: []gguf.TensorInfo{
			{Name: "w", Type: gguf.TensorF16, Dimensions: gguf.Dimensions{2, 3}},
		},
	}
	w := gguf.NewWriter(out)
	if err := w.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(make([]byte, 12)); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := gguf.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	r := buildReport(f, 2)
	if r.Version != gguf.Version || len(r.Metadata) != 2 || len(r.Tensors) != 1 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.Metadata[0].Value != `"tiny"` {
		t.Errorf("general.name = %q", r.Metadata[0].Value)
	}
	if got := r.Tensors[0]; got.Bytes != 12 || formatDims(got.Dimensions) != "[2x3]" || got.Type != "F16" {
		t.Errorf("tensor = %+v", got)
	}
	if r.DataOffset%gguf.Alignment != 0 {
		t.Errorf("data offset %d not aligned", r.DataOffset)
	}
}
