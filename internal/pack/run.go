package pack

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/samcharles93/ggufpack/internal/logger"
	"github.com/samcharles93/ggufpack/internal/manifest"
	"github.com/samcharles93/ggufpack/pkg/gguf"
)

const outputBufSize = 4 << 20

type Options struct {
	// ManifestPath is the TOML, YAML or JSON manifest to pack.
	ManifestPath string
	// OutputPath is the container to create or replace.
	OutputPath string
	// SourceRoot resolves relative source paths. Defaults to the manifest directory.
	SourceRoot string
}

type Result struct {
	Header    *gguf.Header
	DataStart uint64
	Size      uint64
}

// Run packs a manifest into a container. Output goes to a temporary file in
// the destination directory that is renamed into place only after every
// phase succeeded, so a failed run never leaves a container behind.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)
	if opts.ManifestPath == "" {
		return nil, errors.New("pack: manifest path is required")
	}
	if opts.OutputPath == "" {
		return nil, errors.New("pack: output path is required")
	}

	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	sourceRoot := opts.SourceRoot
	if sourceRoot == "" {
		sourceRoot = m.Dir()
	}
	log.Info("loaded manifest", "path", opts.ManifestPath, "tasks", len(m.Tasks), "source_root", sourceRoot)

	entries, err := Load(ctx, m.Tasks)
	if err != nil {
		return nil, err
	}
	return Pack(ctx, entries, sourceRoot, opts.OutputPath)
}

// Pack runs both phases for already loaded tasks and writes outPath atomically.
func Pack(ctx context.Context, entries []Entry, sourceRoot, outPath string) (*Result, error) {
	log := logger.FromContext(ctx)

	header, err := Process(ctx, entries, sourceRoot)
	if err != nil {
		return nil, err
	}

	dir, base := filepath.Split(outPath)
	if dir == "" {
		dir = "."
	}
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriterSize(f, outputBufSize)
	w := gguf.NewWriter(bw)
	if err := w.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	log.Info("wrote header", "metadata", len(header.Metadata), "tensors", len(header.Tensors), "data_start", w.DataStart())

	if err := WriteTensors(ctx, entries, w, sourceRoot); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush output: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync output: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, fmt.Errorf("rename output: %w", err)
	}
	committed = true

	res := &Result{
		Header:    header,
		DataStart: w.DataStart(),
		Size:      w.DataStart() + w.Position(),
	}
	log.Info("packed container", "path", outPath, "bytes", res.Size)
	return res, nil
}
