package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ggufpack/pkg/gguf"
)

// summaryKeys are printed even without --kv.
var summaryKeys = []string{
	"general.name",
	"general.architecture",
	"general.author",
	"general.license",
	"tokenizer.ggml.model",
}

type inspectMetadata struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type inspectTensor struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Dimensions []uint64 `json:"dimensions"`
	Offset     uint64   `json:"offset"`
	Bytes      uint64   `json:"bytes"`
}

type inspectReport struct {
	Path       string            `json:"path"`
	Version    uint32            `json:"version"`
	DataOffset uint64            `json:"data_offset"`
	Metadata   []inspectMetadata `json:"metadata"`
	Tensors    []inspectTensor   `json:"tensors"`
}

func inspectCmd() *cli.Command {
	var (
		showKV      bool
		showTensors int64
		maxElems    int64
		asJSON      bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header of a GGUF container",
		ArgsUsage: "<path.gguf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "kv", Usage: "show all metadata key/values", Destination: &showKV},
			&cli.Int64Flag{
				Name:        "tensors",
				Usage:       "number of tensors to list (0 to skip, -1 for all)",
				Value:       20,
				Destination: &showTensors,
			},
			&cli.Int64Flag{
				Name:        "max-elems",
				Usage:       "array elements to print per metadata value",
				Value:       8,
				Destination: &maxElems,
			},
			&cli.BoolFlag{Name: "json", Usage: "print the full header as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() < 1 {
				return errors.New("inspect: a .gguf path is required")
			}
			path := cmd.Args().First()
			f, err := gguf.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			report := buildReport(f, int(maxElems))
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(report, showKV, int(showTensors))
			return nil
		},
	}
}

func buildReport(f *gguf.File, maxElems int) inspectReport {
	r := inspectReport{
		Path:       f.Path,
		Version:    f.Version,
		DataOffset: f.DataOffset,
		Metadata:   make([]inspectMetadata, 0, len(f.Header.Metadata)),
		Tensors:    make([]inspectTensor, 0, len(f.Header.Tensors)),
	}
	for _, e := range f.Header.Metadata {
		r.Metadata = append(r.Metadata, inspectMetadata{
			Key:   e.Key,
			Type:  e.Value.Type().String(),
			Value: gguf.FormatValue(e.Value, maxElems),
		})
	}
	for _, t := range f.Header.Tensors {
		r.Tensors = append(r.Tensors, inspectTensor{
			Name:       t.Name,
			Type:       t.Type.String(),
			Dimensions: t.Dimensions.Slice(),
			Offset:     t.Offset,
			Bytes:      t.ByteSize(),
		})
	}
	return r
}

func printReport(r inspectReport, showKV bool, n int) {
	fmt.Printf("File: %s\n", r.Path)
	fmt.Printf("GGUF v%d | tensors=%d | kv=%d | alignment=%d | data_offset=%d\n",
		r.Version, len(r.Tensors), len(r.Metadata), gguf.Alignment, r.DataOffset)

	byKey := make(map[string]inspectMetadata, len(r.Metadata))
	for _, m := range r.Metadata {
		byKey[m.Key] = m
	}
	for _, k := range summaryKeys {
		if m, ok := byKey[k]; ok {
			fmt.Printf("  %-36s %s\n", k+":", m.Value)
		}
	}

	if showKV {
		fmt.Println()
		fmt.Println("All metadata:")
		for _, m := range r.Metadata {
			fmt.Printf("  %s (%s) = %s\n", m.Key, m.Type, m.Value)
		}
	}

	if n == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Tensors:")
	count := len(r.Tensors)
	if n < 0 || n > count {
		n = count
	}
	for _, t := range r.Tensors[:n] {
		fmt.Printf("  %-40s %-6s dims=%s off=%d bytes=%d\n", t.Name, t.Type, formatDims(t.Dimensions), t.Offset, t.Bytes)
	}
	if n < count {
		fmt.Printf("  ... (%d more)\n", count-n)
	}
}

func formatDims(dims []uint64) string {
	if len(dims) == 0 {
		return "[]"
	}
	parts := make([]string, len(dims))
	for i, v := range dims {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
