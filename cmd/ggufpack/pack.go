package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ggufpack/internal/logger"
	"github.com/samcharles93/ggufpack/internal/pack"
)

func packCmd() *cli.Command {
	var (
		manifestPath string
		outputPath   string
		outputDir    string
		sourceRoot   string
	)

	return &cli.Command{
		Name:      "pack",
		Usage:     "Build a GGUF container from a TOML, YAML or JSON manifest",
		ArgsUsage: "[manifest]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "manifest",
				Aliases:     []string{"m"},
				Usage:       "path to the manifest",
				Destination: &manifestPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o", "out"},
				Usage:       "output .gguf path (default: manifest name with .gguf in --output-dir)",
				Destination: &outputPath,
			},
			&cli.StringFlag{
				Name:        "output-dir",
				Usage:       "directory for the default output path (default: manifest directory)",
				Destination: &outputDir,
			},
			&cli.StringFlag{
				Name:        "source-root",
				Aliases:     []string{"s"},
				Usage:       "resolve relative source paths against this directory (default: manifest directory)",
				Destination: &sourceRoot,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if manifestPath == "" {
				manifestPath = cmd.Args().First()
			}
			if manifestPath == "" {
				return errors.New("pack: a manifest path is required (--manifest or first argument)")
			}
			applyPackConfig(cmd, LoadConfig(), &sourceRoot, &outputDir)
			if outputPath == "" {
				outputPath = defaultOutputPath(manifestPath, outputDir)
			}

			res, err := pack.Run(ctx, pack.Options{
				ManifestPath: manifestPath,
				OutputPath:   outputPath,
				SourceRoot:   sourceRoot,
			})
			if err != nil {
				return err
			}
			logger.FromContext(ctx).Info("done",
				"output", outputPath,
				"metadata", len(res.Header.Metadata),
				"tensors", len(res.Header.Tensors),
				"bytes", res.Size)
			fmt.Println(outputPath)
			return nil
		},
	}
}

// defaultOutputPath swaps the manifest extension for .gguf.
func defaultOutputPath(manifestPath, dir string) string {
	base := filepath.Base(manifestPath)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ".gguf"
	if dir == "" {
		dir = filepath.Dir(manifestPath)
	}
	return filepath.Join(dir, base)
}

func tasksCmd() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List the task types a manifest may use",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			for _, name := range pack.TaskTypes() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
