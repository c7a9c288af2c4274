package pack

import (
	"bufio"
	"context"
	"fmt"
	"math/bits"
	"os"

	"github.com/samcharles93/ggufpack/internal/convert"
	"github.com/samcharles93/ggufpack/internal/logger"
	"github.com/samcharles93/ggufpack/internal/manifest"
	"github.com/samcharles93/ggufpack/internal/safetensors"
	"github.com/samcharles93/ggufpack/pkg/gguf"
)

const sourceBufSize = 4 << 20

type convertSafetensors struct {
	source string
	specs  []tensorSpec

	// planned holds the descriptors assigned during Process, in write order.
	planned []plannedTensor
}

type plannedTensor struct {
	spec tensorSpec
	info gguf.TensorInfo
}

func newConvertSafetensors(t *manifest.Table) (Task, error) {
	if err := t.Only(TaskKey, "source", "tensors"); err != nil {
		return nil, err
	}
	source, err := t.String("source")
	if err != nil {
		return nil, err
	}
	tensors, err := t.Table("tensors")
	if err != nil {
		return nil, err
	}
	specs, err := parseTensorSpecs(tensors)
	if err != nil {
		return nil, err
	}
	return &convertSafetensors{source: source, specs: specs}, nil
}

// Process validates every tensor against the source header so a bad
// manifest fails before any output is written.
func (c *convertSafetensors) Process(_ context.Context, bc *BuildContext) error {
	src, err := safetensors.Open(bc.SourcePath(c.source))
	if err != nil {
		return err
	}
	c.planned = c.planned[:0]
	for _, spec := range c.specs {
		if err := checkSource(src, spec); err != nil {
			return err
		}
		info, err := bc.AddTensor(spec.Name, spec.Type, spec.Dimensions)
		if err != nil {
			return err
		}
		c.planned = append(c.planned, plannedTensor{spec: spec, info: info})
	}
	return nil
}

func checkSource(src *safetensors.File, spec tensorSpec) error {
	st, ok := src.Tensor(spec.Source)
	if !ok {
		return fmt.Errorf("tensor %s: %w: %s", spec.Name, safetensors.ErrTensorNotFound, spec.Source)
	}
	if err := convert.Supported(st.DType, spec.Type); err != nil {
		return fmt.Errorf("tensor %s: %w", spec.Name, err)
	}
	srcDims, err := gguf.DimensionsFromWidthLast(st.Shape)
	if err != nil {
		return fmt.Errorf("tensor %s: source %s: %w", spec.Name, spec.Source, err)
	}
	if got, want := st.Elements(), spec.Dimensions.Total(); got != want {
		return fmt.Errorf("tensor %s: %w: manifest %s (source order %v, %d elements), source %s %v (%d elements)",
			spec.Name, ErrShapeMismatch, spec.Dimensions, spec.Dimensions.WidthLast(), want, spec.Source, srcDims.WidthLast(), got)
	}
	hi, want := bits.Mul64(st.Elements(), safetensors.DTypeSize(st.DType))
	if got := st.Len(); hi != 0 || got != want {
		return fmt.Errorf("tensor %s: %w: source %s spans %d bytes, want %d elements of %s",
			spec.Name, ErrSizeMismatch, spec.Source, got, st.Elements(), st.DType)
	}
	return nil
}

func (c *convertSafetensors) WriteTensors(ctx context.Context, w *gguf.Writer, sourceRoot string) error {
	if len(c.planned) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	path := resolveSource(sourceRoot, c.source)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	src, err := safetensors.ReadHeader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	conv := convert.NewConverter(sourceBufSize)

	for _, p := range c.planned {
		pos, err := w.Align()
		if err != nil {
			return err
		}
		if pos != p.info.Offset {
			return fmt.Errorf("tensor %s: %w: stream at %d, descriptor offset %d", p.info.Name, ErrLayoutInvariant, pos, p.info.Offset)
		}

		// The source may have changed since Process; re-check before streaming.
		if err := checkSource(src, p.spec); err != nil {
			return err
		}
		sr, st, err := src.Section(f, p.spec.Source)
		if err != nil {
			return err
		}
		n, err := conv.Convert(w, sr, st.DType, p.info.Type, st.Elements())
		if err != nil {
			return fmt.Errorf("tensor %s: convert %s: %w", p.info.Name, p.spec.Source, err)
		}
		if n != p.info.ByteSize() {
			return fmt.Errorf("tensor %s: %w: wrote %d bytes, descriptor size %d", p.info.Name, ErrLayoutInvariant, n, p.info.ByteSize())
		}
		log.Debug("converted tensor", "tensor", p.info.Name, "source", p.spec.Source, "offset", p.info.Offset, "bytes", n)
	}
	return nil
}
