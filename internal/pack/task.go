package pack

import (
	"context"
	"fmt"
	"sort"

	"github.com/samcharles93/ggufpack/internal/logger"
	"github.com/samcharles93/ggufpack/internal/manifest"
	"github.com/samcharles93/ggufpack/pkg/gguf"
)

// TaskKey is the discriminator field every task table must carry.
const TaskKey = "task"

// Task is one configured unit of the packaging pipeline.
//
// Process runs once, in manifest order, and may add metadata and tensors to
// the shared context. It must not depend on other tasks having run.
// WriteTensors runs once afterwards, in the same order; a task that added
// tensors writes their payloads at the offsets it was given.
type Task interface {
	Process(ctx context.Context, bc *BuildContext) error
	WriteTensors(ctx context.Context, w *gguf.Writer, sourceRoot string) error
}

// Constructor builds a task from its configuration table.
type Constructor func(t *manifest.Table) (Task, error)

var registry = map[string]Constructor{
	"add-model-card":         newAddModelCard,
	"add-model-config":       newAddModelConfig,
	"add-metadata":           newAddMetadata,
	"convert-rwkv-tokenizer": newConvertRWKVTokenizer,
	"convert-safetensors":    newConvertSafetensors,
}

// TaskTypes lists the registered task types.
func TaskTypes() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Entry is a loaded task and the key it was configured under.
type Entry struct {
	Key  string
	Type string
	Task Task
}

// Load builds the task list in manifest order.
func Load(ctx context.Context, tasks []manifest.Task) ([]Entry, error) {
	log := logger.FromContext(ctx)
	entries := make([]Entry, 0, len(tasks))
	for _, mt := range tasks {
		typ, err := mt.Table.String(TaskKey)
		if err != nil {
			return nil, &TaskError{Key: mt.Key, Phase: PhaseLoad, Err: err}
		}
		newTask, ok := registry[typ]
		if !ok {
			return nil, &TaskError{Key: mt.Key, Type: typ, Phase: PhaseLoad, Err: fmt.Errorf("%w %q", ErrUnknownTaskType, typ)}
		}
		task, err := newTask(mt.Table)
		if err != nil {
			return nil, &TaskError{Key: mt.Key, Type: typ, Phase: PhaseLoad, Err: err}
		}
		log.Debug("loaded task", "task", mt.Key, "type", typ)
		entries = append(entries, Entry{Key: mt.Key, Type: typ, Task: task})
	}
	return entries, nil
}

// Process runs the contribute phase and returns the finished header.
func Process(ctx context.Context, entries []Entry, sourceRoot string) (*gguf.Header, error) {
	log := logger.FromContext(ctx)
	bc := NewBuildContext(sourceRoot)
	for _, e := range entries {
		log.Info("processing task", "task", e.Key, "type", e.Type)
		if err := e.Task.Process(ctx, bc); err != nil {
			return nil, &TaskError{Key: e.Key, Type: e.Type, Phase: PhaseProcess, Err: err}
		}
	}
	return bc.Header(), nil
}

// WriteTensors runs the payload phase. w must already hold the header.
func WriteTensors(ctx context.Context, entries []Entry, w *gguf.Writer, sourceRoot string) error {
	log := logger.FromContext(ctx)
	for _, e := range entries {
		log.Debug("writing tensors", "task", e.Key, "type", e.Type, "position", w.Position())
		if err := e.Task.WriteTensors(ctx, w, sourceRoot); err != nil {
			return &TaskError{Key: e.Key, Type: e.Type, Phase: PhaseWrite, Err: err}
		}
	}
	return nil
}

// metadataTask is embedded by tasks that own no tensors.
type metadataTask struct{}

func (metadataTask) WriteTensors(context.Context, *gguf.Writer, string) error { return nil }
