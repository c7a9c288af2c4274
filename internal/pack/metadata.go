package pack

import (
	"context"
	"fmt"
	"math"

	"github.com/samcharles93/ggufpack/internal/manifest"
	"github.com/samcharles93/ggufpack/pkg/gguf"
)

type addModelCard struct {
	metadataTask
	name, author, description, license, architecture string
}

func newAddModelCard(t *manifest.Table) (Task, error) {
	if err := t.Only(TaskKey, "name", "author", "description", "license", "architecture"); err != nil {
		return nil, err
	}
	task := &addModelCard{}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"name", &task.name},
		{"author", &task.author},
		{"description", &task.description},
		{"license", &task.license},
		{"architecture", &task.architecture},
	} {
		v, err := t.String(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return task, nil
}

func (c *addModelCard) Process(_ context.Context, bc *BuildContext) error {
	for _, kv := range [][2]string{
		{"general.name", c.name},
		{"general.author", c.author},
		{"general.description", c.description},
		{"general.license", c.license},
		{"general.architecture", c.architecture},
	} {
		if err := bc.PushString(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

type addModelConfig struct {
	metadataTask
	architecture       string
	contextLength      uint32
	embeddingLength    uint32
	blockCount         uint32
	feedForwardLength  uint32
	attentionHeadCount uint32
	layerNormEpsilon   float32
}

func newAddModelConfig(t *manifest.Table) (Task, error) {
	if err := t.Only(TaskKey, "architecture", "context_length", "embedding_length", "block_count",
		"feed_forward_length", "attention_head_count", "layer_norm_epsilon"); err != nil {
		return nil, err
	}
	task := &addModelConfig{}
	var err error
	if task.architecture, err = t.String("architecture"); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		key string
		dst *uint32
	}{
		{"context_length", &task.contextLength},
		{"embedding_length", &task.embeddingLength},
		{"block_count", &task.blockCount},
		{"feed_forward_length", &task.feedForwardLength},
		{"attention_head_count", &task.attentionHeadCount},
	} {
		if *f.dst, err = t.Uint32(f.key); err != nil {
			return nil, err
		}
	}
	if task.layerNormEpsilon, err = t.Float32("layer_norm_epsilon"); err != nil {
		return nil, err
	}
	return task, nil
}

func (c *addModelConfig) Process(_ context.Context, bc *BuildContext) error {
	if err := bc.PushString("general.architecture", c.architecture); err != nil {
		return err
	}
	k := func(s string) string { return c.architecture + "." + s }
	for _, kv := range []struct {
		key string
		v   uint32
	}{
		{k("context_length"), c.contextLength},
		{k("embedding_length"), c.embeddingLength},
		{k("block_count"), c.blockCount},
		{k("feed_forward_length"), c.feedForwardLength},
		{k("attention.head_count"), c.attentionHeadCount},
	} {
		if err := bc.PushUint32(kv.key, kv.v); err != nil {
			return err
		}
	}
	if err := bc.PushFloat32(k("attention.layer_norm_epsilon"), c.layerNormEpsilon); err != nil {
		return err
	}
	// llama.cpp refuses to load RWKV without these.
	if err := bc.PushUint32(k("ssm.state_size"), 1); err != nil {
		return err
	}
	return bc.PushUint32(k("ssm.inner_size"), 1)
}

// addMetadata copies a free-form table of values into the header:
// strings, bools, integers (u32 when they fit, else i64), floats (f32)
// and flat arrays of those.
type addMetadata struct {
	metadataTask
	entries []gguf.MetadataEntry
}

func newAddMetadata(t *manifest.Table) (Task, error) {
	if err := t.Only(TaskKey, "metadata"); err != nil {
		return nil, err
	}
	md, err := t.Table("metadata")
	if err != nil {
		return nil, err
	}
	task := &addMetadata{}
	for _, key := range md.Keys() {
		raw, _ := md.Get(key)
		v, err := metadataValue(raw)
		if err != nil {
			return nil, md.Errorf(key, "%v", err)
		}
		task.entries = append(task.entries, gguf.MetadataEntry{Key: key, Value: v})
	}
	return task, nil
}

func (c *addMetadata) Process(_ context.Context, bc *BuildContext) error {
	for _, e := range c.entries {
		if err := bc.PushMetadata(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func metadataValue(raw any) (gguf.Value, error) {
	switch v := raw.(type) {
	case string:
		return gguf.Str(v), nil
	case bool:
		return gguf.Bool(v), nil
	case int64:
		if v >= 0 && v <= math.MaxUint32 {
			return gguf.Uint32(v), nil
		}
		return gguf.Int64(v), nil
	case float64:
		return gguf.Float32(v), nil
	case []any:
		return metadataArray(v)
	default:
		return nil, fmt.Errorf("unsupported metadata value %T", raw)
	}
}

func metadataArray(list []any) (gguf.Value, error) {
	if len(list) == 0 {
		return gguf.Array[gguf.String]{}, nil
	}
	switch list[0].(type) {
	case string:
		return collect(list, func(e any) (gguf.String, bool) {
			s, ok := e.(string)
			return gguf.Str(s), ok
		})
	case bool:
		return collect(list, func(e any) (gguf.Bool, bool) {
			b, ok := e.(bool)
			return gguf.Bool(b), ok
		})
	case int64:
		return collect(list, func(e any) (gguf.Int32, bool) {
			i, ok := e.(int64)
			return gguf.Int32(i), ok && i >= math.MinInt32 && i <= math.MaxInt32
		})
	case float64:
		return collect(list, func(e any) (gguf.Float32, bool) {
			f, ok := e.(float64)
			return gguf.Float32(f), ok
		})
	default:
		return nil, fmt.Errorf("unsupported array element %T", list[0])
	}
}

func collect[E gguf.Value](list []any, conv func(any) (E, bool)) (gguf.Array[E], error) {
	out := make(gguf.Array[E], len(list))
	for i, e := range list {
		v, ok := conv(e)
		if !ok {
			return nil, fmt.Errorf("array element %d: mixed or out-of-range value %v", i, e)
		}
		out[i] = v
	}
	return out, nil
}
