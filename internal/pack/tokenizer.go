package pack

import (
	"context"
	"fmt"

	"github.com/samcharles93/ggufpack/internal/logger"
	"github.com/samcharles93/ggufpack/internal/manifest"
	"github.com/samcharles93/ggufpack/internal/vocab"
	"github.com/samcharles93/ggufpack/pkg/gguf"
)

// llama.cpp token types.
const (
	tokenNormal  gguf.Uint32 = 1
	tokenControl gguf.Uint32 = 3
	tokenUnused  gguf.Uint32 = 5
)

type convertRWKVTokenizer struct {
	metadataTask
	source     string
	tokenCount uint64
	escape     bool
}

func newConvertRWKVTokenizer(t *manifest.Table) (Task, error) {
	if err := t.Only(TaskKey, "source", "token_count", "escape_byte_tokens"); err != nil {
		return nil, err
	}
	task := &convertRWKVTokenizer{}
	var err error
	if task.source, err = t.String("source"); err != nil {
		return nil, err
	}
	if task.tokenCount, err = t.Uint64("token_count"); err != nil {
		return nil, err
	}
	if task.tokenCount > gguf.MaxArrayLength {
		return nil, t.Errorf("token_count", "%d exceeds the array limit of %d", task.tokenCount, gguf.MaxArrayLength)
	}
	if task.escape, err = t.OptionalBool("escape_byte_tokens", false); err != nil {
		return nil, err
	}
	return task, nil
}

func (c *convertRWKVTokenizer) Process(ctx context.Context, bc *BuildContext) error {
	tokens, err := vocab.ReadFile(bc.SourcePath(c.source), vocab.Options{EscapeByteTokens: c.escape})
	if err != nil {
		return err
	}
	if uint64(len(tokens)) > c.tokenCount {
		return fmt.Errorf("%w: %d tokens, token_count %d", ErrVocabTooLarge, len(tokens), c.tokenCount)
	}
	logger.FromContext(ctx).Debug("parsed vocabulary", "source", c.source, "tokens", len(tokens), "padding", c.tokenCount-uint64(len(tokens)))

	types := make(gguf.Array[gguf.Uint32], len(tokens), c.tokenCount)
	for i := range types {
		types[i] = tokenNormal
	}
	if len(types) > 0 {
		// RWKV reserves token 0.
		types[0] = tokenControl
	}
	// Models may declare more tokens than the vocabulary holds; every token
	// has to be unique for llama.cpp.
	for i := uint64(0); uint64(len(tokens)) < c.tokenCount; i++ {
		tokens = append(tokens, fmt.Appendf(nil, "<unused %d>", i))
		types = append(types, tokenUnused)
	}

	if err := bc.PushString("tokenizer.ggml.model", "rwkv"); err != nil {
		return err
	}
	if err := bc.PushMetadata("tokenizer.ggml.tokens", gguf.Strings(tokens)); err != nil {
		return err
	}
	return bc.PushMetadata("tokenizer.ggml.token_type", types)
}
