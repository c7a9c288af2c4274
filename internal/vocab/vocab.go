// Package vocab parses tokenizer vocabularies written one quoted byte
// literal per line, such as b'hello' or b"\xe2\x82".
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

var (
	ErrInvalidLine   = errors.New("vocab: invalid token line")
	ErrUnknownEscape = errors.New("vocab: unknown escape sequence")
	ErrEmptyToken    = errors.New("vocab: empty token")
)

const maxLineLength = 1 << 20

type Options struct {
	// EscapeByteTokens rewrites single-byte tokens that are not valid UTF-8
	// on their own (0x00 and 0x80..0xff) as the literal text \xHH, which is
	// what llama.cpp expects for RWKV byte tokens.
	EscapeByteTokens bool
}

// ReadFile parses the vocabulary file at path.
func ReadFile(path string, opts Options) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	tokens, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tokens, nil
}

// Parse reads one token per line from r.
func Parse(r io.Reader, opts Options) ([][]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var tokens [][]byte
	line := 0
	for sc.Scan() {
		line++
		tok, err := ParseLine(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if opts.EscapeByteTokens {
			tok = escapeByteToken(tok)
		}
		tokens = append(tokens, tok)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// ParseLine decodes a single b'...' or b"..." literal.
func ParseLine(line string) ([]byte, error) {
	if len(line) < 3 || line[0] != 'b' || (line[1] != '\'' && line[1] != '"') {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLine, line)
	}
	if end := line[len(line)-1]; end != '\'' && end != '"' {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLine, line)
	}
	tok, err := unescape(line[2 : len(line)-1])
	if err != nil {
		return nil, err
	}
	if len(tok) == 0 {
		return nil, ErrEmptyToken
	}
	return tok, nil
}

// unescape works on bytes: tokens may hold partial UTF-8 sequences, so the
// escaped form cannot be decoded one code point at a time.
func unescape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i == len(s) {
			return nil, fmt.Errorf("%w: trailing backslash", ErrInvalidLine)
		}
		switch s[i] {
		case '\\':
			out = append(out, '\\')
		case '\'':
			out = append(out, '\'')
		case '"':
			out = append(out, '"')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case 'n':
			out = append(out, '\n')
		case 'x':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("%w: short \\x escape", ErrInvalidLine)
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: bad \\x escape %q", ErrInvalidLine, s[i+1:i+3])
			}
			out = append(out, byte(v))
			i += 2
		default:
			return nil, fmt.Errorf("%w: \\%c", ErrUnknownEscape, s[i])
		}
	}
	return out, nil
}

func escapeByteToken(tok []byte) []byte {
	if len(tok) != 1 || (tok[0] != 0 && tok[0] < 0x80) {
		return tok
	}
	return fmt.Appendf(nil, "\\x%02x", tok[0])
}
