package chunker

import (
	"errors"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Default window sizes, in tokens.
const (
	DefaultWindowTokens  = 2000
	DefaultOverlapTokens = 200
)

// ErrInvalidWindow reports a window/overlap combination that would stall the
// cursor.
var ErrInvalidWindow = errors.New("chunker: overlap must be smaller than window")

// Tokenizer encodes text into a stable token sequence and decodes it back.
// The same tokenizer must be used for chunking and any later re-tokenization.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Chunk is one token-bounded window of text.
type Chunk struct {
	Text       string
	TokenCount int
}

// Split cuts text into overlapping token windows of window tokens each, the
// next window starting overlap tokens before the previous one ended. The
// cursor advances window-overlap tokens per step and the loop ends only once
// it reaches the token count, so a window that lands exactly on the last
// token is followed by one final overlap-only chunk. Empty input yields no
// chunks; non-empty input yields at least one. The result is materialized
// eagerly and deterministic for a given tokenizer.
func Split(tok Tokenizer, text string, window, overlap int) ([]Chunk, error) {
	if window <= 0 || overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("%w (window=%d overlap=%d)", ErrInvalidWindow, window, overlap)
	}

	tokens := tok.Encode(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	for start := 0; start < len(tokens); {
		end := start + window
		upper := end
		if upper > len(tokens) {
			upper = len(tokens)
		}
		part := tokens[start:upper]
		chunks = append(chunks, Chunk{
			Text:       tok.Decode(part),
			TokenCount: len(part),
		})
		start = end - overlap
	}
	return chunks, nil
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns the production tokenizer backed by the cl100k_base
// encoding.
func NewTiktoken() (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("chunker: load cl100k_base encoding: %w", err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
