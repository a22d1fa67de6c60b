package extractor

import "context"

// Block is one extracted unit of text, typically a page. A block may carry an
// extraction error instead of text; callers skip such blocks and continue.
type Block struct {
	Page int
	Text string
	Err  error
}

// Extractor turns a source file into an ordered sequence of text blocks.
// Implementations return an error only when the source cannot be opened at
// all; per-block failures are reported on the block itself.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Block, error)
}
