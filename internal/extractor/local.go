package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Local extracts text with the in-process PDF parser, one block per page.
// Non-PDF files are read whole as a single block, which lets intermediate
// text artifacts flow through the same pipeline.
type Local struct{}

// NewLocal returns the local extraction backend.
func NewLocal() *Local { return &Local{} }

func (l *Local) Extract(ctx context.Context, path string) ([]Block, error) {
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read source file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, nil
		}
		return []Block{{Page: 1, Text: text}}, nil
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	blocks := make([]Block, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			blocks = append(blocks, Block{Page: i, Err: fmt.Errorf("page %d: empty page object", i)})
			continue
		}
		text, err := pageText(page)
		if err != nil {
			blocks = append(blocks, Block{Page: i, Err: fmt.Errorf("page %d: %w", i, err)})
			continue
		}
		blocks = append(blocks, Block{Page: i, Text: text})
	}
	return blocks, nil
}

// pageText recovers from parser panics, which the pdf library raises on
// malformed content streams.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser: %v", r)
		}
	}()
	fonts := make(map[string]*pdf.Font)
	return page.GetPlainText(fonts)
}
