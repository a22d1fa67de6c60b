package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aicooking/recipegen/internal/chunker"
	"github.com/aicooking/recipegen/internal/extractor"
	"github.com/aicooking/recipegen/internal/store"
)

// ChunkStore is the persistence surface the pipeline needs.
type ChunkStore interface {
	GetDocument(ctx context.Context, id string) (store.Document, error)
	TryMarkProcessing(ctx context.Context, id string) error
	UpdateDocumentStatus(ctx context.Context, id, status string) error
	CreateChunk(ctx context.Context, documentID string, chunkIndex int, content string, embedding []float32) (store.Chunk, error)
}

// Embedder produces one embedding vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Pipeline orchestrates extraction, chunking, embedding and storage for one
// document. One pipeline instance may process many documents, but a single
// document is processed by at most one run at a time.
type Pipeline struct {
	store     ChunkStore
	embedder  Embedder
	extractor extractor.Extractor
	tokenizer chunker.Tokenizer
	window    int
	overlap   int
	logger    *log.Logger
}

// NewPipeline wires an ingestion pipeline. Window/overlap are validated here
// so a bad configuration fails at startup rather than mid-run.
func NewPipeline(st ChunkStore, embedder Embedder, ext extractor.Extractor, tok chunker.Tokenizer, window, overlap int, logger *log.Logger) (*Pipeline, error) {
	if window <= 0 {
		window = chunker.DefaultWindowTokens
	}
	if overlap < 0 {
		overlap = chunker.DefaultOverlapTokens
	}
	if overlap >= window {
		return nil, fmt.Errorf("ingest: %w (window=%d overlap=%d)", chunker.ErrInvalidWindow, window, overlap)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Pipeline{
		store:     st,
		embedder:  embedder,
		extractor: ext,
		tokenizer: tok,
		window:    window,
		overlap:   overlap,
		logger:    logger,
	}, nil
}

// ProcessDocument runs one document through extract, chunk, embed, store.
// The document is marked processing immediately so its status is observable
// while the run is in flight, and always ends in processed or error.
func (p *Pipeline) ProcessDocument(ctx context.Context, documentID string) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.store.TryMarkProcessing(ctx, doc.ID); err != nil {
		return err
	}
	p.logger.Printf("processing document %s (%s)", doc.ID, doc.Title)

	successful, err := p.run(ctx, doc)
	if err != nil {
		if serr := p.store.UpdateDocumentStatus(ctx, doc.ID, store.DocumentStatusError); serr != nil {
			p.logger.Printf("error: mark document %s failed: %v", doc.ID, serr)
		}
		documentsProcessed.WithLabelValues(store.DocumentStatusError).Inc()
		return err
	}

	final := store.DocumentStatusProcessed
	if successful == 0 {
		final = store.DocumentStatusError
	}
	p.logger.Printf("document %s done: status=%s chunks=%d", doc.ID, final, successful)
	documentsProcessed.WithLabelValues(final).Inc()
	return p.store.UpdateDocumentStatus(ctx, doc.ID, final)
}

func (p *Pipeline) run(ctx context.Context, doc store.Document) (int, error) {
	blocks, err := p.extractor.Extract(ctx, doc.FilePath)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", doc.FilePath, err)
	}
	chunkIndex := 0
	successful := 0
	p.storeBlocks(ctx, doc.ID, blocks, &chunkIndex, &successful)
	return successful, nil
}

// storeBlocks chunks and persists a sequence of blocks, advancing the
// document-global chunk index across block boundaries. Per-block and
// per-chunk failures are logged and skipped.
func (p *Pipeline) storeBlocks(ctx context.Context, documentID string, blocks []extractor.Block, chunkIndex, successful *int) {
	for _, block := range blocks {
		if block.Err != nil {
			p.logger.Printf("error: document %s page %d extraction failed, skipping: %v", documentID, block.Page, block.Err)
			continue
		}
		chunks, err := chunker.Split(p.tokenizer, block.Text, p.window, p.overlap)
		if err != nil {
			p.logger.Printf("error: document %s page %d split failed, skipping: %v", documentID, block.Page, err)
			continue
		}
		for _, c := range chunks {
			if err := p.storeChunk(ctx, documentID, *chunkIndex, c.Text); err != nil {
				p.logger.Printf("error: document %s chunk %d failed, skipping: %v", documentID, *chunkIndex, err)
				chunksStored.WithLabelValues("skipped").Inc()
				continue
			}
			*chunkIndex++
			*successful++
			chunksStored.WithLabelValues("stored").Inc()
		}
	}
}

func (p *Pipeline) storeChunk(ctx context.Context, documentID string, index int, text string) error {
	embedding, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}
	if _, err := p.store.CreateChunk(ctx, documentID, index, text, embedding); err != nil {
		return fmt.Errorf("store chunk: %w", err)
	}
	return nil
}

// ProcessDocumentBatched processes a large document in groups of
// pagesPerGroup pages. Each group's text is written to a temporary artifact
// and pushed through the same extractor+chunk+store path; the artifact is
// removed whether or not the group succeeds, one group's failure does not
// abort later groups, and chunk indexing stays continuous across groups.
func (p *Pipeline) ProcessDocumentBatched(ctx context.Context, documentID string, pagesPerGroup int) error {
	if pagesPerGroup <= 0 {
		pagesPerGroup = 10
	}
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.store.TryMarkProcessing(ctx, doc.ID); err != nil {
		return err
	}
	p.logger.Printf("processing document %s in groups of %d pages", doc.ID, pagesPerGroup)

	blocks, err := p.extractor.Extract(ctx, doc.FilePath)
	if err != nil {
		if serr := p.store.UpdateDocumentStatus(ctx, doc.ID, store.DocumentStatusError); serr != nil {
			p.logger.Printf("error: mark document %s failed: %v", doc.ID, serr)
		}
		documentsProcessed.WithLabelValues(store.DocumentStatusError).Inc()
		return fmt.Errorf("extract %s: %w", doc.FilePath, err)
	}

	chunkIndex := 0
	successful := 0
	for start := 0; start < len(blocks); start += pagesPerGroup {
		end := start + pagesPerGroup
		if end > len(blocks) {
			end = len(blocks)
		}
		if err := p.processGroup(ctx, doc.ID, blocks[start:end], &chunkIndex, &successful); err != nil {
			p.logger.Printf("error: document %s pages %d-%d failed, skipping group: %v", doc.ID, start+1, end, err)
		}
	}

	final := store.DocumentStatusProcessed
	if successful == 0 {
		final = store.DocumentStatusError
	}
	p.logger.Printf("document %s done: status=%s chunks=%d", doc.ID, final, successful)
	documentsProcessed.WithLabelValues(final).Inc()
	return p.store.UpdateDocumentStatus(ctx, doc.ID, final)
}

func (p *Pipeline) processGroup(ctx context.Context, documentID string, group []extractor.Block, chunkIndex, successful *int) error {
	var b strings.Builder
	for _, block := range group {
		if block.Err != nil {
			p.logger.Printf("error: document %s page %d extraction failed, skipping: %v", documentID, block.Page, block.Err)
			continue
		}
		b.WriteString(block.Text)
		b.WriteString("\n\n")
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil
	}

	tmp, err := os.CreateTemp("", "recipegen-group-*.txt")
	if err != nil {
		return fmt.Errorf("create group artifact: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write group artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close group artifact: %w", err)
	}

	blocks, err := p.extractor.Extract(ctx, tmp.Name())
	if err != nil {
		return fmt.Errorf("extract group artifact: %w", err)
	}
	p.storeBlocks(ctx, documentID, blocks, chunkIndex, successful)
	return nil
}
