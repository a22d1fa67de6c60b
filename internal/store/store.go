package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store wraps the Postgres connection for documents, chunks and recipes.
type Store struct {
	DB *sql.DB

	// Dimensions is the fixed width every stored embedding must match.
	Dimensions int
}

// DefaultEmbeddingDimensions matches text-embedding-3-small.
const DefaultEmbeddingDimensions = 1536

// Document lifecycle statuses. Stable wire contract.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusProcessed  = "processed"
	DocumentStatusError      = "error"
)

var (
	// ErrDimensionMismatch reports an embedding whose width disagrees with
	// the store's fixed dimension.
	ErrDimensionMismatch = errors.New("store: embedding dimension mismatch")
	// ErrDuplicateChunk reports a (document, chunk_index) collision.
	ErrDuplicateChunk = errors.New("store: duplicate chunk index")
	// ErrDocumentNotFound reports a missing document id.
	ErrDocumentNotFound = errors.New("store: document not found")
	// ErrDocumentProcessing reports a document already claimed by a running
	// ingestion.
	ErrDocumentProcessing = errors.New("store: document already processing")
	// ErrRecipeNotFound reports a missing recipe id.
	ErrRecipeNotFound = errors.New("store: recipe not found")
)

// Document is a stored source document and its processing lifecycle.
type Document struct {
	ID          string    `json:"id"`
	FilePath    string    `json:"file_path"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chunk is one token-bounded slice of a document, stored with its embedding.
// Chunks are immutable once created; the lexical representation is derived by
// the store inside the write transaction and never supplied by callers.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkCandidate is one retrieval hit annotated with its vector distance and
// lexical rank.
type ChunkCandidate struct {
	ChunkID       int64
	DocumentID    string
	DocumentTitle string
	Content       string
	ChunkIndex    int
	Distance      float64
	TextRank      float64
}

// Recipe is a generated artifact persisted by the generator.
type Recipe struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Instructions string    `json:"instructions"`
	ImageURL     string    `json:"image_url,omitempty"`
	Difficulty   string    `json:"difficulty,omitempty"`
	Season       string    `json:"season,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New opens a Postgres connection and verifies it.
func New(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{DB: db, Dimensions: dimensions}
	if err := s.verifyDimensions(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// verifyDimensions cross-checks the configured embedding width against the
// migrated vector column, so a misconfigured deployment fails at startup
// instead of on the first insert. For pgvector columns atttypmod holds the
// declared dimension count. A schema that is not migrated yet is not an
// error.
func (s *Store) verifyDimensions(ctx context.Context) error {
	var typmod sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'chunks'::regclass AND attname = 'embedding';
`).Scan(&typmod)
	if err != nil {
		return nil
	}
	if typmod.Valid && typmod.Int64 > 0 && int(typmod.Int64) != s.Dimensions {
		return fmt.Errorf("store: configured embedding dimensions %d do not match chunks.embedding vector(%d)", s.Dimensions, typmod.Int64)
	}
	return nil
}

// CreateDocument inserts a new document in pending status.
func (s *Store) CreateDocument(ctx context.Context, filePath, title, description string) (Document, error) {
	if strings.TrimSpace(title) == "" {
		return Document{}, fmt.Errorf("document title required")
	}
	doc := Document{
		ID:          uuid.New().String(),
		FilePath:    filePath,
		Title:       title,
		Description: description,
		Status:      DocumentStatusPending,
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO documents (id, file_path, title, description, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
RETURNING created_at, updated_at;
`, doc.ID, doc.FilePath, doc.Title, doc.Description, doc.Status).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	var doc Document
	var desc sql.NullString
	err := s.DB.QueryRowContext(ctx, `
SELECT id, file_path, title, description, status, created_at, updated_at
FROM documents WHERE id = $1;
`, id).Scan(&doc.ID, &doc.FilePath, &doc.Title, &desc, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.Description = desc.String
	return doc, nil
}

// UpdateDocumentStatus persists a lifecycle transition.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id, status string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1;
`, id, status)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// TryMarkProcessing claims a document for ingestion. It refuses documents
// already in processing so that concurrent re-submissions cannot interleave
// chunk indices.
func (s *Store) TryMarkProcessing(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE documents SET status = $2, updated_at = NOW()
WHERE id = $1 AND status <> $2;
`, id, DocumentStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if n == 0 {
		if _, gerr := s.GetDocument(ctx, id); gerr != nil {
			return gerr
		}
		return ErrDocumentProcessing
	}
	return nil
}

// CreateChunk persists one chunk with its embedding. The row insert and the
// derived lexical representation are written in a single transaction; a
// partially-created chunk is never visible to readers.
func (s *Store) CreateChunk(ctx context.Context, documentID string, chunkIndex int, content string, embedding []float32) (Chunk, error) {
	if len(embedding) != s.Dimensions {
		return Chunk{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.Dimensions)
	}
	vectorLiteral, err := encodeVectorLiteral(embedding)
	if err != nil {
		return Chunk{}, fmt.Errorf("create chunk: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Chunk{}, fmt.Errorf("create chunk: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunk := Chunk{DocumentID: documentID, ChunkIndex: chunkIndex, Content: content}
	err = tx.QueryRowContext(ctx, `
INSERT INTO chunks (document_id, chunk_index, content, embedding, created_at)
VALUES ($1,$2,$3,$4::vector,NOW())
RETURNING id, created_at;
`, documentID, chunkIndex, content, vectorLiteral).Scan(&chunk.ID, &chunk.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Chunk{}, fmt.Errorf("%w: document %s index %d", ErrDuplicateChunk, documentID, chunkIndex)
		}
		return Chunk{}, fmt.Errorf("create chunk: %w", err)
	}

	// Re-index the lexical representation inside the same transaction so a
	// reader can never observe content without its tsvector.
	if _, err := tx.ExecContext(ctx, `
UPDATE chunks SET content_tsv = to_tsvector('simple', unaccent(content)) WHERE id = $1;
`, chunk.ID); err != nil {
		return Chunk{}, fmt.Errorf("create chunk: reindex lexical: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Chunk{}, fmt.Errorf("create chunk: commit: %w", err)
	}
	return chunk, nil
}

// CountChunks returns the number of chunks stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = $1;`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// NearestByVector returns the closest chunks by cosine distance, ascending.
func (s *Store) NearestByVector(ctx context.Context, vector []float32, limit int) ([]ChunkCandidate, error) {
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, fmt.Errorf("nearest by vector: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.id, c.document_id, d.title, c.content, c.chunk_index,
       c.embedding <=> $1::vector AS distance
FROM chunks c
JOIN documents d ON d.id = c.document_id
ORDER BY c.embedding <=> $1::vector
LIMIT $2;
`, vecLiteral, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest by vector: %w", err)
	}
	defer rows.Close()

	var results []ChunkCandidate
	for rows.Next() {
		var c ChunkCandidate
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.DocumentTitle, &c.Content, &c.ChunkIndex, &c.Distance); err != nil {
			return nil, fmt.Errorf("nearest by vector: scan: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// SearchLexical returns chunks matched by normalized full-text search,
// descending by rank. Matching is tokenized, case- and diacritic-insensitive.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]ChunkCandidate, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.id, c.document_id, d.title, c.content, c.chunk_index,
       ts_rank(c.content_tsv, plainto_tsquery('simple', unaccent($1))) AS rank
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.content_tsv @@ plainto_tsquery('simple', unaccent($1))
ORDER BY rank DESC
LIMIT $2;
`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search lexical: %w", err)
	}
	defer rows.Close()

	var results []ChunkCandidate
	for rows.Next() {
		var c ChunkCandidate
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.DocumentTitle, &c.Content, &c.ChunkIndex, &c.TextRank); err != nil {
			return nil, fmt.Errorf("search lexical: scan: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// HybridSearch returns the top candidates annotated with both vector distance
// and lexical rank, ordered by the fused ranking criterion
// distance - text_rank*0.2 ascending. Candidates absent from the lexical
// match carry text_rank 0 rather than being filtered out, so this store
// returns rows whenever any chunks exist; callers' empty-result fallbacks
// exist for implementations that do filter on the lexical match.
func (s *Store) HybridSearch(ctx context.Context, vector []float32, query string, limit int) ([]ChunkCandidate, error) {
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.id, c.document_id, d.title, c.content, c.chunk_index,
       c.embedding <=> $1::vector AS distance,
       COALESCE(ts_rank(c.content_tsv, plainto_tsquery('simple', unaccent($2))), 0) AS text_rank
FROM chunks c
JOIN documents d ON d.id = c.document_id
ORDER BY (c.embedding <=> $1::vector) - (COALESCE(ts_rank(c.content_tsv, plainto_tsquery('simple', unaccent($2))), 0) * 0.2)
LIMIT $3;
`, vecLiteral, query, limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	var results []ChunkCandidate
	for rows.Next() {
		var c ChunkCandidate
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.DocumentTitle, &c.Content, &c.ChunkIndex, &c.Distance, &c.TextRank); err != nil {
			return nil, fmt.Errorf("hybrid search: scan: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// CreateRecipe persists a generated recipe.
func (s *Store) CreateRecipe(ctx context.Context, rec Recipe) (Recipe, error) {
	if strings.TrimSpace(rec.Title) == "" {
		return Recipe{}, fmt.Errorf("recipe title required")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO recipes (id, title, description, instructions, image_url, difficulty, season, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
RETURNING created_at, updated_at;
`, rec.ID, rec.Title, rec.Description, rec.Instructions, rec.ImageURL, rec.Difficulty, rec.Season).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Recipe{}, fmt.Errorf("create recipe: %w", err)
	}
	return rec, nil
}

// GetRecipe fetches a recipe by id.
func (s *Store) GetRecipe(ctx context.Context, id string) (Recipe, error) {
	var rec Recipe
	var imageURL, difficulty, season sql.NullString
	err := s.DB.QueryRowContext(ctx, `
SELECT id, title, description, instructions, image_url, difficulty, season, created_at, updated_at
FROM recipes WHERE id = $1;
`, id).Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Instructions, &imageURL, &difficulty, &season, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipe{}, ErrRecipeNotFound
	}
	if err != nil {
		return Recipe{}, fmt.Errorf("get recipe: %w", err)
	}
	rec.ImageURL = imageURL.String
	rec.Difficulty = difficulty.String
	rec.Season = season.String
	return rec, nil
}

// ListRecipes returns recipes newest-first.
func (s *Store) ListRecipes(ctx context.Context, limit int) ([]Recipe, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, description, instructions, image_url, difficulty, season, created_at, updated_at
FROM recipes ORDER BY created_at DESC LIMIT $1;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		var rec Recipe
		var imageURL, difficulty, season sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Instructions, &imageURL, &difficulty, &season, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list recipes: scan: %w", err)
		}
		rec.ImageURL = imageURL.String
		rec.Difficulty = difficulty.String
		rec.Season = season.String
		recipes = append(recipes, rec)
	}
	return recipes, rows.Err()
}

// UpdateRecipeImageURL rewrites the media URL once the image bytes have been
// copied to durable storage.
func (s *Store) UpdateRecipeImageURL(ctx context.Context, id, imageURL string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE recipes SET image_url = $2, updated_at = NOW() WHERE id = $1;
`, id, imageURL)
	if err != nil {
		return fmt.Errorf("update recipe image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
