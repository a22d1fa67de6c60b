package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func TestCreateChunk(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 3}

	insert := regexp.QuoteMeta(`
INSERT INTO chunks (document_id, chunk_index, content, embedding, created_at)
VALUES ($1,$2,$3,$4::vector,NOW())
RETURNING id, created_at;
`)
	reindex := regexp.QuoteMeta(`
UPDATE chunks SET content_tsv = to_tsvector('simple', unaccent(content)) WHERE id = $1;
`)

	mock.ExpectBegin()
	mock.ExpectQuery(insert).
		WithArgs("doc-1", 0, "braise the short ribs", "[0.1,0.2,0.3]").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))
	mock.ExpectExec(reindex).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	chunk, err := st.CreateChunk(context.Background(), "doc-1", 0, "braise the short ribs", []float32{0.1, 0.2, 0.3})
	if err != nil {
		t.Fatalf("CreateChunk: %v", err)
	}
	if chunk.ID != 7 || chunk.ChunkIndex != 0 {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateChunkDimensionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 1536}

	_, err = st.CreateChunk(context.Background(), "doc-1", 0, "text", []float32{0.1, 0.2})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	// No statement may have reached the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateChunkDuplicateIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 2}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chunks`)).
		WithArgs("doc-1", 4, "text", "[0.5,0.5]").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err = st.CreateChunk(context.Background(), "doc-1", 4, "text", []float32{0.5, 0.5})
	if !errors.Is(err, ErrDuplicateChunk) {
		t.Fatalf("expected ErrDuplicateChunk, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHybridSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 2}

	rows := sqlmock.NewRows([]string{"id", "document_id", "title", "content", "chunk_index", "distance", "text_rank"}).
		AddRow(int64(1), "doc-1", "Stews", "beef bourguignon", 0, 0.12, 0.4).
		AddRow(int64(2), "doc-2", "Soups", "onion soup", 3, 0.2, 0.0)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT c.id, c.document_id, d.title, c.content, c.chunk_index,
       c.embedding <=> $1::vector AS distance,
       COALESCE(ts_rank(c.content_tsv, plainto_tsquery('simple', unaccent($2))), 0) AS text_rank`)).
		WithArgs("[0.1,0.9]", "beef stew", 5).
		WillReturnRows(rows)

	results, err := st.HybridSearch(context.Background(), []float32{0.1, 0.9}, "beef stew", 5)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].TextRank != 0.4 || results[1].TextRank != 0 {
		t.Fatalf("unexpected text ranks: %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNearestByVector(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 2}

	rows := sqlmock.NewRows([]string{"id", "document_id", "title", "content", "chunk_index", "distance"}).
		AddRow(int64(9), "doc-1", "Baking", "sourdough starter", 2, 0.05)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY c.embedding <=> $1::vector
LIMIT $2;`)).
		WithArgs("[1,0]", 3).
		WillReturnRows(rows)

	results, err := st.NearestByVector(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("NearestByVector: %v", err)
	}
	if len(results) != 1 || results[0].Distance != 0.05 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVerifyDimensionsMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 1536}

	query := regexp.QuoteMeta(`SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'chunks'::regclass AND attname = 'embedding';`)
	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(int64(3072)))

	if err := st.verifyDimensions(context.Background()); err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVerifyDimensionsMatchAndUnmigrated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 1536}

	query := regexp.QuoteMeta(`SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'chunks'::regclass AND attname = 'embedding';`)
	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(int64(1536)))

	if err := st.verifyDimensions(context.Background()); err != nil {
		t.Fatalf("verifyDimensions with matching column: %v", err)
	}

	// A schema without the chunks table must not block startup.
	mock.ExpectQuery(query).
		WillReturnError(errors.New(`relation "chunks" does not exist`))

	if err := st.verifyDimensions(context.Background()); err != nil {
		t.Fatalf("verifyDimensions on unmigrated schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTryMarkProcessingConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dimensions: 2}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET status = $2, updated_at = NOW()
WHERE id = $1 AND status <> $2;`)).
		WithArgs("doc-1", DocumentStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, file_path, title, description, status, created_at, updated_at`)).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_path", "title", "description", "status", "created_at", "updated_at"}).
			AddRow("doc-1", "/docs/a.pdf", "A", nil, DocumentStatusProcessing, time.Now(), time.Now()))

	err = st.TryMarkProcessing(context.Background(), "doc-1")
	if !errors.Is(err, ErrDocumentProcessing) {
		t.Fatalf("expected ErrDocumentProcessing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
