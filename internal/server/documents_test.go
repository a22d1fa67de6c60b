package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicooking/recipegen/internal/store"
)

type fakeDocumentStore struct {
	docs    map[string]store.Document
	created []store.Document
}

func (f *fakeDocumentStore) CreateDocument(_ context.Context, filePath, title, description string) (store.Document, error) {
	doc := store.Document{ID: "doc-1", FilePath: filePath, Title: title, Description: description, Status: store.DocumentStatusPending}
	f.created = append(f.created, doc)
	return doc, nil
}

func (f *fakeDocumentStore) GetDocument(_ context.Context, id string) (store.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return store.Document{}, store.ErrDocumentNotFound
	}
	return doc, nil
}

type fakeProcessor struct {
	err          error
	processed    []string
	batchedCalls int
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, id string) error {
	f.processed = append(f.processed, id)
	return f.err
}

func (f *fakeProcessor) ProcessDocumentBatched(_ context.Context, id string, _ int) error {
	f.batchedCalls++
	f.processed = append(f.processed, id)
	return f.err
}

type fakeDrive struct {
	data []byte
	err  error
}

func (f *fakeDrive) DownloadFile(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

func newDocumentsContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestProcessDocumentEndpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.pdf"), []byte("%PDF"), 0o644))

	st := &fakeDocumentStore{}
	proc := &fakeProcessor{}
	h := &DocumentsHandler{Store: st, Pipeline: proc, DocumentsDir: dir, PagesPerBatch: 10}

	c, rec := newDocumentsContext(t, http.MethodPost, "/api/documents/process", `{"file_name":"book.pdf"}`)
	require.NoError(t, h.process(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"document_id":"doc-1"`)
	require.Len(t, st.created, 1)
	assert.Equal(t, filepath.Join(dir, "book.pdf"), st.created[0].FilePath)
	assert.Equal(t, []string{"doc-1"}, proc.processed)
	assert.Zero(t, proc.batchedCalls)
}

func TestProcessDocumentMissingFileName(t *testing.T) {
	h := &DocumentsHandler{Store: &fakeDocumentStore{}, Pipeline: &fakeProcessor{}, DocumentsDir: t.TempDir()}

	c, _ := newDocumentsContext(t, http.MethodPost, "/api/documents/process", `{}`)
	err := h.process(c)

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestProcessDocumentFileAbsent(t *testing.T) {
	h := &DocumentsHandler{Store: &fakeDocumentStore{}, Pipeline: &fakeProcessor{}, DocumentsDir: t.TempDir()}

	c, _ := newDocumentsContext(t, http.MethodPost, "/api/documents/process", `{"file_name":"nope.pdf"}`)
	err := h.process(c)

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestProcessDocumentBatchedFlag(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.pdf"), []byte("%PDF"), 0o644))

	proc := &fakeProcessor{}
	h := &DocumentsHandler{Store: &fakeDocumentStore{}, Pipeline: proc, DocumentsDir: dir, PagesPerBatch: 10}

	c, rec := newDocumentsContext(t, http.MethodPost, "/api/documents/process", `{"file_name":"book.pdf","batched":true}`)
	require.NoError(t, h.process(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, proc.batchedCalls)
}

func TestProcessDocumentViaDriveConversion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.pdf"), []byte("%PDF"), 0o644))

	local := &fakeProcessor{}
	drive := &fakeProcessor{}
	h := &DocumentsHandler{Store: &fakeDocumentStore{}, Pipeline: local, DrivePipeline: drive, DocumentsDir: dir}

	c, rec := newDocumentsContext(t, http.MethodPost, "/api/documents/process", `{"file_name":"book.pdf","use_google_drive":true}`)
	require.NoError(t, h.process(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, local.processed)
	assert.Equal(t, []string{"doc-1"}, drive.processed)

	// Without Drive configured the request is refused up front.
	h.DrivePipeline = nil
	c, _ = newDocumentsContext(t, http.MethodPost, "/api/documents/process", `{"file_name":"book.pdf","use_google_drive":true}`)
	err := h.process(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusServiceUnavailable, he.Code)
}

func TestProcessDocumentConflict(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.pdf"), []byte("%PDF"), 0o644))

	h := &DocumentsHandler{
		Store:        &fakeDocumentStore{},
		Pipeline:     &fakeProcessor{err: store.ErrDocumentProcessing},
		DocumentsDir: dir,
	}

	c, _ := newDocumentsContext(t, http.MethodPost, "/api/documents/process", `{"file_name":"book.pdf"}`)
	err := h.process(c)

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusConflict, he.Code)
}

func TestProcessDriveEndpoint(t *testing.T) {
	dir := t.TempDir()
	proc := &fakeProcessor{}
	st := &fakeDocumentStore{}
	h := &DocumentsHandler{Store: st, Pipeline: proc, Drive: &fakeDrive{data: []byte("%PDF")}, DocumentsDir: dir}

	c, rec := newDocumentsContext(t, http.MethodPost, "/api/documents/process-drive", `{"drive_file_id":"abc123"}`)
	require.NoError(t, h.processDrive(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, st.created, 1)
	assert.Equal(t, "abc123", st.created[0].Title)

	// The downloaded file is kept in the documents dir so the document can
	// be re-processed from its stored file_path.
	assert.Equal(t, filepath.Join(dir, "drive_abc123.pdf"), st.created[0].FilePath)
	data, err := os.ReadFile(st.created[0].FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)
	assert.Equal(t, []string{"doc-1"}, proc.processed)
}

func TestProcessDriveUnconfigured(t *testing.T) {
	h := &DocumentsHandler{Store: &fakeDocumentStore{}, Pipeline: &fakeProcessor{}}

	c, _ := newDocumentsContext(t, http.MethodPost, "/api/documents/process-drive", `{"drive_file_id":"abc123"}`)
	err := h.processDrive(c)

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusServiceUnavailable, he.Code)
}

func TestDocumentStatusEndpoint(t *testing.T) {
	st := &fakeDocumentStore{docs: map[string]store.Document{
		"doc-1": {ID: "doc-1", Title: "Book", Status: store.DocumentStatusProcessed},
	}}
	h := &DocumentsHandler{Store: st, Pipeline: &fakeProcessor{}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("doc-1")

	require.NoError(t, h.status(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"processed"`)

	c.SetParamValues("missing")
	err := h.status(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Code)
}
