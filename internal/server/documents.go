package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/aicooking/recipegen/internal/store"
)

// DocumentProcessor runs the ingestion pipeline for one document.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID string) error
	ProcessDocumentBatched(ctx context.Context, documentID string, pagesPerGroup int) error
}

// DocumentStore is the document surface the handlers need.
type DocumentStore interface {
	CreateDocument(ctx context.Context, filePath, title, description string) (store.Document, error)
	GetDocument(ctx context.Context, id string) (store.Document, error)
}

// DriveSource downloads source files hosted on Google Drive.
type DriveSource interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

type DocumentsHandler struct {
	Store DocumentStore
	// Pipeline extracts locally; DrivePipeline round-trips the file through
	// Google Drive's conversion and is nil when Drive is not configured.
	Pipeline      DocumentProcessor
	DrivePipeline DocumentProcessor
	Drive         DriveSource
	DocumentsDir  string
	PagesPerBatch int
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	g.POST("/process", h.process)
	g.POST("/process-drive", h.processDrive)
	g.GET("/:id/status", h.status)
}

func (h *DocumentsHandler) process(c echo.Context) error {
	var req struct {
		FileName       string `json:"file_name"`
		Title          string `json:"title"`
		Description    string `json:"description"`
		UseGoogleDrive bool   `json:"use_google_drive"`
		Batched        bool   `json:"batched"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.FileName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file_name required")
	}
	if req.UseGoogleDrive && h.DrivePipeline == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "google drive not configured")
	}

	path := filepath.Join(h.DocumentsDir, filepath.Base(req.FileName))
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found: "+req.FileName)
	}

	title := req.Title
	if title == "" {
		title = req.FileName
	}
	doc, err := h.Store.CreateDocument(c.Request().Context(), path, title, req.Description)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pipeline := h.Pipeline
	if req.UseGoogleDrive {
		pipeline = h.DrivePipeline
	}
	if err := h.runPipeline(c.Request().Context(), pipeline, doc.ID, req.Batched); err != nil {
		return pipelineError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message":     "document processed",
		"document_id": doc.ID,
	})
}

func (h *DocumentsHandler) processDrive(c echo.Context) error {
	if h.Drive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "google drive not configured")
	}
	var req struct {
		DriveFileID string `json:"drive_file_id"`
		Title       string `json:"title"`
		Batched     bool   `json:"batched"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DriveFileID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "drive_file_id required")
	}

	ctx := c.Request().Context()
	data, err := h.Drive.DownloadFile(ctx, req.DriveFileID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "drive download failed: "+err.Error())
	}

	// The file is kept in the documents directory so the stored file_path
	// stays valid for later re-processing.
	if err := os.MkdirAll(h.DocumentsDir, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	path := filepath.Join(h.DocumentsDir, "drive_"+filepath.Base(req.DriveFileID)+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	title := req.Title
	if title == "" {
		title = req.DriveFileID
	}
	doc, err := h.Store.CreateDocument(ctx, path, title, "imported from google drive")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.runPipeline(ctx, h.Pipeline, doc.ID, req.Batched); err != nil {
		return pipelineError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message":     "document processed",
		"document_id": doc.ID,
	})
}

func (h *DocumentsHandler) runPipeline(ctx context.Context, pipeline DocumentProcessor, documentID string, batched bool) error {
	if batched {
		return pipeline.ProcessDocumentBatched(ctx, documentID, h.PagesPerBatch)
	}
	return pipeline.ProcessDocument(ctx, documentID)
}

func (h *DocumentsHandler) status(c echo.Context) error {
	doc, err := h.Store.GetDocument(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrDocumentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":         doc.ID,
		"status":     doc.Status,
		"title":      doc.Title,
		"created_at": doc.CreatedAt,
	})
}

func pipelineError(err error) error {
	if errors.Is(err, store.ErrDocumentProcessing) {
		return echo.NewHTTPError(http.StatusConflict, "document is already being processed")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
