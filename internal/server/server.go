package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aicooking/recipegen/config"
	"github.com/aicooking/recipegen/internal/blob"
	"github.com/aicooking/recipegen/internal/chunker"
	"github.com/aicooking/recipegen/internal/extractor"
	"github.com/aicooking/recipegen/internal/generate"
	"github.com/aicooking/recipegen/internal/ingest"
	"github.com/aicooking/recipegen/internal/search"
	"github.com/aicooking/recipegen/internal/store"
	"github.com/aicooking/recipegen/provider"
)

// Run wires every component from configuration and serves the HTTP API.
func Run(cfgPath, addr string) error {
	cfg := config.LoadConfig(cfgPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		baseLogger.Printf("migrate: %v", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Storage.Postgres.DSN(), cfg.Provider.OpenAI.EmbeddingDimensions)
	if err != nil {
		return err
	}
	prov, err := provider.New(cfg.Provider.OpenAI)
	if err != nil {
		return err
	}
	tok, err := chunker.NewTiktoken()
	if err != nil {
		return err
	}

	pipeline, err := ingest.NewPipeline(st, prov, extractor.NewLocal(), tok,
		cfg.Ingest.WindowTokens, cfg.Ingest.OverlapTokens,
		log.New(log.Writer(), "[INGEST] ", log.LstdFlags))
	if err != nil {
		return err
	}

	var cache search.EmbeddingCache
	if cfg.Storage.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
		}
		cache = search.NewRedisCache(rdb, cfg.Provider.OpenAI.EmbeddingModel, cfg.Search.QueryCacheTTL, baseLogger)
	}
	searcher := search.NewSearcher(st, prov, cache, log.New(log.Writer(), "[SEARCH] ", log.LstdFlags))

	blobs, err := blob.NewStorage(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		return err
	}
	e.Static("/media", blobs.Dir())

	generator := generate.NewGenerator(searcher, prov, st, blobs, nil, generate.Options{
		NumExamples:    cfg.Generate.NumExamples,
		Illustrate:     cfg.Generate.Illustrate,
		ImageSize:      cfg.Media.ImageSize,
		ImageQuality:   cfg.Media.ImageQuality,
		PlaceholderURL: cfg.Media.PlaceholderURL,
	}, log.New(log.Writer(), "[GENERATE] ", log.LstdFlags))

	var drive DriveSource
	var drivePipeline DocumentProcessor
	if cfg.Ingest.DriveCredentialsFile != "" {
		dc, err := extractor.NewDriveConversion(ctx, cfg.Ingest.DriveCredentialsFile)
		if err != nil {
			return err
		}
		drive = dc
		drivePipeline, err = ingest.NewPipeline(st, prov, dc, tok,
			cfg.Ingest.WindowTokens, cfg.Ingest.OverlapTokens,
			log.New(log.Writer(), "[INGEST] ", log.LstdFlags))
		if err != nil {
			return err
		}
	}

	api := e.Group("/api")
	dh := &DocumentsHandler{
		Store:         st,
		Pipeline:      pipeline,
		DrivePipeline: drivePipeline,
		Drive:         drive,
		DocumentsDir:  cfg.Ingest.DocumentsDir,
		PagesPerBatch: cfg.Ingest.PagesPerBatch,
	}
	dh.Register(api.Group("/documents"))

	rh := &RecipesHandler{
		Store:        st,
		Searcher:     searcher,
		Generator:    generator,
		DefaultLimit: cfg.Search.DefaultLimit,
	}
	rh.Register(api.Group("/recipes"))

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":10002"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
