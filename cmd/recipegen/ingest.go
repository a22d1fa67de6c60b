package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aicooking/recipegen/config"
	"github.com/aicooking/recipegen/internal/chunker"
	"github.com/aicooking/recipegen/internal/extractor"
	"github.com/aicooking/recipegen/internal/ingest"
	"github.com/aicooking/recipegen/internal/store"
	"github.com/aicooking/recipegen/provider"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var title string
	var description string
	var batched bool

	var cmd = &cobra.Command{
		Use:   "ingest <file>",
		Short: "Process one document from the documents directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()

			path := filepath.Join(cfg.Ingest.DocumentsDir, filepath.Base(args[0]))
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("file not found: %s", path)
			}

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

			if title == "" {
				title = filepath.Base(args[0])
			}
			doc, err := st.CreateDocument(ctx, path, title, description)
			if err != nil {
				return err
			}

			if batched {
				err = pipeline.ProcessDocumentBatched(ctx, doc.ID, cfg.Ingest.PagesPerBatch)
			} else {
				err = pipeline.ProcessDocument(ctx, doc.ID)
			}
			if err != nil {
				return err
			}

			final, err := st.GetDocument(ctx, doc.ID)
			if err != nil {
				return err
			}
			fmt.Printf("document %s: %s\n", final.ID, final.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVar(&title, "title", "", "document title (default file name)")
	cmd.Flags().StringVar(&description, "description", "", "document description")
	cmd.Flags().BoolVar(&batched, "batched", false, "process in page groups")

	return cmd
}
