package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/botrag-go/internal/ingestion"
	"github.com/54b3r/botrag-go/internal/logging"
)

// NewIngestCmd constructs the `botrag ingest` command, which runs the
// ingestion pipeline for one document read from disk or fetched by URL.
func NewIngestCmd() *cobra.Command {
	var (
		botID        int64
		documentID   string
		file         string
		url          string
		metadataJSON string
		chunkSize    int
		chunkOverlap int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store one document for a bot",
		Long: `Extract text from a document, split it into overlapping chunks, embed
every chunk and store them under the given bot and document id.

Re-ingesting an existing document id replaces its chunks. Text, markdown,
HTML and PDF are supported; the format is inferred from the file name, the
URL or the response content type.

Examples:
  botrag ingest --bot 7 --document handbook --file ./handbook.pdf
  botrag ingest --bot 7 --document faq --url https://example.com/faq.html
  botrag ingest --bot 7 --document notes --file notes.md --metadata '{"team":"support"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if err := requireBot(botID); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if documentID == "" {
				return fmt.Errorf("ingest: --document is required")
			}
			if (file == "") == (url == "") {
				return fmt.Errorf("ingest: exactly one of --file or --url is required")
			}

			var metadata map[string]any
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("ingest: --metadata must be a JSON object: %w", err)
				}
			}

			rt, err := buildRuntime(ctx, settings, log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer rt.Close()

			pipeline, err := ingestion.NewPipeline(rt.client, rt.store, ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				Logger:       log,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			var res *ingestion.Result
			if url != "" {
				res, err = pipeline.IngestURL(ctx, botID, documentID, url, metadata)
			} else {
				var content []byte
				content, err = os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				res, err = pipeline.Ingest(ctx, ingestion.Document{
					TenantID:   botID,
					DocumentID: documentID,
					Name:       filepath.Base(file),
					Content:    content,
					Metadata:   metadata,
				})
			}
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.String("document_id", res.DocumentID),
				slog.Int("chunks", res.Chunks),
				slog.Int("stored", res.Stored),
				slog.Int("failed", res.Failed),
			)
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Int64VarP(&botID, "bot", "b", 0, "Bot (tenant) id that owns the document")
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "Document id; re-ingesting replaces its chunks")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path of the document to ingest")
	cmd.Flags().StringVarP(&url, "url", "u", "", "URL of the document to fetch and ingest")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "Extra chunk metadata as a JSON object")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", ingestion.DefaultChunkSize, "Maximum characters per chunk")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", ingestion.DefaultChunkOverlap, "Characters shared by consecutive chunks")

	return cmd
}
