package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// defaultSyncSizeLimit is the largest item transferred within the triggering
// invocation; anything bigger goes to the out-of-band transfer job.
const defaultSyncSizeLimit = 1 << 30 // 1 GiB

// IngestorConfig holds configuration for the ingest path.
type IngestorConfig struct {
	MediaBucket   string
	SyncSizeLimit int64
}

// Ingestor moves a discovered item into working storage. Small items stream
// within the calling invocation; oversized items are dispatched to the
// transfer job, which has the long timeout budget. Both paths write the same
// working-record shape, so downstream stages never know which path ran.
type Ingestor struct {
	drive  Drive
	store  ObjectStore
	runner TransferRunner
	config IngestorConfig
}

// NewIngestor creates an Ingestor over the given dependencies.
func NewIngestor(drive Drive, store ObjectStore, runner TransferRunner, config IngestorConfig) *Ingestor {
	if config.SyncSizeLimit <= 0 {
		config.SyncSizeLimit = defaultSyncSizeLimit
	}
	return &Ingestor{drive: drive, store: store, runner: runner, config: config}
}

func newIngestorFromEnv(ctx context.Context, drive Drive, store ObjectStore) (*Ingestor, error) {
	mediaBucket := gcp.GetEnv("MEDIA_BUCKET", "")
	if mediaBucket == "" {
		return nil, fmt.Errorf("MEDIA_BUCKET environment variable must be set")
	}
	transferJob := gcp.GetEnv("TRANSFER_JOB", "")
	if transferJob == "" {
		return nil, fmt.Errorf("TRANSFER_JOB environment variable must be set")
	}
	runner, err := gcp.NewJobRunner(ctx, transferJob)
	if err != nil {
		return nil, err
	}

	limit := int64(defaultSyncSizeLimit)
	if raw := gcp.GetEnv("SYNC_SIZE_LIMIT_BYTES", ""); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("SYNC_SIZE_LIMIT_BYTES is not a number: %w", err)
		}
		limit = parsed
	}

	return NewIngestor(drive, store, runner, IngestorConfig{
		MediaBucket:   mediaBucket,
		SyncSizeLimit: limit,
	}), nil
}

// Ingest transfers one item, branching on size. Re-ingesting the same name
// overwrites the prior working record; the watermark prevents re-discovery of
// fully-processed items, and a retry before watermark advance is a safe
// overwrite of a possibly-partial transfer.
func (i *Ingestor) Ingest(ctx context.Context, item models.Item) error {
	if item.Size > i.config.SyncSizeLimit {
		slog.Info("Item over sync size limit. Dispatching transfer job.",
			"item", item.Name, "size", item.Size)
		return i.runner.RunTransfer(ctx, models.TransferArgs{
			FileID:         item.ID,
			Name:           item.Name,
			ParentFolderID: item.ParentFolderID,
		})
	}
	return i.Transfer(ctx, item)
}

// Transfer streams the item's bytes from the source into working storage.
// One scoped operation: the source reader and destination writer are both
// released on every exit path, and the destination's backpressure paces the
// source read. No full-payload buffering.
func (i *Ingestor) Transfer(ctx context.Context, item models.Item) error {
	reader, err := i.drive.Download(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to open source stream for %s: %w", item.Name, err)
	}
	defer reader.Close()

	writer := i.store.NewWriter(ctx, i.config.MediaBucket, item.Name, map[string]string{
		metaOriginalID:     item.ID,
		metaParentFolderID: item.ParentFolderID,
	})
	if _, err := io.Copy(writer, reader); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to stream %s into working storage: %w", item.Name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize working record for %s: %w", item.Name, err)
	}

	slog.Info("Ingested item into working storage.", "item", item.Name, "size", item.Size)
	return nil
}
