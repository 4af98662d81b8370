// The transfer worker is the out-of-band path for items too large to stream
// within a function invocation. It runs as a Cloud Run Job: the job
// definition carries the 24-hour timeout and the bounded retry count, and
// each execution receives one item's identity as arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/services"
)

const maxAttempts = 4

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	fileID := flag.String("file-id", "", "Drive file ID of the item to transfer")
	name := flag.String("name", "", "item name, used as the working record name")
	parent := flag.String("parent", "", "Drive parent folder ID of the item")
	flag.Parse()

	if err := run(context.Background(), *fileID, *name, *parent); err != nil {
		slog.Error("Transfer failed.", "item", *name, "error", err)
		os.Exit(1)
	}
	slog.Info("Transfer complete.", "item", *name)
}

func run(ctx context.Context, fileID, name, parent string) error {
	if fileID == "" || name == "" {
		return fmt.Errorf("--file-id and --name must be provided")
	}
	mediaBucket := gcp.GetEnv("MEDIA_BUCKET", "")
	if mediaBucket == "" {
		return fmt.Errorf("MEDIA_BUCKET environment variable must be set")
	}

	drive, err := gcp.NewDriveClient(ctx)
	if err != nil {
		return err
	}
	store, err := gcp.NewGCSStore(ctx)
	if err != nil {
		return err
	}
	ingestor := services.NewIngestor(drive, store, nil, services.IngestorConfig{MediaBucket: mediaBucket})

	item := models.Item{ID: fileID, Name: name, ParentFolderID: parent}

	// Re-running after a partial transfer overwrites the working record, so
	// each attempt starts clean.
	backoff := 5 * time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = ingestor.Transfer(ctx, item)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		slog.Warn("Transfer attempt failed, will retry.",
			"item", name,
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"backoff", backoff.String(),
			"error", lastErr,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("transfer of %s failed after %d attempts: %w", name, maxAttempts, lastErr)
}
