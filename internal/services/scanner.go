package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// ScannerConfig holds all configuration for the scanner service.
type ScannerConfig struct {
	RootFolderID    string
	MediaBucket     string
	WatermarkObject string
	MaxDuration     time.Duration
	Lookback        time.Duration
	MaxFolders      int
	DispatchLimit   int
}

// Scanner enumerates new videos in the watched folder tree since the saved
// watermark and hands them to the ingestor. The watermark only advances after
// every discovered item has been dispatched, so a failed scan retries the
// same window.
type Scanner struct {
	drive    Drive
	store    ObjectStore
	ingestor *Ingestor
	status   StatusStore
	config   ScannerConfig
}

// NewScanner creates a fully wired Scanner from the environment.
func NewScanner(ctx context.Context) (*Scanner, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := ScannerConfig{
		RootFolderID:    gcp.GetEnv("DRIVE_ROOT_FOLDER_ID", ""),
		MediaBucket:     gcp.GetEnv("MEDIA_BUCKET", ""),
		WatermarkObject: gcp.GetEnv("WATERMARK_OBJECT", "last_checked.txt"),
		MaxDuration:     envHours("MAX_DURATION_HOURS", 3),
		Lookback:        envHours("SCAN_LOOKBACK_HOURS", 24),
		MaxFolders:      envInt("MAX_FOLDERS", 1000),
		DispatchLimit:   envInt("INGEST_CONCURRENCY", 4),
	}
	if config.RootFolderID == "" || config.MediaBucket == "" {
		return nil, fmt.Errorf("DRIVE_ROOT_FOLDER_ID and MEDIA_BUCKET must be set")
	}

	drive, err := gcp.NewDriveClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	store, err := gcp.NewGCSStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreStore, err := gcp.NewFirestoreStore(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore store: %w", err)
	}
	ingestor, err := newIngestorFromEnv(ctx, drive, store)
	if err != nil {
		return nil, err
	}

	s := &Scanner{
		drive:    drive,
		store:    store,
		ingestor: ingestor,
		status:   firestoreStore,
		config:   config,
	}
	slog.Info("Scanner initialized.", "root", config.RootFolderID, "maxDuration", config.MaxDuration.String())
	return s, nil
}

// Scan runs one pass: walk the tree, ingest new videos, advance the
// watermark.
func (s *Scanner) Scan(ctx context.Context) error {
	logCtx := slog.With("root", s.config.RootFolderID)

	watermark, err := s.readWatermark(ctx)
	if err != nil {
		return err
	}
	logCtx.Info("Starting scan.", "watermark", watermark.Format(time.RFC3339))

	folders, err := s.walkFolders(ctx)
	if err != nil {
		return err
	}

	items, err := s.drive.NewVideos(ctx, folders, watermark)
	if err != nil {
		logCtx.Error("Failed to query new videos. Watermark not advanced.", "error", err)
		return err
	}
	if len(items) == 0 {
		logCtx.Info("No new items.")
		return nil
	}

	// Every seen item advances the watermark, including those the duration
	// policy excludes: they are judged once and never retried.
	newWatermark := watermark
	var eligible []models.Item
	for _, item := range items {
		if item.CreatedTime.After(newWatermark) {
			newWatermark = item.CreatedTime
		}
		if s.overDurationCeiling(item) {
			logCtx.Info("Skipping item over the duration ceiling.",
				"item", item.Name,
				"durationMillis", item.DurationMillis,
				"ceiling", s.config.MaxDuration.String(),
			)
			continue
		}
		eligible = append(eligible, item)
	}
	logCtx.Info("Scan found new items.", "total", len(items), "eligible", len(eligible))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.config.DispatchLimit)
	for _, item := range eligible {
		item := item
		eg.Go(func() error {
			// Status before ingest: the finalize event fired by the ingest may
			// already have moved the item to TRANSCRIBING, and a late
			// DISCOVERED write would regress it.
			if err := s.status.SetStatus(gctx, item.Name, models.StatusDiscovered, ""); err != nil {
				slog.Warn("Failed to record item status.", "item", item.Name, "error", err)
			}
			if err := s.ingestor.Ingest(gctx, item); err != nil {
				return fmt.Errorf("ingest %s: %w", item.Name, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("One or more items failed to ingest. Watermark not advanced.", "error", err)
		return err
	}

	if err := s.writeWatermark(ctx, newWatermark); err != nil {
		return err
	}
	logCtx.Info("Scan complete.", "newWatermark", newWatermark.Format(time.RFC3339))
	return nil
}

// walkFolders enumerates the watched tree breadth-first with an explicit
// queue. Source trees are acyclic by platform construction, but the visited
// set and the folder cap keep a misconfigured root from walking forever.
func (s *Scanner) walkFolders(ctx context.Context) ([]string, error) {
	root := strings.TrimRight(s.config.RootFolderID, "/")
	queue := []string{root}
	visited := map[string]bool{root: true}
	var folders []string

	for len(queue) > 0 {
		folderID := queue[0]
		queue = queue[1:]
		folders = append(folders, folderID)
		if len(folders) > s.config.MaxFolders {
			return nil, fmt.Errorf("folder walk exceeded cap of %d folders", s.config.MaxFolders)
		}

		children, err := s.drive.ChildFolders(ctx, folderID)
		if err != nil {
			return nil, fmt.Errorf("failed to walk folder %s: %w", folderID, err)
		}
		for _, child := range children {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}
	return folders, nil
}

func (s *Scanner) overDurationCeiling(item models.Item) bool {
	if item.DurationMillis <= 0 {
		return false
	}
	return time.Duration(item.DurationMillis)*time.Millisecond > s.config.MaxDuration
}

func (s *Scanner) readWatermark(ctx context.Context) (time.Time, error) {
	data, err := s.store.Read(ctx, s.config.MediaBucket, s.config.WatermarkObject)
	if errors.Is(err, models.ErrNotFound) {
		return time.Now().Add(-s.config.Lookback), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	watermark, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("watermark object is corrupt: %w", err)
	}
	return watermark, nil
}

func (s *Scanner) writeWatermark(ctx context.Context, watermark time.Time) error {
	// Full precision: createdTime carries sub-second fractions, and a
	// truncated watermark would re-yield the newest item on every scan.
	content := []byte(watermark.UTC().Format(time.RFC3339Nano))
	if err := s.store.Overwrite(ctx, s.config.MediaBucket, s.config.WatermarkObject, content); err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	return nil
}

func envHours(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Hour
}

func envInt(key string, fallback int) int {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment value.", "key", key, "value", raw)
		return fallback
	}
	return v
}
