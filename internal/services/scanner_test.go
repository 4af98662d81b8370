package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

func newTestScanner(drive *fakeDrive, store *fakeObjectStore, runner *fakeRunner) *Scanner {
	config := ScannerConfig{
		RootFolderID:    testRoot,
		MediaBucket:     "media",
		WatermarkObject: "last_checked.txt",
		MaxDuration:     3 * time.Hour,
		Lookback:        24 * time.Hour,
		MaxFolders:      100,
		DispatchLimit:   2,
	}
	ingestor := NewIngestor(drive, store, runner, IngestorConfig{
		MediaBucket:   "media",
		SyncSizeLimit: 1 << 30,
	})
	return &Scanner{
		drive:    drive,
		store:    store,
		ingestor: ingestor,
		status:   newFakeStatusStore(),
		config:   config,
	}
}

func video(id, name string, created time.Time, durationMillis, size int64) models.Item {
	return models.Item{
		ID:             id,
		Name:           name,
		MimeType:       "video/mp4",
		Size:           size,
		CreatedTime:    created,
		DurationMillis: durationMillis,
		ParentFolderID: testRoot,
	}
}

func TestScanDurationCeilingAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	drive := newFakeDrive()
	drive.videos = []models.Item{
		video("id-short", "short.mp4", base.Add(1*time.Minute), (2 * time.Hour).Milliseconds(), 100),
		video("id-long", "long.mp4", base.Add(2*time.Minute), (4 * time.Hour).Milliseconds(), 100),
	}
	drive.fileContent["id-short"] = []byte("short bytes")
	drive.fileContent["id-long"] = []byte("long bytes")

	store := newFakeObjectStore()
	store.put("media", "last_checked.txt", []byte(base.Format(time.RFC3339)), nil)
	scanner := newTestScanner(drive, store, &fakeRunner{})

	require.NoError(t, scanner.Scan(ctx))

	// The short item was ingested; the over-ceiling one was judged and
	// permanently skipped.
	assert.True(t, store.has("media", "short.mp4"))
	assert.False(t, store.has("media", "long.mp4"))

	// The watermark advanced past the skipped item, so it is never retried.
	watermark := strings.TrimSpace(store.content("media", "last_checked.txt"))
	assert.Equal(t, base.Add(2*time.Minute).Format(time.RFC3339), watermark)

	// A second scan sees nothing new.
	require.NoError(t, scanner.Scan(ctx))
	assert.False(t, store.has("media", "long.mp4"))
}

func TestScanFractionalCreatedTimeIsNotRediscovered(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	drive := newFakeDrive()
	drive.videos = []models.Item{
		video("id-frac", "frac.mp4", base.Add(1*time.Minute+500*time.Millisecond), 0, 100),
	}
	drive.fileContent["id-frac"] = []byte("frac bytes")
	store := newFakeObjectStore()
	store.put("media", "last_checked.txt", []byte(base.Format(time.RFC3339)), nil)
	scanner := newTestScanner(drive, store, &fakeRunner{})

	require.NoError(t, scanner.Scan(ctx))
	require.True(t, store.has("media", "frac.mp4"))

	// The stored watermark keeps the sub-second fraction; a truncated one
	// would sort before the item and re-yield it forever.
	watermark := strings.TrimSpace(store.content("media", "last_checked.txt"))
	assert.Equal(t, base.Add(1*time.Minute+500*time.Millisecond).Format(time.RFC3339Nano), watermark)

	// The next stage stamps its marker onto the working record.
	require.NoError(t, store.PatchMetadata(ctx, "media", "frac.mp4", map[string]string{
		metaTranscriptionStarted: "2025-06-01T10:02:00Z",
	}))

	// A second scan must not re-ingest: re-writing the working record would
	// replace its metadata and wipe the marker.
	require.NoError(t, scanner.Scan(ctx))
	meta, err := store.Metadata(ctx, "media", "frac.mp4")
	require.NoError(t, err)
	assert.NotEmpty(t, meta[metaTranscriptionStarted], "re-discovery wiped the start marker")
}

func TestScanOversizedItemGoesToTransferJob(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	drive := newFakeDrive()
	drive.videos = []models.Item{
		video("id-big", "big.mp4", base.Add(1*time.Minute), (1 * time.Hour).Milliseconds(), 2<<30),
	}
	store := newFakeObjectStore()
	store.put("media", "last_checked.txt", []byte(base.Format(time.RFC3339)), nil)
	runner := &fakeRunner{}
	scanner := newTestScanner(drive, store, runner)

	require.NoError(t, scanner.Scan(ctx))

	require.Len(t, runner.runs, 1)
	assert.Equal(t, models.TransferArgs{FileID: "id-big", Name: "big.mp4", ParentFolderID: testRoot}, runner.runs[0])
	assert.False(t, store.has("media", "big.mp4"), "oversized items are not streamed in-process")

	// The job path still counts as dispatched, so the watermark advances.
	watermark := strings.TrimSpace(store.content("media", "last_checked.txt"))
	assert.Equal(t, base.Add(1*time.Minute).Format(time.RFC3339), watermark)
}

func TestScanQueryFailureDoesNotAdvanceWatermark(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	drive := newFakeDrive()
	drive.videosErr = errors.New("backend unavailable")
	store := newFakeObjectStore()
	store.put("media", "last_checked.txt", []byte(base.Format(time.RFC3339)), nil)
	scanner := newTestScanner(drive, store, &fakeRunner{})

	require.Error(t, scanner.Scan(ctx))
	assert.Equal(t, base.Format(time.RFC3339), strings.TrimSpace(store.content("media", "last_checked.txt")))
}

func TestScanMissingWatermarkUsesLookback(t *testing.T) {
	ctx := context.Background()

	drive := newFakeDrive()
	// One item inside the lookback window, one before it.
	drive.videos = []models.Item{
		video("id-old", "old.mp4", time.Now().Add(-48*time.Hour), 0, 100),
		video("id-new", "new.mp4", time.Now().Add(-1*time.Hour), 0, 100),
	}
	drive.fileContent["id-new"] = []byte("new bytes")
	store := newFakeObjectStore()
	scanner := newTestScanner(drive, store, &fakeRunner{})

	require.NoError(t, scanner.Scan(ctx))
	assert.True(t, store.has("media", "new.mp4"))
	assert.False(t, store.has("media", "old.mp4"))
}

// recordingStatusStore lets a test observe each status write as it happens.
type recordingStatusStore struct {
	*fakeStatusStore
	onSet func(name, status string)
}

func (s *recordingStatusStore) SetStatus(ctx context.Context, name, status, detail string) error {
	if s.onSet != nil {
		s.onSet(name, status)
	}
	return s.fakeStatusStore.SetStatus(ctx, name, status, detail)
}

func TestScanRecordsDiscoveredBeforeIngest(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	drive := newFakeDrive()
	drive.videos = []models.Item{
		video("id-short", "short.mp4", base.Add(1*time.Minute), 0, 100),
	}
	drive.fileContent["id-short"] = []byte("short bytes")
	store := newFakeObjectStore()
	store.put("media", "last_checked.txt", []byte(base.Format(time.RFC3339)), nil)
	scanner := newTestScanner(drive, store, &fakeRunner{})

	// DISCOVERED must land before the working record exists: once it exists,
	// the finalize-triggered stage may already have advanced the status, and a
	// late write would regress it.
	scanner.status = &recordingStatusStore{
		fakeStatusStore: newFakeStatusStore(),
		onSet: func(name, status string) {
			if status == models.StatusDiscovered {
				assert.False(t, store.has("media", name), "status written after ingest")
			}
		},
	}

	require.NoError(t, scanner.Scan(ctx))
	assert.True(t, store.has("media", "short.mp4"))
}

func TestWalkFoldersVisitsTreeBreadthFirst(t *testing.T) {
	drive := newFakeDrive()
	drive.childFolders[testRoot] = []string{"a", "b"}
	drive.childFolders["a"] = []string{"a1"}
	scanner := newTestScanner(drive, newFakeObjectStore(), &fakeRunner{})

	folders, err := scanner.walkFolders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{testRoot, "a", "b", "a1"}, folders)
}

func TestWalkFoldersCap(t *testing.T) {
	drive := newFakeDrive()
	drive.childFolders[testRoot] = []string{"a", "b", "c"}
	scanner := newTestScanner(drive, newFakeObjectStore(), &fakeRunner{})
	scanner.config.MaxFolders = 2

	_, err := scanner.walkFolders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap")
}
