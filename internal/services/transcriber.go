package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// defaultOutputSuffix is appended to the working-record name to form the
// deterministic output location for the transcription job.
const defaultOutputSuffix = ".json"

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
	".wmv":  true,
	".flv":  true,
	".mpg":  true,
	".mpeg": true,
}

// TranscriberConfig holds configuration for the transcription stage.
type TranscriberConfig struct {
	TranscriptBucket string
	LanguageCode     string
	OutputSuffix     string
	NotifyOnStart    bool
}

// Transcriber submits a working record for long-running transcription exactly
// once. The transcriptionStarted marker on the record guards redelivered
// events; the stage never waits for the job to finish.
type Transcriber struct {
	store     ObjectStore
	submitter TranscriptionSubmitter
	sender    Sender
	status    StatusStore
	config    TranscriberConfig
}

// NewTranscriber creates a fully wired Transcriber from the environment.
func NewTranscriber(ctx context.Context) (*Transcriber, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := TranscriberConfig{
		TranscriptBucket: gcp.GetEnv("TRANSCRIPT_BUCKET", ""),
		LanguageCode:     gcp.GetEnv("LANGUAGE_CODE", "en-US"),
		OutputSuffix:     gcp.GetEnv("OUTPUT_SUFFIX", defaultOutputSuffix),
		NotifyOnStart:    gcp.GetEnv("NOTIFY_ON_START", "") == "true",
	}
	if config.TranscriptBucket == "" {
		return nil, fmt.Errorf("TRANSCRIPT_BUCKET environment variable must be set")
	}

	store, err := gcp.NewGCSStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	submitter, err := gcp.NewSpeechSubmitter(ctx)
	if err != nil {
		return nil, err
	}
	firestoreStore, err := gcp.NewFirestoreStore(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore store: %w", err)
	}

	t := &Transcriber{
		store:     store,
		submitter: submitter,
		sender:    NewGomailSender(),
		status:    firestoreStore,
		config:    config,
	}
	slog.Info("Transcriber initialized.", "transcriptBucket", config.TranscriptBucket, "language", config.LanguageCode)
	return t, nil
}

// Start handles one working-record creation event.
func (t *Transcriber) Start(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	// The working bucket also holds the watermark object, whose writes raise
	// the same finalize event.
	if !isVideoName(e.Name) {
		logCtx.Info("Ignoring non-video object.")
		return nil
	}

	meta, err := t.store.Metadata(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to read working record metadata", "error", err)
		return err
	}
	if started, ok := meta[metaTranscriptionStarted]; ok {
		logCtx.Info("Transcription already started. Skipping.", "startedAt", started)
		return nil
	}

	inputURI := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	outputURI := fmt.Sprintf("gs://%s/%s%s", t.config.TranscriptBucket, e.Name, t.config.OutputSuffix)
	if err := t.submitter.Submit(ctx, inputURI, outputURI, t.config.LanguageCode); err != nil {
		logCtx.Error("Failed to submit transcription job", "error", err)
		return err
	}

	// Marker after submission: a crash between the two causes a duplicate
	// submission on retry, never a silent skip. Two deliveries racing past
	// the check above before either writes the marker is the known gap; a
	// metageneration precondition could close it, but every downstream write
	// is already safe to repeat.
	marker := map[string]string{metaTranscriptionStarted: time.Now().UTC().Format(time.RFC3339)}
	if err := t.store.PatchMetadata(ctx, e.Bucket, e.Name, marker); err != nil {
		logCtx.Error("Submitted job but failed to write start marker", "error", err)
		return err
	}
	logCtx.Info("Transcription job submitted.", "outputUri", outputURI)

	if err := t.status.SetStatus(ctx, e.Name, models.StatusTranscribing, ""); err != nil {
		logCtx.Warn("Failed to record item status.", "error", err)
	}

	// Only after the marker write, so a retried event cannot re-send it.
	if t.config.NotifyOnStart {
		mail := Mail{
			Subject: fmt.Sprintf("Transcription started: %s", e.Name),
			Body:    fmt.Sprintf("Transcription of %s has been submitted.\n", e.Name),
		}
		if err := t.sender.Send(ctx, mail); err != nil {
			logCtx.Warn("Failed to send start notification.", "error", err)
		}
	}
	return nil
}

func isVideoName(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}
