package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

const defaultModel = "gemini-1.5-flash"

// NotifierConfig holds configuration for the analysis & notification stage.
type NotifierConfig struct {
	MediaBucket      string
	TranscriptBucket string
	OutputSuffix     string
}

// Notifier terminates the pipeline for one item: it formats the finished
// transcription, optionally runs AI analysis, persists the derived artifacts,
// sends the notification, and cleans up the source. The notificationSent
// marker on the output record guards redelivered events.
type Notifier struct {
	store    ObjectStore
	drive    Drive
	resolver *Resolver
	analyzer Analyzer
	sender   Sender
	status   StatusStore
	config   NotifierConfig
	now      func() time.Time
}

// NewNotifier creates a fully wired Notifier from the environment.
func NewNotifier(ctx context.Context) (*Notifier, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	rootFolderID := gcp.GetEnv("DRIVE_ROOT_FOLDER_ID", "")
	if rootFolderID == "" {
		return nil, fmt.Errorf("DRIVE_ROOT_FOLDER_ID environment variable must be set")
	}
	config := NotifierConfig{
		MediaBucket:      gcp.GetEnv("MEDIA_BUCKET", ""),
		TranscriptBucket: gcp.GetEnv("TRANSCRIPT_BUCKET", ""),
		OutputSuffix:     gcp.GetEnv("OUTPUT_SUFFIX", defaultOutputSuffix),
	}
	if config.MediaBucket == "" || config.TranscriptBucket == "" {
		return nil, fmt.Errorf("MEDIA_BUCKET and TRANSCRIPT_BUCKET must be set")
	}

	store, err := gcp.NewGCSStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	drive, err := gcp.NewDriveClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	firestoreStore, err := gcp.NewFirestoreStore(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore store: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, projectID, gcp.GetEnv("VERTEX_AI_REGION", "us-central1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	n := &Notifier{
		store:    store,
		drive:    drive,
		resolver: NewResolver(firestoreStore, drive, rootFolderID, gcp.GetEnv("DEFAULT_MODEL", defaultModel)),
		analyzer: NewAnalysisClient(vertexClient, gcp.GetEnv("ANTHROPIC_API_KEY", "")),
		sender:   NewGomailSender(),
		status:   firestoreStore,
		config:   config,
		now:      time.Now,
	}
	slog.Info("Notifier initialized.", "transcriptBucket", config.TranscriptBucket)
	return n, nil
}

// Handle processes one transcription-output creation event.
func (n *Notifier) Handle(ctx context.Context, e models.GCSEvent) error {
	// The transcript bucket also receives our own derived artifacts.
	if !strings.HasSuffix(e.Name, n.config.OutputSuffix) {
		slog.Info("Ignoring object without output suffix.", "gcsObject", e.Name)
		return nil
	}
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	meta, err := n.store.Metadata(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to read output record metadata", "error", err)
		return err
	}
	if sentAt, ok := meta[metaNotificationSent]; ok {
		logCtx.Info("Notification already sent. Skipping.", "sentAt", sentAt)
		return nil
	}

	data, err := n.store.Read(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to read output record", "error", err)
		return err
	}
	result, err := models.ParseTranscriptionResult(data)
	if err != nil {
		logCtx.Error("Rejecting malformed output record", "error", err)
		return err
	}

	base := strings.TrimSuffix(e.Name, n.config.OutputSuffix)
	duration := FormatTime(result.TotalDuration())
	transcript, hasSpeech := FormatTranscript(result)

	words := 0
	if hasSpeech {
		words = CountWords(transcript)
	}
	sufficient := hasSpeech && words >= minAnalysisWords
	logCtx.Info("Transcript formatted.", "words", words, "sufficient", sufficient)

	analysisText, analysisAttempted, err := n.runAnalysis(ctx, logCtx, sufficient, transcript)
	if err != nil {
		return err
	}

	header := fmt.Sprintf("File: %s\nDuration: %s\nProcessed: %s\n\n",
		base, duration, n.now().UTC().Format("2006-01-02 15:04 UTC"))

	transcriptArtifact := header + transcriptArtifactBody(transcript, hasSpeech, sufficient, words)
	if err := n.store.SaveAtomically(ctx, n.config.TranscriptBucket, base+".txt", []byte(transcriptArtifact)); err != nil {
		logCtx.Error("Failed to save transcript artifact", "error", err)
		return err
	}
	if analysisText != "" {
		if err := n.store.SaveAtomically(ctx, n.config.TranscriptBucket, base+".analysis.txt", []byte(header+analysisText)); err != nil {
			logCtx.Error("Failed to save analysis artifact", "error", err)
			return err
		}
	}

	mail := composeNotification(base, sufficient, analysisAttempted, transcriptArtifact, analysisText, header)
	if err := n.sender.Send(ctx, mail); err != nil {
		logCtx.Error("Failed to send notification", "error", err)
		return err
	}

	marker := map[string]string{metaNotificationSent: n.now().UTC().Format(time.RFC3339)}
	if err := n.store.PatchMetadata(ctx, e.Bucket, e.Name, marker); err != nil {
		logCtx.Error("Sent notification but failed to write marker", "error", err)
		return err
	}

	finalStatus := models.StatusDone
	if !sufficient {
		finalStatus = models.StatusDoneNoSpeech
	}
	if err := n.status.SetStatus(ctx, base, finalStatus, fmt.Sprintf("%d words", words)); err != nil {
		logCtx.Warn("Failed to record item status.", "error", err)
	}

	n.cleanup(ctx, logCtx, base)
	logCtx.Info("Item fully processed.", "status", finalStatus)
	return nil
}

// runAnalysis resolves configuration and runs the AI call when the transcript
// passed the sufficiency gate. A failed call is converted into a visible
// error string and processing continues; the user always gets their
// transcript even when analysis breaks.
func (n *Notifier) runAnalysis(ctx context.Context, logCtx *slog.Logger, sufficient bool, transcript string) (text string, attempted bool, err error) {
	if !sufficient {
		return "", false, nil
	}

	resolution, err := n.resolver.Resolve(ctx)
	if err != nil {
		logCtx.Error("Failed to resolve analysis configuration", "error", err)
		return "", false, err
	}
	if !resolution.PromptFound {
		// Absence of configuration means absence of analysis, distinct from
		// an analysis-call failure.
		logCtx.Info("No prompt configured. Skipping analysis.")
		return "", false, nil
	}

	request := resolution.Prompt + "\n\n---\n\n" + transcript
	result, analysisErr := n.analyzer.Analyze(ctx, resolution.Model, request)
	if analysisErr != nil {
		logCtx.Error("AI analysis failed. Continuing with transcript only.", "model", resolution.Model, "error", analysisErr)
		return fmt.Sprintf("[Error during AI Analysis: %v]", analysisErr), true, nil
	}
	logCtx.Info("AI analysis complete.", "model", resolution.Model)
	return result, true, nil
}

// cleanup deletes the source item and its working record. Best effort: the
// item is already fully processed, and a leftover source file is a minor cost
// compared to losing the notification.
func (n *Notifier) cleanup(ctx context.Context, logCtx *slog.Logger, base string) {
	meta, err := n.store.Metadata(ctx, n.config.MediaBucket, base)
	if err != nil {
		logCtx.Warn("Cleanup: could not read working record metadata.", "error", err)
		return
	}
	if originalID := meta[metaOriginalID]; originalID != "" {
		if err := n.drive.Delete(ctx, originalID); err != nil {
			logCtx.Warn("Cleanup: failed to delete source item.", "originalId", originalID, "error", err)
		}
	}
	if err := n.store.Delete(ctx, n.config.MediaBucket, base); err != nil {
		logCtx.Warn("Cleanup: failed to delete working record.", "error", err)
	}
}

func transcriptArtifactBody(transcript string, hasSpeech, sufficient bool, words int) string {
	if sufficient {
		return transcript + "\n"
	}
	if !hasSpeech {
		return "Insufficient data: no speech was detected in this video.\n"
	}
	return fmt.Sprintf("Insufficient data: only %d words were transcribed, below the %d-word analysis floor.\n\n%s\n",
		words, minAnalysisWords, transcript)
}

// composeNotification builds the subject, body, and attachments for the three
// exhaustive terminal states: insufficient data, transcript with analysis
// attempted, transcript without analysis configured.
func composeNotification(base string, sufficient, analysisAttempted bool, transcriptArtifact, analysisText, header string) Mail {
	attachmentBase := SanitizeName(base)
	mail := Mail{
		Attachments: []Attachment{
			{Name: attachmentBase + ".txt", Content: []byte(transcriptArtifact)},
		},
	}

	switch {
	case !sufficient:
		mail.Subject = fmt.Sprintf("Transcription failed or empty: %s", base)
		mail.Body = fmt.Sprintf(
			"The video %q produced no usable transcript (insufficient data).\n\nThe transcript record is attached.\n", base)
	case analysisAttempted:
		mail.Subject = fmt.Sprintf("Transcript & AI analysis ready: %s", base)
		mail.Body = fmt.Sprintf(
			"The video %q has been transcribed and analyzed.\n\nBoth records are attached.\n", base)
		mail.Attachments = append(mail.Attachments, Attachment{
			Name:    attachmentBase + ".analysis.txt",
			Content: []byte(header + analysisText),
		})
	default:
		mail.Subject = fmt.Sprintf("Transcript ready: %s", base)
		mail.Body = fmt.Sprintf(
			"The video %q has been transcribed.\n\nNo analysis prompt is configured, so no analysis was run. The transcript record is attached.\n", base)
	}
	return mail
}
