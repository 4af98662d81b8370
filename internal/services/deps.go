package services

import (
	"context"
	"io"
	"time"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// Idempotency markers and provenance keys carried in working-record and
// output-record metadata.
const (
	metaTranscriptionStarted = "transcriptionStarted"
	metaNotificationSent     = "notificationSent"
	metaOriginalID           = "originalId"
	metaParentFolderID       = "parentFolderId"
)

// ObjectStore is the slice of object-storage behavior the stages use. The
// metadata map on each object is the idempotency surface.
type ObjectStore interface {
	Read(ctx context.Context, bucket, name string) ([]byte, error)
	SaveAtomically(ctx context.Context, bucket, name string, content []byte) error
	Overwrite(ctx context.Context, bucket, name string, content []byte) error
	NewWriter(ctx context.Context, bucket, name string, metadata map[string]string) io.WriteCloser
	Metadata(ctx context.Context, bucket, name string) (map[string]string, error)
	PatchMetadata(ctx context.Context, bucket, name string, patch map[string]string) error
	Delete(ctx context.Context, bucket, name string) error
}

// Drive is the slice of the source-tree API the pipeline uses.
type Drive interface {
	ChildFolders(ctx context.Context, parentID string) ([]string, error)
	NewVideos(ctx context.Context, folderIDs []string, after time.Time) ([]models.Item, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
	FindChild(ctx context.Context, parentID, name string, foldersOnly bool) (string, bool, error)
	ReadFile(ctx context.Context, fileID string) ([]byte, error)
	Delete(ctx context.Context, fileID string) error
}

// ConfigStore reads and writes the dashboard-managed settings record.
type ConfigStore interface {
	Settings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// StatusStore tracks per-item pipeline progress for the dashboard listing.
// Status writes are visibility, not correctness: stages log and continue when
// they fail.
type StatusStore interface {
	SetStatus(ctx context.Context, name, status, detail string) error
	ListStatuses(ctx context.Context, limit int) ([]models.ItemStatus, error)
}

// TranscriptionSubmitter submits one long-running recognition job. Submit
// returns once the job is accepted, never once it completes.
type TranscriptionSubmitter interface {
	Submit(ctx context.Context, inputURI, outputURI, languageCode string) error
}

// TransferRunner dispatches the out-of-band transfer job for oversized items.
type TransferRunner interface {
	RunTransfer(ctx context.Context, args models.TransferArgs) error
}

// Analyzer runs one AI analysis call: prompt in, prose out.
type Analyzer interface {
	Analyze(ctx context.Context, modelID, prompt string) (string, error)
}

// Attachment is one named attachment of a notification.
type Attachment struct {
	Name    string
	Content []byte
}

// Mail is an outbound notification.
type Mail struct {
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers a notification. Implementations without credentials log
// and no-op, enabling dry-run operation.
type Sender interface {
	Send(ctx context.Context, mail Mail) error
}
