package models

import "time"

// Item is one source video discovered in the watched Drive tree. Identity is
// the Drive file ID; the name doubles as the working record name downstream.
type Item struct {
	ID             string
	Name           string
	MimeType       string
	Size           int64
	CreatedTime    time.Time
	DurationMillis int64 // 0 when Drive has not extracted media metadata
	ParentFolderID string
}

// ItemStatus is the per-item record backing the dashboard listing. It tracks
// where an item currently sits in the pipeline; a record stuck in a non-done
// status is the dead-letter visibility mechanism.
type ItemStatus struct {
	Name      string    `firestore:"name,omitempty"`
	Status    string    `firestore:"status,omitempty"`
	Detail    string    `firestore:"detail,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty"`
}

// Pipeline statuses, in order of progression.
const (
	StatusDiscovered   = "DISCOVERED"
	StatusTranscribing = "TRANSCRIBING"
	StatusDone         = "DONE"
	StatusDoneNoSpeech = "DONE_NO_SPEECH"
)
