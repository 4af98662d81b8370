package models

// These structs define the payloads exchanged between the trigger surfaces
// and the stage handlers.

// GCSEvent is the slice of the storage finalize event the stages care about.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// TransferArgs identifies one oversized item handed to the out-of-band
// transfer worker. The item name doubles as the job's idempotency key: a
// re-dispatched transfer overwrites the same working record.
type TransferArgs struct {
	FileID         string `json:"fileId"`
	Name           string `json:"name"`
	ParentFolderID string `json:"parentFolderId"`
}

// DashboardRequest is the POST body of the dashboard's save action.
type DashboardRequest struct {
	Action string `json:"action"`
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// DashboardResponse is the JSON reply to a dashboard POST.
type DashboardResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
