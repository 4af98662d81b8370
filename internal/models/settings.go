package models

// Settings is the dashboard-managed configuration record: the active analysis
// prompt override and the active model identifier. Both are optional;
// last-write-wins, no versioning.
type Settings struct {
	Prompt string `firestore:"prompt" json:"prompt"`
	Model  string `firestore:"model" json:"model"`
}
