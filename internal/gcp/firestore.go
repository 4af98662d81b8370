package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// FirestoreStore holds the settings document and the per-item status records
// that back the dashboard listing.
type FirestoreStore struct {
	client          *firestore.Client
	settingsDoc     string
	itemsCollection string
}

// NewFirestoreStore creates and returns the Firestore adapter for the given
// project ID. It centralizes client creation for all services.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreStore{
		client:          client,
		settingsDoc:     GetEnv("SETTINGS_DOC_PATH", "config/settings"),
		itemsCollection: GetEnv("ITEMS_COLLECTION", "items"),
	}, nil
}

// Settings reads the configuration record. A missing document yields the
// zero value, not an error: absence of configuration is a valid state.
func (s *FirestoreStore) Settings(ctx context.Context) (models.Settings, error) {
	snap, err := s.client.Doc(s.settingsDoc).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return models.Settings{}, nil
		}
		return models.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	var settings models.Settings
	if err := snap.DataTo(&settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists the configuration record, last-write-wins.
func (s *FirestoreStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	if _, err := s.client.Doc(s.settingsDoc).Set(ctx, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// SetStatus upserts the status record for an item, keyed by item name.
func (s *FirestoreStore) SetStatus(ctx context.Context, name, status, detail string) error {
	record := models.ItemStatus{
		Name:      name,
		Status:    status,
		Detail:    detail,
		UpdatedAt: time.Now(),
	}
	if _, err := s.client.Collection(s.itemsCollection).Doc(docID(name)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to set status for %s: %w", name, err)
	}
	return nil
}

// ListStatuses returns the most recently updated item records.
func (s *FirestoreStore) ListStatuses(ctx context.Context, limit int) ([]models.ItemStatus, error) {
	it := s.client.Collection(s.itemsCollection).
		OrderBy("updatedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)

	var records []models.ItemStatus
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list item statuses: %w", err)
		}
		var record models.ItemStatus
		if err := snap.DataTo(&record); err != nil {
			return nil, fmt.Errorf("failed to decode item status: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// docID makes an item name safe to use as a Firestore document ID.
func docID(name string) string {
	id := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '/' {
			r = '_'
		}
		id = append(id, r)
	}
	return string(id)
}
