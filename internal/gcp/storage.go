package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GCSStore wraps the storage client with the object operations the pipeline
// stages need: content reads/writes, streaming writers, and the per-object
// metadata surface that carries the idempotency markers.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates the shared storage adapter for all services.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Read returns the full content of an object. A missing object is reported
// as models.ErrNotFound so callers can treat absence as a state, not a fault.
func (s *GCSStore) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, name, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, name, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, name, err)
	}
	return data, nil
}

// SaveAtomically writes content to an object only if it doesn't already
// exist. An already-existing object is not a failure in an idempotent
// pipeline: the redelivered event that raced us wrote the same content.
func (s *GCSStore) SaveAtomically(ctx context.Context, bucket, name string, content []byte) error {
	writer := s.client.Bucket(bucket).Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, strings.NewReader(string(content))); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Skipping write, object already exists.", "gcsObject", name)
			return nil
		}
		return fmt.Errorf("failed to write to gs://%s/%s: %w", bucket, name, err)
	}
	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Skipping write, object already exists.", "gcsObject", name)
			return nil
		}
		return fmt.Errorf("failed to finalize write to gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}

// Overwrite writes content to an object unconditionally. Used for the scan
// watermark, where last-write-wins is the intended semantics.
func (s *GCSStore) Overwrite(ctx context.Context, bucket, name string, content []byte) error {
	writer := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(writer, strings.NewReader(string(content))); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to gs://%s/%s: %w", bucket, name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize write to gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}

// NewWriter opens a streaming writer for an object, with the given metadata
// attached on finalize. The caller owns Close; a failed Close means the
// object was not written.
func (s *GCSStore) NewWriter(ctx context.Context, bucket, name string, metadata map[string]string) io.WriteCloser {
	writer := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	writer.Metadata = metadata
	return writer
}

// Metadata returns the object's custom metadata map. A missing object is an
// error; an object with no metadata yields an empty map.
func (s *GCSStore) Metadata(ctx context.Context, bucket, name string) (map[string]string, error) {
	attrs, err := s.client.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read attrs of gs://%s/%s: %w", bucket, name, err)
	}
	if attrs.Metadata == nil {
		return map[string]string{}, nil
	}
	return attrs.Metadata, nil
}

// PatchMetadata merges the given keys into the object's metadata, keeping
// existing keys. This is the marker write: a plain read-merge-update with no
// compare-and-set, see the transcriber for the accepted race.
func (s *GCSStore) PatchMetadata(ctx context.Context, bucket, name string, patch map[string]string) error {
	object := s.client.Bucket(bucket).Object(name)
	attrs, err := object.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to read attrs of gs://%s/%s: %w", bucket, name, err)
	}
	merged := map[string]string{}
	for k, v := range attrs.Metadata {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	if _, err := object.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: merged}); err != nil {
		return fmt.Errorf("failed to update metadata of gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}

// Delete removes an object. Deleting an already-deleted object is a no-op.
func (s *GCSStore) Delete(ctx context.Context, bucket, name string) error {
	err := s.client.Bucket(bucket).Object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}
