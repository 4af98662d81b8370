package gcp

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Drive queries tolerate at most this many parent clauses before the query
// string gets unwieldy; the scanner chunks folder sets accordingly.
const maxParentsPerQuery = 10

// DriveClient wraps the Drive API for the operations the pipeline needs:
// walking the watched tree, pulling new videos, streaming downloads, reading
// convention prompt files, and deleting processed sources.
type DriveClient struct {
	service *drive.Service
}

// NewDriveClient creates the shared Drive adapter using application default
// credentials.
func NewDriveClient(ctx context.Context) (*DriveClient, error) {
	service, err := drive.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveClient{service: service}, nil
}

// ChildFolders lists the IDs of all non-trashed folders directly under the
// given folder.
func (c *DriveClient) ChildFolders(ctx context.Context, parentID string) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false",
		escapeQueryValue(parentID), folderMimeType)

	var ids []string
	pageToken := ""
	for {
		call := c.service.Files.List().
			Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id)").
			PageSize(1000)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list folders under %s: %w", parentID, err)
		}
		for _, f := range page.Files {
			ids = append(ids, f.Id)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return ids, nil
}

// NewVideos returns all non-trashed video files in any of the given folders
// created strictly after the watermark, ordered ascending by creation time.
func (c *DriveClient) NewVideos(ctx context.Context, folderIDs []string, after time.Time) ([]models.Item, error) {
	var items []models.Item
	for start := 0; start < len(folderIDs); start += maxParentsPerQuery {
		end := start + maxParentsPerQuery
		if end > len(folderIDs) {
			end = len(folderIDs)
		}
		chunk, err := c.newVideosChunk(ctx, folderIDs[start:end], after)
		if err != nil {
			return nil, err
		}
		items = append(items, chunk...)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedTime.Before(items[j].CreatedTime)
	})
	return items, nil
}

func (c *DriveClient) newVideosChunk(ctx context.Context, folderIDs []string, after time.Time) ([]models.Item, error) {
	parents := make([]string, 0, len(folderIDs))
	for _, id := range folderIDs {
		parents = append(parents, fmt.Sprintf("'%s' in parents", escapeQueryValue(id)))
	}
	query := fmt.Sprintf("(%s) and mimeType contains 'video/' and createdTime > '%s' and trashed = false",
		strings.Join(parents, " or "), after.UTC().Format(time.RFC3339Nano))

	var items []models.Item
	pageToken := ""
	for {
		call := c.service.Files.List().
			Context(ctx).
			Q(query).
			OrderBy("createdTime").
			Fields("nextPageToken, files(id, name, mimeType, size, createdTime, parents, videoMediaMetadata(durationMillis))").
			PageSize(100)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list new videos: %w", err)
		}
		for _, f := range page.Files {
			item, err := toItem(f)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return items, nil
}

func toItem(f *drive.File) (models.Item, error) {
	created, err := time.Parse(time.RFC3339, f.CreatedTime)
	if err != nil {
		return models.Item{}, fmt.Errorf("file %s has unparseable createdTime %q: %w", f.Id, f.CreatedTime, err)
	}
	item := models.Item{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		CreatedTime: created,
	}
	if f.VideoMediaMetadata != nil {
		item.DurationMillis = f.VideoMediaMetadata.DurationMillis
	}
	if len(f.Parents) > 0 {
		item.ParentFolderID = f.Parents[0]
	}
	return item, nil
}

// Download opens a streaming reader over the file's content.
func (c *DriveClient) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download drive file %s: %w", fileID, err)
	}
	return resp.Body, nil
}

// FindChild looks up a direct child of a folder by exact name, optionally
// restricted to folders. Returns the child's ID, or found=false when absent.
func (c *DriveClient) FindChild(ctx context.Context, parentID, name string, foldersOnly bool) (string, bool, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		escapeQueryValue(parentID), escapeQueryValue(name))
	if foldersOnly {
		query += fmt.Sprintf(" and mimeType = '%s'", folderMimeType)
	}
	page, err := c.service.Files.List().
		Context(ctx).
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Do()
	if err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 404 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up %q under %s: %w", name, parentID, err)
	}
	if len(page.Files) == 0 {
		return "", false, nil
	}
	return page.Files[0].Id, true, nil
}

// ReadFile returns the full content of a file. Only used for small prompt
// files, never for media.
func (c *DriveClient) ReadFile(ctx context.Context, fileID string) ([]byte, error) {
	reader, err := c.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive file %s: %w", fileID, err)
	}
	return data, nil
}

// Delete removes a file permanently. An already-deleted file is a no-op.
func (c *DriveClient) Delete(ctx context.Context, fileID string) error {
	err := c.service.Files.Delete(fileID).Context(ctx).Do()
	if err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 404 {
			return nil
		}
		return fmt.Errorf("failed to delete drive file %s: %w", fileID, err)
	}
	return nil
}

// escapeQueryValue escapes a value for embedding in a Drive q expression.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `'`, `\'`)
}
