package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// fakeObjectStore is an in-memory ObjectStore tracking write counts, so tests
// can assert that idempotent re-deliveries produce zero additional effects.
type fakeObjectStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string

	atomicSaves int
	overwrites  int
	patches     int
	deletes     int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:  map[string][]byte{},
		metadata: map[string]map[string]string{},
	}
}

func objectKey(bucket, name string) string { return bucket + "/" + name }

func (s *fakeObjectStore) put(bucket, name string, content []byte, meta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(bucket, name)
	s.objects[key] = content
	if meta == nil {
		meta = map[string]string{}
	}
	s.metadata[key] = meta
}

func (s *fakeObjectStore) Read(_ context.Context, bucket, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.objects[objectKey(bucket, name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", objectKey(bucket, name), models.ErrNotFound)
	}
	return content, nil
}

func (s *fakeObjectStore) SaveAtomically(_ context.Context, bucket, name string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(bucket, name)
	if _, ok := s.objects[key]; ok {
		return nil
	}
	s.objects[key] = content
	s.metadata[key] = map[string]string{}
	s.atomicSaves++
	return nil
}

func (s *fakeObjectStore) Overwrite(_ context.Context, bucket, name string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(bucket, name)
	s.objects[key] = content
	if s.metadata[key] == nil {
		s.metadata[key] = map[string]string{}
	}
	s.overwrites++
	return nil
}

type fakeWriter struct {
	buf   bytes.Buffer
	done  func([]byte)
	fail  error
	wrote bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.wrote = true
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	if w.fail != nil {
		return w.fail
	}
	w.done(w.buf.Bytes())
	return nil
}

func (s *fakeObjectStore) NewWriter(_ context.Context, bucket, name string, meta map[string]string) io.WriteCloser {
	return &fakeWriter{done: func(content []byte) {
		s.put(bucket, name, content, meta)
	}}
}

func (s *fakeObjectStore) Metadata(_ context.Context, bucket, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.metadata[objectKey(bucket, name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", objectKey(bucket, name), models.ErrNotFound)
	}
	out := map[string]string{}
	for k, v := range meta {
		out[k] = v
	}
	return out, nil
}

func (s *fakeObjectStore) PatchMetadata(_ context.Context, bucket, name string, patch map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(bucket, name)
	meta, ok := s.metadata[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, models.ErrNotFound)
	}
	for k, v := range patch {
		meta[k] = v
	}
	s.patches++
	return nil
}

func (s *fakeObjectStore) Delete(_ context.Context, bucket, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(bucket, name)
	delete(s.objects, key)
	delete(s.metadata, key)
	s.deletes++
	return nil
}

func (s *fakeObjectStore) has(bucket, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectKey(bucket, name)]
	return ok
}

func (s *fakeObjectStore) content(bucket, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.objects[objectKey(bucket, name)])
}

// fakeDrive is an in-memory Drive.
type fakeDrive struct {
	mu           sync.Mutex
	childFolders map[string][]string          // parent -> child folder IDs
	foldersByKey map[string]string            // parent|name -> folder ID
	filesByKey   map[string]string            // parent|name -> file ID
	fileContent  map[string][]byte            // file ID -> content
	videos       []models.Item
	videosErr    error
	deleted      []string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		childFolders: map[string][]string{},
		foldersByKey: map[string]string{},
		filesByKey:   map[string]string{},
		fileContent:  map[string][]byte{},
	}
}

func childKey(parent, name string) string { return parent + "|" + name }

func (d *fakeDrive) ChildFolders(_ context.Context, parentID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.childFolders[parentID], nil
}

func (d *fakeDrive) NewVideos(_ context.Context, _ []string, after time.Time) ([]models.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.videosErr != nil {
		return nil, d.videosErr
	}
	var items []models.Item
	for _, item := range d.videos {
		if item.CreatedTime.After(after) {
			items = append(items, item)
		}
	}
	return items, nil
}

func (d *fakeDrive) Download(_ context.Context, fileID string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.fileContent[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (d *fakeDrive) FindChild(_ context.Context, parentID, name string, foldersOnly bool) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if foldersOnly {
		id, ok := d.foldersByKey[childKey(parentID, name)]
		return id, ok, nil
	}
	id, ok := d.filesByKey[childKey(parentID, name)]
	return id, ok, nil
}

func (d *fakeDrive) ReadFile(_ context.Context, fileID string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.fileContent[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
	}
	return content, nil
}

func (d *fakeDrive) Delete(_ context.Context, fileID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, fileID)
	return nil
}

// fakeConfigStore is an in-memory ConfigStore.
type fakeConfigStore struct {
	settings models.Settings
	err      error
	saved    []models.Settings
}

func (c *fakeConfigStore) Settings(_ context.Context) (models.Settings, error) {
	return c.settings, c.err
}

func (c *fakeConfigStore) SaveSettings(_ context.Context, settings models.Settings) error {
	c.settings = settings
	c.saved = append(c.saved, settings)
	return nil
}

// fakeStatusStore is an in-memory StatusStore.
type fakeStatusStore struct {
	mu       sync.Mutex
	statuses map[string]string
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{statuses: map[string]string{}}
}

func (s *fakeStatusStore) SetStatus(_ context.Context, name, status, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[name] = status
	return nil
}

func (s *fakeStatusStore) ListStatuses(_ context.Context, _ int) ([]models.ItemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.ItemStatus
	for name, status := range s.statuses {
		items = append(items, models.ItemStatus{Name: name, Status: status})
	}
	return items, nil
}

// fakeSubmitter counts transcription job submissions.
type fakeSubmitter struct {
	err     error
	submits []string
}

func (f *fakeSubmitter) Submit(_ context.Context, inputURI, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.submits = append(f.submits, inputURI)
	return nil
}

// fakeRunner counts transfer job dispatches.
type fakeRunner struct {
	mu   sync.Mutex
	runs []models.TransferArgs
}

func (f *fakeRunner) RunTransfer(_ context.Context, args models.TransferArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, args)
	return nil
}

// fakeAnalyzer records analysis calls.
type fakeAnalyzer struct {
	response string
	err      error
	calls    int
	model    string
	prompt   string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, modelID, prompt string) (string, error) {
	f.calls++
	f.model = modelID
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// fakeSender records sent notifications.
type fakeSender struct {
	err   error
	mails []Mail
}

func (f *fakeSender) Send(_ context.Context, mail Mail) error {
	if f.err != nil {
		return f.err
	}
	f.mails = append(f.mails, mail)
	return nil
}
