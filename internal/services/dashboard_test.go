package services

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

func newTestDashboard(config *fakeConfigStore) *Dashboard {
	return &Dashboard{
		config: config,
		status: newFakeStatusStore(),
		secret: "s3cret",
		tmpl:   template.Must(template.New("dashboard").Parse(dashboardHTML)),
	}
}

func TestDashboardAuth(t *testing.T) {
	dashboard := newTestDashboard(&fakeConfigStore{})

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{"no credentials", func(r *http.Request) {}, http.StatusUnauthorized},
		{"wrong query key", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("key", "wrong")
			r.URL.RawQuery = q.Encode()
		}, http.StatusUnauthorized},
		{"query key", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("key", "s3cret")
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK},
		{"basic auth password", func(r *http.Request) {
			r.SetBasicAuth("anyone", "s3cret")
		}, http.StatusOK},
		{"wrong basic auth password", func(r *http.Request) {
			r.SetBasicAuth("anyone", "wrong")
		}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			w := httptest.NewRecorder()
			dashboard.Handle(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestDashboardRendersSettingsAndItems(t *testing.T) {
	config := &fakeConfigStore{settings: models.Settings{Prompt: "Summarize the call.", Model: "gemini-1.5-pro"}}
	dashboard := newTestDashboard(config)
	require.NoError(t, dashboard.status.SetStatus(context.Background(), "demo.mp4", models.StatusDone, ""))

	r := httptest.NewRequest(http.MethodGet, "/?key=s3cret", nil)
	w := httptest.NewRecorder()
	dashboard.Handle(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Summarize the call.")
	assert.Contains(t, body, "gemini-1.5-pro")
	assert.Contains(t, body, "demo.mp4")
	assert.Contains(t, body, models.StatusDone)
}

func TestDashboardSaveSettings(t *testing.T) {
	config := &fakeConfigStore{}
	dashboard := newTestDashboard(config)

	payload := `{"action":"saveSettings","prompt":"New prompt.","model":"claude-sonnet-4-20250514"}`
	r := httptest.NewRequest(http.MethodPost, "/?key=s3cret", strings.NewReader(payload))
	w := httptest.NewRecorder()
	dashboard.Handle(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.DashboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, config.saved, 1)
	assert.Equal(t, models.Settings{Prompt: "New prompt.", Model: "claude-sonnet-4-20250514"}, config.saved[0])
}

func TestDashboardRejectsUnknownAction(t *testing.T) {
	dashboard := newTestDashboard(&fakeConfigStore{})

	r := httptest.NewRequest(http.MethodPost, "/?key=s3cret", strings.NewReader(`{"action":"dropTables"}`))
	w := httptest.NewRecorder()
	dashboard.Handle(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
