package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

const dashboardListLimit = 100

// Dashboard is the read/write view over the configuration record and the
// item listing. Access requires the shared secret, passed either as the
// ?key= query parameter or as the basic-auth password.
type Dashboard struct {
	config ConfigStore
	status StatusStore
	secret string
	tmpl   *template.Template
}

// NewDashboard creates a fully wired Dashboard from the environment.
func NewDashboard(ctx context.Context) (*Dashboard, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	secret := gcp.GetEnv("DASHBOARD_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("DASHBOARD_SECRET environment variable must be set")
	}

	firestoreStore, err := gcp.NewFirestoreStore(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore store: %w", err)
	}

	return &Dashboard{
		config: firestoreStore,
		status: firestoreStore,
		secret: secret,
		tmpl:   template.Must(template.New("dashboard").Parse(dashboardHTML)),
	}, nil
}

// Handle serves the dashboard: GET renders the settings form and item
// listing, POST with action saveSettings persists the configuration.
func (d *Dashboard) Handle(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="dashboard"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		d.render(w, r)
	case http.MethodPost:
		d.save(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// authorized compares the presented secret in constant time, accepting
// either the query parameter or the basic-auth password.
func (d *Dashboard) authorized(r *http.Request) bool {
	if key := r.URL.Query().Get("key"); key != "" {
		return subtle.ConstantTimeCompare([]byte(key), []byte(d.secret)) == 1
	}
	if _, password, ok := r.BasicAuth(); ok {
		return subtle.ConstantTimeCompare([]byte(password), []byte(d.secret)) == 1
	}
	return false
}

func (d *Dashboard) render(w http.ResponseWriter, r *http.Request) {
	settings, err := d.config.Settings(r.Context())
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	items, err := d.status.ListStatuses(r.Context(), dashboardListLimit)
	if err != nil {
		slog.Error("Failed to load item listing", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Settings models.Settings
		Items    []models.ItemStatus
	}{settings, items}
	if err := d.tmpl.Execute(w, data); err != nil {
		slog.Error("Failed to render dashboard", "error", err)
	}
}

func (d *Dashboard) save(w http.ResponseWriter, r *http.Request) {
	var req models.DashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.DashboardResponse{Message: "could not parse JSON"})
		return
	}
	if req.Action != "saveSettings" {
		writeJSON(w, http.StatusBadRequest, models.DashboardResponse{Message: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	settings := models.Settings{Prompt: req.Prompt, Model: req.Model}
	if err := d.config.SaveSettings(r.Context(), settings); err != nil {
		slog.Error("Failed to save settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.DashboardResponse{Message: "failed to save settings"})
		return
	}
	slog.Info("Settings saved via dashboard.", "model", settings.Model)
	writeJSON(w, http.StatusOK, models.DashboardResponse{Success: true, Message: "Settings saved."})
}

func writeJSON(w http.ResponseWriter, status int, body models.DashboardResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><title>Drive Transcriber</title></head>
<body>
<h1>Drive Transcriber</h1>
<h2>Settings</h2>
<form id="settings">
  <label>Analysis prompt<br><textarea name="prompt" rows="6" cols="80">{{.Settings.Prompt}}</textarea></label><br>
  <label>Model <input name="model" value="{{.Settings.Model}}"></label><br>
  <button type="submit">Save</button>
</form>
<h2>Items</h2>
<table border="1">
<tr><th>Name</th><th>Status</th><th>Detail</th><th>Updated</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td>{{.Status}}</td><td>{{.Detail}}</td><td>{{.UpdatedAt.Format "2006-01-02 15:04"}}</td></tr>
{{end}}
</table>
<script>
document.getElementById("settings").addEventListener("submit", async (e) => {
  e.preventDefault();
  const form = new FormData(e.target);
  const resp = await fetch(location.href, {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({action: "saveSettings", prompt: form.get("prompt"), model: form.get("model")}),
  });
  const result = await resp.json();
  alert(result.message);
});
</script>
</body>
</html>
`
