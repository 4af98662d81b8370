package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/services"
)

var (
	dashboardInstance *services.Dashboard
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleDashboard", handleDashboard)
}

// main is required by the Go Functions Framework.
func main() {}

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		dashboardInstance, initErr = services.NewDashboard(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during dashboard initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	dashboardInstance.Handle(w, r)
}
