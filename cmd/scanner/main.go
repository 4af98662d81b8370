package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/services"
)

var (
	scannerInstance *services.Scanner
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Hit by Cloud Scheduler on a fixed interval. No payload.
	functions.HTTP("HandleScanDrive", handleScanDrive)
}

// main is required by the Go Functions Framework.
func main() {}

func handleScanDrive(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		scannerInstance, initErr = services.NewScanner(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during scanner initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	if err := scannerInstance.Scan(r.Context()); err != nil {
		// The error is already logged with context inside Scan. Failing the
		// request leaves the watermark untouched; the next scheduled run
		// retries the same window.
		http.Error(w, "Internal Server Error: scan failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
