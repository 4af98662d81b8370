package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/services"
)

var (
	notifierInstance *services.Notifier
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered on every object finalize in the transcript bucket.
	functions.CloudEvent("HandleTranscriptionOutput", handleTranscriptionOutput)
}

// main is required by the Go Functions Framework.
func main() {}

func handleTranscriptionOutput(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		notifierInstance, initErr = services.NewNotifier(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during notifier initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return notifierInstance.Handle(ctx, gcsEvent)
}
