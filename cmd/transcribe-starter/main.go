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
	transcriberInstance *services.Transcriber
	once                sync.Once
	initErr             error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered on every object finalize in the media bucket.
	functions.CloudEvent("StartTranscription", startTranscription)
}

// main is required by the Go Functions Framework.
func main() {}

func startTranscription(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		transcriberInstance, initErr = services.NewTranscriber(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during transcriber initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation failed; the platform's
	// redelivery policy retries it, and the start marker makes the retry a
	// no-op once submission has happened.
	return transcriberInstance.Start(ctx, gcsEvent)
}
