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

	"github.com/Lllllllleong/paperanalysis/internal/models"
	"github.com/Lllllllleong/paperanalysis/internal/services"
)

var (
	trigger *services.UploadTrigger
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("AnalyzeUploadedPaper", analyzeUploadedPaper)
}

// main is required by the Go Functions Framework.
func main() {}

func analyzeUploadedPaper(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		initCtx := context.Background()
		var analyzer *services.PaperAnalyzerFunction
		analyzer, initErr = services.NewPaperAnalyzer(initCtx)
		if initErr != nil {
			return
		}
		trigger, initErr = analyzer.UploadTrigger(initCtx)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return trigger.Process(ctx, gcsEvent)
}
