package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/paperanalysis/internal/services"
)

var (
	handler *services.HTTPHandler
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleAnalyzePaper", handleAnalyzePaper)
}

// main is required by the Go Functions Framework.
func main() {}

func handleAnalyzePaper(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var analyzer *services.PaperAnalyzerFunction
		analyzer, initErr = services.NewPaperAnalyzer(context.Background())
		if initErr == nil {
			handler = analyzer.Handler()
		}
	})
	if initErr != nil {
		slog.Error("CRITICAL: Paper analyzer initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	handler.ServeHTTP(w, r)
}
