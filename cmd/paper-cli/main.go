package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Lllllllleong/paperanalysis/internal/services"
)

func main() {
	app := &cli.App{
		Name:      "paper-cli",
		Usage:     "explain an academic paper page by page",
		ArgsUsage: "<paper.pdf>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "max-pages",
				Aliases: []string{"n"},
				Usage:   "number of pages to analyze (defaults to MAX_PAGES_DEFAULT)",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "ANALYSIS.md",
				Usage:   "file the Markdown analysis is written to",
			},
			&cli.StringFlag{
				Name:  "assets",
				Usage: "directory page images and figures are written to; figure citations link there",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the full result as JSON on stdout",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log at debug level",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one PDF path is required", 2)
	}

	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var opts []services.Option
	if assets := c.String("assets"); assets != "" {
		link, err := relativeFigureLinks(c.String("out"), assets)
		if err != nil {
			return err
		}
		opts = append(opts, services.WithResultStore(dirStore{dir: assets}), services.WithFigureLinks(link))
	}

	analyzer, err := services.NewPaperAnalyzer(ctx, opts...)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	orchestrator := analyzer.Orchestrator()
	maxPages := orchestrator.DefaultMaxPages()
	if c.IsSet("max-pages") {
		maxPages = c.Int("max-pages")
	}

	result, err := orchestrator.Analyze(ctx, data, filepath.Base(path), maxPages)
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.String("out"), []byte(result.MarkdownContent), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.String("out"), err)
	}
	slog.Info("Analysis written.", "path", c.String("out"), "pages", result.TotalPages, "model", result.ModelUsed, "outputPath", result.OutputPath)

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return nil
}
