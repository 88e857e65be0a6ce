package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/Lllllllleong/paperanalysis/internal/models"
	"github.com/Lllllllleong/paperanalysis/internal/services"
)

// dirStore writes page images and figures next to the local analysis file.
type dirStore struct {
	dir string
}

func (s dirStore) Save(ctx context.Context, result *models.AnalysisResult, pages []models.PageRecord) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", s.dir, err)
	}
	figures := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.write(models.PageImageFileName(page.PageNumber), page.ImageData); err != nil {
			return "", err
		}
		for _, fig := range page.Figures {
			if err := s.write(fig.FileName(), fig.Data); err != nil {
				return "", err
			}
			figures++
		}
	}
	slog.Info("Images written.", "dir", s.dir, "pageImages", len(pages), "figures", figures)
	return s.dir, nil
}

func (s dirStore) write(name string, data []byte) error {
	p := filepath.Join(s.dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// relativeFigureLinks links figures by their path relative to the directory
// of the Markdown file at out.
func relativeFigureLinks(out, assets string) (services.FigureLinker, error) {
	outDir, err := filepath.Abs(filepath.Dir(out))
	if err != nil {
		return nil, err
	}
	assetDir, err := filepath.Abs(assets)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(outDir, assetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to link %s from %s: %w", assets, out, err)
	}
	base := filepath.ToSlash(rel)
	return func(_ string, fig models.Figure) string {
		return path.Join(base, fig.FileName())
	}, nil
}
