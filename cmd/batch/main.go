// Command batch scans a directory of captured product media and writes the
// resulting ledger to CSV, and optionally to a spreadsheet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"

	"github.com/shelfscan/backend/config"
	"github.com/shelfscan/backend/internal/app"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/ledger"
	"github.com/shelfscan/backend/internal/infrastructure/media"
)

func main() {
	dir := flag.String("dir", "", "directory of images and audio clips to scan")
	out := flag.String("out", ledger.DefaultCSVFile, "CSV output path")
	xlsx := flag.String("xlsx", "", "optional XLSX output path")
	key := flag.String("key", "", "API key overriding the configured provider keys")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: batch -dir <path> [-out products.csv] [-xlsx products.xlsx] [-key KEY]")
		os.Exit(2)
	}

	if err := run(*dir, *out, *xlsx, *key); err != nil {
		slog.Error("batch.failed", "error", err)
		os.Exit(1)
	}
}

func run(dir, out, xlsxPath, key string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	pipeline, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}

	items, err := loadDir(dir)
	if err != nil {
		return err
	}
	logger.Info("batch.loaded", "dir", dir, "files", len(items))

	result, err := pipeline.Scanner.Run(context.Background(), domain.Batch{Items: items, Credential: key},
		func(event domain.ProgressEvent) {
			switch event.Type {
			case domain.EventItemRetrying:
				logger.Warn("batch.progress", "type", event.Type, "file", event.Filename,
					"attempt", event.Attempt, "delay", event.Delay)
			case domain.EventItemFailed:
				logger.Warn("batch.progress", "type", event.Type, "file", event.Filename,
					"percent", event.Percent, "error", event.Error)
			case domain.EventItemProcessed:
				logger.Info("batch.progress", "type", event.Type, "file", event.Filename,
					"percent", event.Percent, "name", event.Record.Name)
			}
		})
	if err != nil {
		return err
	}

	records := pipeline.Ledger.Records()
	if err := ledger.SaveToFile(out, records); err != nil {
		return err
	}
	logger.Info("batch.csv.saved", "path", out, "records", len(records))

	if xlsxPath != "" {
		if err := writeXLSX(xlsxPath, records); err != nil {
			return err
		}
		logger.Info("batch.xlsx.saved", "path", xlsxPath)
	}

	logger.Info("batch.done",
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return nil
}

// loadDir classifies every regular file in dir, sorted by name
func loadDir(dir string) ([]domain.MediaItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)

	items := make([]domain.MediaItem, 0, len(names))
	for _, name := range names {
		payload, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		item := media.Classify(name, mime.TypeByExtension(filepath.Ext(name)), payload)
		if !item.Kind.Supported() {
			slog.Warn("batch.file.skipped", "file", name, "mime", item.MIMEType)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func writeXLSX(path string, records []domain.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create xlsx: %w", err)
	}
	if err := ledger.WriteXLSX(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
