// Package importer drives the archive import pipeline: archives are walked
// file by file, files are parsed into records, records are loaded in batches,
// and every file's progress is tracked so a rerun resumes where the previous
// run stopped.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"powietrze-import/internal/archive"
	"powietrze-import/internal/config"
	"powietrze-import/internal/database/postgres/repositories"
	"powietrze-import/internal/models"
	"powietrze-import/internal/parser"
)

// FileTracker is the import-state store; the ImportFileRepository satisfies it.
type FileTracker interface {
	GetOrCreate(ctx context.Context, archiveName, filename string) (*models.ImportFile, error)
	IsCompleted(ctx context.Context, archiveName, filename string) (bool, error)
	MarkInProgress(ctx context.Context, id uint) error
	MarkCompleted(ctx context.Context, id uint, imported, skipped int) error
	MarkFailed(ctx context.Context, id uint, message string) error
	ResetFailed(ctx context.Context) (int64, error)
}

// BatchLoader persists one batch of records for an import file.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []parser.Record, importFileID uint) (int, int, error)
}

type walkFunc func(path string, skipPatterns []string, fn func(name string, content []byte) error) error

type parseFunc func(content []byte, sourceFile string) ([]parser.Record, error)

// Callbacks are invoked for observability only; all of them are optional and
// none affect the import outcome.
type Callbacks struct {
	OnArchiveStart    func(archiveName string)
	OnArchiveComplete func(archiveName string, imported, skipped, filesSkipped int)
	OnFileStart       func(filename string)
	OnFileComplete    func(filename string, imported, skipped int)
	OnFileSkip        func(filename string)
	OnProgress        func(imported int)
}

type Totals struct {
	Imported     int
	Skipped      int
	FilesSkipped int
}

type Importer struct {
	tracker      FileTracker
	loader       BatchLoader
	walk         walkFunc
	parse        parseFunc
	batchSize    int
	skipPatterns []string
	callbacks    Callbacks
	log          zerolog.Logger
}

func New(tracker FileTracker, loader BatchLoader, cfg config.ImportConfig, callbacks Callbacks, log zerolog.Logger) *Importer {
	return &Importer{
		tracker:      tracker,
		loader:       loader,
		walk:         archive.Walk,
		parse:        parser.ParseWorkbook,
		batchSize:    cfg.BatchSize,
		skipPatterns: cfg.SkipPatterns,
		callbacks:    callbacks,
		log:          log,
	}
}

// ImportArchives processes the archives in order and returns the accumulated
// totals. On failure the totals collected so far are returned alongside the
// error.
func (i *Importer) ImportArchives(ctx context.Context, archivePaths []string) (Totals, error) {
	runLog := i.log.With().Str("run_id", uuid.NewString()).Logger()

	var totals Totals
	for _, path := range archivePaths {
		if i.callbacks.OnArchiveStart != nil {
			i.callbacks.OnArchiveStart(path)
		}
		runLog.Info().Str("archive", path).Msg("Importing archive")

		archiveTotals, err := i.importArchive(ctx, runLog, path)
		totals.Imported += archiveTotals.Imported
		totals.Skipped += archiveTotals.Skipped
		totals.FilesSkipped += archiveTotals.FilesSkipped
		if err != nil {
			return totals, err
		}

		if i.callbacks.OnArchiveComplete != nil {
			i.callbacks.OnArchiveComplete(path, archiveTotals.Imported, archiveTotals.Skipped, archiveTotals.FilesSkipped)
		}
		runLog.Info().
			Str("archive", path).
			Int("imported", archiveTotals.Imported).
			Int("skipped", archiveTotals.Skipped).
			Int("files_skipped", archiveTotals.FilesSkipped).
			Msg("Archive imported")
	}

	return totals, nil
}

func (i *Importer) importArchive(ctx context.Context, log zerolog.Logger, archivePath string) (Totals, error) {
	var totals Totals

	err := i.walk(archivePath, i.skipPatterns, func(filename string, content []byte) error {
		completed, err := i.tracker.IsCompleted(ctx, archivePath, filename)
		if err != nil {
			return fmt.Errorf("check status of %s: %w", filename, err)
		}
		if completed {
			totals.FilesSkipped++
			if i.callbacks.OnFileSkip != nil {
				i.callbacks.OnFileSkip(filename)
			}
			log.Debug().Str("filename", filename).Msg("File already completed, skipping")
			return nil
		}

		imported, skipped, err := i.importFile(ctx, log, archivePath, filename, content)
		if errors.Is(err, repositories.ErrAlreadyCompleted) {
			totals.FilesSkipped++
			if i.callbacks.OnFileSkip != nil {
				i.callbacks.OnFileSkip(filename)
			}
			return nil
		}
		if err != nil {
			return err
		}

		totals.Imported += imported
		totals.Skipped += skipped
		return nil
	})

	return totals, err
}

// importFile runs the full pipeline for one spreadsheet member. Parse
// failures mark the file failed but do not abort the walk; storage failures
// do, after being recorded on the file.
func (i *Importer) importFile(ctx context.Context, log zerolog.Logger, archivePath, filename string, content []byte) (int, int, error) {
	if i.callbacks.OnFileStart != nil {
		i.callbacks.OnFileStart(filename)
	}

	file, err := i.tracker.GetOrCreate(ctx, archivePath, filename)
	if err != nil {
		return 0, 0, fmt.Errorf("track %s: %w", filename, err)
	}
	if err := i.tracker.MarkInProgress(ctx, file.ID); err != nil {
		return 0, 0, err
	}

	records, err := i.parse(content, filename)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("File is not parseable, marking failed")
		if markErr := i.tracker.MarkFailed(ctx, file.ID, err.Error()); markErr != nil {
			return 0, 0, fmt.Errorf("mark %s failed: %w", filename, markErr)
		}
		return 0, 0, nil
	}

	fileImported := 0
	fileSkipped := 0

	for start := 0; start < len(records); start += i.batchSize {
		end := start + i.batchSize
		if end > len(records) {
			end = len(records)
		}

		imported, skipped, err := i.loader.LoadBatch(ctx, records[start:end], file.ID)
		if err != nil {
			if markErr := i.tracker.MarkFailed(ctx, file.ID, err.Error()); markErr != nil {
				log.Error().Err(markErr).Str("filename", filename).Msg("Could not record failure")
			}
			return 0, 0, fmt.Errorf("load batch of %s: %w", filename, err)
		}

		fileImported += imported
		fileSkipped += skipped
		if i.callbacks.OnProgress != nil {
			i.callbacks.OnProgress(fileImported)
		}
	}

	if err := i.tracker.MarkCompleted(ctx, file.ID, fileImported, fileSkipped); err != nil {
		return 0, 0, fmt.Errorf("mark %s completed: %w", filename, err)
	}

	if i.callbacks.OnFileComplete != nil {
		i.callbacks.OnFileComplete(filename, fileImported, fileSkipped)
	}
	log.Info().
		Str("filename", filename).
		Int("imported", fileImported).
		Int("skipped", fileSkipped).
		Msg("File imported")

	return fileImported, fileSkipped, nil
}

// ResetFailed moves failed and stuck in-progress files back to pending so the
// next run retries them.
func (i *Importer) ResetFailed(ctx context.Context) (int64, error) {
	count, err := i.tracker.ResetFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset failed imports: %w", err)
	}
	i.log.Info().Int64("count", count).Msg("Reset failed imports to pending")
	return count, nil
}
