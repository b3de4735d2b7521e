package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"powietrze-import/internal/config"
	"powietrze-import/internal/database/postgres"
	"powietrze-import/internal/database/postgres/repositories"
	"powietrze-import/internal/importer"
	"powietrze-import/internal/logger"
)

type Application struct {
	config *config.Config

	postgresDB *postgres.PostgresDB

	stationRepository    *repositories.StationRepository
	indicatorRepository  *repositories.IndicatorRepository
	importFileRepository *repositories.ImportFileRepository

	importer *importer.Importer

	ctx        context.Context
	cancelFunc context.CancelFunc
}

func main() {
	resetFailed := flag.Bool("reset-failed", false, "reset failed and stuck imports back to pending and exit")
	flag.Parse()

	app := &Application{}

	if err := app.initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer app.shutdown()

	if err := app.run(*resetFailed, flag.Args()); err != nil {
		log.Error().Err(err).Msg("Import run failed")
		app.shutdown()
		os.Exit(1)
	}
}

func (app *Application) initialize() error {
	var err error

	app.config, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.NewLogger(app.config.Logger)
	log.Info().
		Str("component", "main").
		Msg("Setting up importer...")

	app.ctx, app.cancelFunc = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	if err := app.initializeDatabase(); err != nil {
		return fmt.Errorf("error while initializing database: %w", err)
	}

	if err := app.initializeImporter(); err != nil {
		return fmt.Errorf("error while initializing importer: %w", err)
	}

	log.Info().Msg("Successfully initialized application")
	return nil
}

func (app *Application) initializeDatabase() error {
	var err error

	app.postgresDB, err = postgres.NewConnection(app.ctx, app.config.Postgres)
	if err != nil {
		return fmt.Errorf("could not connect to PostgreSQL: %w", err)
	}

	log.Info().
		Str("component", "main").
		Str("host", app.config.Postgres.Host).
		Msg("Successfully initialized database")
	return nil
}

func (app *Application) initializeImporter() error {
	db := app.postgresDB.GetDB()

	app.stationRepository = repositories.NewStationRepository(db)
	app.indicatorRepository = repositories.NewIndicatorRepository(db)
	app.importFileRepository = repositories.NewImportFileRepository(db)

	resolver := importer.NewResolver(app.stationRepository, app.indicatorRepository)
	loader := importer.NewLoader(app.postgresDB.GetPool(), resolver, logger.GetLogger("loader"))

	app.importer = importer.New(
		app.importFileRepository,
		loader,
		app.config.Import,
		progressCallbacks(),
		logger.GetLogger("importer"),
	)

	return nil
}

func progressCallbacks() importer.Callbacks {
	return importer.Callbacks{
		OnArchiveStart: func(archiveName string) {
			fmt.Printf("Archive %s\n", archiveName)
		},
		OnFileStart: func(filename string) {
			fmt.Printf("  %s...\n", filename)
		},
		OnFileComplete: func(filename string, imported, skipped int) {
			fmt.Printf("  %s: %d imported, %d skipped\n", filename, imported, skipped)
		},
		OnFileSkip: func(filename string) {
			fmt.Printf("  %s: already imported\n", filename)
		},
	}
}

func (app *Application) run(resetFailed bool, archivePaths []string) error {
	if resetFailed {
		count, err := app.importer.ResetFailed(app.ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d imports back to pending\n", count)
		return nil
	}

	if len(archivePaths) == 0 {
		return fmt.Errorf("no archives given, usage: %s [flags] archive.zip ...", os.Args[0])
	}

	totals, err := app.importer.ImportArchives(app.ctx, archivePaths)
	fmt.Printf("Imported %d records (%d skipped, %d files already done)\n",
		totals.Imported, totals.Skipped, totals.FilesSkipped)
	return err
}

func (app *Application) shutdown() {
	if app.postgresDB != nil {
		if err := app.postgresDB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		}
		app.postgresDB = nil
	}
	if app.cancelFunc != nil {
		app.cancelFunc()
	}
}
