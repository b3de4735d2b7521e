package importer

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"powietrze-import/internal/parser"
)

// batchConn is the slice of a pgx transaction the loader uses; it exists so
// the staging path can be tested without a live database.
type batchConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var stagingColumns = []string{
	"station_id", "indicator_id", "import_file_id",
	"averaging_time", "measured_at", "value",
}

const createStagingSQL = `
	CREATE TEMP TABLE IF NOT EXISTS measurements_staging (
		station_id BIGINT,
		indicator_id BIGINT,
		import_file_id BIGINT,
		averaging_time TEXT,
		measured_at TIMESTAMP,
		value NUMERIC(10, 2)
	) ON COMMIT DROP`

// mergeSQL folds the staged batch into measurements. DISTINCT ON with the
// descending import_file_id ordering keeps exactly one staged row per natural
// key, favoring the most recent file; the ON CONFLICT clause turns collisions
// with existing rows into overwrites of value and owning file.
const mergeSQL = `
	INSERT INTO measurements (
		station_id, indicator_id, import_file_id,
		averaging_time, measured_at, value
	)
	SELECT DISTINCT ON (station_id, indicator_id, averaging_time, measured_at)
		station_id, indicator_id, import_file_id,
		averaging_time, measured_at, value
	FROM measurements_staging
	ORDER BY station_id, indicator_id, averaging_time, measured_at,
		import_file_id DESC
	ON CONFLICT (station_id, indicator_id, averaging_time, measured_at)
	DO UPDATE SET
		value = EXCLUDED.value,
		import_file_id = EXCLUDED.import_file_id`

// Loader persists batches of parsed records through a COPY into a transient
// staging table followed by an upsert merge, all within one transaction per
// batch.
type Loader struct {
	pool     *pgxpool.Pool
	resolver *Resolver
	log      zerolog.Logger
}

func NewLoader(pool *pgxpool.Pool, resolver *Resolver, log zerolog.Logger) *Loader {
	return &Loader{pool: pool, resolver: resolver, log: log}
}

// LoadBatch stages and merges one batch for the given import file. Records
// without a value are not persisted and are counted as skipped. Returns the
// imported and skipped counts.
func (l *Loader) LoadBatch(ctx context.Context, records []parser.Record, importFileID uint) (int, int, error) {
	rows, skipped, err := l.buildRows(ctx, records, importFileID)
	if err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, skipped, nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := stageAndMerge(ctx, tx, rows); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit batch: %w", err)
	}

	l.log.Debug().
		Int("imported", len(rows)).
		Int("skipped", skipped).
		Uint("import_file_id", importFileID).
		Msg("Batch merged")

	return len(rows), skipped, nil
}

// buildRows filters and resolves the batch into staging rows. Resolution of
// station and indicator ids goes through the cached resolver, so repeated
// keys within a run cost one storage round trip in total.
func (l *Loader) buildRows(ctx context.Context, records []parser.Record, importFileID uint) ([][]any, int, error) {
	rows := make([][]any, 0, len(records))
	skipped := 0

	for _, record := range records {
		if record.Value == nil {
			skipped++
			continue
		}

		stationID, err := l.resolver.ResolveStation(ctx, record.StationCode)
		if err != nil {
			return nil, 0, fmt.Errorf("resolve station %s: %w", record.StationCode, err)
		}

		indicatorID, err := l.resolver.ResolveIndicator(ctx, record.IndicatorName, record.Unit)
		if err != nil {
			return nil, 0, fmt.Errorf("resolve indicator %s [%s]: %w", record.IndicatorName, record.Unit, err)
		}

		rows = append(rows, []any{
			int64(stationID),
			int64(indicatorID),
			int64(importFileID),
			record.AveragingTime,
			record.MeasuredAt,
			roundValue(*record.Value),
		})
	}

	return rows, skipped, nil
}

func stageAndMerge(ctx context.Context, conn batchConn, rows [][]any) error {
	if _, err := conn.Exec(ctx, createStagingSQL); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	if _, err := conn.CopyFrom(ctx,
		pgx.Identifier{"measurements_staging"},
		stagingColumns,
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy into staging: %w", err)
	}

	if _, err := conn.Exec(ctx, mergeSQL); err != nil {
		return fmt.Errorf("merge staging into measurements: %w", err)
	}

	return nil
}

// roundValue normalizes values to two decimals before staging so re-imports
// of the same cell stage an identical value.
func roundValue(v float64) float64 {
	return math.Round(v*100) / 100
}
