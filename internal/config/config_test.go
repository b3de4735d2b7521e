package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powietrze-import/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "powietrze", cfg.Postgres.Database)
	assert.Contains(t, cfg.Postgres.Dsn, "sslmode=disable")
	assert.Equal(t, 50000, cfg.Import.BatchSize)
	assert.Equal(t, []string{"Depozycja"}, cfg.Import.SkipPatterns)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("IMPORT_BATCH_SIZE", "1000")
	t.Setenv("IMPORT_SKIP_PATTERNS", "Depozycja, Metadane")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Contains(t, cfg.Postgres.Dsn, "host=db.internal")
	assert.Contains(t, cfg.Postgres.Dsn, "port=5433")
	assert.Equal(t, 1000, cfg.Import.BatchSize)
	assert.Equal(t, []string{"Depozycja", "Metadane"}, cfg.Import.SkipPatterns)
}

func TestLoad_InvalidBatchSizeRejected(t *testing.T) {
	t.Setenv("IMPORT_BATCH_SIZE", "-5")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_MalformedIntFallsBackToDefault(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-port")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}
