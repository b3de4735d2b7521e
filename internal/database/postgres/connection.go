package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"powietrze-import/internal/config"
	"powietrze-import/internal/models"
)

// PostgresDB holds both access paths to the database: gorm for the dictionary
// and tracker tables, and a pgx pool for the COPY-based bulk load.
type PostgresDB struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

func NewConnection(ctx context.Context, cfg config.PostgresConfig) (*PostgresDB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.Dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	pool, err := pgxpool.New(ctx, cfg.Dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	postgresDB := &PostgresDB{db: db, pool: pool}

	if err := postgresDB.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return postgresDB, nil
}

func (p *PostgresDB) migrate() error {
	return p.db.AutoMigrate(
		&models.Station{},
		&models.Indicator{},
		&models.ImportFile{},
		&models.Measurement{},
	)
}

func (p *PostgresDB) GetDB() *gorm.DB {
	return p.db
}

func (p *PostgresDB) GetPool() *pgxpool.Pool {
	return p.pool
}

func (p *PostgresDB) Close() error {
	p.pool.Close()

	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
