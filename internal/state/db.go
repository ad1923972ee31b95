// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		-- Static asset registry. Asset and strategy order is significant and
		-- captured by the position columns; only the paused flag ever changes.
		CREATE TABLE IF NOT EXISTS vault_assets (
			asset_position INTEGER PRIMARY KEY,
			denom VARCHAR(128) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS vault_strategies (
			strategy_id VARCHAR(128) PRIMARY KEY,
			asset_denom VARCHAR(128) NOT NULL REFERENCES vault_assets(denom),
			strategy_position INTEGER NOT NULL,
			name VARCHAR(255) NOT NULL,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT uq_vault_strategies_position UNIQUE (asset_denom, strategy_position)
		);
		CREATE INDEX IF NOT EXISTS idx_vault_strategies_asset ON vault_strategies(asset_denom, strategy_position);

		-- Per-operation receipt log. Step receipts are stored as JSONB so the
		-- dashboard can show exactly which step of a non-atomic batch failed.
		CREATE TABLE IF NOT EXISTS operation_records (
			record_id SERIAL PRIMARY KEY,
			operation_id UUID NOT NULL,
			kind VARCHAR(32) NOT NULL,
			caller VARCHAR(128),
			success BOOLEAN NOT NULL,
			error_message TEXT,
			shares_delta NUMERIC(78, 0) NOT NULL DEFAULT 0,
			steps JSONB,
			operation_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_operation_records_timestamp ON operation_records(operation_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_operation_records_kind ON operation_records(kind);
		CREATE INDEX IF NOT EXISTS idx_operation_records_operation_id ON operation_records(operation_id);

		-- Operation counter for a persistent global sequence across restarts.
		CREATE TABLE IF NOT EXISTS operation_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_sequence BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		INSERT INTO operation_counter (id, current_sequence)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
