package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"cryptoetl/config"

	"github.com/lib/pq"
)

// CreateDatabase connects to the server's maintenance database and creates
// cfg.DBName if it doesn't exist.
func CreateDatabase(ctx context.Context, cfg config.PostgresConfig) (bool, error) {
	db, err := sql.Open("postgres", cfg.MaintenanceDSN())
	if err != nil {
		return false, fmt.Errorf("connect failed: %w", err)
	}
	defer db.Close()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1);`
	if err := db.QueryRowContext(ctx, query, cfg.DBName).Scan(&exists); err != nil {
		return false, fmt.Errorf("check db exists failed: %w", err)
	}

	if exists {
		return false, nil
	}

	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.DBName)); err != nil {
		return false, fmt.Errorf("create db failed: %w", err)
	}

	return true, nil
}
