package config

import (
	"context"
	"fmt"
	"time"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns a key/value connection string for the configured database.
func (cfg *PostgresConfig) DSN() string {
	return cfg.dsn(cfg.DBName)
}

// MaintenanceDSN points at the server's default "postgres" database, used to
// create cfg.DBName when it does not exist yet.
func (cfg *PostgresConfig) MaintenanceDSN() string {
	return cfg.dsn("postgres")
}

func (cfg *PostgresConfig) dsn(dbName string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, dbName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

// ResolveSecrets replaces database credentials with values from AWS SSM
// Parameter Store when running in prod. Parameters that cannot be read leave
// the file/env value untouched.
func (c *Config) ResolveSecrets(ctx context.Context, store ParameterReader) {
	if c.Env != "prod" || store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.SSM.Timeout)
	defer cancel()

	if c.Store.Uses(DriverPostgres) {
		if v := store.Get(ctx, c.SSM.PostgresHostParam, true); v != "" {
			c.Postgres.Host = v
		}
		if v := store.Get(ctx, c.SSM.PostgresUserParam, true); v != "" {
			c.Postgres.User = v
		}
		if v := store.Get(ctx, c.SSM.PostgresPasswordParam, true); v != "" {
			c.Postgres.Password = v
		}
	}
	if c.Store.Uses(DriverMongo) {
		if v := store.Get(ctx, c.SSM.MongoURIParam, true); v != "" {
			c.Mongo.URI = v
		}
	}
}
