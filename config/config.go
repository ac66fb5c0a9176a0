package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store driver names accepted by StoreConfig.
const (
	DriverPostgres   = "postgres"
	DriverMongo      = "mongo"
	DriverClickHouse = "clickhouse"
	DriverMemory     = "memory"
)

type Config struct {
	Env        string           `mapstructure:"env"` // "dev" or "prod"
	CoinGecko  CoinGeckoConfig  `mapstructure:"coingecko"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Server     ServerConfig     `mapstructure:"server"`
	SSM        SSMConfig        `mapstructure:"ssm"`
}

type CoinGeckoConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	APIKey  string        `mapstructure:"api_key"` // sent as x-cg-demo-api-key when set

	Currency string `mapstructure:"currency"`
	PerPage  int    `mapstructure:"per_page"`
	Page     int    `mapstructure:"page"`

	MaxAttempts   int             `mapstructure:"max_attempts"`
	Backoff       []time.Duration `mapstructure:"backoff"`
	RateLimitWait time.Duration   `mapstructure:"rate_limit_wait"` // multiplied by attempt number
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"

	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// StoreConfig selects the backend for each of the two write paths.
type StoreConfig struct {
	SnapshotDriver string        `mapstructure:"snapshot_driver"`
	HistoryDriver  string        `mapstructure:"history_driver"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"` // empty disables the last-run store
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ScheduleConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	SaveHistory bool          `mapstructure:"save_history"`
	Align       bool          `mapstructure:"align"` // later runs on UTC multiples of Interval
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from the YAML file at path (optional) and overrides it
// with environment variables. A .env file in the working directory is loaded first
// unless NO_DOTENV=1.
func Load(path string) (*Config, error) {
	if os.Getenv("NO_DOTENV") != "1" {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("CRYPTOETL_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Support environment variables with dot notation (e.g., COINGECKO_API_KEY)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = cfg.Env
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.timeout", 10*time.Second)
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.currency", "usd")
	v.SetDefault("coingecko.per_page", 20)
	v.SetDefault("coingecko.page", 1)
	v.SetDefault("coingecko.max_attempts", 3)
	v.SetDefault("coingecko.backoff", []string{"1s", "2s", "4s"})
	v.SetDefault("coingecko.rate_limit_wait", 30*time.Second)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.dir", "data_raw")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", true)

	v.SetDefault("store.snapshot_driver", DriverPostgres)
	v.SetDefault("store.history_driver", DriverPostgres)
	v.SetDefault("store.connect_timeout", 10*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "crypto_analytics")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "crypto_analytics")

	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("clickhouse.dial_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("schedule.interval", time.Minute)
	v.SetDefault("schedule.save_history", true)
	v.SetDefault("schedule.align", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("ssm.postgres_host_param", "CRYPTOETL_DB_HOST")
	v.SetDefault("ssm.postgres_user_param", "CRYPTOETL_DB_USER")
	v.SetDefault("ssm.postgres_password_param", "CRYPTOETL_DB_PASSWORD")
	v.SetDefault("ssm.mongo_uri_param", "CRYPTOETL_MONGO_URI")
	v.SetDefault("ssm.timeout", 5*time.Second)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CoinGecko.Currency) == "" {
		return errors.New("config: coingecko.currency must not be empty")
	}
	if c.CoinGecko.PerPage <= 0 {
		return fmt.Errorf("config: coingecko.per_page must be positive, got %d", c.CoinGecko.PerPage)
	}
	if c.CoinGecko.Page <= 0 {
		return fmt.Errorf("config: coingecko.page must be positive, got %d", c.CoinGecko.Page)
	}
	if c.CoinGecko.MaxAttempts <= 0 {
		return fmt.Errorf("config: coingecko.max_attempts must be positive, got %d", c.CoinGecko.MaxAttempts)
	}

	switch c.Store.SnapshotDriver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("config: unsupported store.snapshot_driver %q", c.Store.SnapshotDriver)
	}
	switch c.Store.HistoryDriver {
	case DriverPostgres, DriverMongo, DriverClickHouse, DriverMemory:
	default:
		return fmt.Errorf("config: unsupported store.history_driver %q", c.Store.HistoryDriver)
	}

	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("config: schedule.interval must be positive, got %s", c.Schedule.Interval)
	}
	return nil
}

// Uses reports whether either write path is configured with driver.
func (s StoreConfig) Uses(driver string) bool {
	return s.SnapshotDriver == driver || s.HistoryDriver == driver
}
