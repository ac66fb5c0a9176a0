package postgres_test

import (
	"context"
	"testing"
	"time"

	"cryptoetl/config"
	"cryptoetl/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupStore starts a throwaway Postgres and returns a provisioned store
// along with the config that reaches it.
func setupStore(t *testing.T) (*postgres.Store, config.PostgresConfig) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cryptoetl"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.PostgresConfig{
		Host:         host,
		Port:         port.Int(),
		User:         "test",
		Password:     "test",
		DBName:       "cryptoetl",
		SSLMode:      "disable",
		TimeZone:     "UTC",
		MaxOpenConns: 4,
	}

	store, err := postgres.Open(ctx, cfg, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureSchema(ctx))
	return store, cfg
}

func ptr[T any](v T) *T {
	return &v
}
