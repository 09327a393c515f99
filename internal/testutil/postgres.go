package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/database/migrations"
	"github.com/nimbleforge/forge/internal/database/postgres"
	"github.com/nimbleforge/forge/internal/platform/config"
	"github.com/stretchr/testify/require"
)

// SetupPostgres migrates the database at POSTGRES_DSN and returns a client.
// The test is skipped unless RUN_DB_TESTS=1.
func SetupPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	if os.Getenv("RUN_DB_TESTS") != "1" {
		t.Skip("set RUN_DB_TESTS=1 to run database tests")
	}
	dsn := os.Getenv("POSTGRES_DSN")
	require.NotEmpty(t, dsn, "POSTGRES_DSN must be a postgres:// URL")

	require.NoError(t, migrations.Up(dsn))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := postgres.NewClient(ctx, &config.PostgreSQLConfig{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 1})
	if err != nil {
		t.Skipf("postgres not available, skipping: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// UniqueName returns prefix with a random suffix, for rows that must not
// collide across test runs.
func UniqueName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.Must(uuid.NewV4()).String()[:8], "-", "")
}
