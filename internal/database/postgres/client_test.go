// Copyright (c) 2025 Nimbleforge
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nimbleforge/forge/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionString(t *testing.T) {
	cfg := &config.PostgreSQLConfig{
		Host:     "db",
		Port:     5433,
		Username: "forge",
		Password: "secret",
		Database: "forge_test",
		Schema:   "tenant_a",
	}

	assert.Equal(t,
		"host=db port=5433 dbname=forge_test user=forge password=secret sslmode=disable search_path=tenant_a",
		ConnectionString(cfg))
	assert.Equal(t,
		"postgres://forge:secret@db:5433/forge_test?sslmode=disable&search_path=tenant_a",
		URL(cfg))

	cfg.DSN = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", ConnectionString(cfg))
	assert.Equal(t, "postgres://x@y/z", URL(cfg))
}

func TestNewClient(t *testing.T) {
	if os.Getenv("RUN_DB_TESTS") != "1" {
		t.Skip("set RUN_DB_TESTS=1 to run PostgreSQL tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.LoadFromMap(map[string]string{
		"JWT_PUBLIC_KEY":  "k",
		"JWT_PRIVATE_KEY": "k",
		"POSTGRES_DSN":    os.Getenv("POSTGRES_DSN"),
	})
	require.NoError(t, err)

	client, err := NewClient(ctx, &cfg.Database.Postgres)
	if err != nil {
		t.Skipf("Skipping test: PostgreSQL not available: %v", err)
	}
	defer client.Close()

	require.NoError(t, client.HealthCheck(ctx))

	err = client.WithTx(ctx, func(txCtx context.Context) error {
		var one int
		return client.Executor(txCtx).QueryRowxContext(txCtx, "SELECT 1").Scan(&one)
	})
	require.NoError(t, err)
}
