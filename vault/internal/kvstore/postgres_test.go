package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDatabase creates a PostgreSQL testcontainer and runs migrations
func setupTestDatabase(t *testing.T) *PostgresStore {
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("cardvault_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	version, err := Migrate(connStr, "")
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	// Re-running is a no-op.
	_, err = Migrate(connStr, "")
	require.NoError(t, err)

	store, err := NewPostgresStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, setupTestDatabase(t))
}

func TestPostgresStore_ListEscapesLike(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a_b:1", "x"))
	require.NoError(t, store.Set(ctx, "aXb:1", "x"))

	keys, err := store.List(ctx, "a_b:")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b:1"}, keys)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `security\_cache\%:`, escapeLike("security_cache%:"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
}
