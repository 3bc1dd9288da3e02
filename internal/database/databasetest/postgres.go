// Package databasetest sobe um Postgres descartável para testes de integração.
package databasetest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
)

// NewPool starts a migrated Postgres container and returns a pool connected to it.
// The test is skipped in -short mode or when no container runtime is reachable.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// SeedProduct insere um produto e devolve o id gerado
func SeedProduct(t *testing.T, pool *pgxpool.Pool, name, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products (name, price, stock) VALUES ($1, $2::numeric, $3) RETURNING id`,
		name, price, stock,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// Stock lê o estoque atual de um produto
func Stock(t *testing.T, pool *pgxpool.Pool, productID int64) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	require.NoError(t, err)
	return stock
}
