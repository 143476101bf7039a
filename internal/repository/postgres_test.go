//go:build integration

package repository_test

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vendora/storefront/internal/repository"
)

// startPostgres spins up a throwaway PostgreSQL container and applies the
// embedded schema. Each suite gets its own container so tests stay isolated.
func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, "", err
	}

	pool, err := repository.NewPool(ctx, connStr)
	if err != nil {
		return container, "", err
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return container, "", err
	}

	return container, connStr, nil
}
