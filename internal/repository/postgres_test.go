package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func setupPostgres(t *testing.T) *Repository {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Driver:   DriverPostgres,
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	repo, err := NewRepository(creds, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())

	t.Cleanup(func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return repo
}

func TestPostgres_ConcurrentCommitsNeverOversell(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertProduct(ctx, &domain.Product{
		ID: 1, Name: "last unit", Price: decimal.RequireFromString("10.00"), Stock: 1,
	}))

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		stockErrs int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InTx(ctx, func(tx LedgerTx) error {
				return tx.DecrementStock(ctx, 1, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, ErrInsufficientStock) {
				stockErrs++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, buyers-1, stockErrs)

	p, err := repo.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestPostgres_DuplicateSettlement(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx LedgerTx) error {
		return tx.CreateOrder(ctx, newTestOrder("attempt-1"))
	}))
	err := repo.InTx(ctx, func(tx LedgerTx) error {
		return tx.CreateOrder(ctx, newTestOrder("attempt-1"))
	})
	assert.ErrorIs(t, err, ErrDuplicateSettlement)
}

func TestPostgres_WalletDebitIsConditional(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	_, err := repo.CreditWallet(ctx, 7, decimal.RequireFromString("3.00"), 10)
	require.NoError(t, err)

	err = repo.InTx(ctx, func(tx LedgerTx) error {
		return tx.AdjustWallet(ctx, 7, decimal.RequireFromString("-3.01"), 0)
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	w, err := repo.GetWallet(ctx, 7)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("3.00")))
}
