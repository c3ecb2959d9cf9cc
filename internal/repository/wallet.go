package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GetWallet returns the user's wallet, creating an empty one on first access.
func (r *Repository) GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	if err := ensureWallet(ctx, r.db, userID, r.now()); err != nil {
		return nil, err
	}
	return queryWallet(ctx, r.db, userID)
}

// CreditWallet tops up balance and points and records a TopUp transaction in
// the same store transaction.
func (r *Repository) CreditWallet(ctx context.Context, userID int64, amount decimal.Decimal, points int) (*domain.Wallet, error) {
	if amount.IsNegative() || points < 0 || (amount.IsZero() && points == 0) {
		return nil, fmt.Errorf("credit wallet: amount and points must be non-negative and not both zero")
	}

	var wallet *domain.Wallet
	err := r.InTx(ctx, func(tx LedgerTx) error {
		if err := tx.AdjustWallet(ctx, userID, amount, points); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, &domain.Transaction{
			UserID:   userID,
			Type:     domain.TransactionTopUp,
			Method:   domain.MethodWallet,
			Amount:   amount,
			Points:   points,
			Currency: domain.DefaultCurrency,
			Status:   domain.TransactionStatusCompleted,
		}); err != nil {
			return err
		}
		w, err := tx.ReadWallet(ctx, userID)
		wallet = w
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, order_id, type, method, amount_cents, points, currency, status, created_at
		 FROM transactions WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var (
			t       domain.Transaction
			orderID uuid.NullUUID
			cents   int64
		)
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&orderID,
			&t.Type,
			&t.Method,
			&cents,
			&t.Points,
			&t.Currency,
			&t.Status,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if orderID.Valid {
			id := orderID.UUID
			t.OrderID = &id
		}
		t.Amount = domain.FromMinorUnits(cents)
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return txs, nil
}

func ensureWallet(ctx context.Context, q querier, userID int64, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance_cents, points, updated_at)
		 VALUES ($1, 0, 0, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, now)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

func queryWallet(ctx context.Context, q querier, userID int64) (*domain.Wallet, error) {
	var (
		w     domain.Wallet
		cents int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT user_id, balance_cents, points, updated_at FROM wallets WHERE user_id = $1`, userID).
		Scan(&w.UserID, &cents, &w.Points, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query wallet: %w", err)
	}
	w.Balance = domain.FromMinorUnits(cents)
	return &w, nil
}

func insertTransaction(ctx context.Context, q querier, t *domain.Transaction, now time.Time) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	var orderID uuid.NullUUID
	if t.OrderID != nil {
		orderID = uuid.NullUUID{UUID: *t.OrderID, Valid: true}
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, order_id, type, method, amount_cents, points, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.UserID, orderID, t.Type, t.Method, domain.MinorUnits(t.Amount), t.Points, t.Currency, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}
