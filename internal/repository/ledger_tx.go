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

type ledgerTx struct {
	tx  *sql.Tx
	now func() time.Time
}

// ReadAttemptLines returns the cart lines quoted when the attempt was created.
func (l *ledgerTx) ReadAttemptLines(ctx context.Context, attemptID string) ([]domain.CartLine, error) {
	return queryAttemptLines(ctx, l.tx, attemptID)
}

func (l *ledgerTx) ReadStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := l.tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return stock, nil
}

// DecrementStock removes qty units only if that many are on hand.
func (l *ledgerTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("decrement stock: quantity must be positive, got %d", qty)
	}

	res, err := l.tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $3`,
		qty, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	available, err := l.ReadStock(ctx, productID)
	if err != nil {
		return err
	}
	return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
}

// ReadWallet returns a zero wallet when the user has none yet.
func (l *ledgerTx) ReadWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	w, err := queryWallet(ctx, l.tx, userID)
	if errors.Is(err, ErrNotFound) {
		return &domain.Wallet{UserID: userID, Balance: decimal.Zero}, nil
	}
	return w, err
}

// AdjustWallet applies signed deltas. A debit that would take either balance
// below zero fails with ErrInsufficientFunds and changes nothing.
func (l *ledgerTx) AdjustWallet(ctx context.Context, userID int64, balanceDelta decimal.Decimal, pointsDelta int) error {
	if err := ensureWallet(ctx, l.tx, userID, l.now()); err != nil {
		return err
	}

	delta := domain.MinorUnits(balanceDelta)
	res, err := l.tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance_cents = balance_cents + $1, points = points + $2, updated_at = $3
		 WHERE user_id = $4 AND balance_cents >= $5 AND points >= $6`,
		delta, pointsDelta, l.now(), userID, -delta, -pointsDelta)
	if err != nil {
		return fmt.Errorf("adjust wallet: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (l *ledgerTx) CreateOrder(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, user_id, attempt_id, subtotal_cents, tax_cents, gross_total_cents,
	              wallet_applied_cents, points_redeemed, points_discount_cents, total_cents, currency,
	              status, gateway, intent_ref, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	if o.CreatedAt.IsZero() {
		o.CreatedAt = l.now()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}

	_, err := l.tx.ExecContext(ctx, query,
		o.ID,
		o.UserID,
		o.AttemptID,
		domain.MinorUnits(o.Subtotal),
		domain.MinorUnits(o.Tax),
		domain.MinorUnits(o.GrossTotal),
		domain.MinorUnits(o.WalletApplied),
		o.PointsRedeemed,
		domain.MinorUnits(o.PointsDiscount),
		domain.MinorUnits(o.Total),
		o.Currency,
		o.Status,
		o.Gateway,
		o.IntentRef,
		o.CreatedAt,
		o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSettlement
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (l *ledgerTx) AppendOrderLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine) error {
	for _, line := range lines {
		_, err := l.tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, line.ProductID, line.ProductName, line.Quantity, domain.MinorUnits(line.UnitPrice))
		if err != nil {
			return fmt.Errorf("insert order line for product %d: %w", line.ProductID, err)
		}
	}
	return nil
}

// ClearCart takes the settled quantities out of the user's cart. Lines added
// after the quote stay. With no settled lines the whole cart is cleared.
func (l *ledgerTx) ClearCart(ctx context.Context, userID int64, settled []domain.CartLine) error {
	if len(settled) == 0 {
		return clearCart(ctx, l.tx, userID)
	}

	for _, line := range settled {
		if _, err := l.tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2 AND quantity <= $3`,
			userID, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("clear cart line %d: %w", line.ProductID, err)
		}
		if _, err := l.tx.ExecContext(ctx,
			`UPDATE cart_items SET quantity = quantity - $1, updated_at = $2
			 WHERE user_id = $3 AND product_id = $4 AND quantity > $5`,
			line.Quantity, l.now(), userID, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("clear cart line %d: %w", line.ProductID, err)
		}
	}
	return nil
}

func (l *ledgerTx) AppendTransaction(ctx context.Context, t *domain.Transaction) error {
	return insertTransaction(ctx, l.tx, t, l.now())
}

func (l *ledgerTx) AppendOutboxEvent(ctx context.Context, e *OutboxEvent) error {
	return insertOutboxEvent(ctx, l.tx, e, l.now())
}

func (l *ledgerTx) MarkAttempt(ctx context.Context, attemptID string, update AttemptUpdate) error {
	return updateAttempt(ctx, l.tx, attemptID, update, l.now())
}

func (l *ledgerTx) GetOrderByAttempt(ctx context.Context, attemptID string) (*domain.Order, error) {
	return queryOrder(ctx, l.tx, `o.attempt_id = $1`, attemptID)
}
