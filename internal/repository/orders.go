package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const orderColumns = `o.id, o.user_id, o.attempt_id, o.subtotal_cents, o.tax_cents, o.gross_total_cents,
	o.wallet_applied_cents, o.points_redeemed, o.points_discount_cents, o.total_cents, o.currency,
	o.status, o.gateway, o.intent_ref, o.created_at, o.updated_at`

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return queryOrder(ctx, r.db, `o.id = $1`, id)
}

func (r *Repository) ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id`
	return r.listOrders(ctx, query, userID)
}

func (r *Repository) ListAllOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + orderColumns + ` FROM orders o ORDER BY o.created_at DESC, o.id LIMIT $1`
	return r.listOrders(ctx, query, limit)
}

// UpdateOrderStatus enforces OrderStatus.CanTransitionTo against the stored status.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	var current domain.OrderStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("query order status: %w", err)
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, current, status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		status, r.now(), id, current)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: order %s changed concurrently", ErrInvalidOrderTransition, id)
	}
	return nil
}

func (r *Repository) listOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	// lines are loaded after the order rows are closed; SQLite runs on one connection
	for _, o := range orders {
		if o.Lines, err = queryOrderLines(ctx, r.db, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func queryOrder(ctx context.Context, q querier, where string, arg any) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE ` + where

	o, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if o.Lines, err = queryOrderLines(ctx, q, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                                               domain.Order
		subtotal, tax, gross, wallet, discount, payable int64
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.AttemptID,
		&subtotal,
		&tax,
		&gross,
		&wallet,
		&o.PointsRedeemed,
		&discount,
		&payable,
		&o.Currency,
		&o.Status,
		&o.Gateway,
		&o.IntentRef,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan order row: %w", err)
	}

	o.Subtotal = domain.FromMinorUnits(subtotal)
	o.Tax = domain.FromMinorUnits(tax)
	o.GrossTotal = domain.FromMinorUnits(gross)
	o.WalletApplied = domain.FromMinorUnits(wallet)
	o.PointsDiscount = domain.FromMinorUnits(discount)
	o.Total = domain.FromMinorUnits(payable)
	return &o, nil
}

func queryOrderLines(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT order_id, product_id, product_name, quantity, unit_price_cents
		 FROM order_items WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			line  domain.OrderLine
			cents int64
		)
		if err := rows.Scan(&line.OrderID, &line.ProductID, &line.ProductName, &line.Quantity, &cents); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		line.UnitPrice = domain.FromMinorUnits(cents)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}
