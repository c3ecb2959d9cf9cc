package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, name, category, image, price_cents, stock, created_at
		FROM products
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, category, image, price_cents, stock, created_at
		FROM products
		WHERE id = $1
	`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// UpsertProduct inserts a product or overwrites its name, price and stock.
func (r *Repository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	if p.Price.IsNegative() || p.Stock < 0 {
		return fmt.Errorf("product %d: price and stock must not be negative", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, name, category, image, price_cents, stock, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     name = excluded.name,
		     category = excluded.category,
		     image = excluded.image,
		     price_cents = excluded.price_cents,
		     stock = excluded.stock`,
		p.ID, p.Name, p.Category, p.Image, domain.MinorUnits(p.Price), p.Stock, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var priceCents int64
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Category,
		&p.Image,
		&priceCents,
		&p.Stock,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.Price = domain.FromMinorUnits(priceCents)
	return p, nil
}

// GetCart returns the cart joined with live product name, price and stock.
func (r *Repository) GetCart(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	return queryCart(ctx, r.db, userID)
}

// AddCartItem adds qty to the line, creating it if needed, and returns the
// resulting quantity.
func (r *Repository) AddCartItem(ctx context.Context, userID, productID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("add cart item: quantity must be positive, got %d", qty)
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, product_id) DO UPDATE SET
		     quantity = cart_items.quantity + excluded.quantity,
		     updated_at = excluded.updated_at
		 RETURNING quantity`,
		userID, productID, qty, r.now()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add cart item: %w", err)
	}
	return total, nil
}

func (r *Repository) SetCartItemQuantity(ctx context.Context, userID, productID int64, qty int) error {
	if qty <= 0 {
		return r.RemoveCartItem(ctx, userID, productID)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1, updated_at = $2 WHERE user_id = $3 AND product_id = $4`,
		qty, r.now(), userID, productID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

func (r *Repository) ClearCart(ctx context.Context, userID int64) error {
	return clearCart(ctx, r.db, userID)
}

func queryCart(ctx context.Context, q querier, userID int64) ([]domain.CartLine, error) {
	query := `
		SELECT c.user_id, c.product_id, p.name, p.category, p.image, c.quantity, p.price_cents, p.stock
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.product_id
	`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var (
			line       domain.CartLine
			priceCents int64
		)
		if err := rows.Scan(
			&line.UserID,
			&line.ProductID,
			&line.ProductName,
			&line.Category,
			&line.Image,
			&line.Quantity,
			&priceCents,
			&line.Stock,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		line.UnitPrice = domain.FromMinorUnits(priceCents)
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

func clearCart(ctx context.Context, q querier, userID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
