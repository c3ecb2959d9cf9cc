package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const attemptColumns = `id, user_id, gateway, intent_ref, next_action, wallet_requested_cents, points_requested,
	quoted_payable_cents, status, failure_reason, order_id, created_at, updated_at`

// CreateAttempt inserts a new attempt keyed by its idempotency key, together
// with its quoted lines. A second insert with the same key returns
// ErrDuplicateAttempt.
func (r *Repository) CreateAttempt(ctx context.Context, a *domain.CheckoutAttempt) error {
	now := r.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkout_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11, $12)`,
		a.ID,
		a.UserID,
		a.Gateway,
		a.IntentRef,
		a.NextAction,
		domain.MinorUnits(a.WalletRequested),
		a.PointsRequested,
		domain.MinorUnits(a.QuotedPayable),
		a.Status,
		a.FailureReason,
		a.CreatedAt,
		a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttempt
		}
		return fmt.Errorf("insert checkout attempt: %w", err)
	}

	for _, line := range a.Lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO checkout_attempt_lines (attempt_id, product_id, product_name, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4, $5)`,
			a.ID, line.ProductID, line.ProductName, line.Quantity, domain.MinorUnits(line.UnitPrice))
		if err != nil {
			return fmt.Errorf("insert checkout attempt line for product %d: %w", line.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func queryAttemptLines(ctx context.Context, q querier, attemptID string) ([]domain.CartLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT a.user_id, l.product_id, l.product_name, l.quantity, l.unit_price_cents
		 FROM checkout_attempt_lines l
		 JOIN checkout_attempts a ON a.id = l.attempt_id
		 WHERE l.attempt_id = $1
		 ORDER BY l.product_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query checkout attempt lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var (
			line       domain.CartLine
			priceCents int64
		)
		if err := rows.Scan(&line.UserID, &line.ProductID, &line.ProductName, &line.Quantity, &priceCents); err != nil {
			return nil, fmt.Errorf("scan checkout attempt line: %w", err)
		}
		line.UnitPrice = domain.FromMinorUnits(priceCents)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

func (r *Repository) GetAttempt(ctx context.Context, id string) (*domain.CheckoutAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

func (r *Repository) GetAttemptByIntent(ctx context.Context, gateway, intentRef string) (*domain.CheckoutAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE gateway = $1 AND intent_ref = $2`,
		gateway, intentRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

func (r *Repository) UpdateAttempt(ctx context.Context, id string, update AttemptUpdate) error {
	return updateAttempt(ctx, r.db, id, update, r.now())
}

// ListStaleAttempts returns attempts that have sat in status since before olderThan.
func (r *Repository) ListStaleAttempts(ctx context.Context, status domain.CheckoutStatus, olderThan time.Time, limit int) ([]*domain.CheckoutAttempt, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at
		 LIMIT $3`, status, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.CheckoutAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

// RecordReconciliation stores a captured-but-unsettled payment together with
// the outbox event that announces it.
func (r *Repository) RecordReconciliation(ctx context.Context, e *domain.ReconciliationEntry, event *OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reconciliation_entries (id, attempt_id, user_id, gateway, intent_ref,
		     captured_amount_cents, expected_amount_cents, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.AttemptID, e.UserID, e.Gateway, e.IntentRef,
		domain.MinorUnits(e.CapturedAmount), domain.MinorUnits(e.ExpectedAmount), e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reconciliation entry: %w", err)
	}

	if event != nil {
		if err := insertOutboxEvent(ctx, tx, event, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) ListReconciliations(ctx context.Context, limit int) ([]*domain.ReconciliationEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, attempt_id, user_id, gateway, intent_ref, captured_amount_cents,
		     expected_amount_cents, reason, created_at
		 FROM reconciliation_entries
		 ORDER BY created_at DESC, id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ReconciliationEntry
	for rows.Next() {
		var (
			e                  domain.ReconciliationEntry
			captured, expected int64
		)
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.UserID, &e.Gateway, &e.IntentRef,
			&captured, &expected, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation entry: %w", err)
		}
		e.CapturedAmount = domain.FromMinorUnits(captured)
		e.ExpectedAmount = domain.FromMinorUnits(expected)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events
		 WHERE processed_at IS NULL
		 ORDER BY created_at, id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var (
			e       OutboxEvent
			payload string
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = $1 WHERE id = $2 AND processed_at IS NULL`, r.now(), id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
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

func insertOutboxEvent(ctx context.Context, q querier, e *OutboxEvent, now time.Time) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.AggregateID, e.EventType, string(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// updateAttempt writes u. With u.From set the write is conditional on the
// stored status, so a request holding a stale copy cannot undo a transition
// another request already made.
func updateAttempt(ctx context.Context, q querier, id string, u AttemptUpdate, now time.Time) error {
	sets := []string{"status = $1", "updated_at = $2"}
	args := []any{u.Status, now}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.FailureReason != "" {
		add("failure_reason", u.FailureReason)
	}
	if u.Gateway != "" {
		add("gateway", u.Gateway)
	}
	if u.IntentRef != "" {
		add("intent_ref", u.IntentRef)
	}
	if u.NextAction != "" {
		add("next_action", u.NextAction)
	}
	if u.OrderID != nil {
		add("order_id", *u.OrderID)
	}

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if u.From != "" {
		args = append(args, u.From)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE checkout_attempts SET %s WHERE %s`, strings.Join(sets, ", "), where)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttempt
		}
		return fmt.Errorf("update checkout attempt: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if u.From != "" {
			return attemptMissOrMoved(ctx, q, id)
		}
		return ErrAttemptNotFound
	}
	return nil
}

func attemptMissOrMoved(ctx context.Context, q querier, id string) error {
	var status domain.CheckoutStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM checkout_attempts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAttemptNotFound
	}
	if err != nil {
		return fmt.Errorf("read checkout attempt status: %w", err)
	}
	return fmt.Errorf("%w: attempt %s is %s", ErrAttemptStatusChanged, id, status)
}

func scanAttempt(row rowScanner) (*domain.CheckoutAttempt, error) {
	var (
		a               domain.CheckoutAttempt
		wallet, payable int64
		orderID         uuid.NullUUID
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Gateway,
		&a.IntentRef,
		&a.NextAction,
		&wallet,
		&a.PointsRequested,
		&payable,
		&a.Status,
		&a.FailureReason,
		&orderID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkout attempt: %w", err)
	}

	a.WalletRequested = domain.FromMinorUnits(wallet)
	a.QuotedPayable = domain.FromMinorUnits(payable)
	if orderID.Valid {
		id := orderID.UUID
		a.OrderID = &id
	}
	return &a, nil
}
