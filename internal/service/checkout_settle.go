package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/rewards"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventCheckoutCompleted      = "CheckoutCompleted"
	EventReconciliationRequired = "ReconciliationRequired"

	// reconciliationPrefix marks failure reasons of attempts whose captured
	// payment is already in the reconciliation log.
	reconciliationPrefix = "reconciliation required: "
)

// Complete waits for the gateway to resolve the attempt's intent and settles
// it. If ctx is cancelled first (the client went away) the attempt stays in
// AwaitingGateway for RecoverStale.
func (s *CheckoutServiceImpl) Complete(ctx context.Context, userID int64, attemptID string) (*CheckoutResult, error) {
	attempt, err := s.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, repository.ErrAttemptNotFound
	}
	return s.complete(ctx, attempt)
}

// HandleReturn is the gateway callback entry point. Duplicate callbacks for
// an already settled intent return the existing order.
func (s *CheckoutServiceImpl) HandleReturn(ctx context.Context, kind gateway.Kind, intentRef string) (*CheckoutResult, error) {
	if intentRef == "" {
		return nil, validationError("intent reference is required")
	}
	attempt, err := s.repo.GetAttemptByIntent(ctx, string(kind), intentRef)
	if err != nil {
		return nil, err
	}

	if attempt.Status == domain.CheckoutStatusFailed {
		s.checkLateCapture(ctx, attempt)
		return s.resultFor(ctx, attempt)
	}
	return s.complete(ctx, attempt)
}

// RecoverStale resolves attempts left in AwaitingGateway, typically because
// the client disconnected mid-poll. Each gateway is asked once per pass.
func (s *CheckoutServiceImpl) RecoverStale(ctx context.Context) (int, error) {
	log := logger.WithTrace(ctx, s.logger)

	stale, err := s.repo.ListStaleAttempts(ctx, domain.CheckoutStatusAwaitingGateway, s.now().Add(-s.cfg.StaleAfter), 100)
	if err != nil {
		return 0, fmt.Errorf("list stale attempts: %w", err)
	}

	resolved := 0
	for _, attempt := range stale {
		adapter, err := s.gateways.Get(gateway.Kind(attempt.Gateway))
		if err != nil {
			log.Error("stale attempt has unknown gateway", zap.String("attempt_id", attempt.ID), zap.Error(err))
			continue
		}

		outcome, err := adapter.Resolve(ctx, gateway.IntentRef{ID: attempt.IntentRef, Kind: adapter.Kind()})
		if err != nil {
			log.Warn("stale attempt resolve failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
			continue
		}

		switch outcome.Status {
		case gateway.StatusSettled:
			if _, err := s.settle(ctx, attempt, &outcome); err != nil {
				log.Warn("stale attempt settlement failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
			}
			resolved++
		case gateway.StatusFailed:
			s.fail(ctx, attempt, outcome.Reason)
			resolved++
		default:
			if s.now().Sub(attempt.CreatedAt) > s.cfg.ExpireAfter {
				s.fail(ctx, attempt, "gateway intent expired")
				resolved++
			}
		}
	}

	if resolved > 0 {
		log.Info("recovered stale checkout attempts", zap.Int("count", resolved))
	}
	return resolved, nil
}

func (s *CheckoutServiceImpl) complete(ctx context.Context, attempt *domain.CheckoutAttempt) (*CheckoutResult, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("attempt_id", attempt.ID),
		zap.String("gateway", attempt.Gateway))

	switch attempt.Status {
	case domain.CheckoutStatusCompleted, domain.CheckoutStatusFailed:
		return s.resultFor(ctx, attempt)
	case domain.CheckoutStatusAwaitingGateway:
	default:
		return nil, fmt.Errorf("%w: %s cannot be completed", IllegalTransitionError, attempt.Status)
	}

	adapter, err := s.gateways.Get(gateway.Kind(attempt.Gateway))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcome, err := gateway.Await(ctx, adapter, gateway.IntentRef{ID: attempt.IntentRef, Kind: adapter.Kind()})
	metrics.ObserveGatewayAwait(attempt.Gateway, time.Since(start))
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayTimeout) {
			log.Warn("gateway did not resolve in time", zap.Error(err))
			if !s.fail(ctx, attempt, "gateway timeout") && attempt.Status == domain.CheckoutStatusCompleted {
				// a callback settled it while we were polling
				return s.resultFor(ctx, attempt)
			}
			return nil, err
		}
		// caller went away; the attempt stays recoverable
		log.Info("gateway wait interrupted", zap.Error(err))
		return nil, err
	}

	switch outcome.Status {
	case gateway.StatusSettled:
		return s.settle(ctx, attempt, &outcome)
	default:
		log.Info("payment failed at gateway", zap.String("reason", outcome.Reason))
		s.fail(ctx, attempt, outcome.Reason)
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, outcome.Reason)
	}
}

// settle commits the attempt. outcome is nil when wallet and points cover
// the whole order and no gateway was involved.
func (s *CheckoutServiceImpl) settle(ctx context.Context, attempt *domain.CheckoutAttempt, outcome *gateway.Outcome) (*CheckoutResult, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("attempt_id", attempt.ID),
		zap.Int64("user_id", attempt.UserID))

	if !domain.CanTransitionTo(attempt.Status, domain.CheckoutStatusSettling) {
		return nil, fmt.Errorf("%w: %s -> %s", IllegalTransitionError, attempt.Status, domain.CheckoutStatusSettling)
	}

	var method domain.TransactionMethod
	if outcome != nil {
		adapter, err := s.gateways.Get(gateway.Kind(attempt.Gateway))
		if err != nil {
			return nil, err
		}
		method = adapter.Method()
	}

	expected := attempt.QuotedPayable
	var order *domain.Order
	err := s.repo.InTx(ctx, func(tx repository.LedgerTx) error {
		var err error
		order, expected, err = s.commit(ctx, tx, attempt, outcome, method)
		return err
	})

	if err == nil {
		s.settled(ctx, attempt, order)
		log.Info("checkout completed",
			zap.String("order_id", order.ID.String()),
			zap.String("total", order.Total.StringFixed(2)))
		return &CheckoutResult{
			AttemptID:    attempt.ID,
			Status:       domain.CheckoutStatusCompleted,
			Gateway:      attempt.Gateway,
			IntentRef:    attempt.IntentRef,
			PayableTotal: order.Total,
			Order:        order,
		}, nil
	}

	// a concurrent duplicate may have settled this attempt first
	if current, getErr := s.repo.GetAttempt(ctx, attempt.ID); getErr == nil && current.Status == domain.CheckoutStatusCompleted {
		log.Info("attempt already settled by a concurrent request")
		return s.resultFor(ctx, current)
	}

	err = classifyCommitError(err)
	if outcome == nil {
		s.fail(ctx, attempt, err.Error())
		return nil, err
	}

	reason := reconciliationPrefix + err.Error()
	if !s.fail(ctx, attempt, reason) {
		switch {
		case attempt.Status == domain.CheckoutStatusCompleted:
			return s.resultFor(ctx, attempt)
		case strings.HasPrefix(attempt.FailureReason, reconciliationPrefix):
			return nil, err
		case attempt.Status == domain.CheckoutStatusFailed:
			// failed elsewhere (timeout, expiry) while the capture went through
			s.flagReconciled(ctx, attempt, reason)
		}
	}
	s.reconcile(ctx, attempt, outcome.CapturedAmount, expected, err.Error())
	return nil, err
}

// commit runs inside one store transaction. The order is made of the lines
// quoted on the attempt at their quoted prices; stock and balances are
// re-checked by the conditional writes.
func (s *CheckoutServiceImpl) commit(
	ctx context.Context,
	tx repository.LedgerTx,
	attempt *domain.CheckoutAttempt,
	outcome *gateway.Outcome,
	method domain.TransactionMethod) (*domain.Order, decimal.Decimal, error) {

	expected := attempt.QuotedPayable

	if existing, err := tx.GetOrderByAttempt(ctx, attempt.ID); err == nil {
		return existing, existing.Total, nil
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, expected, err
	}

	lines, err := tx.ReadAttemptLines(ctx, attempt.ID)
	if err != nil {
		return nil, expected, err
	}
	if len(lines) == 0 {
		return nil, expected, ErrEmptyCart
	}

	totals, err := s.calc.CalculateCart(lines)
	if err != nil {
		return nil, expected, validationError("%v", err)
	}

	// balances are enforced by the conditional debit below, so the resolver
	// only clamps the stored split against the recomputed total
	split := rewards.Resolve(rewards.Input{
		OrderTotal:      totals.Total,
		WalletBalance:   attempt.WalletRequested,
		PointsBalance:   attempt.PointsRequested,
		RequestedWallet: attempt.WalletRequested,
		RequestedPoints: attempt.PointsRequested,
	})
	expected = split.PayableTotal

	if outcome == nil {
		if split.PayableTotal.IsPositive() {
			return nil, expected, fmt.Errorf("%w: %s left to pay without a gateway",
				repository.ErrInsufficientFunds, split.PayableTotal.StringFixed(2))
		}
	} else if !outcome.CapturedAmount.IsPositive() || !outcome.CapturedAmount.Equal(split.PayableTotal) {
		return nil, expected, &CaptureMismatchError{Captured: outcome.CapturedAmount, Expected: split.PayableTotal}
	}

	for _, line := range lines {
		if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return nil, expected, err
		}
	}

	if split.WalletApplied.IsPositive() || split.PointsToRedeem > 0 {
		if err := tx.AdjustWallet(ctx, attempt.UserID, split.WalletApplied.Neg(), -split.PointsToRedeem); err != nil {
			return nil, expected, err
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:             uuid.New(),
		UserID:         attempt.UserID,
		AttemptID:      attempt.ID,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		GrossTotal:     totals.Total,
		WalletApplied:  split.WalletApplied,
		PointsRedeemed: split.PointsToRedeem,
		PointsDiscount: split.PointsDiscount,
		Total:          split.PayableTotal,
		Currency:       s.cfg.Currency,
		Status:         domain.OrderStatusCompleted,
		Gateway:        attempt.Gateway,
		IntentRef:      attempt.IntentRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, line := range lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}

	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, expected, err
	}
	if err := tx.AppendOrderLines(ctx, order.ID, order.Lines); err != nil {
		return nil, expected, err
	}
	if err := tx.ClearCart(ctx, attempt.UserID, lines); err != nil {
		return nil, expected, err
	}

	for _, t := range settlementTransactions(order, method) {
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return nil, expected, err
		}
	}

	event, err := completedEvent(order)
	if err != nil {
		return nil, expected, err
	}
	if err := tx.AppendOutboxEvent(ctx, event); err != nil {
		return nil, expected, err
	}

	orderID := order.ID
	if err := tx.MarkAttempt(ctx, attempt.ID, repository.AttemptUpdate{
		From:    attempt.Status,
		Status:  domain.CheckoutStatusCompleted,
		OrderID: &orderID,
	}); err != nil {
		return nil, expected, err
	}
	return order, expected, nil
}

// settlementTransactions pairs every wallet, points and gateway movement of
// the order with an audit row.
func settlementTransactions(order *domain.Order, method domain.TransactionMethod) []*domain.Transaction {
	orderID := order.ID
	var txs []*domain.Transaction
	if order.WalletApplied.IsPositive() {
		txs = append(txs, &domain.Transaction{
			UserID:   order.UserID,
			OrderID:  &orderID,
			Type:     domain.TransactionPayment,
			Method:   domain.MethodWallet,
			Amount:   order.WalletApplied,
			Currency: order.Currency,
			Status:   domain.TransactionStatusCompleted,
		})
	}
	if order.PointsRedeemed > 0 {
		txs = append(txs, &domain.Transaction{
			UserID:   order.UserID,
			OrderID:  &orderID,
			Type:     domain.TransactionRedeem,
			Method:   domain.MethodPoints,
			Amount:   order.PointsDiscount,
			Points:   order.PointsRedeemed,
			Currency: order.Currency,
			Status:   domain.TransactionStatusCompleted,
		})
	}
	if order.Total.IsPositive() {
		txs = append(txs, &domain.Transaction{
			UserID:   order.UserID,
			OrderID:  &orderID,
			Type:     domain.TransactionPayment,
			Method:   method,
			Amount:   order.Total,
			Currency: order.Currency,
			Status:   domain.TransactionStatusCompleted,
		})
	}
	return txs
}

func completedEvent(order *domain.Order) (*repository.OutboxEvent, error) {
	payload := map[string]interface{}{
		"order_id":     order.ID,
		"attempt_id":   order.AttemptID,
		"user_id":      order.UserID,
		"lines":        order.Lines,
		"gross_total":  order.GrossTotal,
		"total_amount": order.Total,
		"currency":     order.Currency,
		"completed_at": order.CreatedAt,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout payload: %w", err)
	}
	return &repository.OutboxEvent{
		AggregateID: order.AttemptID,
		EventType:   EventCheckoutCompleted,
		Payload:     payloadJSON,
	}, nil
}

func classifyCommitError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrInsufficientFunds),
		errors.Is(err, ErrCaptureMismatch),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrValidation):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}
}

func (s *CheckoutServiceImpl) settled(ctx context.Context, attempt *domain.CheckoutAttempt, order *domain.Order) {
	log := logger.WithTrace(ctx, s.logger)
	attempt.Status = domain.CheckoutStatusCompleted
	attempt.OrderID = &order.ID

	if err := s.cache.DeleteState(ctx, attempt.UserID); err != nil {
		log.Warn("checkout state delete failed", zap.Int64("user_id", attempt.UserID), zap.Error(err))
	}
	if err := s.cache.DeleteCart(ctx, attempt.UserID); err != nil {
		log.Warn("cart cache delete failed", zap.Int64("user_id", attempt.UserID), zap.Error(err))
	}
	metrics.RecordCheckoutOutcome(gatewayLabel(attempt.Gateway), "completed")
}

// fail moves the attempt to Failed. It reports false when the write did not
// happen; if another request moved the attempt on first, attempt is reloaded
// with what that request stored.
func (s *CheckoutServiceImpl) fail(ctx context.Context, attempt *domain.CheckoutAttempt, reason string) bool {
	if !domain.CanTransitionTo(attempt.Status, domain.CheckoutStatusFailed) {
		return false
	}
	log := logger.WithTrace(ctx, s.logger).With(zap.String("attempt_id", attempt.ID))

	err := s.repo.UpdateAttempt(ctx, attempt.ID, repository.AttemptUpdate{
		From:          attempt.Status,
		Status:        domain.CheckoutStatusFailed,
		FailureReason: reason,
		IntentRef:     attempt.IntentRef,
	})
	if errors.Is(err, repository.ErrAttemptStatusChanged) {
		log.Info("checkout attempt moved on before it could be failed", zap.String("reason", reason), zap.Error(err))
		if current, getErr := s.repo.GetAttempt(ctx, attempt.ID); getErr == nil {
			*attempt = *current
		}
		return false
	}
	if err != nil {
		log.Error("failed to mark checkout attempt failed", zap.Error(err))
		return false
	}
	attempt.Status = domain.CheckoutStatusFailed
	attempt.FailureReason = reason
	metrics.RecordCheckoutOutcome(gatewayLabel(attempt.Gateway), "failed")
	return true
}

// flagReconciled stamps a failed attempt as already in the reconciliation log.
func (s *CheckoutServiceImpl) flagReconciled(ctx context.Context, attempt *domain.CheckoutAttempt, reason string) {
	if err := s.repo.UpdateAttempt(ctx, attempt.ID, repository.AttemptUpdate{
		From:          domain.CheckoutStatusFailed,
		Status:        domain.CheckoutStatusFailed,
		FailureReason: reason,
	}); err != nil {
		logger.WithTrace(ctx, s.logger).Error("failed to flag reconciled attempt",
			zap.String("attempt_id", attempt.ID), zap.Error(err))
		return
	}
	attempt.FailureReason = reason
}

// reconcile records money the gateway holds with no local order. This is
// the one failure that needs a human.
func (s *CheckoutServiceImpl) reconcile(ctx context.Context, attempt *domain.CheckoutAttempt, captured, expected decimal.Decimal, reason string) {
	log := logger.WithTrace(ctx, s.logger)

	entry := &domain.ReconciliationEntry{
		AttemptID:      attempt.ID,
		UserID:         attempt.UserID,
		Gateway:        attempt.Gateway,
		IntentRef:      attempt.IntentRef,
		CapturedAmount: captured,
		ExpectedAmount: expected,
		Reason:         reason,
	}

	var event *repository.OutboxEvent
	if payload, err := json.Marshal(entry); err != nil {
		log.Error("failed to marshal reconciliation payload", zap.Error(err))
	} else {
		event = &repository.OutboxEvent{
			AggregateID: attempt.ID,
			EventType:   EventReconciliationRequired,
			Payload:     payload,
		}
	}

	recordErr := s.repo.RecordReconciliation(ctx, entry, event)
	log.Error("CAPTURED PAYMENT WITHOUT ORDER: manual reconciliation required",
		zap.String("attempt_id", attempt.ID),
		zap.Int64("user_id", attempt.UserID),
		zap.String("gateway", attempt.Gateway),
		zap.String("intent_ref", attempt.IntentRef),
		zap.String("captured", captured.StringFixed(2)),
		zap.String("expected", expected.StringFixed(2)),
		zap.String("reason", reason),
		zap.NamedError("record_error", recordErr))
	metrics.RecordReconciliation(gatewayLabel(attempt.Gateway))
}

// checkLateCapture asks the gateway once about a failed attempt; a payment
// that settled after we gave up goes to reconciliation.
func (s *CheckoutServiceImpl) checkLateCapture(ctx context.Context, attempt *domain.CheckoutAttempt) {
	if attempt.IntentRef == "" || strings.HasPrefix(attempt.FailureReason, reconciliationPrefix) {
		return
	}
	adapter, err := s.gateways.Get(gateway.Kind(attempt.Gateway))
	if err != nil {
		return
	}
	outcome, err := adapter.Resolve(ctx, gateway.IntentRef{ID: attempt.IntentRef, Kind: adapter.Kind()})
	if err != nil || outcome.Status != gateway.StatusSettled {
		return
	}

	reason := "payment captured after attempt failed: " + attempt.FailureReason
	s.reconcile(ctx, attempt, outcome.CapturedAmount, attempt.QuotedPayable, reason)
	s.flagReconciled(ctx, attempt, reconciliationPrefix+reason)
}

func gatewayLabel(g string) string {
	if g == "" {
		return "none"
	}
	return g
}
