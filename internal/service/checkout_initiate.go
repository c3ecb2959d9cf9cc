package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Initiate starts one settlement attempt keyed by the client's idempotency
// key. A fully covered order settles immediately; otherwise a gateway intent
// is created and the attempt waits in AwaitingGateway.
func (s *CheckoutServiceImpl) Initiate(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	log := logger.WithTrace(ctx, s.logger)

	if req.UserID <= 0 {
		return nil, validationError("user id is required")
	}
	if req.IdempotencyKey == "" {
		return nil, validationError("idempotency key is required")
	}

	// check attempt by idempotency key
	existing, err := s.repo.GetAttempt(ctx, req.IdempotencyKey)
	if err != nil && !errors.Is(err, repository.ErrAttemptNotFound) {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		return s.duplicate(ctx, req, existing)
	}

	walletReq, pointsReq, err := s.requestedRewards(ctx, req)
	if err != nil {
		return nil, err
	}

	state, err := s.quote(ctx, req.UserID, walletReq, pointsReq)
	if err != nil {
		return nil, err
	}
	payable := state.PayableTotal()

	var adapter gateway.Adapter
	if payable.IsPositive() {
		kind, err := gateway.ParseKind(req.Gateway)
		if err != nil {
			return nil, validationError("a payment gateway is required for the remaining %s: %v", payable.StringFixed(2), err)
		}
		if adapter, err = s.gateways.Get(kind); err != nil {
			return nil, validationError("%v", err)
		}
	}

	// the attempt stores the resolved split; settlement debits exactly this
	attempt := &domain.CheckoutAttempt{
		ID:              req.IdempotencyKey,
		UserID:          req.UserID,
		WalletRequested: state.Rewards.WalletApplied,
		PointsRequested: state.Rewards.PointsToRedeem,
		QuotedPayable:   payable,
		Lines:           state.Lines,
		Status:          domain.CheckoutStatusReviewing,
	}
	if adapter != nil {
		attempt.Gateway = string(adapter.Kind())
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			raced, getErr := s.repo.GetAttempt(ctx, req.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			return s.duplicate(ctx, req, raced)
		}
		return nil, err
	}

	if adapter == nil {
		log.Info("checkout fully covered by wallet and points",
			zap.String("attempt_id", attempt.ID),
			zap.Int64("user_id", attempt.UserID))
		return s.settle(ctx, attempt, nil)
	}

	return s.createIntent(ctx, attempt, adapter, state)
}

func (s *CheckoutServiceImpl) createIntent(
	ctx context.Context,
	attempt *domain.CheckoutAttempt,
	adapter gateway.Adapter,
	state *domain.CheckoutState) (*CheckoutResult, error) {

	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("attempt_id", attempt.ID),
		zap.String("gateway", attempt.Gateway))

	if !domain.CanTransitionTo(attempt.Status, domain.CheckoutStatusAwaitingGateway) {
		return nil, IllegalTransitionError
	}

	ref, err := adapter.CreateIntent(ctx, attempt.QuotedPayable, s.cfg.Currency)
	if err != nil {
		log.Warn("gateway intent creation failed", zap.Error(err))
		s.fail(ctx, attempt, err.Error())
		return nil, err
	}

	update := repository.AttemptUpdate{
		From:       domain.CheckoutStatusReviewing,
		Status:     domain.CheckoutStatusAwaitingGateway,
		IntentRef:  ref.ID,
		NextAction: ref.NextAction,
	}
	if err := s.repo.UpdateAttempt(ctx, attempt.ID, update); err != nil {
		log.Error("failed to record gateway intent", zap.String("intent_ref", ref.ID), zap.Error(err))
		// keep the intent ref so a late callback for it still finds the attempt
		attempt.IntentRef = ref.ID
		s.fail(ctx, attempt, "record gateway intent: "+err.Error())
		return nil, fmt.Errorf("record gateway intent %s: %w", ref.ID, err)
	}
	attempt.Status = domain.CheckoutStatusAwaitingGateway
	attempt.IntentRef = ref.ID
	attempt.NextAction = ref.NextAction

	state.Status = domain.CheckoutStatusAwaitingGateway
	if err := s.cache.SetState(ctx, state); err != nil {
		log.Warn("checkout state write failed", zap.Error(err))
	}

	log.Info("awaiting gateway",
		zap.String("intent_ref", ref.ID),
		zap.String("payable", attempt.QuotedPayable.StringFixed(2)))

	return &CheckoutResult{
		AttemptID:    attempt.ID,
		Status:       attempt.Status,
		Gateway:      attempt.Gateway,
		IntentRef:    ref.ID,
		NextAction:   ref.NextAction,
		PayableTotal: attempt.QuotedPayable,
	}, nil
}

// requestedRewards takes explicit request values first, then the reviewed
// state, then nothing.
func (s *CheckoutServiceImpl) requestedRewards(ctx context.Context, req *CheckoutRequest) (decimal.Decimal, int, error) {
	walletReq, pointsReq := decimal.Zero, 0

	state, err := s.cache.GetState(ctx, req.UserID)
	switch {
	case err == nil:
		walletReq, pointsReq = state.WalletRequested, state.PointsRequested
	case !errors.Is(err, cache.ErrCacheMiss):
		logger.WithTrace(ctx, s.logger).Warn("checkout state read failed", zap.Int64("user_id", req.UserID), zap.Error(err))
	}

	if req.Rewards.WalletAmount != nil {
		walletReq = *req.Rewards.WalletAmount
	}
	if req.Rewards.Points != nil {
		pointsReq = *req.Rewards.Points
	}
	if walletReq.IsNegative() || pointsReq < 0 {
		return decimal.Zero, 0, validationError("wallet amount and points must not be negative")
	}
	return walletReq, pointsReq, nil
}

func (s *CheckoutServiceImpl) duplicate(ctx context.Context, req *CheckoutRequest, existing *domain.CheckoutAttempt) (*CheckoutResult, error) {
	if existing.UserID != req.UserID {
		return nil, validationError("idempotency key %q is already in use", req.IdempotencyKey)
	}
	logger.WithTrace(ctx, s.logger).Info("duplicate checkout request",
		zap.String("attempt_id", existing.ID),
		zap.String("status", existing.Status.String()))
	return s.resultFor(ctx, existing)
}
