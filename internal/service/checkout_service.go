package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/rewards"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutRepo is the part of the ledger store the coordinator needs.
type CheckoutRepo interface {
	repository.Ledger
	repository.AttemptStore
	GetCart(ctx context.Context, userID int64) ([]domain.CartLine, error)
	GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type CheckoutCache interface {
	cache.StateCache
	DeleteCart(ctx context.Context, userID int64) error
}

// RewardsRequest is what the user asked to spend from wallet and points.
// Nil fields keep the previous request, if any.
type RewardsRequest struct {
	WalletAmount *decimal.Decimal
	Points       *int
}

type CheckoutRequest struct {
	UserID         int64
	IdempotencyKey string
	Gateway        string
	Rewards        RewardsRequest
}

// CheckoutResult is either a settled order or the next action the client
// must take with the gateway, or a terminal failure reason.
type CheckoutResult struct {
	AttemptID     string                `json:"attempt_id"`
	Status        domain.CheckoutStatus `json:"status"`
	Gateway       string                `json:"gateway,omitempty"`
	IntentRef     string                `json:"intent_ref,omitempty"`
	NextAction    string                `json:"next_action,omitempty"`
	PayableTotal  decimal.Decimal       `json:"payable_total"`
	FailureReason string                `json:"failure_reason,omitempty"`
	Order         *domain.Order         `json:"order,omitempty"`
}

type CheckoutConfig struct {
	Currency string
	// StaleAfter is how long an attempt may sit in AwaitingGateway before
	// the recovery loop resolves it on the client's behalf.
	StaleAfter time.Duration
	// ExpireAfter fails attempts whose gateway is still pending after this long.
	ExpireAfter time.Duration
}

type CheckoutServiceImpl struct {
	repo     CheckoutRepo
	cache    CheckoutCache
	gateways gateway.Registry
	calc     *pricing.Calculator
	cfg      CheckoutConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewCheckoutService(
	repo CheckoutRepo,
	stateCache CheckoutCache,
	gateways gateway.Registry,
	calc *pricing.Calculator,
	cfg CheckoutConfig,
	log *zap.Logger) *CheckoutServiceImpl {

	if cfg.Currency == "" {
		cfg.Currency = domain.DefaultCurrency
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Minute
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 30 * time.Minute
	}
	return &CheckoutServiceImpl{
		repo:     repo,
		cache:    stateCache,
		gateways: gateways,
		calc:     calc,
		cfg:      cfg,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Review moves the user's cart into Reviewing. Totals, balances and rewards
// are recomputed from the store on every call.
func (s *CheckoutServiceImpl) Review(ctx context.Context, userID int64, req *RewardsRequest) (*domain.CheckoutState, error) {
	if userID <= 0 {
		return nil, validationError("user id is required")
	}

	walletReq, pointsReq := decimal.Zero, 0
	if prev, err := s.cache.GetState(ctx, userID); err == nil {
		walletReq, pointsReq = prev.WalletRequested, prev.PointsRequested
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		logger.WithTrace(ctx, s.logger).Warn("checkout state read failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	if req != nil {
		if req.WalletAmount != nil {
			walletReq = *req.WalletAmount
		}
		if req.Points != nil {
			pointsReq = *req.Points
		}
	}
	if walletReq.IsNegative() || pointsReq < 0 {
		return nil, validationError("wallet amount and points must not be negative")
	}

	state, err := s.quote(ctx, userID, walletReq, pointsReq)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetState(ctx, state); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("checkout state write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return state, nil
}

// ApplyRewards re-enters Reviewing with a new wallet and points request.
// A nil field keeps what was asked for before, as in Review.
func (s *CheckoutServiceImpl) ApplyRewards(ctx context.Context, userID int64, req RewardsRequest) (*domain.CheckoutState, error) {
	if req.WalletAmount == nil && req.Points == nil {
		return nil, validationError("wallet amount or points is required")
	}
	return s.Review(ctx, userID, &req)
}

// Abandon discards the review snapshot. Nothing durable has changed by then.
func (s *CheckoutServiceImpl) Abandon(ctx context.Context, userID int64) error {
	if err := s.cache.DeleteState(ctx, userID); err != nil {
		return err
	}
	logger.WithTrace(ctx, s.logger).Info("checkout abandoned", zap.Int64("user_id", userID))
	return nil
}

// quote prices the live cart and resolves rewards against live balances.
func (s *CheckoutServiceImpl) quote(ctx context.Context, userID int64, walletReq decimal.Decimal, pointsReq int) (*domain.CheckoutState, error) {
	if !domain.CanTransitionTo(domain.CheckoutStatusCart, domain.CheckoutStatusReviewing) {
		return nil, IllegalTransitionError
	}

	lines, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range lines {
		if line.Quantity > line.Stock {
			return nil, &repository.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: line.Stock,
			}
		}
	}

	totals, err := s.calc.CalculateCart(lines)
	if err != nil {
		return nil, validationError("%v", err)
	}

	wallet, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	resolved := rewards.Resolve(rewards.Input{
		OrderTotal:      totals.Total,
		WalletBalance:   wallet.Balance,
		PointsBalance:   wallet.Points,
		RequestedWallet: walletReq,
		RequestedPoints: pointsReq,
	})

	return &domain.CheckoutState{
		UserID:          userID,
		Status:          domain.CheckoutStatusReviewing,
		Lines:           lines,
		Totals:          totals,
		WalletBalance:   wallet.Balance,
		PointsBalance:   wallet.Points,
		WalletRequested: walletReq,
		PointsRequested: pointsReq,
		Rewards:         resolved,
		Currency:        s.cfg.Currency,
		ReviewedAt:      s.now(),
	}, nil
}

func (s *CheckoutServiceImpl) resultFor(ctx context.Context, a *domain.CheckoutAttempt) (*CheckoutResult, error) {
	res := &CheckoutResult{
		AttemptID:     a.ID,
		Status:        a.Status,
		Gateway:       a.Gateway,
		IntentRef:     a.IntentRef,
		NextAction:    a.NextAction,
		PayableTotal:  a.QuotedPayable,
		FailureReason: a.FailureReason,
	}
	if a.Status == domain.CheckoutStatusCompleted && a.OrderID != nil {
		order, err := s.repo.GetOrder(ctx, *a.OrderID)
		if err != nil {
			return nil, err
		}
		res.Order = order
		res.PayableTotal = order.Total
	}
	return res, nil
}
