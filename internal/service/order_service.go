package service

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Invoice recomputes the order's pricing from its captured lines.
type Invoice struct {
	Order          *domain.Order   `json:"order"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	WalletApplied  decimal.Decimal `json:"wallet_applied"`
	PointsDiscount decimal.Decimal `json:"points_discount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
}

type OrderService struct {
	repo   repository.OrderStore
	calc   *pricing.Calculator
	logger *zap.Logger
}

func NewOrderService(repo repository.OrderStore, calc *pricing.Calculator, logger *zap.Logger) *OrderService {
	return &OrderService{repo: repo, calc: calc, logger: logger}
}

func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

// GetOrder returns the order if userID owns it.
func (s *OrderService) GetOrder(ctx context.Context, userID int64, id uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) Invoice(ctx context.Context, userID int64, id uuid.UUID) (*Invoice, error) {
	order, err := s.GetOrder(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	totals, err := s.calc.CalculateOrder(order.Lines)
	if err != nil {
		return nil, err
	}
	if !totals.Total.Equal(order.GrossTotal) {
		s.logger.Warn("invoice total differs from stored gross total",
			zap.String("order_id", order.ID.String()),
			zap.String("recomputed", totals.Total.StringFixed(2)),
			zap.String("stored", order.GrossTotal.StringFixed(2)))
	}

	return &Invoice{
		Order:          order,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		Total:          totals.Total,
		WalletApplied:  order.WalletApplied,
		PointsDiscount: order.PointsDiscount,
		AmountPaid:     order.Total,
	}, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	return s.repo.ListAllOrders(ctx, limit)
}

func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if !status.Valid() {
		return validationError("unknown order status %q", status)
	}
	if err := s.repo.UpdateOrderStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info("order status updated", zap.String("order_id", id.String()), zap.String("status", string(status)))
	return nil
}
