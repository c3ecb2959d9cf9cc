package service

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletService struct {
	repo   repository.WalletStore
	logger *zap.Logger
}

func NewWalletService(repo repository.WalletStore, logger *zap.Logger) *WalletService {
	return &WalletService{repo: repo, logger: logger}
}

func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return s.repo.GetWallet(ctx, userID)
}

func (s *WalletService) Transactions(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, limit)
}

// Credit tops up a wallet. Amounts are truncated to cents.
func (s *WalletService) Credit(ctx context.Context, userID int64, amount decimal.Decimal, points int) (*domain.Wallet, error) {
	amount = amount.Truncate(2)
	if userID <= 0 {
		return nil, validationError("user id is required")
	}
	if amount.IsNegative() || points < 0 || (amount.IsZero() && points == 0) {
		return nil, validationError("credit must be a positive amount or points")
	}

	w, err := s.repo.CreditWallet(ctx, userID, amount, points)
	if err != nil {
		return nil, err
	}
	s.logger.Info("wallet credited",
		zap.Int64("user_id", userID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int("points", points))
	return w, nil
}
