package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CartRepo interface {
	repository.CartStore
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// CartView is a priced cart as shown to the user.
type CartView struct {
	UserID int64             `json:"user_id"`
	Lines  []domain.CartLine `json:"lines"`
	Totals domain.Totals     `json:"totals"`
}

type CartService struct {
	repo   CartRepo
	cache  cache.CartCache
	calc   *pricing.Calculator
	logger *zap.Logger
	sfg    singleflight.Group // Prevents cache stampede
}

func NewCartService(repo CartRepo, cartCache cache.CartCache, calc *pricing.Calculator, logger *zap.Logger) *CartService {
	return &CartService{
		repo:   repo,
		cache:  cartCache,
		calc:   calc,
		logger: logger,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID int64) (*CartView, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		lines, err := s.cache.GetCart(ctx, userID)
		if err == nil {
			return lines, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get error", zap.Int64("user_id", userID), zap.Error(err))
		}

		lines, err = s.repo.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}

		if errSet := s.cache.SetCart(ctx, userID, lines); errSet != nil {
			s.logger.Warn("cache set error", zap.Int64("user_id", userID), zap.Error(errSet))
		}
		return lines, nil
	})
	if err != nil {
		return nil, err
	}

	lines := v.([]domain.CartLine)
	totals, err := s.calc.CalculateCart(lines)
	if err != nil {
		return nil, validationError("%v", err)
	}
	return &CartView{UserID: userID, Lines: lines, Totals: totals}, nil
}

// AddItem merges qty into the user's line. The stock check is best effort;
// settlement re-checks under the store transaction.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, validationError("quantity must be positive")
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	current, err := s.lineQuantity(ctx, userID, productID)
	if err != nil {
		return 0, err
	}
	if current+qty > product.Stock {
		return 0, &repository.InsufficientStockError{
			ProductID: productID,
			Requested: current + qty,
			Available: product.Stock,
		}
	}

	total, err := s.repo.AddCartItem(ctx, userID, productID, qty)
	if err != nil {
		s.logger.Error("repo add item error", zap.Int64("user_id", userID), zap.Error(err))
		return 0, err
	}

	s.invalidateCache(userID)
	return total, nil
}

// UpdateQuantity sets the line quantity; zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID int64, qty int) error {
	if qty > 0 {
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if qty > product.Stock {
			return &repository.InsufficientStockError{ProductID: productID, Requested: qty, Available: product.Stock}
		}
	}

	if err := s.repo.SetCartItemQuantity(ctx, userID, productID, qty); err != nil {
		s.logger.Error("repo update item quantity error", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) error {
	if err := s.repo.RemoveCartItem(ctx, userID, productID); err != nil {
		s.logger.Error("repo remove item error", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	if err := s.repo.ClearCart(ctx, userID); err != nil {
		s.logger.Error("repo clear cart error", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) lineQuantity(ctx context.Context, userID, productID int64) (int, error) {
	lines, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, l := range lines {
		if l.ProductID == productID {
			return l.Quantity, nil
		}
	}
	return 0, nil
}

func (s *CartService) invalidateCache(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.DeleteCart(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.Int64("user_id", userID), zap.Error(err))
	}
}
