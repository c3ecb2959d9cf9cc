package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// StateCache holds the per-user CheckoutState between review and settlement.
type StateCache interface {
	GetState(ctx context.Context, userID int64) (*domain.CheckoutState, error)
	SetState(ctx context.Context, state *domain.CheckoutState) error
	DeleteState(ctx context.Context, userID int64) error
}

// CartCache holds the priced cart view served to readers.
type CartCache interface {
	GetCart(ctx context.Context, userID int64) ([]domain.CartLine, error)
	SetCart(ctx context.Context, userID int64, lines []domain.CartLine) error
	DeleteCart(ctx context.Context, userID int64) error
}

var ErrCacheMiss = errors.New("cache miss")
