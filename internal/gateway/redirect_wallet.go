package gateway

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// RedirectWallet sends the payer to the provider to approve, then resolves
// when the provider redirects back: an approved order is captured, anything
// else is reported as is.
type RedirectWallet struct {
	provider Provider
}

func NewRedirectWallet(provider Provider) *RedirectWallet {
	return &RedirectWallet{provider: provider}
}

func (r *RedirectWallet) Kind() Kind                       { return KindRedirectWallet }
func (r *RedirectWallet) Method() domain.TransactionMethod { return domain.MethodPayPal }

// PollPolicy is a single look: resolution is driven by the return callback.
func (r *RedirectWallet) PollPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: 1}
}

func (r *RedirectWallet) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (IntentRef, error) {
	intent, err := r.provider.Create(ctx, domain.MinorUnits(amount), currency)
	if err != nil {
		return IntentRef{}, fmt.Errorf("%w: create redirect order: %v", ErrGatewayUnavailable, err)
	}
	return IntentRef{ID: intent.ID, Kind: KindRedirectWallet, NextAction: intent.NextAction}, nil
}

func (r *RedirectWallet) Resolve(ctx context.Context, ref IntentRef) (Outcome, error) {
	st, err := r.provider.Status(ctx, ref.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("redirect order status %s: %w", ref.ID, err)
	}
	if st.State != ProviderApproved {
		return outcomeFromStatus(st), nil
	}

	captured, err := r.provider.Capture(ctx, ref.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("capture redirect order %s: %w", ref.ID, err)
	}
	return outcomeFromStatus(captured), nil
}
