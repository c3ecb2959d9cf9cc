package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// PushQR is a wallet/QR push payment. The payer scans the QR payload in their
// banking app; we only learn the result by polling the provider.
type PushQR struct {
	provider Provider
	policy   PollPolicy
}

func NewPushQR(provider Provider, policy PollPolicy) *PushQR {
	if policy.Interval <= 0 {
		policy.Interval = 3 * time.Second
	}
	if policy.MaxDuration <= 0 {
		policy.MaxDuration = 5 * time.Minute
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = int(policy.MaxDuration / policy.Interval)
	}
	return &PushQR{provider: provider, policy: policy}
}

func (p *PushQR) Kind() Kind                       { return KindPushQR }
func (p *PushQR) Method() domain.TransactionMethod { return domain.MethodQR }
func (p *PushQR) PollPolicy() PollPolicy           { return p.policy }

func (p *PushQR) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (IntentRef, error) {
	intent, err := p.provider.Create(ctx, domain.MinorUnits(amount), currency)
	if err != nil {
		return IntentRef{}, fmt.Errorf("%w: create qr push: %v", ErrGatewayUnavailable, err)
	}
	return IntentRef{ID: intent.ID, Kind: KindPushQR, NextAction: intent.NextAction}, nil
}

func (p *PushQR) Resolve(ctx context.Context, ref IntentRef) (Outcome, error) {
	st, err := p.provider.Status(ctx, ref.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("qr push status %s: %w", ref.ID, err)
	}
	return outcomeFromStatus(st), nil
}
