package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// CardSession is a card-network hosted checkout session. The client pays on
// the hosted page; Resolve captures synchronously.
type CardSession struct {
	provider Provider
	policy   PollPolicy
}

func NewCardSession(provider Provider) *CardSession {
	return &CardSession{
		provider: provider,
		policy:   PollPolicy{Interval: time.Second, MaxAttempts: 3, MaxDuration: 30 * time.Second},
	}
}

func (c *CardSession) Kind() Kind                       { return KindCardSession }
func (c *CardSession) Method() domain.TransactionMethod { return domain.MethodStripe }
func (c *CardSession) PollPolicy() PollPolicy           { return c.policy }

func (c *CardSession) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (IntentRef, error) {
	intent, err := c.provider.Create(ctx, domain.MinorUnits(amount), currency)
	if err != nil {
		return IntentRef{}, fmt.Errorf("%w: create card session: %v", ErrGatewayUnavailable, err)
	}
	return IntentRef{ID: intent.ID, Kind: KindCardSession, NextAction: intent.NextAction}, nil
}

func (c *CardSession) Resolve(ctx context.Context, ref IntentRef) (Outcome, error) {
	st, err := c.provider.Capture(ctx, ref.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("capture card session %s: %w", ref.ID, err)
	}
	return outcomeFromStatus(st), nil
}
