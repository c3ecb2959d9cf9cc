package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings configures the circuit breaker placed in front of a provider.
type BreakerSettings struct {
	MaxFailures  uint32
	OpenTimeout  time.Duration
	HalfOpenReqs uint32
}

var DefaultBreakerSettings = BreakerSettings{
	MaxFailures:  5,
	OpenTimeout:  30 * time.Second,
	HalfOpenReqs: 1,
}

type breakerAdapter struct {
	Adapter
	cb *gobreaker.CircuitBreaker[any]
}

// WithBreaker trips after consecutive provider failures so a dead provider
// fails fast with ErrGatewayUnavailable instead of holding requests open.
func WithBreaker(a Adapter, settings BreakerSettings, logger *zap.Logger) Adapter {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        string(a.Kind()),
		MaxRequests: settings.HalfOpenReqs,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway breaker state changed",
				zap.String("gateway", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &breakerAdapter{Adapter: a, cb: cb}
}

func (b *breakerAdapter) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (IntentRef, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.Adapter.CreateIntent(ctx, amount, currency)
	})
	if err != nil {
		return IntentRef{}, breakerError(err)
	}
	return res.(IntentRef), nil
}

func (b *breakerAdapter) Resolve(ctx context.Context, ref IntentRef) (Outcome, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.Adapter.Resolve(ctx, ref)
	})
	if err != nil {
		return Outcome{}, breakerError(err)
	}
	return res.(Outcome), nil
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return err
}
