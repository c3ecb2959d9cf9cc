package gateway

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// ProviderState is the provider-side lifecycle of a payment request.
type ProviderState string

const (
	ProviderOpen     ProviderState = "open"
	ProviderApproved ProviderState = "approved"
	ProviderPaid     ProviderState = "paid"
	ProviderDeclined ProviderState = "declined"
	ProviderExpired  ProviderState = "expired"
)

type ProviderIntent struct {
	ID         string
	NextAction string
}

type ProviderStatus struct {
	State       ProviderState
	AmountMinor int64
	Reason      string
}

// Provider is the opaque external payment API behind an adapter. Amounts are
// in minor units.
type Provider interface {
	Create(ctx context.Context, amountMinor int64, currency string) (ProviderIntent, error)
	Status(ctx context.Context, id string) (ProviderStatus, error)
	Capture(ctx context.Context, id string) (ProviderStatus, error)
}

func outcomeFromStatus(st ProviderStatus) Outcome {
	switch st.State {
	case ProviderPaid:
		return Settled(domain.FromMinorUnits(st.AmountMinor))
	case ProviderDeclined, ProviderExpired:
		reason := st.Reason
		if reason == "" {
			reason = string(st.State)
		}
		return Failed(reason)
	default:
		return Pending()
	}
}
