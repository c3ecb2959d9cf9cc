// Package gateway adapts external payment providers to one capability:
// create an intent for an amount, then resolve it to Settled, Pending or Failed.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayTimeout     = errors.New("payment gateway did not settle in time")
	ErrUnknownGateway     = errors.New("unknown payment gateway")
)

// Kind tags the adapter variant.
type Kind string

const (
	KindCardSession    Kind = "card_session"
	KindPushQR         Kind = "push_qr"
	KindRedirectWallet Kind = "redirect_wallet"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCardSession, KindPushQR, KindRedirectWallet:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGateway, s)
}

// IntentRef is an adapter-issued reference to a not-yet-settled payment.
// NextAction is what the client needs to finish paying (checkout URL, QR
// payload, approval URL).
type IntentRef struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	NextAction string `json:"next_action,omitempty"`
}

type Status int

const (
	StatusPending Status = iota
	StatusSettled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSettled:
		return "settled"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

type Outcome struct {
	Status         Status
	CapturedAmount decimal.Decimal
	Reason         string
}

func Settled(amount decimal.Decimal) Outcome {
	return Outcome{Status: StatusSettled, CapturedAmount: amount}
}

func Pending() Outcome {
	return Outcome{Status: StatusPending}
}

func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// PollPolicy bounds how long Await keeps resolving a pending intent.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration
}

type Adapter interface {
	Kind() Kind
	Method() domain.TransactionMethod
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (IntentRef, error)
	Resolve(ctx context.Context, ref IntentRef) (Outcome, error)
	PollPolicy() PollPolicy
}

// Registry holds the configured adapters by kind.
type Registry map[Kind]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Kind()] = a
	}
	return r
}

func (r Registry) Get(kind Kind) (Adapter, error) {
	a, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, kind)
	}
	return a, nil
}
