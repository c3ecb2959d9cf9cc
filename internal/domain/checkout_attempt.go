package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutAttempt is the durable record of one settlement attempt, keyed by
// the client idempotency key. Lines are the cart as quoted to the user; the
// order is built from them, whatever happens to the cart afterwards.
type CheckoutAttempt struct {
	ID              string          `json:"id"`
	UserID          int64           `json:"user_id"`
	Gateway         string          `json:"gateway,omitempty"`
	IntentRef       string          `json:"intent_ref,omitempty"`
	NextAction      string          `json:"next_action,omitempty"`
	WalletRequested decimal.Decimal `json:"wallet_requested"`
	PointsRequested int             `json:"points_requested"`
	QuotedPayable   decimal.Decimal `json:"quoted_payable"`
	Lines           []CartLine      `json:"lines,omitempty"`
	Status          CheckoutStatus  `json:"status"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	OrderID         *uuid.UUID      `json:"order_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ReconciliationEntry records money held by a gateway with no local order.
type ReconciliationEntry struct {
	ID             uuid.UUID       `json:"id"`
	AttemptID      string          `json:"attempt_id"`
	UserID         int64           `json:"user_id"`
	Gateway        string          `json:"gateway"`
	IntentRef      string          `json:"intent_ref"`
	CapturedAmount decimal.Decimal `json:"captured_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Reason         string          `json:"reason"`
	CreatedAt      time.Time       `json:"created_at"`
}
