package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Points    int             `json:"points"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type TransactionType string

const (
	TransactionTopUp   TransactionType = "TopUp"
	TransactionPayment TransactionType = "Payment"
	TransactionRedeem  TransactionType = "Redeem"
	TransactionCredit  TransactionType = "Credit"
	TransactionDebit   TransactionType = "Debit"
)

type TransactionMethod string

const (
	MethodWallet TransactionMethod = "Wallet"
	MethodPoints TransactionMethod = "Points"
	MethodStripe TransactionMethod = "Stripe"
	MethodPayPal TransactionMethod = "PayPal"
	MethodQR     TransactionMethod = "QR"
)

const TransactionStatusCompleted = "Completed"

// Transaction is an append-only audit row. It is never updated or deleted.
type Transaction struct {
	ID        uuid.UUID         `json:"id"`
	UserID    int64             `json:"user_id"`
	OrderID   *uuid.UUID        `json:"order_id,omitempty"`
	Type      TransactionType   `json:"type"`
	Method    TransactionMethod `json:"method"`
	Amount    decimal.Decimal   `json:"amount"`
	Points    int               `json:"points,omitempty"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
