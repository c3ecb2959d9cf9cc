package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusCompleted: {OrderStatusCancelled},
}

// CanTransitionTo reports whether an admin or fulfillment event may move an order to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderLine keeps the unit price captured when the order was settled.
type OrderLine struct {
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a settled checkout. Total is the payable amount actually collected
// by the gateway; GrossTotal is subtotal + tax before wallet and points.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	UserID         int64           `json:"user_id"`
	AttemptID      string          `json:"attempt_id"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	GrossTotal     decimal.Decimal `json:"gross_total"`
	WalletApplied  decimal.Decimal `json:"wallet_applied"`
	PointsRedeemed int             `json:"points_redeemed"`
	PointsDiscount decimal.Decimal `json:"points_discount"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	Status         OrderStatus     `json:"status"`
	Gateway        string          `json:"gateway,omitempty"`
	IntentRef      string          `json:"intent_ref,omitempty"`
	Lines          []OrderLine     `json:"lines"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
