package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals is the pricing of a set of cart lines. Total is rounded to currency
// precision; Subtotal and Tax are exact.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Rewards is the resolved split of an order total between wallet, points and gateway.
type Rewards struct {
	WalletApplied       decimal.Decimal `json:"wallet_applied"`
	Remaining           decimal.Decimal `json:"remaining"`
	PointsToRedeem      int             `json:"points_to_redeem"`
	PointsDiscount      decimal.Decimal `json:"points_discount"`
	PayableTotal        decimal.Decimal `json:"payable_total"`
	MaxPointsRedeemable int             `json:"max_points_redeemable"`
}

// CheckoutState is the per-user snapshot taken on entry into Reviewing.
// It is derived data only: nothing in it is committed until settlement,
// and it is discarded on commit or abandonment.
type CheckoutState struct {
	UserID          int64           `json:"user_id"`
	Status          CheckoutStatus  `json:"status"`
	Lines           []CartLine      `json:"lines"`
	Totals          Totals          `json:"totals"`
	WalletBalance   decimal.Decimal `json:"wallet_balance"`
	PointsBalance   int             `json:"points_balance"`
	WalletRequested decimal.Decimal `json:"wallet_requested"`
	PointsRequested int             `json:"points_requested"`
	Rewards         Rewards         `json:"rewards"`
	Currency        string          `json:"currency"`
	ReviewedAt      time.Time       `json:"reviewed_at"`
}

// PayableTotal is the amount that must be collected through a gateway.
func (s *CheckoutState) PayableTotal() decimal.Decimal {
	return s.Rewards.PayableTotal
}
