// Package rewards splits an order total between the stored-value wallet,
// loyalty points and the amount left for a payment gateway.
package rewards

import (
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// RedeemUnit is the smallest number of points that can be converted.
	RedeemUnit = 10
)

// PointValue is the currency value of a single point ($1 per 10 points).
var PointValue = decimal.RequireFromString("0.10")

type Input struct {
	OrderTotal      decimal.Decimal
	WalletBalance   decimal.Decimal
	PointsBalance   int
	RequestedWallet decimal.Decimal
	RequestedPoints int
}

// Resolve applies the wallet first and then points against what remains.
// walletApplied + pointsDiscount + payable always equals OrderTotal.
func Resolve(in Input) domain.Rewards {
	total := nonNegative(in.OrderTotal)
	balance := nonNegative(in.WalletBalance)
	pointsBalance := max(in.PointsBalance, 0)

	walletCap := decimal.Min(balance, total)
	walletApplied := clamp(in.RequestedWallet.Truncate(2), decimal.Zero, walletCap)
	remaining := total.Sub(walletApplied)

	pointsRequested := min(max(in.RequestedPoints, 0), pointsBalance)
	pointsToRedeem := (pointsRequested / RedeemUnit) * RedeemUnit

	pointsValue := PointValue.Mul(decimal.NewFromInt(int64(pointsToRedeem)))
	pointsDiscount := decimal.Min(pointsValue, remaining)
	payable := decimal.Max(decimal.Zero, remaining.Sub(pointsDiscount))

	return domain.Rewards{
		WalletApplied:       walletApplied,
		Remaining:           remaining,
		PointsToRedeem:      pointsToRedeem,
		PointsDiscount:      pointsDiscount,
		PayableTotal:        payable,
		MaxPointsRedeemable: maxRedeemable(remaining, pointsBalance),
	}
}

// maxRedeemable is advisory only: the largest whole-unit redemption whose
// value does not exceed remaining, capped by the balance.
func maxRedeemable(remaining decimal.Decimal, pointsBalance int) int {
	unitValue := PointValue.Mul(decimal.NewFromInt(RedeemUnit))
	byValue := remaining.Div(unitValue).Floor().IntPart() * RedeemUnit
	byBalance := int64(pointsBalance/RedeemUnit) * RedeemUnit
	return int(min(byValue, byBalance))
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	return decimal.Max(v, decimal.Zero)
}
