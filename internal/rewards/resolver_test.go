package rewards

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestResolve_WalletThenPoints(t *testing.T) {
	res := Resolve(Input{
		OrderTotal:      dec("21.60"),
		WalletBalance:   dec("5.00"),
		PointsBalance:   25,
		RequestedWallet: dec("5.00"),
		RequestedPoints: 25,
	})

	assert.True(t, res.WalletApplied.Equal(dec("5.00")))
	assert.True(t, res.Remaining.Equal(dec("16.60")))
	assert.Equal(t, 20, res.PointsToRedeem)
	assert.True(t, res.PointsDiscount.Equal(dec("2.00")))
	assert.True(t, res.PayableTotal.Equal(dec("14.60")))
	assert.Equal(t, 20, res.MaxPointsRedeemable)
}

func TestResolve_WalletClampedToBalanceAndTotal(t *testing.T) {
	res := Resolve(Input{
		OrderTotal:      dec("10.00"),
		WalletBalance:   dec("4.00"),
		RequestedWallet: dec("50.00"),
	})
	assert.True(t, res.WalletApplied.Equal(dec("4.00")))
	assert.True(t, res.PayableTotal.Equal(dec("6.00")))

	res = Resolve(Input{
		OrderTotal:      dec("3.00"),
		WalletBalance:   dec("40.00"),
		RequestedWallet: dec("50.00"),
	})
	assert.True(t, res.WalletApplied.Equal(dec("3.00")))
	assert.True(t, res.PayableTotal.IsZero())
}

func TestResolve_NegativeRequestsClampToZero(t *testing.T) {
	res := Resolve(Input{
		OrderTotal:      dec("10.00"),
		WalletBalance:   dec("4.00"),
		PointsBalance:   100,
		RequestedWallet: dec("-3.00"),
		RequestedPoints: -40,
	})
	assert.True(t, res.WalletApplied.IsZero())
	assert.Equal(t, 0, res.PointsToRedeem)
	assert.True(t, res.PayableTotal.Equal(dec("10.00")))
}

func TestResolve_PointsCappedByRemaining(t *testing.T) {
	res := Resolve(Input{
		OrderTotal:      dec("2.35"),
		PointsBalance:   30,
		RequestedPoints: 30,
	})
	assert.Equal(t, 30, res.PointsToRedeem)
	assert.True(t, res.PointsDiscount.Equal(dec("2.35")))
	assert.True(t, res.PayableTotal.IsZero())
	assert.Equal(t, 20, res.MaxPointsRedeemable)
}

func TestResolve_Idempotent(t *testing.T) {
	in := Input{
		OrderTotal:      dec("99.99"),
		WalletBalance:   dec("12.34"),
		PointsBalance:   157,
		RequestedWallet: dec("7.77"),
		RequestedPoints: 149,
	}
	first := Resolve(in)
	second := Resolve(in)

	assert.True(t, first.WalletApplied.Equal(second.WalletApplied))
	assert.True(t, first.PointsDiscount.Equal(second.PointsDiscount))
	assert.True(t, first.PayableTotal.Equal(second.PayableTotal))
	assert.Equal(t, first.PointsToRedeem, second.PointsToRedeem)
	assert.Equal(t, first.MaxPointsRedeemable, second.MaxPointsRedeemable)
}

func TestResolve_BalancesForAnyInput(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		in := Input{
			OrderTotal:      decimal.New(int64(rnd.Intn(50000)), -2),
			WalletBalance:   decimal.New(int64(rnd.Intn(20000)), -2),
			PointsBalance:   rnd.Intn(1000),
			RequestedWallet: decimal.New(int64(rnd.Intn(30000)-5000), -2),
			RequestedPoints: rnd.Intn(1200) - 100,
		}
		res := Resolve(in)

		sum := res.WalletApplied.Add(res.PointsDiscount).Add(res.PayableTotal)
		assert.True(t, sum.Equal(in.OrderTotal), "sum %s != total %s", sum, in.OrderTotal)
		assert.Zero(t, res.PointsToRedeem%RedeemUnit)
		assert.LessOrEqual(t, res.PointsToRedeem, in.PointsBalance)
		assert.False(t, res.WalletApplied.GreaterThan(in.WalletBalance))
		assert.False(t, res.PayableTotal.IsNegative())
		assert.Zero(t, res.MaxPointsRedeemable%RedeemUnit)
	}
}
