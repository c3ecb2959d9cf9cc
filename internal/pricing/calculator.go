package pricing

import (
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the flat sales tax applied to every cart.
var DefaultTaxRate = decimal.RequireFromString("0.08")

var ErrInvalidLine = errors.New("invalid cart line")

// Line is the pricing input for one cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Calculator struct {
	taxRate decimal.Decimal
}

func NewCalculator(taxRate decimal.Decimal) *Calculator {
	return &Calculator{taxRate: taxRate}
}

func (c *Calculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

// Calculate prices the lines. Rounding happens once, on the final total, so
// per-line rounding error never compounds.
func (c *Calculator) Calculate(lines []Line) (domain.Totals, error) {
	subtotal := decimal.Zero
	for i, line := range lines {
		if line.UnitPrice.IsNegative() || line.Quantity < 0 {
			return domain.Totals{}, fmt.Errorf("%w: line %d has price %s and quantity %d",
				ErrInvalidLine, i, line.UnitPrice, line.Quantity)
		}
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	tax := subtotal.Mul(c.taxRate)
	return domain.Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    domain.RoundCurrency(subtotal.Add(tax)),
	}, nil
}

// CalculateCart prices live cart lines.
func (c *Calculator) CalculateCart(lines []domain.CartLine) (domain.Totals, error) {
	in := make([]Line, len(lines))
	for i, l := range lines {
		in[i] = Line{UnitPrice: l.UnitPrice, Quantity: l.Quantity}
	}
	return c.Calculate(in)
}

// CalculateOrder re-prices settled order lines at their captured prices.
func (c *Calculator) CalculateOrder(lines []domain.OrderLine) (domain.Totals, error) {
	in := make([]Line, len(lines))
	for i, l := range lines {
		in[i] = Line{UnitPrice: l.UnitPrice, Quantity: l.Quantity}
	}
	return c.Calculate(in)
}
