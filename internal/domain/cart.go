package domain

import "github.com/shopspring/decimal"

// CartLine is one (user, product) row of a cart joined with the live product.
type CartLine struct {
	UserID      int64           `json:"user_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Stock       int             `json:"stock"`
}

// LineTotal returns price x quantity without rounding.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
