/**
 * @description
 * Platform fee computation for pet sales. The split is a flat 15% platform
 * fee / 85% breeder earnings applied to the authoritative listing price.
 * The same computation runs at authorization time and again at settlement
 * time; the two results must agree within one cent or settlement rejects.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact 2-decimal USD arithmetic.
 */
package app

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	platformFeeRate     = decimal.NewFromFloat(0.15)
	breederEarningsRate = decimal.NewFromFloat(0.85)

	// feeTolerance is the maximum allowed drift, per leg, between the fee
	// split stored in provider metadata and the split recomputed from the
	// listing's current price.
	feeTolerance = decimal.NewFromFloat(0.01)
)

// ErrInvalidSalePrice is returned when a fee split is requested for a
// non-positive price.
var ErrInvalidSalePrice = errors.New("sale price must be positive")

// FeeBreakdown is the platform-fee / breeder-earnings split of a sale price.
type FeeBreakdown struct {
	SalePrice       decimal.Decimal
	PlatformFee     decimal.Decimal
	BreederEarnings decimal.Decimal
}

// ComputeFees maps a sale price to its fee split, rounding each leg to two
// decimal places. It is pure and must always be called with the listing's
// stored price, never a client-supplied amount.
func ComputeFees(price decimal.Decimal) (FeeBreakdown, error) {
	if !price.IsPositive() {
		return FeeBreakdown{}, ErrInvalidSalePrice
	}
	return FeeBreakdown{
		SalePrice:       price.Round(2),
		PlatformFee:     price.Mul(platformFeeRate).Round(2),
		BreederEarnings: price.Mul(breederEarningsRate).Round(2),
	}, nil
}

// FeesMatch reports whether two fee breakdowns agree within the one-cent
// tolerance on every leg. A mismatch at settlement time indicates either
// client tampering or a listing price change since authorization.
func FeesMatch(a, b FeeBreakdown) bool {
	return withinTolerance(a.SalePrice, b.SalePrice) &&
		withinTolerance(a.PlatformFee, b.PlatformFee) &&
		withinTolerance(a.BreederEarnings, b.BreederEarnings)
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(feeTolerance)
}

// AmountToCents converts a 2-decimal USD amount to integer cents for the
// payment provider boundary.
func AmountToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
