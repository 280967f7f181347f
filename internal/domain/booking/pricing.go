package booking

import "github.com/shopspring/decimal"

var (
	minorUnitsPerUnit = decimal.NewFromInt(100)
	guestMarkup       = decimal.RequireFromString("1.12") // 12% service markup shown to guests
	payoutShare       = decimal.RequireFromString("0.97") // owner receives the sum minus a 3% platform fee
)

// ComputePrice converts a stored minor-unit cost to the rounded guest-facing price.
// Halves round to even.
func ComputePrice(cost int64) int64 {
	return decimal.NewFromInt(cost).
		Div(minorUnitsPerUnit).
		Mul(guestMarkup).
		RoundBank(0).
		IntPart()
}

// ComputePayout returns the amount disbursed to the owner for a contract cost in minor units.
func ComputePayout(cost int64) int64 {
	base := decimal.NewFromInt(cost).Div(minorUnitsPerUnit).RoundBank(0)
	return base.Mul(payoutShare).RoundBank(0).IntPart()
}
