package domain

import (
	"github.com/shopspring/decimal"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// FormatUSD renders a dollar amount compactly: $1.2M, $35K, $950.
func FormatUSD(v float64) string {
	d := decimal.NewFromFloat(v)
	switch {
	case d.GreaterThanOrEqual(million):
		return "$" + d.Div(million).StringFixed(1) + "M"
	case d.GreaterThanOrEqual(thousand):
		return "$" + d.Div(thousand).StringFixed(0) + "K"
	default:
		return "$" + d.StringFixed(0)
	}
}

// FormatPercent renders a signed whole percentage: +12%, -3%.
func FormatPercent(v float64) string {
	d := decimal.NewFromFloat(v)
	sign := ""
	if !d.IsNegative() {
		sign = "+"
	}
	return sign + d.StringFixed(0) + "%"
}

// FormatCount renders a count, abbreviating thousands: 1.2K, 87.
func FormatCount(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.GreaterThanOrEqual(thousand) {
		return d.Div(thousand).StringFixed(1) + "K"
	}
	return d.String()
}

// Display is the human readable rendering of a token's headline metrics.
type Display struct {
	MarketCap     string `json:"marketCap"`
	Volume        string `json:"volume"`
	Holders       string `json:"holders"`
	PriceChange5m string `json:"priceChange5m"`
	PriceChange1h string `json:"priceChange1h"`
}

// Display formats the token's headline metrics.
func (t Token) Display() Display {
	return Display{
		MarketCap:     FormatUSD(t.MarketCap),
		Volume:        FormatUSD(t.Volume),
		Holders:       FormatCount(t.Holders),
		PriceChange5m: FormatPercent(t.PriceChange5m),
		PriceChange1h: FormatPercent(t.PriceChange1h),
	}
}
