package engine

import (
	"fmt"
	"math"

	"token_sync/internal/domain"
)

// Path identifies which ingestion path an update arrived on. The two paths
// accept slightly different field sets.
type Path uint8

const (
	PathSingle Path = iota
	PathBatch
)

func (p Path) String() string {
	if p == PathBatch {
		return "batch"
	}
	return "single"
}

// ApplyUpdate returns t with field mutated by value. It never modifies t.
//
//	marketCap      max(0, old*(1+value))
//	volume         old + value
//	holders        old + value
//	priceChange5m  value
//	priceChange1h  value (single path only)
//
// Any other field yields domain.ErrUnsupportedField and a NaN or infinite
// value yields domain.ErrInvalidValue, both with t unchanged.
func ApplyUpdate(t domain.Token, field domain.Field, value float64, path Path) (domain.Token, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return t, fmt.Errorf("%w: non-finite %s", domain.ErrInvalidValue, field)
	}

	out := t.Clone()
	switch field {
	case domain.FieldMarketCap:
		out.MarketCap = math.Max(0, t.MarketCap*(1+value))
	case domain.FieldVolume:
		out.Volume = t.Volume + value
	case domain.FieldHolders:
		out.Holders = t.Holders + value
	case domain.FieldPriceChange5m:
		out.PriceChange5m = value
	case domain.FieldPriceChange1h:
		if path != PathSingle {
			return t, fmt.Errorf("%w: %s on %s path", domain.ErrUnsupportedField, field, path)
		}
		out.PriceChange1h = value
	default:
		return t, fmt.Errorf("%w: %s", domain.ErrUnsupportedField, field)
	}
	return out, nil
}
