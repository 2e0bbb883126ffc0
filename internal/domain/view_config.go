package domain

import "fmt"

// SortDirection is either ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortConfig selects a single sort key.
type SortConfig struct {
	Field     Field         `json:"field"`
	Direction SortDirection `json:"direction"`
}

// DefaultSort orders by market cap, largest first.
func DefaultSort() SortConfig {
	return SortConfig{Field: FieldMarketCap, Direction: SortDesc}
}

// Validate checks that the field is sortable and the direction known.
func (s SortConfig) Validate() error {
	if !s.Field.Sortable() {
		return fmt.Errorf("field %q is not sortable", s.Field)
	}
	if s.Direction != SortAsc && s.Direction != SortDesc {
		return fmt.Errorf("invalid sort direction %q", s.Direction)
	}
	return nil
}

// Toggle returns the config produced by clicking a column header: the same
// field flips from desc to asc, anything else starts at desc.
func (s SortConfig) Toggle(f Field) SortConfig {
	if s.Field == f && s.Direction == SortDesc {
		return SortConfig{Field: f, Direction: SortAsc}
	}
	return SortConfig{Field: f, Direction: SortDesc}
}

// FilterConfig holds the conjunctive filter bounds. A zero bound is unset.
type FilterConfig struct {
	MinMarketCap   float64 `json:"minMarketCap,omitempty" yaml:"min_market_cap"`
	MaxMarketCap   float64 `json:"maxMarketCap,omitempty" yaml:"max_market_cap"`
	MinHolders     float64 `json:"minHolders,omitempty" yaml:"min_holders"`
	MinVolume      float64 `json:"minVolume,omitempty" yaml:"min_volume"`
	HideUnverified bool    `json:"hideUnverified,omitempty" yaml:"hide_unverified"`
}

// Match reports whether t passes every configured bound.
func (f FilterConfig) Match(t Token) bool {
	if f.MinMarketCap != 0 && t.MarketCap < f.MinMarketCap {
		return false
	}
	if f.MaxMarketCap != 0 && t.MarketCap > f.MaxMarketCap {
		return false
	}
	if f.MinHolders != 0 && t.Holders < f.MinHolders {
		return false
	}
	if f.MinVolume != 0 && t.Volume < f.MinVolume {
		return false
	}
	if f.HideUnverified && !t.IsVerified {
		return false
	}
	return true
}

// FilterPatch is a partial filter update; nil fields are left untouched.
type FilterPatch struct {
	MinMarketCap   *float64 `json:"minMarketCap,omitempty"`
	MaxMarketCap   *float64 `json:"maxMarketCap,omitempty"`
	MinHolders     *float64 `json:"minHolders,omitempty"`
	MinVolume      *float64 `json:"minVolume,omitempty"`
	HideUnverified *bool    `json:"hideUnverified,omitempty"`
}

// Merge applies the patch on top of f.
func (f FilterConfig) Merge(p FilterPatch) FilterConfig {
	if p.MinMarketCap != nil {
		f.MinMarketCap = *p.MinMarketCap
	}
	if p.MaxMarketCap != nil {
		f.MaxMarketCap = *p.MaxMarketCap
	}
	if p.MinHolders != nil {
		f.MinHolders = *p.MinHolders
	}
	if p.MinVolume != nil {
		f.MinVolume = *p.MinVolume
	}
	if p.HideUnverified != nil {
		f.HideUnverified = *p.HideUnverified
	}
	return f
}
