package domain

import (
	"fmt"
	"time"
)

// Category is one of the fixed lifecycle buckets a token lives in.
type Category string

const (
	CategoryNewPairs     Category = "new-pairs"
	CategoryFinalStretch Category = "final-stretch"
	CategoryMigrated     Category = "migrated"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryNewPairs, CategoryFinalStretch, CategoryMigrated}

// FinalStretchThreshold is the bonding progress at which a token is
// considered near migration.
const FinalStretchThreshold = 70.0

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryNewPairs, CategoryFinalStretch, CategoryMigrated:
		return true
	}
	return false
}

// ParseCategory converts a raw string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Socials holds the optional community links of a token.
type Socials struct {
	Twitter  string `json:"twitter,omitempty"`
	Website  string `json:"website,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Discord  string `json:"discord,omitempty"`
}

// Token is a tracked instrument. Descriptive fields are fixed at creation;
// metric fields are mutated by feed updates.
type Token struct {
	// Identity and descriptive fields
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Ticker    string    `json:"ticker"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
	Socials   Socials   `json:"socials"`

	// Metrics
	MarketCap    float64 `json:"marketCap"`
	Volume       float64 `json:"volume"`
	Holders      float64 `json:"holders"`
	Transactions float64 `json:"transactions"`
	Replies      float64 `json:"replies"`

	// Price changes and risk metrics (percent)
	PriceChange5m float64 `json:"priceChange5m"`
	PriceChange1h float64 `json:"priceChange1h"`
	DevHolding    float64 `json:"devHolding"`
	TopHolders    float64 `json:"topHolders"`
	Snipers       float64 `json:"snipers"`

	// Only set while the token is still bonding (0-100).
	BondingProgress *float64 `json:"bondingProgress,omitempty"`

	IsVerified     bool    `json:"isVerified"`
	QuickBuyAmount float64 `json:"quickBuyAmount"`
}

// Clone returns a deep copy of the token.
func (t Token) Clone() Token {
	if t.BondingProgress != nil {
		p := *t.BondingProgress
		t.BondingProgress = &p
	}
	return t
}

// InferCategory derives the category from the token's shape: no bonding
// progress means migrated, progress at or above the threshold means final
// stretch, anything else is a new pair.
func InferCategory(t Token) Category {
	switch {
	case t.BondingProgress == nil:
		return CategoryMigrated
	case *t.BondingProgress >= FinalStretchThreshold:
		return CategoryFinalStretch
	default:
		return CategoryNewPairs
	}
}

// Age returns a compact age label ("12m", "3h", "2d") relative to now.
func (t Token) Age(now time.Time) string {
	minutes := int(now.Sub(t.CreatedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 { return &v }
