package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortConfig_Toggle(t *testing.T) {
	t.Parallel()

	cfg := DefaultSort()

	cfg = cfg.Toggle(FieldMarketCap)
	assert.Equal(t, SortConfig{Field: FieldMarketCap, Direction: SortAsc}, cfg)

	cfg = cfg.Toggle(FieldMarketCap)
	assert.Equal(t, SortConfig{Field: FieldMarketCap, Direction: SortDesc}, cfg)

	cfg = cfg.Toggle(FieldVolume)
	assert.Equal(t, SortConfig{Field: FieldVolume, Direction: SortDesc}, cfg)
}

func TestSortConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultSort().Validate())
	assert.Error(t, SortConfig{Field: FieldIsVerified, Direction: SortAsc}.Validate())
	assert.Error(t, SortConfig{Field: FieldVolume, Direction: "sideways"}.Validate())
}

func TestFilterConfig_Match(t *testing.T) {
	t.Parallel()

	tok := Token{ID: "a", MarketCap: 5000, Holders: 100, Volume: 800, IsVerified: false}

	tests := []struct {
		name   string
		filter FilterConfig
		want   bool
	}{
		{"empty filter matches", FilterConfig{}, true},
		{"min market cap inclusive", FilterConfig{MinMarketCap: 5000}, true},
		{"min market cap excludes", FilterConfig{MinMarketCap: 5001}, false},
		{"max market cap inclusive", FilterConfig{MaxMarketCap: 5000}, true},
		{"max market cap excludes", FilterConfig{MaxMarketCap: 4999}, false},
		{"min holders excludes", FilterConfig{MinHolders: 101}, false},
		{"min volume excludes", FilterConfig{MinVolume: 900}, false},
		{"verified only excludes", FilterConfig{HideUnverified: true}, false},
		{"conjunctive", FilterConfig{MinMarketCap: 1000, MinHolders: 50, MinVolume: 500}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.filter.Match(tok))
		})
	}
}

func TestFilterConfig_Merge(t *testing.T) {
	t.Parallel()

	base := FilterConfig{MinMarketCap: 1000, MinHolders: 10}
	hide := true

	merged := base.Merge(FilterPatch{MinVolume: Float(50), HideUnverified: &hide})
	assert.Equal(t, FilterConfig{MinMarketCap: 1000, MinHolders: 10, MinVolume: 50, HideUnverified: true}, merged)

	cleared := merged.Merge(FilterPatch{MinMarketCap: Float(0)})
	assert.Zero(t, cleared.MinMarketCap)
	assert.Equal(t, float64(10), cleared.MinHolders)
}
