package query

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_sync/internal/domain"
)

func ids(tokens []domain.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.ID
	}
	return out
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func TestView_SortNumeric(t *testing.T) {
	tokens := []domain.Token{
		{ID: "a", MarketCap: 300},
		{ID: "b", MarketCap: 100},
		{ID: "c", MarketCap: 200},
	}

	desc := View(tokens, domain.SortConfig{Field: domain.FieldMarketCap, Direction: domain.SortDesc}, domain.FilterConfig{})
	asc := View(tokens, domain.SortConfig{Field: domain.FieldMarketCap, Direction: domain.SortAsc}, domain.FilterConfig{})

	assert.Equal(t, []string{"a", "c", "b"}, ids(desc))
	assert.Equal(t, reversed(ids(desc)), ids(asc))
	assert.Equal(t, []string{"a", "b", "c"}, ids(tokens), "input must not be reordered")
}

func TestView_DescAscAreReverses(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	caps := r.Perm(40)
	tokens := make([]domain.Token, len(caps))
	for i, c := range caps {
		tokens[i] = domain.Token{ID: string(rune('A' + i)), MarketCap: float64(c * 1_000)}
	}

	desc := View(tokens, domain.SortConfig{Field: domain.FieldMarketCap, Direction: domain.SortDesc}, domain.FilterConfig{})
	asc := View(tokens, domain.SortConfig{Field: domain.FieldMarketCap, Direction: domain.SortAsc}, domain.FilterConfig{})

	assert.Equal(t, reversed(ids(desc)), ids(asc))
}

func TestView_TiesKeepOriginalOrder(t *testing.T) {
	tokens := []domain.Token{
		{ID: "x", MarketCap: 5},
		{ID: "t1", MarketCap: 10},
		{ID: "t2", MarketCap: 10},
		{ID: "t3", MarketCap: 10},
		{ID: "y", MarketCap: 1},
	}

	desc := View(tokens, domain.SortConfig{Field: domain.FieldMarketCap, Direction: domain.SortDesc}, domain.FilterConfig{})
	asc := View(tokens, domain.SortConfig{Field: domain.FieldMarketCap, Direction: domain.SortAsc}, domain.FilterConfig{})

	assert.Equal(t, []string{"t1", "t2", "t3", "x", "y"}, ids(desc))
	assert.Equal(t, []string{"y", "x", "t1", "t2", "t3"}, ids(asc))
}

func TestView_SortText(t *testing.T) {
	tokens := []domain.Token{
		{ID: "1", Name: "beta"},
		{ID: "2", Name: "Alpha"},
		{ID: "3", Name: "gamma"},
	}

	asc := View(tokens, domain.SortConfig{Field: domain.FieldName, Direction: domain.SortAsc}, domain.FilterConfig{})
	// Locale order is case-insensitive at the primary level.
	assert.Equal(t, []string{"2", "1", "3"}, ids(asc))
}

func TestView_SortCreatedAt(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens := []domain.Token{
		{ID: "mid", CreatedAt: base.Add(time.Hour)},
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(2 * time.Hour)},
	}

	desc := View(tokens, domain.SortConfig{Field: domain.FieldCreatedAt, Direction: domain.SortDesc}, domain.FilterConfig{})
	assert.Equal(t, []string{"new", "mid", "old"}, ids(desc))
}

func TestView_SortCreatedAtSubSecond(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens := []domain.Token{
		{ID: "whole", CreatedAt: base},
		{ID: "later", CreatedAt: base.Add(100 * time.Millisecond)},
		{ID: "earlier", CreatedAt: base.Add(-500 * time.Millisecond)},
		{ID: "latest", CreatedAt: base.Add(121 * time.Millisecond)},
		{ID: "between", CreatedAt: base.Add(120 * time.Millisecond)},
	}

	asc := View(tokens, domain.SortConfig{Field: domain.FieldCreatedAt, Direction: domain.SortAsc}, domain.FilterConfig{})
	assert.Equal(t, []string{"earlier", "whole", "later", "between", "latest"}, ids(asc))

	desc := View(tokens, domain.SortConfig{Field: domain.FieldCreatedAt, Direction: domain.SortDesc}, domain.FilterConfig{})
	assert.Equal(t, []string{"latest", "between", "later", "whole", "earlier"}, ids(desc))
}

func TestView_MissingBondingProgressKeepsOrder(t *testing.T) {
	tokens := []domain.Token{
		{ID: "none"},
		{ID: "low", BondingProgress: domain.Float(10)},
		{ID: "high", BondingProgress: domain.Float(90)},
	}

	desc := View(tokens, domain.SortConfig{Field: domain.FieldBondingProgress, Direction: domain.SortDesc}, domain.FilterConfig{})
	require.Len(t, desc, 3)
	assert.Equal(t, []string{"high", "low"}, ids(desc)[1:], "comparable tokens are ordered")
}

func TestView_Filter(t *testing.T) {
	tokens := []domain.Token{
		{ID: "small", MarketCap: 1_000, Holders: 5, Volume: 10},
		{ID: "mid", MarketCap: 50_000, Holders: 100, Volume: 5_000, IsVerified: true},
		{ID: "big", MarketCap: 2_000_000, Holders: 900, Volume: 90_000},
	}
	sortCfg := domain.SortConfig{Field: domain.FieldMarketCap, Direction: domain.SortAsc}

	tests := []struct {
		name   string
		filter domain.FilterConfig
		want   []string
	}{
		{"none", domain.FilterConfig{}, []string{"small", "mid", "big"}},
		{"min market cap inclusive", domain.FilterConfig{MinMarketCap: 50_000}, []string{"mid", "big"}},
		{"max market cap inclusive", domain.FilterConfig{MaxMarketCap: 50_000}, []string{"small", "mid"}},
		{"min holders", domain.FilterConfig{MinHolders: 100}, []string{"mid", "big"}},
		{"min volume", domain.FilterConfig{MinVolume: 6_000}, []string{"big"}},
		{"verified only", domain.FilterConfig{HideUnverified: true}, []string{"mid"}},
		{"conjunctive", domain.FilterConfig{MinMarketCap: 10_000, MaxMarketCap: 100_000, MinHolders: 200}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := View(tokens, sortCfg, tt.filter)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestView_FilterIdempotent(t *testing.T) {
	tokens := []domain.Token{
		{ID: "a", MarketCap: 10}, {ID: "b", MarketCap: 500}, {ID: "c", MarketCap: 50}, {ID: "d", MarketCap: 1000},
	}
	filter := domain.FilterConfig{MinMarketCap: 50}
	sortCfg := domain.DefaultSort()

	once := View(tokens, sortCfg, filter)
	twice := View(once, sortCfg, filter)

	assert.Equal(t, once, twice)
	for _, tok := range once {
		assert.GreaterOrEqual(t, tok.MarketCap, 50.0)
	}
}
