package feed

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_sync/internal/domain"
)

func fixedNow() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

func TestGenerator_CategoryShapes(t *testing.T) {
	g := NewGenerator(42)
	g.SetClock(fixedNow)

	for _, c := range domain.Categories {
		p := profiles[c]
		for range 50 {
			tok := g.Token(c)

			assert.Equal(t, c, domain.InferCategory(tok), "category %s", c)
			assert.GreaterOrEqual(t, tok.MarketCap, p.marketCapMin)
			assert.LessOrEqual(t, tok.MarketCap, p.marketCapMax)
			assert.GreaterOrEqual(t, tok.Volume, tok.MarketCap*0.1)
			assert.LessOrEqual(t, tok.Volume, tok.MarketCap*0.6)
			assert.False(t, tok.CreatedAt.After(fixedNow()))
			assert.True(t, fixedNow().Sub(tok.CreatedAt) <= p.maxAge)
			assert.Equal(t, 2.0, tok.QuickBuyAmount)
			assert.Len(t, tok.Address, 44)

			_, err := uuid.Parse(tok.ID)
			assert.NoError(t, err)
		}
	}
}

func TestGenerator_SeedIsDeterministic(t *testing.T) {
	a := NewGenerator(7)
	b := NewGenerator(7)
	a.SetClock(fixedNow)
	b.SetClock(fixedNow)

	for range 10 {
		assert.Equal(t, a.Token(domain.CategoryMigrated), b.Token(domain.CategoryMigrated))
	}

	c := NewGenerator(8)
	assert.NotEqual(t, NewGenerator(7).Token(domain.CategoryNewPairs).ID, c.Token(domain.CategoryNewPairs).ID)
}

func TestGenerator_Bulk(t *testing.T) {
	g := NewGenerator(1)
	ev := g.Bulk(map[domain.Category]int{
		domain.CategoryNewPairs:     15,
		domain.CategoryFinalStretch: 12,
		domain.CategoryMigrated:     20,
	})

	require.Len(t, ev.Categories, 3)
	assert.Len(t, ev.Categories[domain.CategoryNewPairs], 15)
	assert.Len(t, ev.Categories[domain.CategoryFinalStretch], 12)
	assert.Len(t, ev.Categories[domain.CategoryMigrated], 20)

	seen := make(map[string]bool)
	for _, tokens := range ev.Categories {
		for _, tok := range tokens {
			assert.False(t, seen[tok.ID], "duplicate id %s", tok.ID)
			seen[tok.ID] = true
		}
	}
}
