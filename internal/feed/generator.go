package feed

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"token_sync/internal/domain"
	"token_sync/internal/event"
)

var (
	namePrefixes = []string{"Moon", "Doge", "Pepe", "Based", "Giga", "Turbo", "Sol", "Frog", "Chad", "Neko", "Astro", "Degen"}
	nameSuffixes = []string{"Cat", "Inu", "Coin", "AI", "Wif", "Rocket", "Pump", "Bonk", "Lord", "Verse", "Hat", "Bull"}
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// categoryProfile bounds the randomly generated values of one category.
type categoryProfile struct {
	maxAge       time.Duration
	progressMin  float64
	progressMax  float64
	noProgress   bool
	marketCapMin float64
	marketCapMax float64
}

var profiles = map[domain.Category]categoryProfile{
	domain.CategoryNewPairs: {
		maxAge: 30 * time.Minute, progressMin: 0, progressMax: 50,
		marketCapMin: 5_000, marketCapMax: 50_000,
	},
	domain.CategoryFinalStretch: {
		maxAge: 120 * time.Minute, progressMin: domain.FinalStretchThreshold, progressMax: 100,
		marketCapMin: 20_000, marketCapMax: 200_000,
	},
	domain.CategoryMigrated: {
		maxAge: 24 * time.Hour, noProgress: true,
		marketCapMin: 50_000, marketCapMax: 5_000_000,
	},
}

// Generator produces plausible tokens. A fixed seed yields the same
// sequence of tokens, ids included, for a given clock.
type Generator struct {
	mu  sync.Mutex
	src *rand.ChaCha8
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator. seed 0 picks a random seed.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	src := rand.NewChaCha8(key)
	return &Generator{src: src, rng: rand.New(src), now: time.Now}
}

// SetClock overrides the time source used for creation timestamps.
func (g *Generator) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Token generates one token shaped for category c.
func (g *Generator) Token(c domain.Category) domain.Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token(c)
}

// Bulk generates a bulk load event with counts[c] tokens per category.
func (g *Generator) Bulk(counts map[domain.Category]int) *event.BulkLoadEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := make(map[domain.Category][]domain.Token, len(domain.Categories))
	for _, c := range domain.Categories {
		n := counts[c]
		tokens := make([]domain.Token, 0, n)
		for range n {
			tokens = append(tokens, g.token(c))
		}
		set[c] = tokens
	}
	return &event.BulkLoadEvent{Categories: set}
}

func (g *Generator) token(c domain.Category) domain.Token {
	p, ok := profiles[c]
	if !ok {
		p = profiles[domain.CategoryNewPairs]
	}
	r := g.rng

	name := namePrefixes[r.IntN(len(namePrefixes))] + nameSuffixes[r.IntN(len(nameSuffixes))]
	ticker := strings.ToUpper(name)
	if len(ticker) > 6 {
		ticker = ticker[:6]
	}

	marketCap := p.marketCapMin + r.Float64()*(p.marketCapMax-p.marketCapMin)
	age := time.Duration(r.Int64N(int64(p.maxAge)))

	t := domain.Token{
		ID:        g.id(),
		Address:   g.address(),
		Name:      name,
		Ticker:    ticker,
		ImageURL:  fmt.Sprintf("https://api.dicebear.com/7.x/identicon/svg?seed=%s", ticker),
		CreatedAt: g.now().Add(-age).Truncate(time.Millisecond),

		MarketCap:    marketCap,
		Volume:       marketCap * (0.1 + r.Float64()*0.5),
		Holders:      float64(10 + r.IntN(500)),
		Transactions: float64(50 + r.IntN(2000)),
		Replies:      float64(r.IntN(20)),

		PriceChange5m: (r.Float64() - 0.5) * 100,
		PriceChange1h: (r.Float64() - 0.5) * 200,
		DevHolding:    r.Float64() * 10,
		TopHolders:    r.Float64() * 50,
		Snipers:       float64(r.IntN(40)),

		IsVerified:     r.Float64() < 0.3,
		QuickBuyAmount: 2,
	}
	if !p.noProgress {
		t.BondingProgress = domain.Float(p.progressMin + r.Float64()*(p.progressMax-p.progressMin))
	}
	if r.Float64() < 0.5 {
		t.Socials.Twitter = "https://x.com/" + strings.ToLower(ticker)
	}
	if r.Float64() < 0.3 {
		t.Socials.Website = "https://" + strings.ToLower(name) + ".fun"
	}
	if r.Float64() < 0.2 {
		t.Socials.Telegram = "https://t.me/" + strings.ToLower(name)
	}
	return t
}

func (g *Generator) id() string {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (g *Generator) address() string {
	var b strings.Builder
	b.Grow(44)
	for range 44 {
		b.WriteByte(base58Alphabet[g.rng.IntN(len(base58Alphabet))])
	}
	return b.String()
}
