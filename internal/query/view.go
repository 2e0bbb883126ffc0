// Package query computes sorted and filtered read views over token snapshots.
package query

import (
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"token_sync/internal/domain"
)

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und)
)

// compareText orders strings the way a browser's localeCompare does for the
// root locale. collate.Collator is not safe for concurrent use.
func compareText(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// View filters tokens conjunctively and then sorts them stably by the
// configured field. The input slice is not modified.
func View(tokens []domain.Token, sortCfg domain.SortConfig, filter domain.FilterConfig) []domain.Token {
	out := make([]domain.Token, 0, len(tokens))
	for _, t := range tokens {
		if filter.Match(t) {
			out = append(out, t)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return compare(out[i], out[j], sortCfg) < 0
	})
	return out
}

// compare returns the ordering of a and b under cfg. Operands that cannot be
// compared, or compare equal, return 0 so the stable sort keeps input order.
func compare(a, b domain.Token, cfg domain.SortConfig) int {
	c := compareField(a, b, cfg.Field)
	if cfg.Direction == domain.SortDesc {
		return -c
	}
	return c
}

func compareField(a, b domain.Token, f domain.Field) int {
	if f == domain.FieldCreatedAt {
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	if av, ok := a.Numeric(f); ok {
		bv, ok := b.Numeric(f)
		if !ok {
			return 0
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}

	if as, ok := a.Text(f); ok {
		bs, ok := b.Text(f)
		if !ok {
			return 0
		}
		return compareText(as, bs)
	}
	return 0
}
