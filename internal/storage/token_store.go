package storage

import (
	"token_sync/internal/domain"
)

// DefaultCategoryCapacity is the retention cap per category.
const DefaultCategoryCapacity = 50

// InsertResult describes the outcome of TokenStore.Insert.
type InsertResult struct {
	Inserted bool
	// Evicted is the tail token dropped to respect the capacity, if any.
	Evicted *domain.Token
}

// TokenStore is the authoritative in-memory collection of tokens,
// partitioned by category. Each category is kept newest-first.
//
// TokenStore is not safe for concurrent use. The sequencer owns it and
// hands out copies to readers.
type TokenStore struct {
	categories map[domain.Category][]domain.Token
	index      map[string]domain.Category // token id -> category
	capacity   int
}

// NewTokenStore creates an empty store. capacity <= 0 selects the default.
func NewTokenStore(capacity int) *TokenStore {
	if capacity <= 0 {
		capacity = DefaultCategoryCapacity
	}
	s := &TokenStore{
		categories: make(map[domain.Category][]domain.Token, len(domain.Categories)),
		index:      make(map[string]domain.Category),
		capacity:   capacity,
	}
	for _, c := range domain.Categories {
		s.categories[c] = nil
	}
	return s
}

// Load replaces the store contents with a full categorized set. Unknown
// categories are skipped, duplicate ids keep their first occurrence and each
// category is truncated to the capacity.
func (s *TokenStore) Load(set map[domain.Category][]domain.Token) {
	s.index = make(map[string]domain.Category)
	for _, c := range domain.Categories {
		src := set[c]
		tokens := make([]domain.Token, 0, min(len(src), s.capacity))
		for _, t := range src {
			if len(tokens) == s.capacity {
				break
			}
			if _, dup := s.index[t.ID]; dup || t.ID == "" {
				continue
			}
			s.index[t.ID] = c
			tokens = append(tokens, t.Clone())
		}
		s.categories[c] = tokens
	}
}

// Get returns a copy of the category's tokens, newest first.
func (s *TokenStore) Get(c domain.Category) []domain.Token {
	src := s.categories[c]
	out := make([]domain.Token, len(src))
	for i, t := range src {
		out[i] = t.Clone()
	}
	return out
}

// Insert prepends t to category c. It is a no-op when the id already exists
// anywhere in the store or the category is unknown. When the category
// exceeds its capacity the oldest token is evicted.
func (s *TokenStore) Insert(c domain.Category, t domain.Token) InsertResult {
	if !c.Valid() || t.ID == "" {
		return InsertResult{}
	}
	if _, exists := s.index[t.ID]; exists {
		return InsertResult{}
	}

	tokens := append([]domain.Token{t.Clone()}, s.categories[c]...)
	s.index[t.ID] = c

	var res InsertResult
	res.Inserted = true
	if len(tokens) > s.capacity {
		evicted := tokens[len(tokens)-1]
		tokens = tokens[:len(tokens)-1]
		delete(s.index, evicted.ID)
		res.Evicted = &evicted
	}
	s.categories[c] = tokens
	return res
}

// FindByID locates a token across all categories.
func (s *TokenStore) FindByID(id string) (domain.Category, domain.Token, bool) {
	c, ok := s.index[id]
	if !ok {
		return "", domain.Token{}, false
	}
	i := s.position(c, id)
	if i < 0 {
		return "", domain.Token{}, false
	}
	return c, s.categories[c][i].Clone(), true
}

// Replace writes back an updated token in place, keeping its position.
// It reports false when the token is no longer in the store.
func (s *TokenStore) Replace(t domain.Token) bool {
	c, ok := s.index[t.ID]
	if !ok {
		return false
	}
	i := s.position(c, t.ID)
	if i < 0 {
		return false
	}
	s.categories[c][i] = t.Clone()
	return true
}

// Remove deletes the token from category c. No-op when absent.
func (s *TokenStore) Remove(c domain.Category, id string) bool {
	i := s.position(c, id)
	if i < 0 {
		return false
	}
	tokens := s.categories[c]
	s.categories[c] = append(tokens[:i:i], tokens[i+1:]...)
	delete(s.index, id)
	return true
}

// IDs returns the token ids of category c in store order.
func (s *TokenStore) IDs(c domain.Category) []string {
	tokens := s.categories[c]
	ids := make([]string, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	return ids
}

// Len returns the total number of tokens across categories.
func (s *TokenStore) Len() int { return len(s.index) }

// Counts returns the number of tokens per category.
func (s *TokenStore) Counts() map[domain.Category]int {
	counts := make(map[domain.Category]int, len(s.categories))
	for c, tokens := range s.categories {
		counts[c] = len(tokens)
	}
	return counts
}

// All returns a deep copy of every category.
func (s *TokenStore) All() map[domain.Category][]domain.Token {
	out := make(map[domain.Category][]domain.Token, len(s.categories))
	for c := range s.categories {
		out[c] = s.Get(c)
	}
	return out
}

func (s *TokenStore) position(c domain.Category, id string) int {
	for i, t := range s.categories[c] {
		if t.ID == id {
			return i
		}
	}
	return -1
}
