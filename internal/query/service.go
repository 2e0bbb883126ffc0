package query

import (
	"fmt"
	"sync"

	"token_sync/internal/domain"
)

// Reader is the read side of the engine a Service needs.
type Reader interface {
	Tokens(c domain.Category) ([]domain.Token, error)
}

// Result is one computed view.
type Result struct {
	Category      domain.Category     `json:"category"`
	Tokens        []domain.Token      `json:"tokens"`
	TotalCount    int                 `json:"totalCount"`
	FilteredCount int                 `json:"filteredCount"`
	Sort          domain.SortConfig   `json:"sort"`
	Filter        domain.FilterConfig `json:"filter"`
}

// Params overrides the stored view configuration for a single query.
// Zero fields fall back to the stored values.
type Params struct {
	Category domain.Category
	Sort     *domain.SortConfig
	Filter   *domain.FilterConfig
}

// Service holds the active category, sort and filter and computes views
// from one consistent engine read per call. The configuration is process
// state only.
type Service struct {
	reader Reader

	mu       sync.RWMutex
	category domain.Category
	sort     domain.SortConfig
	filter   domain.FilterConfig
}

// NewService creates a service showing the migrated category sorted by
// market cap, largest first.
func NewService(r Reader) *Service {
	return &Service{
		reader:   r,
		category: domain.CategoryMigrated,
		sort:     domain.DefaultSort(),
	}
}

// View computes the view for the stored configuration.
func (s *Service) View() (Result, error) {
	return s.Query(Params{})
}

// Query computes a view, applying p on top of the stored configuration.
func (s *Service) Query(p Params) (Result, error) {
	s.mu.RLock()
	category, sortCfg, filter := s.category, s.sort, s.filter
	s.mu.RUnlock()

	if p.Category != "" {
		if !p.Category.Valid() {
			return Result{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, p.Category)
		}
		category = p.Category
	}
	if p.Sort != nil {
		if err := p.Sort.Validate(); err != nil {
			return Result{}, err
		}
		sortCfg = *p.Sort
	}
	if p.Filter != nil {
		filter = *p.Filter
	}

	tokens, err := s.reader.Tokens(category)
	if err != nil {
		return Result{}, err
	}

	view := View(tokens, sortCfg, filter)
	return Result{
		Category:      category,
		Tokens:        view,
		TotalCount:    len(tokens),
		FilteredCount: len(view),
		Sort:          sortCfg,
		Filter:        filter,
	}, nil
}

// Category returns the active category.
func (s *Service) Category() domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// SetCategory switches the active category.
func (s *Service) SetCategory(c domain.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
	}
	s.mu.Lock()
	s.category = c
	s.mu.Unlock()
	return nil
}

// Sort returns the active sort.
func (s *Service) Sort() domain.SortConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// SetSort replaces the active sort.
func (s *Service) SetSort(cfg domain.SortConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sort = cfg
	s.mu.Unlock()
	return nil
}

// ToggleSort flips the direction when f is already the sort key and
// otherwise starts sorting by f descending.
func (s *Service) ToggleSort(f domain.Field) (domain.SortConfig, error) {
	if !f.Sortable() {
		return domain.SortConfig{}, fmt.Errorf("field %q is not sortable", f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sort = s.sort.Toggle(f)
	return s.sort, nil
}

// Filter returns the active filter.
func (s *Service) Filter() domain.FilterConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetFilter merges p into the active filter and returns the result.
func (s *Service) SetFilter(p domain.FilterPatch) domain.FilterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = s.filter.Merge(p)
	return s.filter
}

// ResetFilter clears every bound.
func (s *Service) ResetFilter() {
	s.mu.Lock()
	s.filter = domain.FilterConfig{}
	s.mu.Unlock()
}
