// Package categories holds the ordered category registry a classifier scores against.
package categories

import (
	"errors"
	"fmt"

	"ticketclassifier/internal/domain"
)

var (
	ErrDuplicateCategory = errors.New("category already exists")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrProtectedCategory = errors.New("category is protected")
	ErrEmptyRegistry     = errors.New("registry cannot be empty")
	ErrMissingFallback   = errors.New("registry requires the \"other\" category")
	ErrInvalidFallback   = errors.New("invalid \"other\" category")
)

// Registry is an ordered set of categories with unique names. Order matters:
// it breaks score ties during classification. A Registry is not safe for
// concurrent mutation.
type Registry struct {
	categories []*domain.Category
}

// NewRegistry builds a registry from cats, which must be non-empty, free of
// duplicate names and contain the "other" fallback.
func NewRegistry(cats []*domain.Category) (*Registry, error) {
	if len(cats) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{categories: make([]*domain.Category, 0, len(cats))}
	for i, c := range cats {
		if c == nil {
			return nil, fmt.Errorf("%w: categories[%d] is nil", domain.ErrInvalidCategory, i)
		}
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	if _, ok := r.Lookup(domain.OtherName); !ok {
		return nil, ErrMissingFallback
	}
	return r, nil
}

// NewDefaultRegistry returns an independently owned registry of the built-in categories.
func NewDefaultRegistry() *Registry {
	return &Registry{categories: DefaultCategories()}
}

// Lookup returns the category registered under name.
func (r *Registry) Lookup(name string) (*domain.Category, bool) {
	for _, c := range r.categories {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Add appends c after the existing categories. A fallback category must
// carry no matching rules, low priority and no auto-resolution.
func (r *Registry) Add(c *domain.Category) error {
	if c == nil {
		return fmt.Errorf("%w: category is nil", domain.ErrInvalidCategory)
	}
	if c.IsOther() {
		if err := validateFallback(c); err != nil {
			return err
		}
	}
	if _, exists := r.Lookup(c.Name()); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, c.Name())
	}
	r.categories = append(r.categories, c)
	return nil
}

func validateFallback(c *domain.Category) error {
	switch {
	case c.KeywordCount() > 0:
		return fmt.Errorf("%w: must not have keywords", ErrInvalidFallback)
	case c.PatternCount() > 0:
		return fmt.Errorf("%w: must not have patterns", ErrInvalidFallback)
	case c.Priority().Rank() != domain.PriorityLow.Rank():
		return fmt.Errorf("%w: priority must be %s, got %s", ErrInvalidFallback, domain.PriorityLow, c.Priority())
	case c.AutoResolvable():
		return fmt.Errorf("%w: must not be auto-resolvable", ErrInvalidFallback)
	}
	return nil
}

// Remove deletes the category called name. The fallback category cannot be
// removed and the registry never becomes empty.
func (r *Registry) Remove(name string) error {
	if name == domain.OtherName {
		return fmt.Errorf("%w: %s", ErrProtectedCategory, name)
	}
	idx := -1
	for i, c := range r.categories {
		if c.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, name)
	}
	if len(r.categories) == 1 {
		return fmt.Errorf("%w: %s is the last category", ErrEmptyRegistry, name)
	}
	r.categories = append(r.categories[:idx:idx], r.categories[idx+1:]...)
	return nil
}

// Snapshot returns a copy of the ordered category list.
func (r *Registry) Snapshot() []*domain.Category {
	return append([]*domain.Category(nil), r.categories...)
}

func (r *Registry) Len() int { return len(r.categories) }

func (r *Registry) Names() []string {
	names := make([]string, len(r.categories))
	for i, c := range r.categories {
		names[i] = c.Name()
	}
	return names
}
