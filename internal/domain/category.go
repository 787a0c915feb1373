package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// OtherName is the mandatory fallback category.
const OtherName = "other"

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPriority = errors.New("invalid priority")
)

// Priority is the urgency attached to a category.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ParsePriority accepts exactly one of low, medium, high or critical.
func ParsePriority(s string) (Priority, error) {
	for _, p := range priorities {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: must be one of %v, got %q", ErrInvalidPriority, priorities, s)
}

// Rank orders priorities from 0 (low) to 3 (critical). Unknown values rank -1.
func (p Priority) Rank() int {
	for i, known := range priorities {
		if p == known {
			return i
		}
	}
	return -1
}

func (p Priority) String() string { return string(p) }

// CategoryConfig is the unvalidated shape of a category, as written in code or category files.
type CategoryConfig struct {
	Name           string   `yaml:"name" json:"name"`
	Description    string   `yaml:"description" json:"description"`
	Keywords       []string `yaml:"keywords" json:"keywords"`
	Patterns       []string `yaml:"patterns" json:"patterns"`
	Priority       string   `yaml:"priority" json:"priority"`
	AutoResolvable bool     `yaml:"auto_resolvable" json:"auto_resolvable"`
}

// Pattern is one regular expression of a category. Err is set when the
// expression failed to compile; such a pattern never matches.
type Pattern struct {
	Source string
	re     *regexp.Regexp
	Err    error
}

// MatchString reports whether the pattern matches text.
func (p Pattern) MatchString(text string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(text)
}

// Category is an immutable classification bucket. Build it with NewCategory.
type Category struct {
	name           string
	description    string
	keywords       []string
	lowerKeywords  []string
	patterns       []Pattern
	priority       Priority
	autoResolvable bool
}

// NewCategory validates cfg and returns the category, or an error describing
// the first invalid field.
func NewCategory(cfg CategoryConfig) (*Category, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidCategory)
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("%w: description cannot be empty (category %q)", ErrInvalidCategory, cfg.Name)
	}
	for i, kw := range cfg.Keywords {
		if strings.TrimSpace(kw) == "" {
			return nil, fmt.Errorf("%w: keywords[%d] cannot be blank (category %q)", ErrInvalidCategory, i, cfg.Name)
		}
	}

	priority := PriorityMedium
	if cfg.Priority != "" {
		p, err := ParsePriority(cfg.Priority)
		if err != nil {
			return nil, fmt.Errorf("%w: category %q: %w", ErrInvalidCategory, cfg.Name, err)
		}
		priority = p
	}

	c := &Category{
		name:           cfg.Name,
		description:    cfg.Description,
		keywords:       append([]string(nil), cfg.Keywords...),
		lowerKeywords:  make([]string, len(cfg.Keywords)),
		patterns:       make([]Pattern, len(cfg.Patterns)),
		priority:       priority,
		autoResolvable: cfg.AutoResolvable,
	}
	for i, kw := range cfg.Keywords {
		c.lowerKeywords[i] = strings.ToLower(kw)
	}
	for i, src := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + src)
		c.patterns[i] = Pattern{Source: src, re: re, Err: err}
	}
	return c, nil
}

// MustCategory is NewCategory for static definitions; it panics on invalid input.
func MustCategory(cfg CategoryConfig) *Category {
	c, err := NewCategory(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Category) Name() string { return c.name }
func (c *Category) Description() string { return c.description }
func (c *Category) Priority() Priority { return c.priority }
func (c *Category) AutoResolvable() bool { return c.autoResolvable }
func (c *Category) IsOther() bool { return c.name == OtherName }
func (c *Category) Keywords() []string { return append([]string(nil), c.keywords...) }
func (c *Category) PatternCount() int { return len(c.patterns) }
func (c *Category) KeywordCount() int { return len(c.keywords) }

// MatchPatterns evaluates every pattern against text independently. It returns
// the sources of the patterns that matched, in definition order, and the
// patterns that could not be evaluated because they failed to compile.
func (c *Category) MatchPatterns(text string) (matched []string, broken []Pattern) {
	for _, p := range c.patterns {
		if p.Err != nil {
			broken = append(broken, p)
			continue
		}
		if p.MatchString(text) {
			matched = append(matched, p.Source)
		}
	}
	return matched, broken
}

// CountKeywords returns how many keywords occur in lowerText, which must
// already be lower-cased.
func (c *Category) CountKeywords(lowerText string) int {
	n := 0
	for _, kw := range c.lowerKeywords {
		if strings.Contains(lowerText, kw) {
			n++
		}
	}
	return n
}

// Patterns returns the pattern sources in definition order.
func (c *Category) Patterns() []string {
	out := make([]string, len(c.patterns))
	for i, p := range c.patterns {
		out[i] = p.Source
	}
	return out
}

// Config returns the definition the category was built from.
func (c *Category) Config() CategoryConfig {
	return CategoryConfig{
		Name:           c.name,
		Description:    c.description,
		Keywords:       c.Keywords(),
		Patterns:       c.Patterns(),
		Priority:       string(c.priority),
		AutoResolvable: c.autoResolvable,
	}
}

func (c *Category) String() string {
	return fmt.Sprintf("TicketCategory(name='%s', priority='%s')", c.name, c.priority)
}
