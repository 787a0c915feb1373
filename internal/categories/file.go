package categories

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ticketclassifier/internal/domain"
)

// Mode controls how a category file is combined with the built-in categories.
type Mode string

const (
	// ModeExtend appends the file's categories to the built-in set.
	ModeExtend Mode = "extend"
	// ModeReplace uses only the file's categories, plus "other" when the file omits it.
	ModeReplace Mode = "replace"
)

// ParseMode accepts "extend" or "replace"; empty means extend.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeExtend:
		return ModeExtend, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("categories mode must be 'extend' or 'replace', got '%s'", s)
	}
}

type categoryFile struct {
	Categories []domain.CategoryConfig `yaml:"categories"`
}

// LoadFile reads category definitions from a YAML file of the form
//
//	categories:
//	  - name: phone_system
//	    description: VoIP or phone system issues
//	    keywords: [phone, voip]
//	    patterns: ['phone.*not.*work']
//	    priority: high
//	    auto_resolvable: false
func LoadFile(path string) ([]*domain.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML category definitions.
func Parse(data []byte) ([]*domain.Category, error) {
	var f categoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories yaml: %w", err)
	}
	out := make([]*domain.Category, 0, len(f.Categories))
	for i, cfg := range f.Categories {
		c, err := domain.NewCategory(cfg)
		if err != nil {
			return nil, fmt.Errorf("categories[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Build returns the registry described by a category file and mode. An empty
// path yields the default registry.
func Build(path string, mode Mode) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return NewDefaultRegistry(), nil
	}
	cats, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeReplace:
		hasOther := false
		for _, c := range cats {
			if c.IsOther() {
				hasOther = true
				break
			}
		}
		if !hasOther {
			cats = append(cats, OtherCategory())
		}
		return NewRegistry(cats)
	default:
		reg := NewDefaultRegistry()
		for _, c := range cats {
			if err := reg.Add(c); err != nil {
				return nil, err
			}
		}
		return reg, nil
	}
}
