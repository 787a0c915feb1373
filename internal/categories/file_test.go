package categories

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketclassifier/internal/domain"
)

const customYAML = `
categories:
  - name: phone_system
    description: VoIP or phone system issues
    keywords: [phone, voip, call, dial tone, extension]
    patterns:
      - 'phone.*not.*work'
      - 'no.*dial.*tone'
      - "can'?t.*make.*call"
      - 'voip.*issue'
    priority: high
  - name: pos_system
    description: Point of sale system issues
    keywords: [pos, point of sale, register, cash register, checkout]
    patterns: ['pos.*system', 'cash.*register']
    priority: critical
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	cats, err := LoadFile(writeFile(t, customYAML))
	require.NoError(t, err)
	require.Len(t, cats, 2)

	assert.Equal(t, "phone_system", cats[0].Name())
	assert.Equal(t, domain.PriorityHigh, cats[0].Priority())
	assert.Equal(t, []string{`phone.*not.*work`, `no.*dial.*tone`, `can'?t.*make.*call`, `voip.*issue`}, cats[0].Patterns())
	assert.Equal(t, domain.PriorityCritical, cats[1].Priority())
	assert.False(t, cats[1].AutoResolvable())
}

func TestParseRejectsInvalidCategory(t *testing.T) {
	_, err := Parse([]byte("categories:\n  - name: bad\n    description: Bad\n    priority: urgent\n"))
	assert.True(t, errors.Is(err, domain.ErrInvalidPriority), "got %v", err)

	_, err = Parse([]byte("categories: [\n"))
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildExtend(t *testing.T) {
	reg, err := Build(writeFile(t, customYAML), ModeExtend)
	require.NoError(t, err)
	assert.Equal(t, append(append([]string{}, wantDefaultNames...), "phone_system", "pos_system"), reg.Names())
}

func TestBuildExtendRejectsDuplicate(t *testing.T) {
	path := writeFile(t, "categories:\n  - name: disk_space\n    description: dup\n")
	_, err := Build(path, ModeExtend)
	assert.True(t, errors.Is(err, ErrDuplicateCategory), "got %v", err)
}

func TestBuildReplaceAddsFallback(t *testing.T) {
	reg, err := Build(writeFile(t, customYAML), ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone_system", "pos_system", "other"}, reg.Names())
}

func TestBuildReplaceRejectsInvalidFallback(t *testing.T) {
	tests := []struct {
		name  string
		other string
	}{
		{"keywords", "    keywords: [help]\n"},
		{"patterns", "    patterns: ['help.*me']\n"},
		{"priority", "    priority: critical\n"},
		{"auto resolvable", "    auto_resolvable: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := customYAML + "  - name: other\n    description: Anything else\n" + tt.other
			_, err := Build(writeFile(t, content), ModeReplace)
			assert.True(t, errors.Is(err, ErrInvalidFallback), "got %v", err)
		})
	}
}

func TestBuildReplaceKeepsValidFallback(t *testing.T) {
	content := customYAML + "  - name: other\n    description: Anything else\n    priority: low\n"
	reg, err := Build(writeFile(t, content), ModeReplace)
	require.NoError(t, err)

	other, ok := reg.Lookup(domain.OtherName)
	require.True(t, ok)
	assert.Equal(t, "Anything else", other.Description())
	assert.False(t, other.AutoResolvable())
}

func TestBuildEmptyPathUsesDefaults(t *testing.T) {
	reg, err := Build("", ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, wantDefaultNames, reg.Names())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeExtend, m)

	m, err = ParseMode("Replace")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, m)

	_, err = ParseMode("merge")
	assert.Error(t, err)
}
