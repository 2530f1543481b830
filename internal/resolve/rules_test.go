package resolve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	assert.Equal(t, "USDRUB_TOM", rules.DefaultInstrument)
	assert.NotEmpty(t, rules.Version)
	assert.Len(t, rules.compiled, len(rules.Companies))
	assert.Contains(t, rules.known, "GAZP")
}

func TestLoadRules_MissingVersion(t *testing.T) {
	_, err := LoadRules(strings.NewReader("default_instrument: USDRUB_TOM\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version is required")
}

func TestLoadRules_MissingDefault(t *testing.T) {
	_, err := LoadRules(strings.NewReader("version: \"1\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_instrument")
}

func TestLoadRules_BadPattern(t *testing.T) {
	src := `
version: "1"
default_instrument: USDRUB_TOM
companies:
  - pattern: '(unclosed'
    tickers: [SBER]
`
	_, err := LoadRules(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile company pattern")
}

func TestLoadRules_UnknownField(t *testing.T) {
	src := `
version: "1"
default_instrument: USDRUB_TOM
aliases: {}
`
	_, err := LoadRules(strings.NewReader(src))
	assert.Error(t, err)
}

func TestLoadRules_LowercasesVocabulary(t *testing.T) {
	src := `
version: "1"
default_instrument: USDRUB_TOM
market_words: [IPO]
known_tickers: [sber]
topics:
  - keywords: [OPEC]
    tickers: [ROSN]
`
	rules, err := LoadRules(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"ipo"}, rules.MarketWords)
	assert.Equal(t, []string{"opec"}, rules.Topics[0].Keywords)
	assert.Contains(t, rules.known, "SBER")
}

func TestUnicodeBoundaries(t *testing.T) {
	tests := []struct {
		pattern string
		text    string
		match   bool
	}{
		{`\bсбер\b`, "акции Сбер растут", true},
		{`\bсбер\b`, "Сбербанк", false},
		{`\bсбербанк\b`, "Сбербанк.", true},
		{`\bсевера?сталь\b`, "Северсталь", true},
		{`\bмагнит\b`, "Магнитогорск", false},
		{`x\\b`, `x\b`, true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.text, func(t *testing.T) {
			rules, err := LoadRules(strings.NewReader(
				"version: \"1\"\ndefault_instrument: X\ncompanies:\n  - pattern: '" + tt.pattern + "'\n    tickers: [T]\n"))
			require.NoError(t, err)
			assert.Equal(t, tt.match, rules.compiled[0].MatchString(tt.text))
		})
	}
}
