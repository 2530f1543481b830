// Package resolve maps free text to a market-relevance score and to the
// instrument identifiers it is about.
package resolve

import (
	"bytes"
	_ "embed"
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules is the versioned rule table driving instrument resolution.
type Rules struct {
	Version           string        `yaml:"version"`
	DefaultInstrument string        `yaml:"default_instrument"`
	MarketWords       []string      `yaml:"market_words"`
	KnownTickers      []string      `yaml:"known_tickers"`
	Companies         []CompanyRule `yaml:"companies"`
	Topics            []TopicRule   `yaml:"topics"`

	compiled []*regexp.Regexp
	known    map[string]struct{}
}

// CompanyRule maps a company-name pattern to its tickers.
type CompanyRule struct {
	Pattern string   `yaml:"pattern"`
	Tickers []string `yaml:"tickers"`
}

// TopicRule maps macro keywords to a default instrument set.
type TopicRule struct {
	Keywords []string `yaml:"keywords"`
	Tickers  []string `yaml:"tickers"`
}

// LoadRules parses and compiles a YAML rule table.
func LoadRules(r io.Reader) (*Rules, error) {
	var rules Rules
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return nil, eris.Wrap(err, "resolve: decode rules")
	}
	if rules.Version == "" {
		return nil, eris.New("resolve: rules version is required")
	}
	if rules.DefaultInstrument == "" {
		return nil, eris.New("resolve: default_instrument is required")
	}

	rules.compiled = make([]*regexp.Regexp, len(rules.Companies))
	for i, c := range rules.Companies {
		re, err := regexp.Compile("(?i)" + unicodeBoundaries(c.Pattern))
		if err != nil {
			return nil, eris.Wrapf(err, "resolve: compile company pattern %d %q", i, c.Pattern)
		}
		rules.compiled[i] = re
	}

	rules.known = make(map[string]struct{}, len(rules.KnownTickers))
	for _, t := range rules.KnownTickers {
		rules.known[strings.ToUpper(t)] = struct{}{}
	}
	for i, w := range rules.MarketWords {
		rules.MarketWords[i] = strings.ToLower(w)
	}
	for _, t := range rules.Topics {
		for i, k := range t.Keywords {
			t.Keywords[i] = strings.ToLower(k)
		}
	}

	return &rules, nil
}

// DefaultRules returns the embedded rule table.
func DefaultRules() *Rules {
	rules, err := LoadRules(bytes.NewReader(defaultRulesYAML))
	if err != nil {
		panic(err)
	}
	return rules
}

const (
	leadBoundary  = `(?:^|[^\p{L}\p{N}_])`
	trailBoundary = `(?:$|[^\p{L}\p{N}_])`
)

// unicodeBoundaries rewrites \b into Unicode-aware boundaries. RE2 treats \b
// as an ASCII boundary, which never fires next to Cyrillic letters. A \b at
// the start of an alternative becomes a leading boundary, any other \b a
// trailing one. Patterns are only tested for a match, so consuming the
// boundary rune is harmless.
func unicodeBoundaries(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			if pattern[i+1] == 'b' {
				if i == 0 || pattern[i-1] == '|' || pattern[i-1] == '(' {
					b.WriteString(leadBoundary)
				} else {
					b.WriteString(trailBoundary)
				}
			} else {
				b.WriteByte(pattern[i])
				b.WriteByte(pattern[i+1])
			}
			i++
			continue
		}
		b.WriteByte(pattern[i])
	}
	return b.String()
}
