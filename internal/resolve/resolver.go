package resolve

import (
	"math"
	"strings"
	"unicode"
)

// MaxInstruments caps the identifiers attached to one event.
const MaxInstruments = 4

// Resolver scores market relevance and resolves instrument identifiers.
type Resolver struct {
	rules *Rules
}

// New creates a Resolver over the given rules. nil means DefaultRules.
func New(rules *Rules) *Resolver {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Resolver{rules: rules}
}

// Version returns the rule table version in use.
func (r *Resolver) Version() string {
	return r.rules.Version
}

// Relevance counts market-vocabulary hits: min(1, hits/3).
func (r *Resolver) Relevance(text string) float64 {
	low := strings.ToLower(text)
	var hits int
	for _, w := range r.rules.MarketWords {
		if w != "" && strings.Contains(low, w) {
			hits++
		}
	}
	return math.Min(1, float64(hits)/3.0)
}

// Instruments resolves up to four identifiers for text. Stages run in order
// until one yields something: company patterns, upper-case known tickers,
// macro topics. The default market proxy is returned when all stages are
// empty, so the result is never empty.
func (r *Resolver) Instruments(text string) []string {
	ids := r.companyTickers(text)
	if len(ids) == 0 {
		ids = r.upperTickers(text)
	}
	if len(ids) == 0 {
		ids = r.topicTickers(text)
	}
	if len(ids) == 0 {
		ids = []string{r.rules.DefaultInstrument}
	}
	return ids
}

func (r *Resolver) companyTickers(text string) []string {
	var out []string
	for i, re := range r.rules.compiled {
		if re.MatchString(text) {
			out = append(out, r.rules.Companies[i].Tickers...)
		}
	}
	return uniqCapped(out)
}

func (r *Resolver) upperTickers(text string) []string {
	tokens := strings.FieldsFunc(text, func(c rune) bool {
		return !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_')
	})
	var out []string
	for _, tok := range tokens {
		if !isUpperASCII(tok, 3, 6) {
			continue
		}
		if _, ok := r.rules.known[tok]; ok {
			out = append(out, tok)
		}
	}
	return uniqCapped(out)
}

func (r *Resolver) topicTickers(text string) []string {
	low := strings.ToLower(text)
	for _, topic := range r.rules.Topics {
		for _, k := range topic.Keywords {
			if k != "" && strings.Contains(low, k) {
				return uniqCapped(topic.Tickers)
			}
		}
	}
	return nil
}

func isUpperASCII(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// uniqCapped drops empty and repeated ids, keeps order and caps the length.
func uniqCapped(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == MaxInstruments {
			break
		}
	}
	return out
}
