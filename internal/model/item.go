package model

// SourceGroup is the coarse trust tier of a publisher.
type SourceGroup string

const (
	GroupRegulator SourceGroup = "REG"   // central bank, regulator disclosures
	GroupExchange  SourceGroup = "EXCH"  // exchange notices
	GroupTier1     SourceGroup = "TIER1" // top-tier financial media
	GroupMedia     SourceGroup = "MEDIA" // everything else
)

// ParseSourceGroup maps a config or database value to a SourceGroup.
// Unknown values are treated as generic media.
func ParseSourceGroup(s string) SourceGroup {
	switch SourceGroup(s) {
	case GroupRegulator, GroupExchange, GroupTier1:
		return SourceGroup(s)
	default:
		return GroupMedia
	}
}

// Authoritative reports whether disclosures from this group bypass the
// relevance and multi-source gates.
func (g SourceGroup) Authoritative() bool {
	return g == GroupRegulator || g == GroupExchange
}

// Priority orders groups for the fallback cascade: REG=3, EXCH=2, TIER1=1, other=0.
func (g SourceGroup) Priority() int {
	switch g {
	case GroupRegulator:
		return 3
	case GroupExchange:
		return 2
	case GroupTier1:
		return 1
	default:
		return 0
	}
}

// RawItem is one fetched article. URL is its identity.
type RawItem struct {
	Source            string      `json:"source"`
	URL               string      `json:"url"`
	Title             string      `json:"title"`
	PublishedAt       int64       `json:"published_at"` // epoch seconds
	Language          string      `json:"language"`
	Summary           string      `json:"summary,omitempty"`
	CredibilityWeight float64     `json:"credibility_weight"`
	SourceGroup       SourceGroup `json:"source_group"`
}

// Text returns the title and summary joined for NLP stages.
func (it RawItem) Text() string {
	return it.Title + " " + it.Summary
}
