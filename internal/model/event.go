package model

// FeatureVector holds the normalized [0,1] signals that feed hotness.
// Absent upstream signals are 0, never missing.
type FeatureVector struct {
	Recency       float64 `json:"recency"`
	Velocity      float64 `json:"velocity"`
	Credibility   float64 `json:"credibility"`
	Confirmations float64 `json:"confirmations"`
	Breadth       float64 `json:"breadth"`
	Relevance     float64 `json:"relevance"`
	PriceMove     float64 `json:"price_move"`
	VolumeRatio   float64 `json:"volume_ratio"`
	PriceAnomaly  float64 `json:"price_anomaly"`
}

// Map returns the features keyed by their canonical names.
func (f FeatureVector) Map() map[string]float64 {
	return map[string]float64{
		"recency":       f.Recency,
		"velocity":      f.Velocity,
		"credibility":   f.Credibility,
		"confirmations": f.Confirmations,
		"breadth":       f.Breadth,
		"relevance":     f.Relevance,
		"price_move":    f.PriceMove,
		"volume_ratio":  f.VolumeRatio,
		"price_anomaly": f.PriceAnomaly,
	}
}

// ImpactMetrics are market reaction numbers for an instrument. A nil field
// means the data was unavailable.
type ImpactMetrics struct {
	PctMove      *float64 `json:"pct_move"`
	VolumeRatio  *float64 `json:"volume_ratio"`
	PriceAnomaly *float64 `json:"price_anomaly"`
}

// Empty reports whether no metric is available.
func (m ImpactMetrics) Empty() bool {
	return m.PctMove == nil && m.VolumeRatio == nil && m.PriceAnomaly == nil
}

// SourceRef is a link to one constituent publication.
type SourceRef struct {
	URL        string `json:"url"`
	SourceName string `json:"source"`
}

// TimelineEntry is one constituent item on the event timeline.
type TimelineEntry struct {
	Time   int64  `json:"t"`
	Source string `json:"source"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// Event is the pipeline's output unit. It is built once from a complete
// group of items and never mutated afterwards.
type Event struct {
	DedupKey      string          `json:"dedup_key"`
	Headline      string          `json:"headline"`
	Hotness       float64         `json:"hotness"`
	Validity      float64         `json:"validity"`
	WhyNow        string          `json:"why_now"`
	InstrumentIDs []string        `json:"instrument_ids"`
	Sources       []SourceRef     `json:"sources"`
	Timeline      []TimelineEntry `json:"timeline"`
	Items         []RawItem       `json:"items"`
	Features      FeatureVector   `json:"features"`
	Impact        ImpactMetrics   `json:"impact"`
	WindowStart   int64           `json:"window_start"`
	WindowEnd     int64           `json:"window_end"`
}
