package pipeline

import (
	"sort"

	"github.com/sells-group/radar-cli/internal/model"
)

// Selection controls how the final list is cut.
type Selection struct {
	Need      int     // base result size
	Lookahead int     // candidates past Need considered for overshoot
	Threshold float64 // minimum hotness for an overshoot event
}

// Select ranks events by hotness then validity, keeps the top Need, and
// appends any of the next Lookahead events whose hotness reaches Threshold.
// The input is not modified.
func Select(events []model.Event, sel Selection) []model.Event {
	ranked := make([]model.Event, len(events))
	copy(ranked, events)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Hotness != ranked[j].Hotness {
			return ranked[i].Hotness > ranked[j].Hotness
		}
		return ranked[i].Validity > ranked[j].Validity
	})

	need := max(sel.Need, 0)
	if len(ranked) <= need {
		return ranked
	}

	out := ranked[:need:need]
	end := min(len(ranked), need+max(sel.Lookahead, 0))
	for _, ev := range ranked[need:end] {
		if ev.Hotness >= sel.Threshold {
			out = append(out, ev)
		}
	}
	return out
}
