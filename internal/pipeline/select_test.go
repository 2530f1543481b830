package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/radar-cli/internal/model"
)

func hotEvents(hotness ...float64) []model.Event {
	out := make([]model.Event, len(hotness))
	for i, h := range hotness {
		out[i] = model.Event{Headline: string(rune('a' + i)), Hotness: h}
	}
	return out
}

func hotnessOf(events []model.Event) []float64 {
	out := make([]float64, len(events))
	for i, ev := range events {
		out[i] = ev.Hotness
	}
	return out
}

func TestSelect_BaseAndOvershoot(t *testing.T) {
	t.Parallel()

	in := hotEvents(0.9, 0.5, 0.7, 0.65, 0.61, 0.8)
	got := Select(in, Selection{Need: 2, Lookahead: 10, Threshold: 0.62})
	assert.Equal(t, []float64{0.9, 0.8, 0.7, 0.65}, hotnessOf(got))
	assert.Equal(t, 0.9, in[0].Hotness)
	assert.Equal(t, 0.5, in[1].Hotness, "input must not be reordered")
}

func TestSelect_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	got := Select(hotEvents(0.9, 0.62), Selection{Need: 1, Lookahead: 10, Threshold: 0.62})
	assert.Equal(t, []float64{0.9, 0.62}, hotnessOf(got))
}

func TestSelect_LookaheadBound(t *testing.T) {
	t.Parallel()

	hot := make([]float64, 15)
	for i := range hot {
		hot[i] = 0.7
	}
	got := Select(hotEvents(hot...), Selection{Need: 1, Lookahead: 10, Threshold: 0.62})
	assert.Len(t, got, 11)
}

func TestSelect_TieBreaks(t *testing.T) {
	t.Parallel()

	in := []model.Event{
		{Headline: "low-validity", Hotness: 0.7, Validity: 0.4},
		{Headline: "high-validity", Hotness: 0.7, Validity: 0.9},
		{Headline: "first-tie", Hotness: 0.6, Validity: 0.5},
		{Headline: "second-tie", Hotness: 0.6, Validity: 0.5},
	}
	got := Select(in, Selection{Need: 4, Lookahead: 10, Threshold: 0.62})
	assert.Equal(t, []string{"high-validity", "low-validity", "first-tie", "second-tie"}, headlines(got))
}

func TestSelect_FewerThanNeed(t *testing.T) {
	t.Parallel()

	got := Select(hotEvents(0.3, 0.4), Selection{Need: 5, Lookahead: 10, Threshold: 0.62})
	assert.Equal(t, []float64{0.4, 0.3}, hotnessOf(got))

	assert.Empty(t, Select(nil, Selection{Need: 5}))
}

func TestSelect_ZeroLookahead(t *testing.T) {
	t.Parallel()

	got := Select(hotEvents(0.9, 0.8, 0.95), Selection{Need: 1, Lookahead: 0, Threshold: 0.62})
	assert.Equal(t, []float64{0.95}, hotnessOf(got))
}
