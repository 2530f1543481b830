// Package scoring maps raw event signals to normalized [0,1] features and
// combines them into a calibrated hotness score.
package scoring

import (
	"math"
	"sort"

	"github.com/sells-group/radar-cli/internal/model"
)

const (
	// DefaultHalfLifeHours is the recency half-life.
	DefaultHalfLifeHours = 6.0

	// logisticSoftness divides the weighted sum before the sigmoid so that
	// realistic feature mixes land mid-range.
	logisticSoftness = 2.5

	velocityBuckets = 3
	velocityNorm    = 6.0

	credibilityTop = 3
)

// Recency decays exponentially with the age of the latest item:
// 1.0 at age 0, 0.5 after one half-life. Future timestamps count as age 0.
func Recency(latest, now int64, halfLifeHours float64) float64 {
	if halfLifeHours <= 0 {
		halfLifeHours = DefaultHalfLifeHours
	}
	ageHours := math.Max(0, float64(now-latest)/3600.0)
	return math.Exp(-math.Ln2 * ageHours / halfLifeHours)
}

// Velocity counts items in the three most recent one-hour buckets and
// normalizes by 6.
func Velocity(timestamps []int64, now int64) float64 {
	var recent int
	for _, t := range timestamps {
		if t > now {
			continue
		}
		if bucket := (now - t) / 3600; bucket < velocityBuckets {
			recent++
		}
	}
	return clamp01(float64(recent) / velocityNorm)
}

// Credibility sums the top three source weights over a fixed divisor of
// three, so groups with fewer than three sources score lower.
func Credibility(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	top := append([]float64(nil), weights...)
	sort.Sort(sort.Reverse(sort.Float64Slice(top)))
	if len(top) > credibilityTop {
		top = top[:credibilityTop]
	}
	var sum float64
	for _, w := range top {
		sum += w
	}
	return clamp01(sum / credibilityTop)
}

// Confirmations rewards diversity of source groups, not raw count.
func Confirmations(groups []model.SourceGroup) float64 {
	seen := make(map[model.SourceGroup]struct{}, len(groups))
	for _, g := range groups {
		seen[g] = struct{}{}
	}
	return math.Min(1, float64(len(seen))/3.0)
}

// Breadth rewards events touching several instruments.
func Breadth(instrumentIDs []string) float64 {
	seen := make(map[string]struct{}, len(instrumentIDs))
	for _, id := range instrumentIDs {
		seen[id] = struct{}{}
	}
	return math.Min(1, float64(len(seen))/4.0)
}

// NormClip linearly rescales x from [lo, hi] into [0, 1]. A missing value
// maps to 0.
func NormClip(x *float64, lo, hi float64) float64 {
	if x == nil || hi <= lo || math.IsNaN(*x) {
		return 0
	}
	return clamp01((*x - lo) / (hi - lo))
}

// Round3 rounds to three decimals.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
