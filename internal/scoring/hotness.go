package scoring

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

// DefaultWeights returns the calibrated hotness weights.
func DefaultWeights() config.HotnessConfig {
	return config.HotnessConfig{
		Recency:       0.80,
		Velocity:      0.75,
		Credibility:   0.70,
		Confirmations: 0.60,
		Breadth:       0.35,
		Relevance:     0.40,
		PriceMove:     0.55,
		VolumeRatio:   0.45,
		PriceAnomaly:  0.50,
	}
}

// featureOrder fixes the summation order so hotness is reproducible.
var featureOrder = []string{
	"recency", "velocity", "credibility", "confirmations", "breadth",
	"relevance", "price_move", "volume_ratio", "price_anomaly",
}

// weightMap keys the weights by canonical feature name.
func weightMap(w config.HotnessConfig) map[string]float64 {
	return map[string]float64{
		"recency":       w.Recency,
		"velocity":      w.Velocity,
		"credibility":   w.Credibility,
		"confirmations": w.Confirmations,
		"breadth":       w.Breadth,
		"relevance":     w.Relevance,
		"price_move":    w.PriceMove,
		"volume_ratio":  w.VolumeRatio,
		"price_anomaly": w.PriceAnomaly,
	}
}

// ValidateWeights rejects negative weights.
func ValidateWeights(w config.HotnessConfig) error {
	var errs []string
	weights := weightMap(w)
	for _, name := range featureOrder {
		if v := weights[name]; v < 0 {
			errs = append(errs, fmt.Sprintf("hotness.%s must be >= 0", name))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("scoring: invalid weights: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CombineLogistic computes sigmoid(Σ w·f / 2.5) rounded to three decimals.
func CombineLogistic(w config.HotnessConfig, f model.FeatureVector) float64 {
	feats := f.Map()
	weights := weightMap(w)
	var z float64
	for _, name := range featureOrder {
		z += weights[name] * feats[name]
	}
	return Round3(sigmoid(z / logisticSoftness))
}
