package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-identity/internal/config"
)

// ErrInvalidConfig is the root of every merge configuration error.
var ErrInvalidConfig = eris.New("invalid merge config")

// weightSumTolerance is how far the weights may drift from 1.0.
const weightSumTolerance = 0.01

// DefaultMergeConfig returns the production merge defaults.
func DefaultMergeConfig() config.MergeConfig {
	return config.DefaultMergeConfig()
}

// ValidateConfig checks that a MergeConfig is internally consistent. All
// violations are reported together.
func ValidateConfig(c config.MergeConfig) error {
	var errs []string

	weights := []struct {
		name  string
		value float64
	}{
		{"weights.phone", c.Weights.Phone},
		{"weights.email", c.Weights.Email},
		{"weights.address", c.Weights.Address},
		{"weights.name", c.Weights.Name},
	}
	for _, w := range weights {
		if !unit(w.value) {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1, got %.3f", w.name, w.value))
		}
	}

	// Weights must sum to 1 (allow tolerance for floating-point).
	if sum := c.Weights.Sum(); math.IsNaN(sum) || math.Abs(sum-1) > weightSumTolerance {
		errs = append(errs, fmt.Sprintf("weights should sum to 1.0, got %.3f", sum))
	}

	thresholds := []struct {
		name  string
		value float64
	}{
		{"min_match_score", c.MinMatchScore},
		{"auto_merge_threshold", c.AutoMergeThreshold},
		{"review_threshold", c.ReviewThreshold},
		{"fuzzy_name_threshold", c.FuzzyNameThreshold},
		{"address_fuzzy_threshold", c.AddressFuzzyThreshold},
	}
	for _, th := range thresholds {
		if !unit(th.value) {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1, got %.3f", th.name, th.value))
		}
	}

	if c.ReviewThreshold > c.AutoMergeThreshold {
		errs = append(errs, fmt.Sprintf("review_threshold (%.2f) must be <= auto_merge_threshold (%.2f)",
			c.ReviewThreshold, c.AutoMergeThreshold))
	}

	if c.MaxCandidates < 0 {
		errs = append(errs, "max_candidates must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidConfig, "match: %s", strings.Join(errs, "; "))
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
