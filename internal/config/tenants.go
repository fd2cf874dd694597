package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MergeOverride is a partial MergeConfig. Nil fields inherit the base value.
type MergeOverride struct {
	MinMatchScore         *float64         `yaml:"min_match_score"`
	AutoMergeThreshold    *float64         `yaml:"auto_merge_threshold"`
	ReviewThreshold       *float64         `yaml:"review_threshold"`
	Weights               *WeightsOverride `yaml:"weights"`
	FuzzyNameThreshold    *float64         `yaml:"fuzzy_name_threshold"`
	PhoneExactMatch       *bool            `yaml:"phone_exact_match"`
	EmailExactMatch       *bool            `yaml:"email_exact_match"`
	AddressFuzzyThreshold *float64         `yaml:"address_fuzzy_threshold"`
	MaxCandidates         *int             `yaml:"max_candidates"`
}

// WeightsOverride is a partial MatchWeights.
type WeightsOverride struct {
	Phone   *float64 `yaml:"phone"`
	Email   *float64 `yaml:"email"`
	Address *float64 `yaml:"address"`
	Name    *float64 `yaml:"name"`
}

type tenantsFile struct {
	Tenants map[string]MergeOverride `yaml:"tenants"`
}

// LoadTenantOverrides reads per-tenant merge overrides from a YAML file of
// the form:
//
//	tenants:
//	  acme:
//	    auto_merge_threshold: 0.9
//	    weights:
//	      phone: 0.45
//	      name: 0.40
func LoadTenantOverrides(path string) (map[string]MergeOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read tenants file %s", path)
	}

	var f tenantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse tenants file %s", path)
	}
	if f.Tenants == nil {
		f.Tenants = make(map[string]MergeOverride)
	}
	return f.Tenants, nil
}

// Apply returns base with every non-nil override field applied.
func (o MergeOverride) Apply(base MergeConfig) MergeConfig {
	out := base
	setFloat(&out.MinMatchScore, o.MinMatchScore)
	setFloat(&out.AutoMergeThreshold, o.AutoMergeThreshold)
	setFloat(&out.ReviewThreshold, o.ReviewThreshold)
	setFloat(&out.FuzzyNameThreshold, o.FuzzyNameThreshold)
	setFloat(&out.AddressFuzzyThreshold, o.AddressFuzzyThreshold)
	if o.PhoneExactMatch != nil {
		out.PhoneExactMatch = *o.PhoneExactMatch
	}
	if o.EmailExactMatch != nil {
		out.EmailExactMatch = *o.EmailExactMatch
	}
	if o.MaxCandidates != nil {
		out.MaxCandidates = *o.MaxCandidates
	}
	if o.Weights != nil {
		setFloat(&out.Weights.Phone, o.Weights.Phone)
		setFloat(&out.Weights.Email, o.Weights.Email)
		setFloat(&out.Weights.Address, o.Weights.Address)
		setFloat(&out.Weights.Name, o.Weights.Name)
	}
	return out
}

// MergeConfigFor returns the merge config for tenant. Unknown or empty
// tenants get the base config.
func (c *Config) MergeConfigFor(tenant string) MergeConfig {
	if o, ok := c.Tenants[tenant]; ok && tenant != "" {
		return o.Apply(c.Merge)
	}
	return c.Merge
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
