package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig  `yaml:"store" mapstructure:"store"`
	Log         LogConfig    `yaml:"log" mapstructure:"log"`
	Server      ServerConfig `yaml:"server" mapstructure:"server"`
	Merge       MergeConfig  `yaml:"merge" mapstructure:"merge"`
	Batch       BatchConfig  `yaml:"batch" mapstructure:"batch"`
	TenantsFile string       `yaml:"tenants_file" mapstructure:"tenants_file"`

	// Tenants holds per-tenant merge overrides read from TenantsFile.
	Tenants map[string]MergeOverride `yaml:"-" mapstructure:"-"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MergeConfig is the tunable surface of the matcher and resolution policy.
type MergeConfig struct {
	MinMatchScore         float64      `yaml:"min_match_score" mapstructure:"min_match_score"`
	AutoMergeThreshold    float64      `yaml:"auto_merge_threshold" mapstructure:"auto_merge_threshold"`
	ReviewThreshold       float64      `yaml:"review_threshold" mapstructure:"review_threshold"`
	Weights               MatchWeights `yaml:"weights" mapstructure:"weights"`
	FuzzyNameThreshold    float64      `yaml:"fuzzy_name_threshold" mapstructure:"fuzzy_name_threshold"`
	PhoneExactMatch       bool         `yaml:"phone_exact_match" mapstructure:"phone_exact_match"`
	EmailExactMatch       bool         `yaml:"email_exact_match" mapstructure:"email_exact_match"`
	AddressFuzzyThreshold float64      `yaml:"address_fuzzy_threshold" mapstructure:"address_fuzzy_threshold"`
	MaxCandidates         int          `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// MatchWeights are the per-field weights of the overall match score.
type MatchWeights struct {
	Phone   float64 `yaml:"phone" mapstructure:"phone"`
	Email   float64 `yaml:"email" mapstructure:"email"`
	Address float64 `yaml:"address" mapstructure:"address"`
	Name    float64 `yaml:"name" mapstructure:"name"`
}

// Sum returns the total of all weights.
func (w MatchWeights) Sum() float64 {
	return w.Phone + w.Email + w.Address + w.Name
}

// DefaultMergeConfig returns the production merge defaults. Phone plus name
// agreement reaches the auto-merge threshold; either alone does not.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		MinMatchScore:      0.50,
		AutoMergeThreshold: 0.85,
		ReviewThreshold:    0.65,
		Weights: MatchWeights{
			Phone:   0.50,
			Email:   0.10,
			Address: 0.05,
			Name:    0.35,
		},
		FuzzyNameThreshold:    0.85,
		PhoneExactMatch:       true,
		EmailExactMatch:       true,
		AddressFuzzyThreshold: 0.80,
		MaxCandidates:         50,
	}
}

// BatchConfig configures bulk imports.
type BatchConfig struct {
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	ConflictRetries int `yaml:"conflict_retries" mapstructure:"conflict_retries"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	merge := DefaultMergeConfig()
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.conflict_retries", 3)
	v.SetDefault("tenants_file", "")
	v.SetDefault("merge.min_match_score", merge.MinMatchScore)
	v.SetDefault("merge.auto_merge_threshold", merge.AutoMergeThreshold)
	v.SetDefault("merge.review_threshold", merge.ReviewThreshold)
	v.SetDefault("merge.weights.phone", merge.Weights.Phone)
	v.SetDefault("merge.weights.email", merge.Weights.Email)
	v.SetDefault("merge.weights.address", merge.Weights.Address)
	v.SetDefault("merge.weights.name", merge.Weights.Name)
	v.SetDefault("merge.fuzzy_name_threshold", merge.FuzzyNameThreshold)
	v.SetDefault("merge.phone_exact_match", merge.PhoneExactMatch)
	v.SetDefault("merge.email_exact_match", merge.EmailExactMatch)
	v.SetDefault("merge.address_fuzzy_threshold", merge.AddressFuzzyThreshold)
	v.SetDefault("merge.max_candidates", merge.MaxCandidates)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.TenantsFile != "" {
		tenants, err := LoadTenantOverrides(cfg.TenantsFile)
		if err != nil {
			return nil, err
		}
		cfg.Tenants = tenants
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
