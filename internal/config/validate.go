package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Merge thresholds
// and weights are validated separately by the matcher.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "resolve", "import", "serve", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite (got %q)", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if c.Batch.ConflictRetries < 0 || c.Batch.ConflictRetries > 10 {
		errs = append(errs, fmt.Sprintf("batch.conflict_retries must be between 0 and 10 (got %d)", c.Batch.ConflictRetries))
	}

	switch mode {
	case "import":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
			errs = append(errs, fmt.Sprintf("batch.concurrency must be between 1 and 50 (got %d)", c.Batch.Concurrency))
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
