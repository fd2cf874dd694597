package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/match"
	"github.com/sells-group/lead-identity/internal/pipeline"
	"github.com/sells-group/lead-identity/internal/store"
)

// appEnv holds the store and services shared by the resolve, import and
// serve commands.
type appEnv struct {
	Store    store.Store
	Dedup    *dedup.Service
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store and builds
// the pipeline with the merge settings of tenant. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode, tenant string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	if err := validateMergeConfigs(); err != nil {
		return nil, err
	}
	if tenant != "" {
		if _, ok := cfg.Tenants[tenant]; !ok {
			zap.L().Warn("unknown tenant, using base merge config", zap.String("tenant", tenant))
		}
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	svc, err := dedup.New(cfg.MergeConfigFor(tenant), st, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(st, svc, pipeline.Options{ConflictRetries: cfg.Batch.ConflictRetries})

	zap.L().Debug("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.String("tenant", tenant),
	)
	return &appEnv{Store: st, Dedup: svc, Pipeline: p}, nil
}

// validateMergeConfigs checks the base merge config and every tenant's
// effective config.
func validateMergeConfigs() error {
	if err := match.ValidateConfig(cfg.Merge); err != nil {
		return eris.Wrap(err, "merge config")
	}
	for name := range cfg.Tenants {
		if err := match.ValidateConfig(cfg.MergeConfigFor(name)); err != nil {
			return eris.Wrapf(err, "merge config for tenant %q", name)
		}
	}
	return nil
}
