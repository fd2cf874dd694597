package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-identity/internal/fetcher"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/pipeline"
)

// seedBatchSize is the number of records written per SeedRecords call.
const seedBatchSize = 1000

var (
	importFilePath    string
	importSourceType  string
	importConcurrency int
	importSeed        bool
	importRetryFailed bool
	importRetryLimit  int
)

// importOptions configures one file import.
type importOptions struct {
	Path        string
	SourceType  identity.SourceType
	Concurrency int
	Seed        bool
}

// importStats counts what an import did with each row.
type importStats struct {
	Rows       int64 `json:"rows"`
	Created    int64 `json:"created"`
	Merged     int64 `json:"merged"`
	Review     int64 `json:"review"`
	Duplicates int64 `json:"duplicates"`
	Seeded     int64 `json:"seeded"`
	Deferred   int64 `json:"deferred"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a CSV or XLSX file",
	Long:  "Maps each row of a lead file to an identity record and ingests it. Rows that fail are kept in the dead-letter queue; --retry-failed re-ingests them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importConcurrency > 0 {
			cfg.Batch.Concurrency = importConcurrency
		}

		env, err := initEnv(ctx, "import", tenant)
		if err != nil {
			return err
		}
		defer env.Close()

		if importRetryFailed {
			stats, err := env.Pipeline.RetryFailed(ctx, importRetryLimit)
			if err != nil {
				return eris.Wrap(err, "retry failed ingests")
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		}

		if importFilePath == "" {
			return eris.New("--file is required unless --retry-failed is set")
		}
		st := identity.SourceType(importSourceType)
		if !st.Valid() {
			return eris.Errorf("unknown source type %q", importSourceType)
		}

		stats, err := importFile(ctx, env, importOptions{
			Path:        importFilePath,
			SourceType:  st,
			Concurrency: cfg.Batch.Concurrency,
			Seed:        importSeed,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

// importFile streams the rows of a lead file through the pipeline. With
// opts.Seed the rows are stored as-is without resolution.
func importFile(ctx context.Context, env *appEnv, opts importOptions) (importStats, error) {
	var stats importStats

	s, err := fetcher.OpenFile(ctx, opts.Path)
	if err != nil {
		return stats, eris.Wrap(err, "open lead file")
	}
	defer s.Close() //nolint:errcheck

	cm, err := fetcher.NewColumnMap(s.Header)
	if err != nil {
		return stats, eris.Wrapf(err, "map columns of %s", opts.Path)
	}

	src := fetcher.RowSource{Type: opts.SourceType, File: opts.Path}
	start := time.Now()
	log := zap.L().With(zap.String("file", opts.Path), zap.String("source_type", string(opts.SourceType)))
	log.Info("import started", zap.Int("columns", len(cm)), zap.Bool("seed", opts.Seed))

	if opts.Seed {
		stats, err = seedRows(ctx, env, s, cm, src)
	} else {
		stats, err = ingestRows(ctx, env.Pipeline, s, cm, src, opts.Concurrency)
	}
	if err != nil {
		return stats, err
	}
	if err := s.Wait(); err != nil {
		return stats, eris.Wrapf(err, "read %s", opts.Path)
	}

	log.Info("import complete",
		zap.Int64("rows", stats.Rows),
		zap.Int64("created", stats.Created),
		zap.Int64("merged", stats.Merged),
		zap.Int64("review", stats.Review),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("seeded", stats.Seeded),
		zap.Int64("deferred", stats.Deferred),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

func ingestRows(ctx context.Context, p *pipeline.Pipeline, s *fetcher.Stream, cm fetcher.ColumnMap, src fetcher.RowSource, concurrency int) (importStats, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var rows, created, merged, review, dups, deferred atomic.Int64

	rowNum := 1
	for row := range s.Rows {
		rowNum++
		rows.Add(1)
		rec := fetcher.RowToRecord(row, cm, src, rowNum)

		g.Go(func() error {
			out, err := p.Ingest(gctx, rec)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if dErr := p.Defer(gctx, rec, err); dErr != nil {
					return dErr
				}
				deferred.Add(1)
				return nil // keep going on individual failures
			}

			switch out.Action {
			case pipeline.ActionCreated:
				created.Add(1)
			case pipeline.ActionMerged:
				merged.Add(1)
			case pipeline.ActionReview:
				review.Add(1)
			case pipeline.ActionDuplicate:
				dups.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	stats := importStats{
		Rows:       rows.Load(),
		Created:    created.Load(),
		Merged:     merged.Load(),
		Review:     review.Load(),
		Duplicates: dups.Load(),
		Deferred:   deferred.Load(),
	}
	if err != nil {
		return stats, eris.Wrap(err, "import rows")
	}
	return stats, nil
}

// seedRows bulk-loads rows as unresolved records. Seeded records get a lead
// card the first time another record merges into them.
func seedRows(ctx context.Context, env *appEnv, s *fetcher.Stream, cm fetcher.ColumnMap, src fetcher.RowSource) (importStats, error) {
	var stats importStats
	now := time.Now().UTC()
	batch := make([]identity.IdentityRecord, 0, seedBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := env.Store.SeedRecords(ctx, batch)
		if err != nil {
			return eris.Wrap(err, "seed records")
		}
		stats.Seeded += n
		stats.Duplicates += int64(len(batch)) - n
		batch = batch[:0]
		return nil
	}

	rowNum := 1
	for row := range s.Rows {
		rowNum++
		stats.Rows++
		rec := fetcher.RowToRecord(row, cm, src, rowNum)
		rec.ID = uuid.NewString()
		rec.Version = 1
		rec.CreatedAt = now
		rec.UpdatedAt = now
		batch = append(batch, rec)

		if len(batch) >= seedBatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	return stats, flush()
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to a CSV, TSV or XLSX lead file")
	importCmd.Flags().StringVar(&importSourceType, "source-type", string(identity.SourceImport), "source type recorded on imported rows")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 0, "concurrent ingests (default from config)")
	importCmd.Flags().BoolVar(&importSeed, "seed", false, "store rows without resolving them")
	importCmd.Flags().BoolVar(&importRetryFailed, "retry-failed", false, "re-ingest rows held in the dead-letter queue")
	importCmd.Flags().IntVar(&importRetryLimit, "retry-limit", 100, "max dead-letter entries per retry pass")
	rootCmd.AddCommand(importCmd)
}
