package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-identity/internal/identity"
)

var (
	resolveFile   string
	resolveCommit bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one identity record against stored identities",
	Long:  "Reads an identity record as JSON and prints the resolution decision. With --commit the record is ingested.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rec, err := readRecord(resolveFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "resolve", tenant)
		if err != nil {
			return err
		}
		defer env.Close()

		var out any
		if resolveCommit {
			outcome, err := env.Pipeline.Ingest(ctx, rec)
			if err != nil {
				return eris.Wrap(err, "ingest record")
			}
			out = outcome
		} else {
			d, err := env.Pipeline.Resolve(ctx, rec)
			if err != nil {
				return eris.Wrap(err, "resolve record")
			}
			out = map[string]any{"kind": d.Kind(), "decision": d}
			zap.L().Info("resolved", zap.String("source", rec.SourceKey()), zap.String("kind", string(d.Kind())))
		}

		return writeJSON(cmd.OutOrStdout(), out)
	},
}

// readRecord decodes one identity record from path, or stdin when path is "-".
func readRecord(path string) (identity.IdentityRecord, error) {
	var rec identity.IdentityRecord

	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return rec, eris.Wrapf(err, "open record file %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return rec, eris.Wrap(err, "decode record")
	}
	if !rec.SourceType.Valid() {
		return rec, eris.Errorf("record has unknown source_type %q", rec.SourceType)
	}
	return rec, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFile, "file", "-", "path to a JSON identity record (- for stdin)")
	resolveCmd.Flags().BoolVar(&resolveCommit, "commit", false, "ingest the record instead of a dry run")
	rootCmd.AddCommand(resolveCmd)
}
