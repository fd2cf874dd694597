package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Stream is an open lead file: its header and a channel of data rows.
type Stream struct {
	Header []string
	Rows   <-chan []string
	Errs   <-chan error

	closer io.Closer
}

// Close releases the underlying file.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Wait drains Errs and returns the first error the reader reported. Call it
// after Rows is exhausted.
func (s *Stream) Wait() error {
	var first error
	for err := range s.Errs {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenFile opens a lead file, picking the reader by extension: .csv, .tsv,
// .txt (comma or tab separated) or .xlsx.
func OpenFile(ctx context.Context, path string) (*Stream, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		header, rows, errs, err := StreamXLSX(ctx, path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return &Stream{Header: header, Rows: rows, Errs: errs}, nil
	case ".csv", ".tsv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		opts := CSVOptions{LazyQuotes: true}
		if ext == ".tsv" {
			opts.Delimiter = '\t'
		}
		header, rows, errs, err := StreamCSV(ctx, f, opts)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "fetcher: %s", path)
		}
		return &Stream{Header: header, Rows: rows, Errs: errs, closer: f}, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", ext)
	}
}
