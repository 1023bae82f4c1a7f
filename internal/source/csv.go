// Package source opens import files (local paths or S3 objects) and yields
// their CSV rows keyed by header.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/normalizer"
)

// HeaderScanLines is how many leading lines are searched for the header row.
const HeaderScanLines = 10

// minRecognized is how many known column aliases make a line a header.
const minRecognized = 2

// ErrNoHeader is returned when a file has no non-blank line to use as a header.
var ErrNoHeader = errors.New("no header row found")

// Rows yields raw rows until io.EOF and releases the underlying file on Close.
type Rows interface {
	Next(ctx context.Context) (map[string]string, error)
	Close() error
}

// CSVRows reads a CSV stream whose header may be preceded by report banner
// lines. It is not safe for concurrent use.
type CSVRows struct {
	body    io.ReadCloser
	reader  *csv.Reader
	header  []string
	pending [][]string
	skipped int
}

// NewCSV scans the first HeaderScanLines lines of body for the header row:
// the first line with at least two column names known for importType. When no
// line qualifies, the first non-blank line is the header. Lines above the
// header are discarded.
func NewCSV(body io.ReadCloser, importType models.ImportType) (*CSVRows, error) {
	r := csv.NewReader(body)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var scanned [][]string
	for len(scanned) < HeaderScanLines {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			body.Close()
			return nil, fmt.Errorf("failed to read csv header: %w", err)
		}
		scanned = append(scanned, rec)
	}

	at := -1
	for i, rec := range scanned {
		if recognized(importType, rec) >= minRecognized {
			at = i
			break
		}
	}
	if at < 0 {
		for i, rec := range scanned {
			if !blank(rec) {
				at = i
				break
			}
		}
	}
	if at < 0 {
		body.Close()
		return nil, ErrNoHeader
	}

	return &CSVRows{
		body:    body,
		reader:  r,
		header:  headerNames(scanned[at]),
		pending: scanned[at+1:],
		skipped: at,
	}, nil
}

// Header returns the column names in file order, made unique.
func (c *CSVRows) Header() []string {
	return c.header
}

// Skipped returns how many banner lines preceded the header.
func (c *CSVRows) Skipped() int {
	return c.skipped
}

// Next returns the next row keyed by header. Missing trailing cells are empty
// strings and surplus cells are keyed column_N (1-based).
func (c *CSVRows) Next(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec []string
	if len(c.pending) > 0 {
		rec, c.pending = c.pending[0], c.pending[1:]
	} else {
		var err error
		rec, err = c.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
	}

	row := make(map[string]string, len(c.header))
	for i, name := range c.header {
		if i < len(rec) {
			row[name] = rec[i]
		} else {
			row[name] = ""
		}
	}
	for i := len(c.header); i < len(rec); i++ {
		row["column_"+strconv.Itoa(i+1)] = rec[i]
	}
	return row, nil
}

// Close releases the underlying stream.
func (c *CSVRows) Close() error {
	return c.body.Close()
}

func recognized(importType models.ImportType, rec []string) int {
	n := 0
	for _, cell := range rec {
		if normalizer.Recognizes(importType, cell) {
			n++
		}
	}
	return n
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// headerNames trims names, fills empty ones as column_N and suffixes repeats
// with _2, _3 and so on.
func headerNames(rec []string) []string {
	out := make([]string, len(rec))
	seen := make(map[string]int, len(rec))
	for i, cell := range rec {
		name := strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}
