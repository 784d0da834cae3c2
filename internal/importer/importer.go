package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/resolver"
)

// Options configures a cache-warming import.
type Options struct {
	// Column is the zero-based column holding profile URLs. Default 0.
	Column int
	// SkipRows is the number of header rows to skip. Default 0.
	SkipRows int
	// BatchSize is how many references are resolved per provider call.
	// Default 25.
	BatchSize int
	// SheetName selects an XLSX sheet by name; the first sheet otherwise.
	SheetName string
}

// Summary reports the outcome of one import.
type Summary struct {
	Rows    int
	Valid   int
	Cached  int
	Fetched int
	Dropped int
}

// Importer warms the profile cache from spreadsheet exports of profile URLs.
type Importer struct {
	resolver *resolver.Resolver
}

func New(res *resolver.Resolver) *Importer {
	return &Importer{resolver: res}
}

// Run reads profile references from a CSV or XLSX file and resolves them in
// batches, so every fetched profile lands in the cache. The file type is
// chosen by extension.
func (im *Importer) Run(ctx context.Context, path string, opts Options) (*Summary, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path, opts.SheetName)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	summary := &Summary{Rows: len(rows)}

	var refs []string
	for i, row := range rows {
		if i < opts.SkipRows {
			continue
		}
		if opts.Column >= len(row) {
			continue
		}
		ref := strings.TrimSpace(row[opts.Column])
		if ref == "" {
			continue
		}
		if _, err := model.NormalizeIdentifier(ref); err != nil {
			summary.Dropped++
			continue
		}
		refs = append(refs, ref)
	}
	summary.Valid = len(refs)

	for start := 0; start < len(refs); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "importer: cancelled")
		}

		end := start + opts.BatchSize
		if end > len(refs) {
			end = len(refs)
		}

		result, err := im.resolver.Resolve(ctx, refs[start:end])
		if err != nil {
			return summary, eris.Wrapf(err, "importer: resolve batch at row %d", start)
		}
		summary.Cached += result.Cached
		summary.Fetched += result.Fetched
		summary.Dropped += result.Dropped

		zap.L().Info("importer: batch resolved",
			zap.Int("batch_start", start),
			zap.Int("cached", result.Cached),
			zap.Int("fetched", result.Fetched),
		)
	}

	return summary, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: read csv")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("importer: sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("importer: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
