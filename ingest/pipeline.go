package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const defaultMaxRows = 10000

// Status of a bulk ingestion run.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusAborted    Status = "Aborted"
)

type RowFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type Summary struct {
	Status        Status       `json:"status"`
	RowsAttempted int          `json:"rows_attempted"`
	RowsSucceeded int          `json:"rows_succeeded"`
	RowsFailed    int          `json:"rows_failed"`
	Failures      []RowFailure `json:"failures"`
}

// Pipeline drives row ingestion over a whole file. Each row runs in its own
// transaction: a bad row is recorded and skipped, never aborting the rest of
// the file. Only file-level problems (unreadable bytes, empty file, header
// missing required columns) abort the run.
type Pipeline struct {
	db      *gorm.DB
	logger  *logrus.Logger
	maxRows int
}

// NewPipeline builds a pipeline. maxRows <= 0 falls back to MAX_INGEST_ROWS
// (default 10000); the ceiling counts attempted rows, success or failure, and
// bounds worst-case processing time on oversized files.
func NewPipeline(db *gorm.DB, logger *logrus.Logger, maxRows int) *Pipeline {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
		if v := strings.TrimSpace(os.Getenv("MAX_INGEST_ROWS")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				maxRows = n
			}
		}
	}
	return &Pipeline{db: db, logger: logger, maxRows: maxRows}
}

// ProcessCSV ingests a comma-delimited, header-first file.
func (p *Pipeline) ProcessCSV(ctx context.Context, r io.Reader, platformOverride string) (*Summary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows fail per-row, not per-file

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("file is empty")
		}
		return nil, fmt.Errorf("could not parse csv header: %w", err)
	}

	columns, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not parse csv: %w", err)
		}
		records = append(records, record)
		if len(records) > p.maxRows {
			// Enough to hit the ceiling; stop reading.
			break
		}
	}

	return p.run(ctx, columns, records, platformOverride), nil
}

// ProcessXLSX ingests the first sheet of a spreadsheet using the same row
// schema as the CSV path.
func (p *Pipeline) ProcessXLSX(ctx context.Context, r io.Reader, platformOverride string) (*Summary, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, errors.New("file is empty")
	}

	columns, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}
	return p.run(ctx, columns, rows[1:], platformOverride), nil
}

// mapHeader resolves column positions against the canonical schema. Matching
// strips spaces and ignores case so "Customer ID" and "CustomerID" are the
// same column. A required column with no match aborts the file.
func mapHeader(header []string) (map[int]string, error) {
	canonical := make(map[string]string, len(requiredColumns)+len(optionalColumns))
	for _, name := range requiredColumns {
		canonical[normalizeHeaderCell(name)] = name
	}
	for _, name := range optionalColumns {
		canonical[normalizeHeaderCell(name)] = name
	}

	columns := make(map[int]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, cell := range header {
		if name, ok := canonical[normalizeHeaderCell(cell)]; ok {
			columns[i] = name
			seen[name] = true
		}
	}

	var missing []string
	for _, name := range requiredColumns {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header is missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func normalizeHeaderCell(cell string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(cell), " ", ""))
}

func (p *Pipeline) run(ctx context.Context, columns map[int]string, records [][]string, platformOverride string) *Summary {
	summary := &Summary{Status: StatusProcessing, Failures: []RowFailure{}}

	for i, record := range records {
		if summary.RowsAttempted >= p.maxRows {
			p.logger.WithFields(logrus.Fields{
				"module":   "ingest",
				"max_rows": p.maxRows,
			}).Warn("row ceiling reached; remaining rows were not processed")
			break
		}
		summary.RowsAttempted++

		// 1-based, counting the header line, to match what a user sees in a
		// spreadsheet editor.
		rowNumber := i + 2

		if err := p.ingestRecord(ctx, columns, record, platformOverride); err != nil {
			summary.RowsFailed++
			summary.Failures = append(summary.Failures, RowFailure{Row: rowNumber, Reason: err.Error()})
			p.logger.WithFields(logrus.Fields{
				"module": "ingest",
				"row":    rowNumber,
			}).Warn("row skipped: " + err.Error())
			continue
		}
		summary.RowsSucceeded++
	}

	summary.Status = StatusCompleted
	return summary
}

func (p *Pipeline) ingestRecord(ctx context.Context, columns map[int]string, record []string, platformOverride string) error {
	fields := make(map[string]string, len(columns))
	for idx, name := range columns {
		// Spreadsheet readers trim trailing empty cells, so a short record
		// just means blank values there; parseRow decides what is required.
		if idx >= len(record) {
			fields[name] = ""
			continue
		}
		fields[name] = record[idx]
	}

	row, err := parseRow(fields, platformOverride)
	if err != nil {
		return err
	}
	return ingestRow(ctx, p.db, row)
}
