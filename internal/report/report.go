package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"returns-service/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names are part of the export contract
const (
	SummarySheet  = "Summary"
	FindingsSheet = "Findings"
)

// ErrEmptyDataset is returned when there are no records to report on.
// No file is written.
var ErrEmptyDataset = errors.New("no return records to report")

// Error is a report failure other than an empty dataset
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("report generation failed during %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RecordReader supplies the full record set
type RecordReader interface {
	ReadAll(ctx context.Context) ([]models.ReturnRecord, error)
}

// Summary holds the aggregate figures of the Summary sheet
type Summary struct {
	TotalReturns    int             `json:"total_returns"`
	DistinctStores  int             `json:"distinct_stores"`
	ApprovedReturns int             `json:"approved_returns"`
	TotalCost       decimal.Decimal `json:"-"`
	TotalCostText   string          `json:"total_cost"`
}

// Result describes a written report
type Result struct {
	Path        string    `json:"path"`
	Summary     Summary   `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generator writes the two-sheet returns workbook to a fixed path
type Generator struct {
	reader RecordReader
	path   string
	logger *zap.Logger
}

// NewGenerator creates a report generator writing to path
func NewGenerator(reader RecordReader, path string, logger *zap.Logger) *Generator {
	return &Generator{
		reader: reader,
		path:   path,
		logger: logger,
	}
}

// Path returns the output location
func (g *Generator) Path() string {
	return g.path
}

// Generate reads all records and overwrites the output file with a fresh
// workbook. On failure the previous file, if any, is left as it was.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	records, err := g.reader.ReadAll(ctx)
	if err != nil {
		return nil, &Error{Stage: "read", Err: err}
	}
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	summary := Summarize(records)

	f, err := buildWorkbook(summary, records)
	if err != nil {
		return nil, &Error{Stage: "render", Err: err}
	}
	defer f.Close()

	if err := writeAtomic(f, g.path); err != nil {
		return nil, &Error{Stage: "write", Err: err}
	}

	g.logger.Info("Report written",
		zap.String("path", g.path),
		zap.Int("records", summary.TotalReturns),
		zap.String("total_cost", summary.TotalCostText))

	return &Result{
		Path:        g.path,
		Summary:     summary,
		GeneratedAt: time.Now(),
	}, nil
}

// Summarize computes the aggregate figures for records
func Summarize(records []models.ReturnRecord) Summary {
	stores := make(map[string]struct{})
	total := decimal.Zero
	approved := 0

	for i := range records {
		stores[records[i].StoreName] = struct{}{}
		total = total.Add(records[i].Cost)
		if records[i].IsApproved() {
			approved++
		}
	}

	return Summary{
		TotalReturns:    len(records),
		DistinctStores:  len(stores),
		ApprovedReturns: approved,
		TotalCost:       total,
		TotalCostText:   FormatCurrency(total),
	}
}

// FormatCurrency renders d as dollars with thousands separators and two
// decimals, e.g. $1,234.50.
func FormatCurrency(d decimal.Decimal) string {
	d = d.Round(2)

	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	whole := d.Truncate(0)
	cents := d.Sub(whole).StringFixed(2) // "0.xx"

	return sign + "$" + humanize.Comma(whole.IntPart()) + cents[1:]
}

func buildWorkbook(summary Summary, records []models.ReturnRecord) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(FindingsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// #,##0.00
	costStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create cost style: %w", err)
	}

	if err := writeSummary(f, summary, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeFindings(f, records, headerStyle, costStyle); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

func writeSummary(f *excelize.File, summary Summary, headerStyle int) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total Returns", summary.TotalReturns},
		{"Distinct Stores", summary.DistinctStores},
		{"Approved Returns", summary.ApprovedReturns},
		{"Total Return Cost", summary.TotalCostText},
	}

	for i, row := range rows {
		if err := setRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "B", 22); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func writeFindings(f *excelize.File, records []models.ReturnRecord, headerStyle, costStyle int) error {
	header := make([]interface{}, len(models.Columns))
	for i, col := range models.Columns {
		header[i] = col
	}
	if err := setRow(f, FindingsSheet, 1, header); err != nil {
		return err
	}

	for i := range records {
		r := &records[i]
		row := []interface{}{
			r.ID,
			r.OrderID,
			r.Product,
			r.Category,
			r.ReturnReason,
			r.Cost.InexactFloat64(),
			r.ApprovedFlag,
			r.StoreName,
			r.Date,
		}
		if err := setRow(f, FindingsSheet, i+2, row); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(models.Columns))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetCellStyle(FindingsSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if len(records) > 0 {
		if err := f.SetCellStyle(FindingsSheet, "F2", fmt.Sprintf("F%d", len(records)+1), costStyle); err != nil {
			return fmt.Errorf("failed to set cost style: %w", err)
		}
	}
	if err := f.SetColWidth(FindingsSheet, "A", lastCol, 16); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if err := f.SetPanes(FindingsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// writeAtomic saves the workbook next to path and renames it into place
func writeAtomic(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}
