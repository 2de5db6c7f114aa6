package seed

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"returns-service/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrDisabled is returned when no seed URL is configured
var ErrDisabled = errors.New("seed source not configured")

// CSVSource fetches reference return rows from a remote CSV export.
// Column names must match the returns table minus the surrogate id.
type CSVSource struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewCSVSource creates a CSV source for url. An empty url yields a source
// whose Fetch always returns ErrDisabled.
func NewCSVSource(url string, timeout time.Duration, logger *zap.Logger) *CSVSource {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/csv")

	return &CSVSource{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Fetch downloads and parses the CSV. Not retried.
func (s *CSVSource) Fetch(ctx context.Context) ([]models.ReturnRecord, error) {
	if s.url == "" {
		return nil, ErrDisabled
	}

	s.logger.Info("Fetching seed CSV", zap.String("url", s.url))

	resp, err := s.httpClient.R().
		SetContext(ctx).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch seed csv: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("seed csv returned status %d", resp.StatusCode())
	}

	records, err := Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Parsed seed CSV", zap.Int("rows", len(records)))
	return records, nil
}

// Parse reads return rows from CSV with a header line. Columns are matched
// by name and may appear in any order.
func Parse(r io.Reader) ([]models.ReturnRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("seed csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range models.Columns {
		if col == "id" {
			continue
		}
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("seed csv missing column %q", col)
		}
	}

	var records []models.ReturnRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("seed csv line %d: %w", line, err)
		}

		get := func(col string) string {
			return strings.TrimSpace(row[index[col]])
		}

		orderID, err := strconv.ParseInt(get("order_id"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("seed csv line %d: invalid order_id %q", line, get("order_id"))
		}

		cost := decimal.Zero
		if raw := get("cost"); raw != "" {
			cost, err = decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("seed csv line %d: invalid cost %q", line, raw)
			}
		}

		records = append(records, models.ReturnRecord{
			OrderID:      orderID,
			Product:      get("product"),
			Category:     get("category"),
			ReturnReason: get("return_reason"),
			Cost:         cost,
			ApprovedFlag: get("approved_flag"),
			StoreName:    get("store_name"),
			Date:         get("date"),
		})
	}

	return records, nil
}
