package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"returns-service/config"
	"returns-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "returns.db")
	cfg.Report.Path = filepath.Join(dir, "returns_summary.xlsx")
	cfg.Seed.TimeoutSeconds = 5
	cfg.Extraction.Provider = "pattern"
	cfg.Extraction.TimeoutSeconds = 5
	return cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd(cfg)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestInitIsRepeatable(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "0 records")

	_, err = run(t, cfg, "init")
	require.NoError(t, err)
}

func TestAddListAndReport(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "add", "--product", "Wireless Charger", "--store", "Taipei Xinyi", "--cost", "10.00", "--approved", "Yes")
	require.NoError(t, err)
	assert.Contains(t, out, "order 1101")

	out, err = run(t, cfg, "extract", "add a return for order 7, product is 'Desk Lamp', store is 'Taichung', cost is 25.50")
	require.NoError(t, err)
	assert.Contains(t, out, "order 1102")

	out, err = run(t, cfg, "list", "--json")
	require.NoError(t, err)

	var records []models.ReturnRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Desk Lamp", records[1].Product)
	assert.Equal(t, models.ApprovedNo, records[1].ApprovedFlag)

	out, err = run(t, cfg, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "$35.50")

	f, err := excelize.OpenFile(cfg.Report.Path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "Findings"}, f.GetSheetList())
}

func TestAddRejectsInvalidReturn(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "add", "--product", "A", "--store", "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product must be at least 2 characters")
	assert.Contains(t, err.Error(), "cost must be greater than 0")
}

func TestReportOnEmptyDatabase(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "report")
	require.Error(t, err)

	_, statErr := os.Stat(cfg.Report.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSeedFromCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("order_id,product,category,return_reason,cost,approved_flag,store_name,date\n" +
			"1001,Bluetooth Speaker,Electronics,No sound,45.00,Yes,Taipei Xinyi,2024-01-15\n" +
			"1002,Desk Lamp,Home,Broken,12.00,No,Kaohsiung,2024-01-16\n"))
	}))
	defer srv.Close()

	cfg := testConfig(t)

	out, err := run(t, cfg, "seed", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 2 records")

	out, err = run(t, cfg, "seed", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 0 records")

	_, err = run(t, cfg, "seed")
	assert.Error(t, err)
}
