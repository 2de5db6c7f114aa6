package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"returns-service/internal/extractor"
	"returns-service/internal/report"
	"returns-service/internal/service"
	"returns-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubExtractor struct {
	fields *extractor.Fields
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, text string) (*extractor.Fields, error) {
	return s.fields, s.err
}

type testServer struct {
	router *gin.Engine
	store  *store.Store
}

func newTestServer(t *testing.T, ex service.Extractor) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	st, err := store.NewStore(filepath.Join(dir, "returns.db"), store.WithClock(func() time.Time {
		return time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Initialize(context.Background()))

	ingestion := service.NewIngestionService(st, nil, nil)
	reports := service.NewReportService(report.NewGenerator(st, filepath.Join(dir, "returns_summary.xlsx"), zap.NewNop()), nil)

	router := gin.New()
	NewHandler(ingestion, reports, ex, st).SetupRoutes(router)

	return &testServer{router: router, store: st}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, extractor.NewPatternExtractor())

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/ready", nil).Code)

	require.NoError(t, srv.store.Close())
	assert.Equal(t, http.StatusServiceUnavailable, srv.do(t, http.MethodGet, "/ready", nil).Code)
}

func TestSubmitReturn(t *testing.T) {
	srv := newTestServer(t, extractor.NewPatternExtractor())

	w := srv.do(t, http.MethodPost, "/api/v1/returns", map[string]any{
		"product":       "Wireless Charger",
		"store_name":    "Taipei Xinyi",
		"return_reason": "Overheats",
		"cost":          12.5,
		"approved_flag": "Yes",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, float64(1101), body["order_id"])
	records := body["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "Unknown", records[0].(map[string]any)["category"])
}

func TestSubmitReturnValidation(t *testing.T) {
	srv := newTestServer(t, extractor.NewPatternExtractor())

	w := srv.do(t, http.MethodPost, "/api/v1/returns", map[string]any{
		"product":       "A",
		"store_name":    "B",
		"return_reason": "",
		"cost":          0,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decode(t, w)
	assert.Len(t, body["violations"], 3)

	list := decode(t, srv.do(t, http.MethodGet, "/api/v1/returns", nil))
	assert.Equal(t, float64(0), list["count"])
}

func TestSubmitReturnBadBody(t *testing.T) {
	srv := newTestServer(t, extractor.NewPatternExtractor())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractReturn(t *testing.T) {
	srv := newTestServer(t, extractor.NewPatternExtractor())

	w := srv.do(t, http.MethodPost, "/api/v1/returns/extract", ExtractRequest{
		Text: "add a return for order 9, product is 'Desk Lamp', store is 'Taichung'",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	records := decode(t, w)["records"].([]any)
	require.Len(t, records, 1)
	rec := records[0].(map[string]any)
	assert.Equal(t, float64(1101), rec["order_id"])
	assert.Equal(t, "Desk Lamp", rec["product"])
	assert.Equal(t, "No", rec["approved_flag"])
	assert.Equal(t, "0", rec["cost"])
}

func TestExtractReturnErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing credential", &extractor.Error{Kind: extractor.KindMissingCredential, Err: errors.New("no key")}, http.StatusServiceUnavailable},
		{"transport", &extractor.Error{Kind: extractor.KindTransport, StatusCode: 429, Err: errors.New("quota")}, http.StatusBadGateway},
		{"malformed", &extractor.Error{Kind: extractor.KindMalformedResponse, Err: errors.New("bad json")}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubExtractor{err: tt.err})

			w := srv.do(t, http.MethodPost, "/api/v1/returns/extract", ExtractRequest{Text: "a lamp came back"})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.err.(*extractor.Error).Kind), decode(t, w)["kind"])
		})
	}
}

func TestReports(t *testing.T) {
	srv := newTestServer(t, extractor.NewPatternExtractor())

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/api/v1/reports", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/reports/latest", nil).Code)

	for _, cost := range []string{"10.00", "20.00", "5.50"} {
		w := srv.do(t, http.MethodPost, "/api/v1/returns", map[string]any{
			"product":    "Headphones",
			"store_name": "Kaohsiung",
			"cost":       cost,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := srv.do(t, http.MethodPost, "/api/v1/reports", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	summary := decode(t, w)["summary"].(map[string]any)
	assert.Equal(t, "$35.50", summary["total_cost"])
	assert.Equal(t, float64(3), summary["total_returns"])
	assert.Equal(t, float64(1), summary["distinct_stores"])

	w = srv.do(t, http.MethodGet, "/api/v1/reports/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "returns_summary.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestWriteErrorRecordedReturn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h := &Handler{logger: zap.NewNop()}
	h.writeError(c, &service.RecordedError{OrderID: 1107, Err: errors.New("database is locked")})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1107), body["order_id"])
	assert.Equal(t, "Return recorded but records could not be read", body["error"])
}
