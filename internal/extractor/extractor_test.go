package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func geminiResponse(t *testing.T, text string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": text}},
			},
		}},
	})
	require.NoError(t, err)
	return body
}

func newGeminiServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(baseURL, apiKey string) *GeminiExtractor {
	return NewGeminiExtractor(GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-test",
		BaseURL: baseURL + "/",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestGeminiExtract(t *testing.T) {
	srv := newGeminiServer(t, http.StatusOK,
		geminiResponse(t, `{"product":"Wireless Charger","store_name":"Taipei Xinyi","cost":12.5}`))

	fields, err := newTestGemini(srv.URL, "test-key").Extract(context.Background(), "charger from xinyi, 12.5")
	require.NoError(t, err)

	require.NotNil(t, fields.Product)
	assert.Equal(t, "Wireless Charger", *fields.Product)
	require.NotNil(t, fields.StoreName)
	assert.Equal(t, "Taipei Xinyi", *fields.StoreName)
	require.NotNil(t, fields.Cost)
	assert.Equal(t, "12.5", fields.Cost.String())
	assert.Nil(t, fields.ReturnReason)
}

func TestGeminiMissingCredential(t *testing.T) {
	_, err := newTestGemini("http://127.0.0.1:1", "").Extract(context.Background(), "anything")

	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, KindMissingCredential, extractErr.Kind)
}

func TestGeminiTransportError(t *testing.T) {
	srv := newGeminiServer(t, http.StatusTooManyRequests,
		[]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))

	_, err := newTestGemini(srv.URL, "test-key").Extract(context.Background(), "anything")

	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, KindTransport, extractErr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, extractErr.StatusCode)
}

func TestGeminiMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "sure! the product is a lamp"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGeminiServer(t, http.StatusOK, geminiResponse(t, tt.text))

			_, err := newTestGemini(srv.URL, "test-key").Extract(context.Background(), "anything")

			var extractErr *Error
			require.ErrorAs(t, err, &extractErr)
			assert.Equal(t, KindMalformedResponse, extractErr.Kind)
		})
	}
}

func TestPatternExtract(t *testing.T) {
	p := NewPatternExtractor()

	fields, err := p.Extract(context.Background(),
		"add a return for order 1101, product is 'Wireless Charger', store is 'Taipei Xinyi', cost is $1,012.50, reason is 'Overheats'")
	require.NoError(t, err)

	assert.Equal(t, "Wireless Charger", *fields.Product)
	assert.Equal(t, "Taipei Xinyi", *fields.StoreName)
	assert.Equal(t, "1012.5", fields.Cost.String())
	assert.Equal(t, "Overheats", *fields.ReturnReason)
}

func TestPatternExtractOriginalFormat(t *testing.T) {
	p := NewPatternExtractor()

	fields, err := p.Extract(context.Background(), "新增一筆訂單 1101 的退貨，產品是 '無線充電板'，店家是 '台北信義店'")
	require.NoError(t, err)

	assert.Equal(t, "無線充電板", *fields.Product)
	assert.Equal(t, "台北信義店", *fields.StoreName)
	assert.Nil(t, fields.Cost)
	assert.Nil(t, fields.ReturnReason)
}

func TestPatternExtractNoMatch(t *testing.T) {
	_, err := NewPatternExtractor().Extract(context.Background(), "please add a return")

	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, KindMalformedResponse, extractErr.Kind)
}

func TestNewSelectsProvider(t *testing.T) {
	ex, err := New(ProviderPattern, GeminiConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &PatternExtractor{}, ex)

	ex, err = New(ProviderGemini, GeminiConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &GeminiExtractor{}, ex)

	_, err = New("openai", GeminiConfig{}, zap.NewNop())
	assert.Error(t, err)
}
