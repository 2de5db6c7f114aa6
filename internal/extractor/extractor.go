package extractor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Fields is the field set an extractor pulled out of free text.
// A nil field was not found.
type Fields struct {
	Product      *string          `json:"product,omitempty"`
	StoreName    *string          `json:"store_name,omitempty"`
	ReturnReason *string          `json:"return_reason,omitempty"`
	Cost         *decimal.Decimal `json:"cost,omitempty"`
}

// Kind classifies extraction failures
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindTransport         Kind = "transport"
	KindMalformedResponse Kind = "malformed_response"
)

// Error is returned by extractors. No record is ever created from a
// failed extraction.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("extraction failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor turns free text into return fields
type Extractor interface {
	Extract(ctx context.Context, text string) (*Fields, error)
}

// Provider names accepted by New
const (
	ProviderGemini  = "gemini"
	ProviderPattern = "pattern"
)

// New returns the extractor for provider
func New(provider string, cfg GeminiConfig, logger *zap.Logger) (Extractor, error) {
	switch provider {
	case ProviderGemini, "":
		return NewGeminiExtractor(cfg, logger), nil
	case ProviderPattern:
		return NewPatternExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (want %s or %s)", provider, ProviderGemini, ProviderPattern)
	}
}
