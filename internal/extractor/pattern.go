package extractor

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	commandPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)order\s+(\d+).*?product\s+is\s+'([^']*)'.*?store\s+is\s+'([^']*)'`),
		regexp.MustCompile(`訂單\s*(\d+)\s*的退貨，產品是\s*'([^']*)'，店家是\s*'([^']*)'`),
	}
	costPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)cost\s+is\s+\$?([0-9][0-9,]*(?:\.[0-9]+)?)`),
		regexp.MustCompile(`成本是\s*\$?([0-9][0-9,]*(?:\.[0-9]+)?)`),
	}
	reasonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)reason\s+is\s+'([^']*)'`),
		regexp.MustCompile(`原因是\s*'([^']*)'`),
	}
)

// PatternExtractor parses fixed-format return commands without calling a
// model, e.g.
//
//	add a return for order 1101, product is 'Wireless Charger', store is 'Taipei Xinyi', cost is 12.50
//
// The order number in the command is informational; the store assigns ids.
type PatternExtractor struct{}

// NewPatternExtractor creates a PatternExtractor
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract matches text against the known command formats
func (p *PatternExtractor) Extract(ctx context.Context, text string) (*Fields, error) {
	var match []string
	for _, re := range commandPatterns {
		if match = re.FindStringSubmatch(text); match != nil {
			break
		}
	}
	if match == nil {
		return nil, &Error{
			Kind: KindMalformedResponse,
			Err:  errors.New("text does not match the command format: order <n>, product is '<name>', store is '<name>'"),
		}
	}

	fields := &Fields{
		Product:   nonBlank(match[2]),
		StoreName: nonBlank(match[3]),
	}

	if raw := firstSubmatch(costPatterns, text); raw != "" {
		cost, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return nil, &Error{Kind: KindMalformedResponse, Err: err}
		}
		fields.Cost = &cost
	}
	if raw := firstSubmatch(reasonPatterns, text); raw != "" {
		fields.ReturnReason = nonBlank(raw)
	}

	return fields, nil
}

func firstSubmatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func nonBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
