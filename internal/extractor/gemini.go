package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const systemPrompt = `You extract product return details from a short free-text note.
Return a JSON object with these keys when the note states them:
product (string), store_name (string), cost (number, no currency symbol), return_reason (string).
Leave out any key the note does not mention. Never guess.`

var fieldsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"product":       {Type: genai.TypeString},
		"store_name":    {Type: genai.TypeString},
		"cost":          {Type: genai.TypeNumber},
		"return_reason": {Type: genai.TypeString},
	},
}

// GeminiConfig configures a GeminiExtractor
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiExtractor extracts return fields with the Gemini API
type GeminiExtractor struct {
	cfg    GeminiConfig
	logger *zap.Logger

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiExtractor creates the extractor. A missing API key is not an
// error here; each Extract call reports it instead so the form path keeps
// working.
func NewGeminiExtractor(cfg GeminiConfig, logger *zap.Logger) *GeminiExtractor {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &GeminiExtractor{
		cfg:    cfg,
		logger: logger,
	}
}

func (g *GeminiExtractor) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.cfg.BaseURL},
	})
	if err != nil {
		return nil, err
	}

	g.client = client
	return client, nil
}

// Extract asks the model for the return fields in text. The call is bounded
// by the configured timeout and is not retried.
func (g *GeminiExtractor) Extract(ctx context.Context, text string) (*Fields, error) {
	if g.cfg.APIKey == "" {
		return nil, &Error{Kind: KindMissingCredential, Err: errors.New("GEMINI_API_KEY is not set")}
	}

	client, err := g.getClient(ctx)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("failed to create GenAI client: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx,
		g.cfg.Model,
		genai.Text(text),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    fieldsSchema,
		},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			g.logger.Warn("Gemini API returned error",
				zap.Int("status", apiErr.Code),
				zap.String("message", apiErr.Message))
			return nil, &Error{Kind: KindTransport, StatusCode: apiErr.Code, Err: err}
		}
		g.logger.Warn("Gemini API call failed", zap.Error(err))
		return nil, &Error{Kind: KindTransport, Err: err}
	}

	g.logger.Debug("Gemini extraction finished", zap.Duration("latency", time.Since(start)))

	return parseFields(resp.Text())
}

func parseFields(body string) (*Fields, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, &Error{Kind: KindMalformedResponse, Err: errors.New("empty response body")}
	}

	var fields Fields
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("failed to decode fields: %w", err)}
	}
	return &fields, nil
}
