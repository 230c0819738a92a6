// Package llm augments locally-parsed proforma metadata with fields extracted
// by an external text-generation service. The call is best-effort end to end:
// callers treat every error as "no enrichment" and keep the local result.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"backend/internal/config"

	"github.com/rs/zerolog"
)

// maxPromptChars caps how much raw document text is sent out.
const maxPromptChars = 4000

// Enricher is the capability boundary to the external model. Enrich returns
// the parsed JSON object the model produced; a disabled enricher returns
// (nil, nil).
type Enricher interface {
	Enrich(ctx context.Context, rawText string) (map[string]interface{}, error)
}

// OpenAIEnricher talks to an OpenAI-compatible chat/completions endpoint.
type OpenAIEnricher struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	log        zerolog.Logger
}

func NewOpenAIEnricher(cfg config.LLMConfig, log zerolog.Logger) *OpenAIEnricher {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	log = log.With().Str("component", "llm").Logger()
	if cfg.APIKey == "" {
		log.Info().Msg("no model credential configured, metadata enrichment disabled")
	}
	return &OpenAIEnricher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Enabled reports whether a credential is configured.
func (c *OpenAIEnricher) Enabled() bool { return c.cfg.APIKey != "" }

func (c *OpenAIEnricher) Enrich(ctx context.Context, rawText string) (map[string]interface{}, error) {
	if !c.Enabled() {
		return nil, nil
	}

	start := time.Now()
	prompt := buildPrompt(rawText)

	body := map[string]interface{}{
		"model":           c.cfg.Model,
		"temperature":     0,
		"response_format": map[string]interface{}{"type": "json_object"},
		"messages": []map[string]interface{}{
			{"role": "user", "content": prompt},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in model response")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := ValidateEnrichmentJSON(content); err != nil {
		// An off-schema reply is treated as an empty object, same as a reply
		// that is not JSON at all.
		c.log.Warn().Err(err).Msg("enrichment reply rejected by schema")
		return map[string]interface{}{}, nil
	}

	var enriched map[string]interface{}
	if err := json.Unmarshal(content, &enriched); err != nil {
		c.log.Warn().Err(err).Msg("enrichment reply is not a json object")
		return map[string]interface{}{}, nil
	}

	c.log.Debug().
		Int("keys", len(enriched)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("enrichment ok")
	return enriched, nil
}

func (c *OpenAIEnricher) post(ctx context.Context, url string, body map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model http error: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.Warn().Err(closeErr).Msg("model response body close error")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model status %d: %s", resp.StatusCode, truncate(string(data), 512))
	}
	return data, nil
}

func buildPrompt(rawText string) string {
	runes := []rune(rawText)
	if len(runes) > maxPromptChars {
		rawText = string(runes[:maxPromptChars])
	}
	return "Extract vendor name, currency, total amount and list of items " +
		"with price from the following purchase proforma text. " +
		"Respond in JSON with keys vendor, currency, total, items.\n\n" + rawText
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
