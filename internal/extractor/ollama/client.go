// Package ollama implements the extraction client against an
// Ollama-compatible generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/welanie/dealpipe/internal/product"
)

// promptTemplate is the fixed instruction sent for every message. It
// forbids guessing: unless price, discounted_price, and discount_percent
// are all confidently derivable the model must return nothing rather
// than fabricate values.
const promptTemplate = `
Extract the following product details from the message:

- name (product name, string)
- category (e.g. clothing, electronics, cosmetics, etc.)
- price (number, only digits, no currency)
- discounted_price (number, only digits, no currency)
- discount_percent (number, only digits, no "%%" sign)
- username (string, extracted from @username or Telegram links like https://t.me/username, remove the '@' symbol)
- is_free (boolean, true if discount_percent is 100, false otherwise)

⚠️ If you cannot clearly extract or calculate all three of the following: price, discount_percent, and discounted_price — then do NOT return anything.

⚠️ Do NOT guess values. Only return a valid JSON object if all required fields are clearly present or calculable.

If the username is a link (e.g. https://t.me/username), extract just the "username" part.

Only return a single JSON object. Do not return a list or multiple JSONs.

Return a strict JSON object with only the fields mentioned above. No explanations, no extra formatting.

Text: "%s"
`

// Config controls the extraction client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the generate endpoint and parses the structured result.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("extractor.base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("extractor.model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type generateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Stream    bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// candidatePayload decodes the model output leniently: the three numeric
// fields are kept as raw JSON so that a string or null value becomes an
// absent field caught by validation instead of a decode failure.
type candidatePayload struct {
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           json.RawMessage `json:"price"`
	DiscountedPrice json.RawMessage `json:"discounted_price"`
	DiscountPercent json.RawMessage `json:"discount_percent"`
	Username        string          `json:"username"`
	IsFree          bool            `json:"is_free"`
}

// Extract sends the message text to the extraction service and parses the
// response into a candidate record. The service may answer with a bare
// object or a one-element list; the list is unwrapped, and an empty list
// yields an empty candidate that validation will reject. Transport
// errors, non-2xx statuses, and malformed bodies are returned as errors.
func (c *Client) Extract(ctx context.Context, text string) (product.CandidateRecord, error) {
	prompt := fmt.Sprintf(promptTemplate, text)
	body, err := json.Marshal(generateRequest{
		Model:     c.model + ":latest",
		Prompt:    prompt,
		MaxTokens: 500,
	})
	if err != nil {
		return product.CandidateRecord{}, fmt.Errorf("marshal generate request: %w", err)
	}

	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return product.CandidateRecord{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return product.CandidateRecord{}, fmt.Errorf("call extractor: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return product.CandidateRecord{}, fmt.Errorf("read extractor response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return product.CandidateRecord{}, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	var outer generateResponse
	if err := json.Unmarshal(payload, &outer); err != nil {
		return product.CandidateRecord{}, fmt.Errorf("decode extractor envelope: %w", err)
	}
	return parseCandidate(outer.Response)
}

func parseCandidate(response string) (product.CandidateRecord, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return product.CandidateRecord{}, fmt.Errorf("extractor response is empty")
	}

	var raw candidatePayload
	if strings.HasPrefix(trimmed, "[") {
		var list []candidatePayload
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return product.CandidateRecord{}, fmt.Errorf("decode extractor list: %w", err)
		}
		if len(list) == 0 {
			// "Nothing extracted": an empty candidate fails validation.
			return product.CandidateRecord{}, nil
		}
		raw = list[0]
	} else {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return product.CandidateRecord{}, fmt.Errorf("decode extractor object: %w", err)
		}
	}

	return product.CandidateRecord{
		Name:            raw.Name,
		Category:        raw.Category,
		Price:           parseNumber(raw.Price),
		DiscountedPrice: parseNumber(raw.DiscountedPrice),
		DiscountPercent: parseNumber(raw.DiscountPercent),
		Username:        strings.TrimPrefix(raw.Username, "@"),
		IsFree:          raw.IsFree,
	}, nil
}

// parseNumber returns nil for anything that is not a JSON number, so the
// validator can reject string or null prices instead of this client
// guessing on the model's behalf.
func parseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}
