// Package currency converts submitted amounts into the base currency at
// submission time.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oddo-hq/expenseflow/pkg/logger"
)

// BaseCurrency is the single currency all converted amounts are normalized to.
const BaseCurrency = "USD"

// Conversion is the outcome of one currency lookup.
type Conversion struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	Amount          float64 `json:"amount"`
	ConvertedAmount float64 `json:"converted_amount"`
	Rate            float64 `json:"rate"`
}

// Converter converts an amount between currencies.
type Converter interface {
	Convert(ctx context.Context, amount float64, from, to string) (Conversion, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, amount float64, from, to string) (Conversion, error)

func (f ConverterFunc) Convert(ctx context.Context, amount float64, from, to string) (Conversion, error) {
	return f(ctx, amount, from, to)
}

// Identity returns the degraded conversion used when no rate is available:
// the amount unchanged, denominated in its original currency.
func Identity(amount float64, from string) Conversion {
	return Conversion{From: from, To: from, Amount: amount, ConvertedAmount: amount, Rate: 1}
}

// HTTPConverter resolves rates against an exchangerate.host-compatible
// convert endpoint.
type HTTPConverter struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

// NewHTTPConverter constructs a converter using the provided endpoint.
func NewHTTPConverter(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPConverter, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("converter endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse converter endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("currency-converter")
	}
	return &HTTPConverter{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		log:      log,
	}, nil
}

// Convert looks up the rate for amount from→to. Same-currency requests
// short-circuit without a network call.
func (c *HTTPConverter) Convert(ctx context.Context, amount float64, from, to string) (Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return Conversion{From: from, To: to, Amount: amount, ConvertedAmount: amount, Rate: 1}, nil
	}

	requestURL := *c.endpoint
	q := requestURL.Query()
	q.Set("from", from)
	q.Set("to", to)
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	requestURL.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return Conversion{}, fmt.Errorf("build converter request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Conversion{}, fmt.Errorf("converter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Conversion{}, fmt.Errorf("converter status %d", resp.StatusCode)
	}

	var payload struct {
		Success bool    `json:"success"`
		Result  float64 `json:"result"`
		Info    struct {
			Rate float64 `json:"rate"`
		} `json:"info"`
		Error struct {
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Conversion{}, fmt.Errorf("decode converter response: %w", err)
	}
	if !payload.Success {
		return Conversion{}, fmt.Errorf("converter refused: %s", payload.Error.Info)
	}

	return Conversion{
		From:            from,
		To:              to,
		Amount:          amount,
		ConvertedAmount: payload.Result,
		Rate:            payload.Info.Rate,
	}, nil
}
