package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/logger"
)

// MarketOutcome is the settled answer of a binary prediction market.
type MarketOutcome string

const (
	MarketYes     MarketOutcome = "YES"
	MarketNo      MarketOutcome = "NO"
	MarketInvalid MarketOutcome = "INVALID"
)

var ErrMarketNotFound = errors.New("market not found")

// Resolution is the state of one market as reported by the market API.
type Resolution struct {
	MarketRef string
	Resolved  bool
	Outcome   MarketOutcome
}

// MarketSource reports market resolutions.
type MarketSource interface {
	FetchResolution(ctx context.Context, marketRef string) (Resolution, error)
}

// GammaClient reads market state from the Polymarket gamma API.
type GammaClient struct {
	baseURL    string
	client     *http.Client
	apiKey     string
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

type GammaOption func(*GammaClient)

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) GammaOption {
	return func(c *GammaClient) {
		c.apiKey = key
	}
}

// WithMaxRetries bounds retries of rate-limited and network failures.
func WithMaxRetries(n uint64) GammaOption {
	return func(c *GammaClient) {
		c.maxRetries = n
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(fn func() backoff.BackOff) GammaOption {
	return func(c *GammaClient) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

func NewGammaClient(baseURL string, timeout time.Duration, opts ...GammaOption) *GammaClient {
	c := &GammaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		maxRetries: 5,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = time.Minute
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5
	return b
}

// gammaMarket is the subset of the gamma market payload we read. Outcomes and
// prices arrive as JSON-encoded string arrays.
type gammaMarket struct {
	ID                  string `json:"id"`
	Closed              bool   `json:"closed"`
	Outcomes            string `json:"outcomes"`
	OutcomePrices       string `json:"outcomePrices"`
	UMAResolutionStatus string `json:"umaResolutionStatus"`
}

func (c *GammaClient) FetchResolution(ctx context.Context, marketRef string) (Resolution, error) {
	if marketRef == "" {
		return Resolution{}, ErrMarketNotFound
	}
	endpoint := c.baseURL + "/markets/" + url.PathEscape(marketRef)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return Resolution{}, err
	}

	var market gammaMarket
	if err := json.Unmarshal(body, &market); err != nil {
		return Resolution{}, fmt.Errorf("failed to decode market %s: %w", marketRef, err)
	}
	return market.resolution(marketRef)
}

func (c *GammaClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to perform request: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Warn("failed to close response body", zap.Error(err), zap.String("url", endpoint))
			}
		}()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			logger.Warn("rate limited, retrying with backoff", zap.String("url", endpoint))
			return errors.New("rate limited (429)")
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrMarketNotFound)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body)))
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, fmt.Errorf("market request failed: %w", err)
	}
	return respBody, nil
}

// resolution maps the market payload onto YES/NO/INVALID. A closed market
// whose winning price is not exactly one side is INVALID.
func (m gammaMarket) resolution(marketRef string) (Resolution, error) {
	res := Resolution{MarketRef: marketRef}
	if !m.Closed {
		return res, nil
	}
	if m.UMAResolutionStatus != "" && !strings.EqualFold(m.UMAResolutionStatus, "resolved") {
		return res, nil
	}

	var outcomes, prices []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return Resolution{}, fmt.Errorf("failed to decode outcomes of market %s: %w", marketRef, err)
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return Resolution{}, fmt.Errorf("failed to decode prices of market %s: %w", marketRef, err)
	}
	if len(outcomes) != len(prices) {
		return Resolution{}, fmt.Errorf("market %s has %d outcomes and %d prices", marketRef, len(outcomes), len(prices))
	}

	res.Resolved = true
	res.Outcome = MarketInvalid
	for i, p := range prices {
		price, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Resolution{}, fmt.Errorf("market %s price %q: %w", marketRef, p, err)
		}
		if price != 1 {
			continue
		}
		switch strings.ToLower(outcomes[i]) {
		case "yes":
			res.Outcome = MarketYes
		case "no":
			res.Outcome = MarketNo
		}
	}
	return res, nil
}
