// Package polymarket provides access to the Polymarket Gamma and CLOB APIs.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/nocliffcapital/alithos/internal/alerts"
	"github.com/nocliffcapital/alithos/internal/models"
)

// Outcome names as Polymarket reports them.
const (
	OutcomeYes = "YES"
	OutcomeNo  = "NO"
)

// ClientConfig tunes retry, rate-limit, and connection behavior.
type ClientConfig struct {
	MaxRetries        int
	RetryDelayBase    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client provides access to Polymarket APIs. It implements the market data
// fetcher consumed by the alert engine and supplies market snapshots for the
// research pipeline.
type Client struct {
	gammaAPIURL string
	clobAPIURL  string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	maxRetries  int
	retryBase   time.Duration

	mu     sync.Mutex
	tokens map[string]tokenPair // market id -> CLOB token ids
}

type tokenPair struct {
	yes string
	no  string
}

// gammaMarket is the wire shape of a market from the Gamma API. Outcomes,
// prices, and token ids arrive as JSON-encoded strings.
type gammaMarket struct {
	ID                 string  `json:"id"`
	Question           string  `json:"question"`
	Category           string  `json:"category"`
	EndDate            string  `json:"endDate"`
	Outcomes           string  `json:"outcomes"`
	OutcomePrices      string  `json:"outcomePrices"`
	ClobTokenIds       string  `json:"clobTokenIds"`
	Volume24hr         float64 `json:"volume24hr"`
	Liquidity          float64 `json:"liquidityNum"`
	ResolutionSource   string  `json:"resolutionSource"`
	ResolutionCriteria string  `json:"description"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type orderBook struct {
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`
}

type trade struct {
	Side      string  `json:"side"`
	Size      string  `json:"size"`
	Price     string  `json:"price"`
	Timestamp float64 `json:"timestamp"`
}

// NewClient creates a new Polymarket client.
func NewClient(gammaAPIURL, clobAPIURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "polymarket",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		gammaAPIURL: gammaAPIURL,
		clobAPIURL:  clobAPIURL,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:     breaker,
		maxRetries:  cfg.MaxRetries,
		retryBase:   cfg.RetryDelayBase,
		tokens:      make(map[string]tokenPair),
	}
}

// FetchMarket retrieves a market snapshot from the Gamma API.
func (c *Client) FetchMarket(ctx context.Context, marketID string) (*models.MarketSnapshot, error) {
	var gm gammaMarket
	u := fmt.Sprintf("%s/markets/%s", c.gammaAPIURL, url.PathEscape(marketID))
	if err := c.getJSON(ctx, u, &gm); err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", marketID, err)
	}

	snapshot := &models.MarketSnapshot{
		ID:                 gm.ID,
		Question:           gm.Question,
		Category:           gm.Category,
		Volume24hr:         gm.Volume24hr,
		Liquidity:          gm.Liquidity,
		ResolutionSource:   gm.ResolutionSource,
		ResolutionCriteria: gm.ResolutionCriteria,
	}

	if gm.EndDate != "" {
		if end, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			snapshot.EndDate = &end
		}
	}

	yes, no, ok := parseOutcomePrices(gm.Outcomes, gm.OutcomePrices)
	if ok {
		snapshot.YesPrice = yes
		snapshot.NoPrice = no
		snapshot.HasPrices = true
	}

	if pair, ok := parseTokenIds(gm.ClobTokenIds); ok {
		c.mu.Lock()
		c.tokens[marketID] = pair
		c.mu.Unlock()
	}

	return snapshot, nil
}

// Price returns the current YES probability as a percentage (0-100).
func (c *Client) Price(ctx context.Context, marketID string) (float64, error) {
	snapshot, err := c.FetchMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if !snapshot.HasPrices {
		return 0, fmt.Errorf("market %s has no outcome prices: %w", marketID, alerts.ErrUnavailable)
	}
	return snapshot.YesPrice * 100, nil
}

// Volume returns the market's 24h traded volume in currency units.
func (c *Client) Volume(ctx context.Context, marketID string) (float64, error) {
	snapshot, err := c.FetchMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	return snapshot.Volume24hr, nil
}

// Depth returns total resting order-book value for the outcome in currency
// units, summed across both sides of the book.
func (c *Client) Depth(ctx context.Context, marketID, outcome string) (float64, error) {
	book, err := c.fetchBook(ctx, marketID, outcome)
	if err != nil {
		return 0, err
	}
	var depth float64
	for _, lvl := range append(book.Bids, book.Asks...) {
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		depth += price * size
	}
	return depth, nil
}

// Spread returns the best bid/ask spread for the outcome as a 0-1 fraction.
func (c *Client) Spread(ctx context.Context, marketID, outcome string) (float64, error) {
	book, err := c.fetchBook(ctx, marketID, outcome)
	if err != nil {
		return 0, err
	}
	bestBid, bestAsk := 0.0, 1.0
	for _, lvl := range book.Bids {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && p > bestBid {
			bestBid = p
		}
	}
	for i, lvl := range book.Asks {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && (i == 0 || p < bestAsk) {
			bestAsk = p
		}
	}
	spread := bestAsk - bestBid
	if spread < 0 {
		spread = 0
	}
	return spread, nil
}

// flowDecayWindow bounds how far back trades contribute to the flow proxy.
const flowDecayWindow = time.Hour

// Flow returns a signed net-flow proxy for the outcome: buy minus sell trade
// sizes over the last hour, linearly decayed by age. This is a trade-flow
// approximation, not true signed order flow.
func (c *Client) Flow(ctx context.Context, marketID, outcome string) (float64, error) {
	tokenID, err := c.tokenID(ctx, marketID, outcome)
	if err != nil {
		return 0, err
	}

	u := fmt.Sprintf("%s/trades?market=%s", c.clobAPIURL, url.QueryEscape(tokenID))
	var trades []trade
	if err := c.getJSON(ctx, u, &trades); err != nil {
		return 0, fmt.Errorf("failed to fetch trades: %w", err)
	}

	now := time.Now()
	var flow float64
	for _, t := range trades {
		size, err := strconv.ParseFloat(t.Size, 64)
		if err != nil {
			continue
		}
		age := now.Sub(time.Unix(int64(t.Timestamp), 0))
		if age < 0 {
			age = 0
		}
		if age > flowDecayWindow {
			continue
		}
		weight := 1 - age.Seconds()/flowDecayWindow.Seconds()
		if strings.EqualFold(t.Side, "SELL") {
			flow -= size * weight
		} else {
			flow += size * weight
		}
	}
	return flow, nil
}

func (c *Client) fetchBook(ctx context.Context, marketID, outcome string) (*orderBook, error) {
	tokenID, err := c.tokenID(ctx, marketID, outcome)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/book?token_id=%s", c.clobAPIURL, url.QueryEscape(tokenID))
	var book orderBook
	if err := c.getJSON(ctx, u, &book); err != nil {
		return nil, fmt.Errorf("failed to fetch book: %w", err)
	}
	return &book, nil
}

// tokenID resolves a market's CLOB token id for an outcome, fetching the
// market once to populate the cache.
func (c *Client) tokenID(ctx context.Context, marketID, outcome string) (string, error) {
	c.mu.Lock()
	pair, ok := c.tokens[marketID]
	c.mu.Unlock()

	if !ok {
		if _, err := c.FetchMarket(ctx, marketID); err != nil {
			return "", err
		}
		c.mu.Lock()
		pair, ok = c.tokens[marketID]
		c.mu.Unlock()
		if !ok {
			return "", fmt.Errorf("market %s has no CLOB token ids", marketID)
		}
	}

	if strings.EqualFold(outcome, OutcomeNo) {
		return pair.no, nil
	}
	return pair.yes, nil
}

func parseOutcomePrices(outcomesJSON, pricesJSON string) (yes, no float64, ok bool) {
	var outcomes, prices []string
	if err := json.Unmarshal([]byte(outcomesJSON), &outcomes); err != nil {
		return 0, 0, false
	}
	if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil {
		return 0, 0, false
	}

	found := false
	for i, outcome := range outcomes {
		if i >= len(prices) {
			break
		}
		price, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			continue
		}
		switch outcome {
		case "Yes":
			yes = price
			found = true
		case "No":
			no = price
			found = true
		}
	}
	return yes, no, found
}

func parseTokenIds(tokensJSON string) (tokenPair, bool) {
	var ids []string
	if err := json.Unmarshal([]byte(tokensJSON), &ids); err != nil {
		return tokenPair{}, false
	}
	if len(ids) < 2 {
		return tokenPair{}, false
	}
	return tokenPair{yes: ids[0], no: ids[1]}, true
}

// getJSON performs a rate-limited GET through the circuit breaker with
// linear-backoff retry and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := c.breaker.Execute(func() (any, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
			}
			return nil, json.NewDecoder(resp.Body).Decode(out)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || ctx.Err() != nil {
			break
		}
		time.Sleep(c.retryBase * time.Duration(i+1))
	}
	return fmt.Errorf("request failed: %w", lastErr)
}
