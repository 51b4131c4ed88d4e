// Package skipquery is the HTTP client for the Skip swap-routing API.
// It maintains a primary endpoint and automatically switches to backups when
// the primary is unavailable, restoring the primary once it is healthy again.
package skipquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "skip").Logger()
}

// Client provides access to the Skip routing API with failover support.
type Client struct {
	httpClient     *http.Client
	primaryURL     string
	backupURLs     []string
	currentURL     string
	mu             sync.RWMutex
	healthChecker  *healthChecker
	failoverConfig FailoverConfig
}

// FailoverConfig controls retry and failover behavior.
type FailoverConfig struct {
	// MaxRetries is the number of times to retry a failed request on the
	// current endpoint.
	MaxRetries int
	// RetryDelay is the initial delay between retries (doubles each retry).
	RetryDelay time.Duration
	// HealthCheckInterval is how often to probe a downed primary endpoint.
	HealthCheckInterval time.Duration
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// DefaultFailoverConfig returns sensible defaults for failover behavior.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             10 * time.Second,
	}
}

// healthChecker periodically checks if the primary endpoint is back up.
type healthChecker struct {
	client    *Client
	stopCh    chan struct{}
	stoppedCh chan struct{}
	isRunning bool
	mu        sync.Mutex
}

// NewClient creates a Client against a single endpoint.
func NewClient(apiURL string) *Client {
	return NewClientWithFailover(apiURL, nil, DefaultFailoverConfig())
}

// NewClientWithFailover creates a Client with backup endpoints.
func NewClientWithFailover(primaryURL string, backupURLs []string, config FailoverConfig) *Client {
	if _, err := url.Parse(primaryURL); err != nil {
		log.Fatal().Err(err).Str("url", primaryURL).Msg("Failed to parse primary API URL")
		return nil
	}

	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.Parse(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		primaryURL:     primaryURL,
		backupURLs:     validBackups,
		currentURL:     primaryURL,
		failoverConfig: config,
	}

	if len(validBackups) > 0 {
		client.startHealthChecker()
	}

	log.Info().
		Str("primary", primaryURL).
		Int("backups", len(validBackups)).
		Msg("Skip client initialized")
	return client
}

func (c *Client) startHealthChecker() {
	c.healthChecker = &healthChecker{
		client:    c,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	c.healthChecker.start()
}

func (h *healthChecker) start() {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	go func() {
		defer close(h.stoppedCh)
		ticker := time.NewTicker(h.client.failoverConfig.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.checkAndRestore()
			}
		}
	}()
}

func (h *healthChecker) stop() {
	h.mu.Lock()
	if !h.isRunning {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	close(h.stopCh)
	<-h.stoppedCh
}

// checkAndRestore switches back to the primary endpoint once it is healthy.
func (h *healthChecker) checkAndRestore() {
	h.client.mu.RLock()
	currentURL := h.client.currentURL
	primaryURL := h.client.primaryURL
	h.client.mu.RUnlock()

	if currentURL == primaryURL {
		return
	}

	if h.client.isEndpointHealthy(primaryURL) {
		h.client.mu.Lock()
		h.client.currentURL = primaryURL
		h.client.mu.Unlock()
		log.Info().Str("url", primaryURL).Msg("Restored primary endpoint")
	}
}

// isEndpointHealthy checks if an endpoint responds on its info route.
func (c *Client) isEndpointHealthy(endpoint string) bool {
	healthURL := fmt.Sprintf("%s/v2/info/chains", endpoint)
	resp, err := c.httpClient.Get(healthURL)
	if err != nil {
		log.Debug().Err(err).Str("url", healthURL).Msg("Health check failed")
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	log.Debug().Str("url", healthURL).Int("status", resp.StatusCode).Msg("Health check response")
	return resp.StatusCode == http.StatusOK
}

func (c *Client) getCurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next available backup endpoint.
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := -1
	for i, u := range allURLs {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}

	for i := 1; i <= len(allURLs); i++ {
		nextIdx := (currentIdx + i) % len(allURLs)
		nextURL := allURLs[nextIdx]

		if nextURL == c.currentURL {
			continue
		}

		if c.isEndpointHealthy(nextURL) {
			c.currentURL = nextURL
			log.Info().Str("url", nextURL).Msg("Failover to endpoint")
			return true
		}
	}

	log.Warn().Str("url", c.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

// Close stops the health checker and cleans up resources.
func (c *Client) Close() {
	if c.healthChecker != nil {
		c.healthChecker.stop()
	}
}

// postWithFailover performs a JSON POST with retry and failover logic.
func (c *Client) postWithFailover(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	retryDelay := c.failoverConfig.RetryDelay

	for attempt := 0; attempt <= c.failoverConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		respBody, err := c.post(ctx, c.getCurrentURL()+path, body)
		if err != nil {
			lastErr = err
			continue
		}
		return respBody, nil
	}

	// Current endpoint failed, try failover once.
	if len(c.backupURLs) > 0 && c.failover() {
		respBody, err := c.post(ctx, c.getCurrentURL()+path, body)
		if err != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.failoverConfig.MaxRetries+1, lastErr)
}

// getWithFailover performs a GET with the same retry and failover logic as
// postWithFailover.
func (c *Client) getWithFailover(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	retryDelay := c.failoverConfig.RetryDelay

	for attempt := 0; attempt <= c.failoverConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		respBody, err := c.get(ctx, c.getCurrentURL()+path)
		if err != nil {
			lastErr = err
			continue
		}
		return respBody, nil
	}

	if len(c.backupURLs) > 0 && c.failover() {
		respBody, err := c.get(ctx, c.getCurrentURL()+path)
		if err != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.failoverConfig.MaxRetries+1, lastErr)
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *Client) post(ctx context.Context, fullURL string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

/*
Route returns the best route the API can compute for the exact in or exact
out swap method.

For exact amount in, AmountIn and the denom pair are required.
For exact amount out, AmountOut and the denom pair are required.
Setting both AmountIn and AmountOut is an error; the API accepts only one.

The response is returned as raw JSON: field casing varies between API
versions, and normalization is the routing layer's job, done once at its
boundary.
*/
func (c *Client) Route(ctx context.Context, req RouteRequest) (json.RawMessage, error) {
	if req.AmountIn == "" && req.AmountOut == "" {
		return nil, fmt.Errorf("amountIn or amountOut is required")
	}
	if req.AmountIn != "" && req.AmountOut != "" {
		return nil, fmt.Errorf("amountIn and amountOut cannot be used together")
	}
	if req.SourceAssetDenom == "" || req.DestAssetDenom == "" {
		return nil, fmt.Errorf("source and dest denoms are required")
	}

	body, err := c.postWithFailover(ctx, "/v2/fungible/route", req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

type tokenPriceResponse struct {
	USDPrice string `json:"usd_price"`
}

// TokenPrice returns the USD price of a denom on chainID.
func (c *Client) TokenPrice(ctx context.Context, chainID, denom string) (decimal.Decimal, error) {
	if denom == "" {
		return decimal.Zero, fmt.Errorf("denom is required")
	}

	q := url.Values{}
	q.Set("chain_id", chainID)
	q.Set("denom", denom)

	body, err := c.getWithFailover(ctx, "/v2/fungible/price?"+q.Encode())
	if err != nil {
		return decimal.Zero, err
	}

	var resp tokenPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price response: %w", err)
	}
	price, err := decimal.NewFromString(resp.USDPrice)
	if err != nil || price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("bad usd_price %q for denom %s", resp.USDPrice, denom)
	}
	return price, nil
}
