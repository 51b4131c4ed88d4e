// Package markets fetches per-asset prices and lending-market parameters
// from the Amber REST API and serves them as immutable snapshots.
package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "markets").Logger()
}

// Feed polls the market-params endpoint and caches the latest snapshot.
type Feed struct {
	httpClient    *http.Client
	baseURL       string
	retryAttempts int
	retryDelay    time.Duration

	mu      sync.RWMutex
	current *Snapshot

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewFeed creates a feed against the given API base URL.
func NewFeed(baseURL string, timeout time.Duration) *Feed {
	return &Feed{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:       baseURL,
		retryAttempts: 3,
		retryDelay:    500 * time.Millisecond,
	}
}

// Current returns the latest snapshot, or an error before the first
// successful refresh.
func (f *Feed) Current() (*Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil, fmt.Errorf("no market snapshot available yet")
	}
	return f.current, nil
}

// Refresh fetches market parameters and publishes a new snapshot.
// A failed refresh leaves the previous snapshot in place.
func (f *Feed) Refresh(ctx context.Context) error {
	var lastErr error
	delay := f.retryDelay

	for attempt := 0; attempt <= f.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		snapshot, err := f.fetch(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		f.mu.Lock()
		f.current = snapshot
		f.mu.Unlock()

		log.Debug().Int("assets", len(snapshot.Assets)).Msg("Market snapshot refreshed")
		return nil
	}

	log.Error().Err(lastErr).Msg("Market refresh failed on all attempts")
	return fmt.Errorf("market refresh failed after %d attempts: %w", f.retryAttempts+1, lastErr)
}

func (f *Feed) fetch(ctx context.Context) (*Snapshot, error) {
	fullURL := fmt.Sprintf("%s/v2/markets/params", f.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var wire marketsResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse markets response: %w", err)
	}

	return buildSnapshot(wire)
}

// buildSnapshot validates wire entries into a Snapshot. Entries with an
// unparseable price are dropped rather than poisoning downstream USD math.
func buildSnapshot(wire marketsResponse) (*Snapshot, error) {
	if len(wire.Markets) == 0 {
		return nil, fmt.Errorf("markets response contained no entries")
	}

	assets := make(map[string]AssetParams, len(wire.Markets))
	for _, m := range wire.Markets {
		params, err := convertEntry(m)
		if err != nil {
			log.Warn().Err(err).Str("denom", m.Denom).Msg("Skipping malformed market entry")
			continue
		}
		assets[m.Denom] = params
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("no usable market entries after validation")
	}

	return &Snapshot{
		Assets:    assets,
		FetchedAt: time.Now(),
	}, nil
}

func convertEntry(m marketEntry) (AssetParams, error) {
	if m.Denom == "" {
		return AssetParams{}, fmt.Errorf("entry missing denom")
	}
	price, err := decimal.NewFromString(m.Price)
	if err != nil || price.Sign() <= 0 {
		return AssetParams{}, fmt.Errorf("bad price %q: %w", m.Price, err)
	}
	ltv, err := decimal.NewFromString(m.MaxLoanToValue)
	if err != nil {
		return AssetParams{}, fmt.Errorf("bad max_loan_to_value %q: %w", m.MaxLoanToValue, err)
	}
	liq, err := decimal.NewFromString(m.LiquidationThreshold)
	if err != nil {
		return AssetParams{}, fmt.Errorf("bad liquidation_threshold %q: %w", m.LiquidationThreshold, err)
	}

	// Rates are informational; a missing rate is zero, not an error.
	borrowRate := parseOrZero(m.BorrowRate)
	supplyRate := parseOrZero(m.SupplyRate)

	return AssetParams{
		Denom:                m.Denom,
		Symbol:               m.Symbol,
		Decimals:             m.Decimals,
		Price:                price,
		MaxLoanToValue:       ltv,
		LiquidationThreshold: liq,
		BorrowRate:           borrowRate,
		SupplyRate:           supplyRate,
		TotalSupplied:        m.TotalSupplied,
	}, nil
}

func parseOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Start launches the background refresh loop. The first refresh happens
// immediately so callers can rely on Current soon after startup.
func (f *Feed) Start(ctx context.Context, interval time.Duration) {
	f.stopCh = make(chan struct{})
	f.stoppedCh = make(chan struct{})

	go func() {
		defer close(f.stoppedCh)

		if err := f.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial market refresh failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-f.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.Refresh(ctx); err != nil {
					log.Warn().Err(err).Msg("Market refresh failed, keeping previous snapshot")
				}
			}
		}
	}()
}

// Stop terminates the refresh loop.
func (f *Feed) Stop() {
	if f.stopCh == nil {
		return
	}
	close(f.stopCh)
	<-f.stoppedCh
}
