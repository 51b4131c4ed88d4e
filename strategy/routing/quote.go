// Package routing turns raw swap-routing oracle responses into venue-checked
// route plans, including the reverse (exact amount out) search the oracle
// itself does not support.
package routing

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "routing").Logger()
}

// SwapVenue identifies one DEX referenced by a quote.
type SwapVenue struct {
	Name    string `json:"name"`
	ChainID string `json:"chain_id"`
}

// SwapOperation is a single hop inside a venue swap.
type SwapOperation struct {
	Pool     string `json:"pool"`
	DenomIn  string `json:"denom_in"`
	DenomOut string `json:"denom_out"`
}

// QuoteResponse is the canonical, normalized form of a routing-oracle
// response. The oracle emits camelCase or snake_case fields depending on API
// version; NormalizeQuoteResponse folds both into this shape once, at the
// boundary, and the rest of the engine never touches the raw document.
type QuoteResponse struct {
	AmountIn           string          `json:"amount_in"`
	AmountOut          string          `json:"amount_out"`
	PriceImpactPercent decimal.Decimal `json:"price_impact_percent"`
	USDAmountIn        string          `json:"usd_amount_in,omitempty"`
	USDAmountOut       string          `json:"usd_amount_out,omitempty"`
	FeeUSD             decimal.Decimal `json:"fee_usd"`
	Venues             []SwapVenue     `json:"swap_venues"`
	Operations         []SwapOperation `json:"operations"`

	// Raw is the untouched oracle document. It is handed to the broadcaster
	// verbatim; nothing downstream may depend on its field casing.
	Raw json.RawMessage `json:"-"`
}

// AmountOutInt parses AmountOut as token base units.
func (q *QuoteResponse) AmountOutInt() (*big.Int, bool) {
	return parseBaseUnits(q.AmountOut)
}

// AmountInInt parses AmountIn as token base units.
func (q *QuoteResponse) AmountInInt() (*big.Int, bool) {
	return parseBaseUnits(q.AmountIn)
}

func parseBaseUnits(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

/*
NormalizeQuoteResponse parses a raw oracle document into the canonical
QuoteResponse.

Every field is probed under both its snake_case and camelCase name. Venue
names are collected from the top-level venue list, the singular venue field
and every per-operation swap venue, in that order, de-duplicated. Swap
operations are taken from the first top-level operation only; quotes with
more than one top-level operation are cross-chain compositions this product
never executes, and their tail is deliberately not inspected.
*/
func NormalizeQuoteResponse(raw json.RawMessage) (*QuoteResponse, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}

	q := &QuoteResponse{
		AmountIn:     getString(doc, "amount_in", "amountIn"),
		AmountOut:    getString(doc, "amount_out", "amountOut"),
		USDAmountIn:  getString(doc, "usd_amount_in", "usdAmountIn"),
		USDAmountOut: getString(doc, "usd_amount_out", "usdAmountOut"),
		Raw:          raw,
	}
	q.PriceImpactPercent = getDecimal(doc, "swap_price_impact_percent", "swapPriceImpactPercent", "price_impact_percent", "priceImpactPercent")
	q.FeeUSD = sumFeesUSD(doc)

	// Top-level venue list.
	for _, v := range getArray(doc, "swap_venues", "swapVenues") {
		if vm, ok := v.(map[string]any); ok {
			q.addVenue(vm)
		}
	}
	// Singular venue field used by older API versions.
	if vm, ok := getMap(doc, "swap_venue", "swapVenue"); ok {
		q.addVenue(vm)
	}

	ops := getArray(doc, "operations")
	for _, op := range ops {
		om, ok := op.(map[string]any)
		if !ok {
			continue
		}
		swap, ok := getMap(om, "swap")
		if !ok {
			continue
		}
		swapIn, ok := getMap(swap, "swap_in", "swapIn")
		if !ok {
			// exact-out responses nest under swap_out
			swapIn, ok = getMap(swap, "swap_out", "swapOut")
			if !ok {
				continue
			}
		}
		if vm, ok := getMap(swapIn, "swap_venue", "swapVenue"); ok {
			q.addVenue(vm)
		}
	}

	// Per-hop operations from the first top-level operation only.
	if len(ops) > 0 {
		if om, ok := ops[0].(map[string]any); ok {
			q.Operations = extractHops(om)
		}
	}

	return q, nil
}

func (q *QuoteResponse) addVenue(vm map[string]any) {
	name := getString(vm, "name", "Name")
	if name == "" {
		return
	}
	for _, existing := range q.Venues {
		if existing.Name == name {
			return
		}
	}
	q.Venues = append(q.Venues, SwapVenue{
		Name:    name,
		ChainID: getString(vm, "chain_id", "chainID", "chainId"),
	})
}

func extractHops(op map[string]any) []SwapOperation {
	swap, ok := getMap(op, "swap")
	if !ok {
		return nil
	}
	swapIn, ok := getMap(swap, "swap_in", "swapIn")
	if !ok {
		swapIn, ok = getMap(swap, "swap_out", "swapOut")
		if !ok {
			return nil
		}
	}
	var hops []SwapOperation
	for _, h := range getArray(swapIn, "swap_operations", "swapOperations") {
		hm, ok := h.(map[string]any)
		if !ok {
			continue
		}
		hops = append(hops, SwapOperation{
			Pool:     getString(hm, "pool", "Pool"),
			DenomIn:  getString(hm, "denom_in", "denomIn"),
			DenomOut: getString(hm, "denom_out", "denomOut"),
		})
	}
	return hops
}

func sumFeesUSD(doc map[string]any) decimal.Decimal {
	total := decimal.Zero
	for _, f := range getArray(doc, "estimated_fees", "estimatedFees") {
		fm, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if usd := getString(fm, "usd_amount", "usdAmount"); usd != "" {
			if d, err := decimal.NewFromString(usd); err == nil {
				total = total.Add(d)
			}
		}
	}
	return total
}

// getString probes the keys in order and returns the first string value.
// Numeric values are formatted rather than dropped since some API versions
// emit amounts as JSON numbers.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return decimal.NewFromFloat(t).String()
		case json.Number:
			return t.String()
		}
	}
	return ""
}

func getDecimal(m map[string]any, keys ...string) decimal.Decimal {
	s := getString(m, keys...)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func getArray(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if v, ok := m[k].([]any); ok {
			return v
		}
	}
	return nil
}

func getMap(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, k := range keys {
		if v, ok := m[k].(map[string]any); ok {
			return v, true
		}
	}
	return nil, false
}
