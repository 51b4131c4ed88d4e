package routing

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/Amber-Finance/amber-strategy-engine/strategy/leverage"
)

// Oracle is the forward/reverse quote source. Forward quotes are assumed
// monotonic non-decreasing in amountIn for a fixed denom pair; the reverse
// search depends on that invariant. The native exact-out method may be
// unavailable or failing, in which case callers fall back to the search.
type Oracle interface {
	Quote(ctx context.Context, denomIn, denomOut string, amountIn *big.Int) (*QuoteResponse, error)
	QuoteExactOut(ctx context.Context, denomIn, denomOut string, amountOut *big.Int) (*QuoteResponse, error)
}

// RouteInfo is the executable swap plan handed to the broadcaster.
type RouteInfo struct {
	AmountOut string `json:"amount_out"`
	// AmountIn is present only for reverse-solved or reverse-native routes.
	AmountIn    string          `json:"amount_in,omitempty"`
	PriceImpact decimal.Decimal `json:"price_impact"`
	FeeUSD      decimal.Decimal `json:"fee_usd"`
	Description string          `json:"description"`
	// WithinTolerance is false only for best-effort reverse-search routes
	// whose output missed the tolerance band.
	WithinTolerance bool `json:"within_tolerance"`
	// Route is the oracle's document, passed through unmodified.
	Route *QuoteResponse `json:"route"`
}

const (
	// maxSearchIterations bounds the reverse search. Ten halvings over a
	// +/-50% domain reach roughly 0.1% of the target; the tolerance band
	// plus best-candidate tracking covers the remainder, so extra
	// iterations buy nothing but oracle load.
	maxSearchIterations = 10

	// toleranceRatio is the acceptable relative error of the solved output:
	// 0.05% of the target, floored at one base unit.
	toleranceRatio = "0.0005"
)

// SearchResult is the outcome of a reverse-routing search.
type SearchResult struct {
	AmountIn        *big.Int
	AmountOut       *big.Int
	Quote           *QuoteResponse
	Iterations      int
	WithinTolerance bool
}

// searchTolerance is max(round(target * 0.0005), 1) in base units.
func searchTolerance(target *big.Int) *big.Int {
	t := decimal.NewFromBigInt(target, 0).Mul(decimal.RequireFromString(toleranceRatio)).Round(0).BigInt()
	if t.Sign() < 1 {
		return big.NewInt(1)
	}
	return t
}

/*
BinarySearchReverseRouting finds an input amount whose forward quote lands
within the tolerance band around targetOut.

The search domain is [target*(1-slippage), target*(1+slippage)] in integer
base units; slippage is deliberately wide (0.5 means +/-50%) because routing
output is not linear in input near venue boundaries. All midpoints stay
integral. A failing quote call mid-search is read as "amount too low" and
pushes the lower bound up instead of aborting; non-monotonic noise is
absorbed by retaining the best candidate seen across all iterations.

When no iteration lands inside the band the best candidate is still
returned, flagged WithinTolerance=false — the caller decides whether best
effort is acceptable. Only when no usable candidate was ever produced (every
quote failed or returned zero) does the search fail with ErrNoRouteFound.
*/
func BinarySearchReverseRouting(
	ctx context.Context,
	oracle Oracle,
	denomIn, denomOut string,
	targetOut *big.Int,
	slippage decimal.Decimal,
) (*SearchResult, error) {
	if targetOut == nil || targetOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: target output must be positive", leverage.ErrNoRouteFound)
	}

	target := decimal.NewFromBigInt(targetOut, 0)
	low := target.Mul(decimal.NewFromInt(1).Sub(slippage)).Floor().BigInt()
	high := target.Mul(decimal.NewFromInt(1).Add(slippage)).Ceil().BigInt()
	if low.Sign() < 1 {
		low = big.NewInt(1)
	}
	tolerance := searchTolerance(targetOut)

	log.Debug().
		Str("target", targetOut.String()).
		Str("low", low.String()).
		Str("high", high.String()).
		Str("tolerance", tolerance.String()).
		Msg("Starting reverse routing search")

	best := &SearchResult{}
	var bestErr *big.Int
	one := big.NewInt(1)

	for i := 0; i < maxSearchIterations; i++ {
		if low.Cmp(high) > 0 {
			break
		}
		best.Iterations = i + 1

		// mid = floor((low+high)/2); stays integral by construction.
		mid := new(big.Int).Add(low, high)
		mid.Rsh(mid, 1)

		quote, err := oracle.Quote(ctx, denomIn, denomOut, mid)
		if err != nil {
			// A transient quote failure is a direction signal, not a fatal
			// condition: treat the amount as too low and search upward.
			log.Debug().Err(err).Str("amountIn", mid.String()).Msg("Quote failed mid-search, searching upward")
			low = new(big.Int).Add(mid, one)
			continue
		}

		out, ok := quote.AmountOutInt()
		if !ok || out.Sign() <= 0 {
			low = new(big.Int).Add(mid, one)
			continue
		}

		diff := new(big.Int).Sub(out, targetOut)
		absDiff := new(big.Int).Abs(diff)

		if bestErr == nil || absDiff.Cmp(bestErr) < 0 {
			bestErr = absDiff
			best.AmountIn = mid
			best.AmountOut = out
			best.Quote = quote
		}

		if absDiff.Cmp(tolerance) <= 0 {
			best.WithinTolerance = true
			log.Debug().
				Int("iterations", best.Iterations).
				Str("amountIn", mid.String()).
				Str("amountOut", out.String()).
				Msg("Reverse search converged")
			return best, nil
		}

		if diff.Sign() > 0 {
			high = new(big.Int).Sub(mid, one)
		} else {
			low = new(big.Int).Add(mid, one)
		}

		// Degenerate range guard: integer halving on a collapsed range
		// cannot make progress, stop before burning the iteration budget.
		if new(big.Int).Sub(high, low).Cmp(one) < 0 && low.Cmp(high) > 0 {
			break
		}
	}

	if best.Quote == nil {
		return nil, fmt.Errorf("%w: search exhausted after %d iterations for target %s",
			leverage.ErrNoRouteFound, best.Iterations, targetOut)
	}

	log.Warn().
		Int("iterations", best.Iterations).
		Str("target", targetOut.String()).
		Str("bestOut", best.AmountOut.String()).
		Msg("Reverse search exhausted tolerance, returning best candidate")
	return best, nil
}

/*
ReverseRoute resolves "I need exactly targetOut of denomOut; how much
denomIn must I swap?".

Tier 1 asks the oracle's native exact-out method and trusts its amountIn.
Tier 2, on any tier-1 failure, runs the binary search over forward quotes.
If both tiers fail the tier-1 error is surfaced, not the fallback's: the
native failure is the primary reason the resolution broke and is the one
worth debugging.

Both tiers enforce the single-venue policy; a disallowed venue on the
native response is a terminal rejection, not a trigger for the fallback.
*/
func ReverseRoute(
	ctx context.Context,
	oracle Oracle,
	denomIn, denomOut string,
	targetOut *big.Int,
	slippage decimal.Decimal,
) (*RouteInfo, error) {
	reverseAttempts.Inc()

	quote, nativeErr := oracle.QuoteExactOut(ctx, denomIn, denomOut, targetOut)
	if nativeErr == nil {
		if err := RequireDirectVenue(quote); err != nil {
			return nil, err
		}
		return buildRouteInfo(quote, fmt.Sprintf("reverse-native %s -> %s", denomIn, denomOut)), nil
	}

	log.Debug().Err(nativeErr).Msg("Native reverse quote failed, falling back to binary search")
	reverseFallbacks.Inc()

	result, searchErr := BinarySearchReverseRouting(ctx, oracle, denomIn, denomOut, targetOut, slippage)
	if searchErr != nil {
		// Surface the primary failure, keep the fallback's for the logs.
		log.Warn().AnErr("native", nativeErr).AnErr("fallback", searchErr).Msg("Reverse routing failed on both tiers")
		return nil, fmt.Errorf("reverse quote failed: %w", nativeErr)
	}
	searchIterations.Observe(float64(result.Iterations))

	if err := RequireDirectVenue(result.Quote); err != nil {
		return nil, err
	}

	info := buildRouteInfo(result.Quote, fmt.Sprintf("reverse-search %s -> %s", denomIn, denomOut))
	// The searched input is authoritative even when the quote document
	// echoes a different field shape.
	info.AmountIn = result.AmountIn.String()
	info.WithinTolerance = result.WithinTolerance
	return info, nil
}

// ForwardRoute obtains a venue-checked plan for a known input amount.
func ForwardRoute(
	ctx context.Context,
	oracle Oracle,
	denomIn, denomOut string,
	amountIn *big.Int,
) (*RouteInfo, error) {
	forwardQuotes.Inc()

	quote, err := oracle.Quote(ctx, denomIn, denomOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("forward quote failed: %w", err)
	}
	if err := RequireDirectVenue(quote); err != nil {
		return nil, err
	}
	return buildRouteInfo(quote, fmt.Sprintf("forward %s -> %s", denomIn, denomOut)), nil
}

func buildRouteInfo(q *QuoteResponse, description string) *RouteInfo {
	return &RouteInfo{
		AmountOut:       q.AmountOut,
		AmountIn:        q.AmountIn,
		PriceImpact:     q.PriceImpactPercent,
		FeeUSD:          q.FeeUSD,
		Description:     description,
		WithinTolerance: true,
		Route:           q,
	}
}
