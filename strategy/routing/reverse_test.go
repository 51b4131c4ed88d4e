package routing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Amber-Finance/amber-strategy-engine/strategy/leverage"
)

// rateOracle quotes out = in * num / den on the allowed venue.
type rateOracle struct {
	num, den    int64
	exactOutErr error
	failBelow   *big.Int // Quote errors for amounts below this
	quoteCalls  int
	venueName   string
}

func newRateOracle(num, den int64) *rateOracle {
	return &rateOracle{num: num, den: den, venueName: RequiredVenueName}
}

func (o *rateOracle) quoteAt(amountIn *big.Int) *QuoteResponse {
	out := new(big.Int).Mul(amountIn, big.NewInt(o.num))
	out.Div(out, big.NewInt(o.den))
	return &QuoteResponse{
		AmountIn:  amountIn.String(),
		AmountOut: out.String(),
		Venues:    []SwapVenue{{Name: o.venueName, ChainID: "neutron-1"}},
	}
}

func (o *rateOracle) Quote(_ context.Context, _, _ string, amountIn *big.Int) (*QuoteResponse, error) {
	o.quoteCalls++
	if o.failBelow != nil && amountIn.Cmp(o.failBelow) < 0 {
		return nil, fmt.Errorf("simulated liquidity failure")
	}
	return o.quoteAt(amountIn), nil
}

func (o *rateOracle) QuoteExactOut(_ context.Context, _, _ string, amountOut *big.Int) (*QuoteResponse, error) {
	if o.exactOutErr != nil {
		return nil, o.exactOutErr
	}
	in := new(big.Int).Mul(amountOut, big.NewInt(o.den))
	in.Div(in, big.NewInt(o.num))
	return &QuoteResponse{
		AmountIn:  in.String(),
		AmountOut: amountOut.String(),
		Venues:    []SwapVenue{{Name: o.venueName, ChainID: "neutron-1"}},
	}, nil
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad test amount " + s)
	}
	return n
}

var slip = decimal.RequireFromString("0.5")

func TestSearchConvergesAcrossMagnitudes(t *testing.T) {
	// An off-par rate forces real searching; targets span six orders of
	// magnitude and every search must land inside tolerance within budget.
	targets := []string{"1000", "50000", "1000000", "250000000", "7000000000", "1000000000000"}
	for _, ts := range targets {
		oracle := newRateOracle(97, 100)
		target := mustBig(ts)

		result, err := BinarySearchReverseRouting(context.Background(), oracle, "untrn", "ibc/usdc", target, slip)
		assert.NoError(t, err)
		assert.True(t, result.WithinTolerance)
		assert.True(t, result.Iterations <= maxSearchIterations)

		diff := new(big.Int).Sub(result.AmountOut, target)
		assert.True(t, diff.Abs(diff).Cmp(searchTolerance(target)) <= 0)
	}
}

// tierOracle models a fee-tier jump: amounts below step pay belowFee,
// amounts at or above it pay a different aboveFee on top of par. Every
// quoted output is recorded.
type tierOracle struct {
	step               *big.Int
	belowFee, aboveFee int64
	outs               []*big.Int
}

func (o *tierOracle) Quote(_ context.Context, _, _ string, amountIn *big.Int) (*QuoteResponse, error) {
	out := new(big.Int).Set(amountIn)
	if amountIn.Cmp(o.step) < 0 {
		out.Sub(out, big.NewInt(o.belowFee))
	} else {
		out.Add(out, big.NewInt(o.aboveFee))
	}
	o.outs = append(o.outs, out)
	return &QuoteResponse{
		AmountIn:  amountIn.String(),
		AmountOut: out.String(),
		Venues:    []SwapVenue{{Name: RequiredVenueName, ChainID: "neutron-1"}},
	}, nil
}

func (o *tierOracle) QuoteExactOut(_ context.Context, _, _ string, _ *big.Int) (*QuoteResponse, error) {
	return nil, fmt.Errorf("exact out not supported")
}

func TestSearchRetainsBestCandidateAcrossIterations(t *testing.T) {
	// The fee jump at 1,001,000 leaves the tolerance band around 1,000,000
	// unreachable from either side, and the last probed amount lands on the
	// worse side of the jump. The search must still return the closest
	// candidate seen, not the last one.
	oracle := &tierOracle{step: mustBig("1001000"), belowFee: 5000, aboveFee: 700}
	target := mustBig("1000000")

	result, err := BinarySearchReverseRouting(context.Background(), oracle, "untrn", "ibc/usdc", target, slip)
	assert.NoError(t, err)
	assert.False(t, result.WithinTolerance)
	assert.Equal(t, "1001953", result.AmountIn.String())
	assert.Equal(t, "1002653", result.AmountOut.String())

	// No quoted candidate was closer than the one returned.
	bestDiff := new(big.Int).Sub(result.AmountOut, target)
	bestDiff.Abs(bestDiff)
	for _, out := range oracle.outs {
		diff := new(big.Int).Sub(out, target)
		assert.True(t, bestDiff.Cmp(diff.Abs(diff)) <= 0)
	}
}

func TestSearchToleranceFormula(t *testing.T) {
	// 0.05% of 1,000,000 is 500.
	assert.Equal(t, int64(500), searchTolerance(big.NewInt(1_000_000)).Int64())
	// Tiny targets floor at one base unit.
	assert.Equal(t, int64(1), searchTolerance(big.NewInt(100)).Int64())
	assert.Equal(t, int64(1), searchTolerance(big.NewInt(1)).Int64())
}

func TestSearchTreatsQuoteFailureAsTooLow(t *testing.T) {
	oracle := newRateOracle(100, 100)
	target := mustBig("1000000")
	// Everything below 1.1M fails; only the upper part of the domain quotes.
	oracle.failBelow = mustBig("1100000")

	result, err := BinarySearchReverseRouting(context.Background(), oracle, "untrn", "ibc/usdc", target, slip)
	// The only quotable amounts overshoot the target beyond tolerance, so
	// the search returns its best candidate without the tolerance flag.
	assert.NoError(t, err)
	assert.False(t, result.WithinTolerance)
	assert.NotNil(t, result.Quote)
	assert.True(t, result.AmountIn.Cmp(oracle.failBelow) >= 0)
}

func TestSearchFailsWhenNothingQuotes(t *testing.T) {
	oracle := newRateOracle(100, 100)
	target := mustBig("1000000")
	oracle.failBelow = mustBig("100000000") // beyond the search domain

	_, err := BinarySearchReverseRouting(context.Background(), oracle, "untrn", "ibc/usdc", target, slip)
	assert.True(t, errors.Is(err, leverage.ErrNoRouteFound))
}

func TestSearchRejectsNonPositiveTarget(t *testing.T) {
	oracle := newRateOracle(100, 100)
	_, err := BinarySearchReverseRouting(context.Background(), oracle, "a", "b", big.NewInt(0), slip)
	assert.True(t, errors.Is(err, leverage.ErrNoRouteFound))

	_, err = BinarySearchReverseRouting(context.Background(), oracle, "a", "b", nil, slip)
	assert.True(t, errors.Is(err, leverage.ErrNoRouteFound))
}

func TestReverseRoutePrefersNativeExactOut(t *testing.T) {
	oracle := newRateOracle(97, 100)
	target := mustBig("1000000")

	info, err := ReverseRoute(context.Background(), oracle, "untrn", "ibc/usdc", target, slip)
	assert.NoError(t, err)
	assert.True(t, info.WithinTolerance)
	assert.Equal(t, "1000000", info.AmountOut)
	// Native path never touches the forward quote method.
	assert.Equal(t, 0, oracle.quoteCalls)
}

func TestReverseRouteFallsBackToSearch(t *testing.T) {
	oracle := newRateOracle(97, 100)
	oracle.exactOutErr = fmt.Errorf("exact out not supported")
	target := mustBig("1000000")

	info, err := ReverseRoute(context.Background(), oracle, "untrn", "ibc/usdc", target, slip)
	assert.NoError(t, err)
	assert.True(t, info.WithinTolerance)
	assert.True(t, oracle.quoteCalls > 0)
	assert.NotEqual(t, "", info.AmountIn)
}

func TestReverseRouteSurfacesNativeError(t *testing.T) {
	oracle := newRateOracle(100, 100)
	nativeErr := fmt.Errorf("native reverse outage")
	oracle.exactOutErr = nativeErr
	oracle.failBelow = mustBig("100000000") // fallback cannot quote either

	_, err := ReverseRoute(context.Background(), oracle, "untrn", "ibc/usdc", mustBig("1000000"), slip)
	assert.Error(t, err)
	// The primary (native) failure is the one surfaced.
	assert.True(t, errors.Is(err, nativeErr))
}

func TestReverseRouteRejectsDisallowedVenueTerminally(t *testing.T) {
	oracle := newRateOracle(100, 100)
	oracle.venueName = "osmosis-poolmanager"

	_, err := ReverseRoute(context.Background(), oracle, "untrn", "ibc/usdc", mustBig("1000000"), slip)
	assert.True(t, errors.Is(err, leverage.ErrNoDirectVenueRoute))
	// Venue rejection on the native tier must not trigger the fallback.
	assert.Equal(t, 0, oracle.quoteCalls)
}

func TestForwardRoute(t *testing.T) {
	oracle := newRateOracle(97, 100)

	info, err := ForwardRoute(context.Background(), oracle, "ibc/usdc", "untrn", mustBig("1000000"))
	assert.NoError(t, err)
	assert.Equal(t, "970000", info.AmountOut)
	assert.True(t, info.WithinTolerance)

	oracle.venueName = "astroport"
	_, err = ForwardRoute(context.Background(), oracle, "ibc/usdc", "untrn", mustBig("1000000"))
	assert.True(t, errors.Is(err, leverage.ErrNoDirectVenueRoute))
}
