package engine

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Amber-Finance/amber-strategy-engine/assets"
	"github.com/Amber-Finance/amber-strategy-engine/markets"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/models"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/routing"
)

// fakeOracle quotes a fixed 1:1 rate on the allowed venue. QuoteExactOut can
// be forced to fail to exercise the binary-search fallback.
type fakeOracle struct {
	exactOutErr error
	quoteErr    error
}

func venueQuote(amountIn, amountOut *big.Int) *routing.QuoteResponse {
	return &routing.QuoteResponse{
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
		Venues: []routing.SwapVenue{
			{Name: routing.RequiredVenueName, ChainID: "neutron-1"},
		},
	}
}

func (f *fakeOracle) Quote(_ context.Context, _, _ string, amountIn *big.Int) (*routing.QuoteResponse, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return venueQuote(amountIn, amountIn), nil
}

func (f *fakeOracle) QuoteExactOut(_ context.Context, _, _ string, amountOut *big.Int) (*routing.QuoteResponse, error) {
	if f.exactOutErr != nil {
		return nil, f.exactOutErr
	}
	return venueQuote(amountOut, amountOut), nil
}

type staticSnapshots struct {
	snap *markets.Snapshot
	err  error
}

func (s staticSnapshots) Current() (*markets.Snapshot, error) {
	return s.snap, s.err
}

func testSnapshot() *markets.Snapshot {
	return &markets.Snapshot{
		Assets: map[string]markets.AssetParams{
			"untrn": {
				Denom:                "untrn",
				Symbol:               "NTRN",
				Decimals:             6,
				Price:                decimal.NewFromInt(1),
				MaxLoanToValue:       decimal.RequireFromString("0.80"),
				LiquidationThreshold: decimal.RequireFromString("0.85"),
			},
			"ibc/usdc": {
				Denom:                "ibc/usdc",
				Symbol:               "USDC",
				Decimals:             6,
				Price:                decimal.NewFromInt(1),
				MaxLoanToValue:       decimal.RequireFromString("0.90"),
				LiquidationThreshold: decimal.RequireFromString("0.92"),
			},
		},
	}
}

func newTestPlanner(t *testing.T, oracle routing.Oracle) *Planner {
	t.Helper()
	idx, err := assets.NewIndex(
		[]assets.Meta{
			{Denom: "untrn", Symbol: "NTRN", Decimals: 6},
			{Denom: "ibc/usdc", Symbol: "USDC", Decimals: 6},
		},
		[]assets.Pair{{CollateralDenom: "untrn", DebtDenom: "ibc/usdc"}},
	)
	assert.NoError(t, err)

	return NewPlanner(staticSnapshots{snap: testSnapshot()}, oracle, idx, PlannerConfig{
		MinHealthFactor:    decimal.RequireFromString("1.05"),
		DefaultSlippageBps: 100,
		LeverageBuffer:     decimal.RequireFromString("0.5"),
	})
}

func TestBuildPlanIncrease(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{})

	resp, err := p.BuildPlan(context.Background(), models.PlanRequest{
		Address:         "neutron1abc",
		AccountID:       "42",
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "3.0",
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "increase", resp.Direction)
	assert.Equal(t, "2", resp.CurrentLeverage)
	assert.True(t, resp.RequiresSwap)

	// 3x on 500 equity means 1000 target debt: borrow 500 USD = 5e8 base units.
	assert.NotNil(t, resp.Modify)
	assert.Equal(t, "500000000", resp.Modify.AdditionalBorrowAmount)
	// 1% slippage floor on a 1:1 quote.
	assert.Equal(t, "495000000", resp.Modify.MinSwapOutput)
	assert.Nil(t, resp.Deploy)
}

func TestBuildPlanIncreaseNewPositionUsesDeploy(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{})

	resp, err := p.BuildPlan(context.Background(), models.PlanRequest{
		Address:         "neutron1abc",
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "3.0",
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Deploy)
	assert.Nil(t, resp.Modify)
	assert.Equal(t, "500000000", resp.Deploy.BorrowAmount)
}

func TestBuildPlanDecrease(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{})

	resp, err := p.BuildPlan(context.Background(), models.PlanRequest{
		Address:         "neutron1abc",
		AccountID:       "42",
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1500",
		DebtUSD:         "1000",
		TargetLeverage:  "2.0",
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "decrease", resp.Direction)
	assert.True(t, resp.RequiresSwap)
	assert.NotNil(t, resp.Modify)

	// Collateral-fixed repay: 1500 - 1500/2 = 750 target debt, repay 250 USD.
	assert.Equal(t, "250000000", resp.Modify.DebtToRepay)
	// 1:1 exact-out quote: spend exactly the repay amount of collateral.
	assert.Equal(t, "250000000", resp.Modify.CollateralToWithdraw)
	assert.Equal(t, "decrease", resp.Modify.Direction)
}

func TestBuildPlanDecreaseFallsBackToSearch(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{exactOutErr: fmt.Errorf("exact out unsupported")})

	resp, err := p.BuildPlan(context.Background(), models.PlanRequest{
		Address:         "neutron1abc",
		AccountID:       "42",
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1500",
		DebtUSD:         "1000",
		TargetLeverage:  "2.0",
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Swap)
	// The 1:1 forward quote lets the search land on the target exactly.
	assert.True(t, resp.Swap.WithinTolerance)
	assert.Equal(t, "250000000", resp.Modify.CollateralToWithdraw)
}

func TestBuildPlanAtTargetNeedsNoSwap(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{})

	resp, err := p.BuildPlan(context.Background(), models.PlanRequest{
		Address:         "neutron1abc",
		AccountID:       "42",
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "2.0",
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "none", resp.Direction)
	assert.False(t, resp.RequiresSwap)
	assert.Nil(t, resp.Modify)
}

func TestPlanHealthFactorUsesLiquidationThreshold(t *testing.T) {
	// The fixture's collateral has ltv 0.80 and liquidation threshold 0.85.
	// For 1000/500 -> 3x the simulated position is 1500/1000, so the
	// reported health factor is 1500*0.85/1000, not 1500*0.80/1000.
	p := newTestPlanner(t, &fakeOracle{})

	resp, err := p.BuildPlan(context.Background(), models.PlanRequest{
		Address:         "neutron1abc",
		AccountID:       "42",
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "3.0",
	})
	assert.NoError(t, err)
	assert.Equal(t, "1.275", resp.NewHealthFactor)
	assert.NotEqual(t, "1.2", resp.NewHealthFactor)
}

func TestBuildPlanRejectsUnsafeTarget(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{})

	resp, err := p.BuildPlan(context.Background(), models.PlanRequest{
		Address:         "neutron1abc",
		AccountID:       "42",
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "10.0",
	})
	assert.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEqual(t, "", resp.ErrorMessage)
	assert.False(t, resp.RequiresSwap)
}

func TestBuildPlanRejectsDisabledPair(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{})

	_, err := p.BuildPlan(context.Background(), models.PlanRequest{
		CollateralDenom: "ibc/usdc",
		DebtDenom:       "untrn",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "3.0",
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	p := newTestPlanner(t, &fakeOracle{})

	resp, err := p.Validate(models.ValidateRequest{
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "3.0",
	})
	assert.NoError(t, err)
	assert.True(t, resp.IsValid)
	// (1000+500)*0.85 / (500+500) = 1.275
	assert.Equal(t, "1.275", resp.NewHealthFactor)

	resp, err = p.Validate(models.ValidateRequest{
		CollateralDenom: "untrn",
		DebtDenom:       "ibc/usdc",
		CollateralUSD:   "1000",
		DebtUSD:         "500",
		TargetLeverage:  "10.0",
	})
	assert.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.NotEqual(t, "", resp.Reason)
}
