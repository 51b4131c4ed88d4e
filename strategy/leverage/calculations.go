// Package leverage holds the closed-form algebra behind loop strategies.
//
// All functions operate on USD values at current oracle prices and assume a
// swap converts between the collateral and debt asset 1:1 in USD terms before
// fees and slippage. This is a planning approximation; actual execution may
// diverge due to price impact, which the routing layer accounts for.
package leverage

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// MinLoopLeverage is the lowest target leverage accepted when entering
	// or adjusting a loop. Below 2x the borrow/withdraw formulas degenerate
	// into plain deposits.
	MinLoopLeverage = decimal.NewFromInt(2)

	// HealthFactorCap is the saturating value reported for debt-free
	// positions. Kept finite so it survives JSON serialization.
	HealthFactorCap = decimal.NewFromInt(1_000_000_000)

	// safetyScale shaves the theoretical maximum leverage so positions are
	// not opened right at the liquidation boundary.
	safetyScale = decimal.RequireFromString("0.95")

	one = decimal.NewFromInt(1)
)

// Equity returns collateralUsd - debtUsd.
func Equity(collateralUsd, debtUsd decimal.Decimal) decimal.Decimal {
	return collateralUsd.Sub(debtUsd)
}

// CurrentLeverage returns collateralUsd / (collateralUsd - debtUsd).
// Returns zero when equity <= 0; the position is not manageable and callers
// must treat zero as the invalid sentinel. Never errors.
func CurrentLeverage(collateralUsd, debtUsd decimal.Decimal) decimal.Decimal {
	equity := Equity(collateralUsd, debtUsd)
	if equity.Sign() <= 0 {
		return decimal.Zero
	}
	return collateralUsd.Div(equity)
}

/*
AdditionalBorrowUSD computes how much more debt (in USD) must be borrowed to
bring the position to targetLeverage, holding equity fixed.

	targetDebt = (targetLeverage - 1) * equity

Returns ErrInvalidPosition when equity <= 0 and ErrInvalidTarget when
targetLeverage < MinLoopLeverage. The result is clamped at zero, so a target
below the current leverage yields no borrow rather than a negative amount.
*/
func AdditionalBorrowUSD(collateralUsd, debtUsd, targetLeverage decimal.Decimal) (decimal.Decimal, error) {
	equity := Equity(collateralUsd, debtUsd)
	if equity.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: collateral %s, debt %s", ErrInvalidPosition, collateralUsd, debtUsd)
	}
	if targetLeverage.LessThan(MinLoopLeverage) {
		return decimal.Zero, fmt.Errorf("%w: got %s, need >= %s", ErrInvalidTarget, targetLeverage, MinLoopLeverage)
	}
	targetDebt := targetLeverage.Sub(one).Mul(equity)
	borrow := targetDebt.Sub(debtUsd)
	if borrow.Sign() < 0 {
		return decimal.Zero, nil
	}
	return borrow, nil
}

/*
CollateralToWithdrawUSD computes how much collateral (in USD) must be
withdrawn, swapped into the debt asset and repaid to reduce the position to
targetLeverage, holding equity fixed.

	targetCollateral = targetLeverage * equity

The result is clamped into [0, collateralUsd]. Fails with ErrInvalidTarget
when targetLeverage < MinLoopLeverage and with ErrInvalidPosition when the
position carries no debt (nothing to deleverage) or equity <= 0.
*/
func CollateralToWithdrawUSD(collateralUsd, debtUsd, targetLeverage decimal.Decimal) (decimal.Decimal, error) {
	if debtUsd.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no debt to reduce", ErrInvalidPosition)
	}
	equity := Equity(collateralUsd, debtUsd)
	if equity.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: collateral %s, debt %s", ErrInvalidPosition, collateralUsd, debtUsd)
	}
	if targetLeverage.LessThan(MinLoopLeverage) {
		return decimal.Zero, fmt.Errorf("%w: got %s, need >= %s", ErrInvalidTarget, targetLeverage, MinLoopLeverage)
	}
	targetCollateral := targetLeverage.Mul(equity)
	withdraw := collateralUsd.Sub(targetCollateral)
	if withdraw.Sign() < 0 {
		return decimal.Zero, nil
	}
	if withdraw.GreaterThan(collateralUsd) {
		return collateralUsd, nil
	}
	return withdraw, nil
}

/*
DebtToRepayUSD is the alternative decrease formula that holds collateral
fixed instead of equity:

	targetDebt = collateral - collateral/targetLeverage

The two decrease formulas encode different invariants and are both used,
by different call sites; pick the one matching the routing mode (the plan
builder reverse-routes against this repay amount). The result is clamped
into [0, debtUsd].
*/
func DebtToRepayUSD(collateralUsd, debtUsd, targetLeverage decimal.Decimal) (decimal.Decimal, error) {
	if debtUsd.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no debt to repay", ErrInvalidPosition)
	}
	if targetLeverage.LessThan(MinLoopLeverage) {
		return decimal.Zero, fmt.Errorf("%w: got %s, need >= %s", ErrInvalidTarget, targetLeverage, MinLoopLeverage)
	}
	targetDebt := collateralUsd.Sub(collateralUsd.Div(targetLeverage))
	repay := debtUsd.Sub(targetDebt)
	if repay.Sign() < 0 {
		return decimal.Zero, nil
	}
	if repay.GreaterThan(debtUsd) {
		return debtUsd, nil
	}
	return repay, nil
}

// HealthFactor returns (collateralUsd * ltv) / debtUsd. A position with no
// debt saturates at HealthFactorCap rather than reporting literal infinity.
func HealthFactor(collateralUsd, debtUsd, ltv decimal.Decimal) decimal.Decimal {
	if debtUsd.Sign() <= 0 {
		return HealthFactorCap
	}
	hf := collateralUsd.Mul(ltv).Div(debtUsd)
	if hf.GreaterThan(HealthFactorCap) {
		return HealthFactorCap
	}
	return hf
}

// MaxSafeLeverage derives the highest target leverage allowed for a market:
//
//	theoretical = ltv / (ltv - 1/minHealthFactor)
//
// scaled by 0.95 and floored at 1.0. When the theoretical formula has no
// positive solution (ltv <= 1/minHF) the floor of 1.0 is returned.
func MaxSafeLeverage(ltv, minHealthFactor decimal.Decimal) decimal.Decimal {
	if ltv.Sign() <= 0 || minHealthFactor.Sign() <= 0 {
		return one
	}
	denom := ltv.Sub(one.Div(minHealthFactor))
	if denom.Sign() <= 0 {
		// No positive solution: the market's LTV cannot sustain the
		// requested health floor at any leverage above 1x.
		return one
	}
	theoretical := ltv.Div(denom)
	scaled := theoretical.Mul(safetyScale)
	if scaled.LessThan(one) {
		return one
	}
	return scaled
}

// MaxLeverageWithBuffer is the LTV-based variant used by deposit-form call
// sites: 1/(1-ltv) minus a fixed buffer, floored at 1.0. Kept as a distinct
// named operation alongside MaxSafeLeverage.
func MaxLeverageWithBuffer(ltv, buffer decimal.Decimal) decimal.Decimal {
	if ltv.Sign() <= 0 || ltv.GreaterThanOrEqual(one) {
		return one
	}
	lev := one.Div(one.Sub(ltv)).Sub(buffer)
	if lev.LessThan(one) {
		return one
	}
	return lev
}

// SimulatePosition applies a leverage change and returns the resulting
// collateral and debt in USD. The increase branch borrows and redeposits
// (c+Δ, d+Δ); the decrease branch withdraws and repays (c-W, d-W), both
// holding equity fixed. A target equal to the current leverage leaves the
// position untouched.
func SimulatePosition(collateralUsd, debtUsd, targetLeverage decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	current := CurrentLeverage(collateralUsd, debtUsd)
	if current.IsZero() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: collateral %s, debt %s", ErrInvalidPosition, collateralUsd, debtUsd)
	}

	switch {
	case targetLeverage.GreaterThan(current):
		borrow, err := AdditionalBorrowUSD(collateralUsd, debtUsd, targetLeverage)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		return collateralUsd.Add(borrow), debtUsd.Add(borrow), nil
	case targetLeverage.LessThan(current):
		withdraw, err := CollateralToWithdrawUSD(collateralUsd, debtUsd, targetLeverage)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		newDebt := debtUsd.Sub(withdraw)
		if newDebt.Sign() < 0 {
			newDebt = decimal.Zero
		}
		return collateralUsd.Sub(withdraw), newDebt, nil
	}
	return collateralUsd, debtUsd, nil
}

// ValidationResult reports the outcome of a pre-flight leverage check.
// Unsafe changes are reported as a structured failure, not an error return.
type ValidationResult struct {
	IsValid         bool            `json:"is_valid"`
	NewHealthFactor decimal.Decimal `json:"new_health_factor"`
	Reason          string          `json:"reason,omitempty"`
}

/*
ValidateLeverageChange simulates the post-action position and checks the
resulting health factor against minHealthFactor.

The increase branch borrows Δ and swaps it into collateral (c+Δ, d+Δ); the
decrease branch withdraws W collateral and repays it as debt (c-W, d-W).
A boundary health factor exactly equal to minHealthFactor is valid: the
check rejects only strictly-below values.
*/
func ValidateLeverageChange(collateralUsd, debtUsd, targetLeverage, ltv, minHealthFactor decimal.Decimal) ValidationResult {
	newCollateral, newDebt, err := SimulatePosition(collateralUsd, debtUsd, targetLeverage)
	if err != nil {
		return ValidationResult{IsValid: false, NewHealthFactor: decimal.Zero, Reason: err.Error()}
	}

	hf := HealthFactor(newCollateral, newDebt, ltv)
	if hf.LessThan(minHealthFactor) {
		return ValidationResult{
			IsValid:         false,
			NewHealthFactor: hf,
			Reason:          fmt.Sprintf("health factor %s below minimum %s", hf.StringFixed(4), minHealthFactor),
		}
	}
	return ValidationResult{IsValid: true, NewHealthFactor: hf}
}

// TokenAmounts is the signed intent derived from a leverage change,
// expressed in raw token base units (decimal-shifted integer strings).
// Computed fresh on every leverage-target change and never persisted.
type TokenAmounts struct {
	IsIncreasing bool `json:"is_increasing"`

	// Set when IsIncreasing: debt-asset base units to borrow and swap into
	// collateral.
	AdditionalBorrowAmount string `json:"additional_borrow_amount,omitempty"`

	// Set when decreasing. Both are computed so the caller can pick forward
	// routing (spend CollateralToWithdraw) or reverse routing (target
	// DebtToRepay exactly).
	CollateralToWithdraw string `json:"collateral_to_withdraw,omitempty"`
	DebtToRepay          string `json:"debt_to_repay,omitempty"`
}

// AssetTerms carries the oracle price and decimal shift of one asset.
type AssetTerms struct {
	Price    decimal.Decimal
	Decimals int32
}

/*
ConvertLeverageChange turns the USD deltas of a leverage change into raw
token amounts for the broadcaster.

Increase: borrow additionalBorrowUSD worth of the debt asset.
Decrease: withdraw collateral worth CollateralToWithdrawUSD and repay
DebtToRepayUSD worth of debt; both amounts are returned so the routing
layer can choose the invariant it executes against.
*/
func ConvertLeverageChange(
	collateralUsd, debtUsd, targetLeverage decimal.Decimal,
	collateral, debt AssetTerms,
) (TokenAmounts, error) {
	current := CurrentLeverage(collateralUsd, debtUsd)
	if current.IsZero() {
		return TokenAmounts{}, fmt.Errorf("%w: collateral %s, debt %s", ErrInvalidPosition, collateralUsd, debtUsd)
	}

	if targetLeverage.GreaterThanOrEqual(current) {
		borrowUsd, err := AdditionalBorrowUSD(collateralUsd, debtUsd, targetLeverage)
		if err != nil {
			return TokenAmounts{}, err
		}
		return TokenAmounts{
			IsIncreasing:           true,
			AdditionalBorrowAmount: usdToBaseUnits(borrowUsd, debt),
		}, nil
	}

	withdrawUsd, err := CollateralToWithdrawUSD(collateralUsd, debtUsd, targetLeverage)
	if err != nil {
		return TokenAmounts{}, err
	}
	repayUsd, err := DebtToRepayUSD(collateralUsd, debtUsd, targetLeverage)
	if err != nil {
		return TokenAmounts{}, err
	}
	return TokenAmounts{
		IsIncreasing:         false,
		CollateralToWithdraw: usdToBaseUnits(withdrawUsd, collateral),
		DebtToRepay:          usdToBaseUnits(repayUsd, debt),
	}, nil
}

// usdToBaseUnits converts a USD value into integer token base units, floored
// so the intent never exceeds what the USD value buys at the oracle price.
func usdToBaseUnits(usd decimal.Decimal, terms AssetTerms) string {
	if usd.Sign() <= 0 || terms.Price.Sign() <= 0 {
		return "0"
	}
	tokens := usd.Div(terms.Price)
	return tokens.Shift(terms.Decimals).Floor().String()
}
