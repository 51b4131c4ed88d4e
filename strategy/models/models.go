package models

import "encoding/json"

// PlanRequest - POST body for /v1/strategy/plan
type PlanRequest struct {
	Address         string  `json:"address"`                // bech32 account that owns the position
	AccountID       string  `json:"account_id,omitempty"`   // credit account ID; empty for a new position
	CollateralDenom string  `json:"collateral_denom"`       // e.g., "untrn"
	DebtDenom       string  `json:"debt_denom"`             // e.g., "ibc/USDC..."
	CollateralUSD   string  `json:"collateral_usd"`         // current collateral value in USD
	DebtUSD         string  `json:"debt_usd"`               // current debt value in USD
	TargetLeverage  string  `json:"target_leverage"`        // desired multiplier, e.g., "3.0"
	SlippageBps     *uint32 `json:"slippage_bps,omitempty"` // if nil, the configured default applies
}

// RouteSummary describes the swap leg of a plan.
type RouteSummary struct {
	AmountIn        string          `json:"amount_in"`
	AmountOut       string          `json:"amount_out"`
	PriceImpact     string          `json:"price_impact"`
	FeeUSD          string          `json:"fee_usd"`
	WithinTolerance bool            `json:"within_tolerance"`
	Description     string          `json:"description,omitempty"`
	Route           json.RawMessage `json:"route,omitempty"` // raw route for transaction building
}

// PlanResponse - unified response for increase, decrease, and no-swap plans.
type PlanResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	Direction       string        `json:"direction"` // "increase" | "decrease" | "none"
	CurrentLeverage string        `json:"current_leverage"`
	TargetLeverage  string        `json:"target_leverage"`
	EquityUSD       string        `json:"equity_usd"`
	NewHealthFactor string        `json:"new_health_factor"`
	MaxSafeLeverage string        `json:"max_safe_leverage"`
	RequiresSwap    bool          `json:"requires_swap"`
	Swap            *RouteSummary `json:"swap,omitempty"`

	Deploy *DeployStrategyConfig `json:"deploy,omitempty"`
	Modify *ModifyLeverageConfig `json:"modify,omitempty"`
}

// ValidateRequest - POST body for /v1/strategy/validate
type ValidateRequest struct {
	CollateralDenom string `json:"collateral_denom"`
	DebtDenom       string `json:"debt_denom"`
	CollateralUSD   string `json:"collateral_usd"`
	DebtUSD         string `json:"debt_usd"`
	TargetLeverage  string `json:"target_leverage"`
}

// ValidateResponse reports whether the target leverage keeps the position
// above the minimum health factor.
type ValidateResponse struct {
	IsValid         bool   `json:"is_valid"`
	NewHealthFactor string `json:"new_health_factor"`
	Reason          string `json:"reason,omitempty"`
}

// DeployStrategyConfig is the broadcaster payload for opening a position:
// create the credit account, deposit, borrow, swap, and re-lend in one
// transaction.
type DeployStrategyConfig struct {
	Address         string          `json:"address"`
	CollateralDenom string          `json:"collateral_denom"`
	DebtDenom       string          `json:"debt_denom"`
	DepositAmount   string          `json:"deposit_amount"`   // base units of collateral
	BorrowAmount    string          `json:"borrow_amount"`    // base units of debt asset
	MinSwapOutput   string          `json:"min_swap_output"`  // slippage-bounded swap floor
	Route           json.RawMessage `json:"route,omitempty"`  // swap route for the action list
}

// ModifyLeverageConfig is the broadcaster payload for adjusting an existing
// position's leverage.
type ModifyLeverageConfig struct {
	Address   string `json:"address"`
	AccountID string `json:"account_id"`
	Direction string `json:"direction"` // "increase" | "decrease"

	// Increase: borrow this much debt asset and swap it into collateral.
	AdditionalBorrowAmount string `json:"additional_borrow_amount,omitempty"`

	// Decrease: withdraw collateral, swap it for the debt asset, repay.
	CollateralToWithdraw string `json:"collateral_to_withdraw,omitempty"`
	DebtToRepay          string `json:"debt_to_repay,omitempty"`

	MinSwapOutput string          `json:"min_swap_output,omitempty"`
	Route         json.RawMessage `json:"route,omitempty"`
}

// SessionRef identifies one position's session. AccountID is empty for a
// position that has not been deployed yet.
type SessionRef struct {
	Address   string `json:"address"`
	AccountID string `json:"account_id,omitempty"`
}

// SessionResolveRequest - POST body for /v1/session/resolve. Error carries
// the broadcast failure, empty on success.
type SessionResolveRequest struct {
	Address   string `json:"address"`
	AccountID string `json:"account_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SessionStateResponse reports a session machine's lifecycle phase together
// with the plan or error of its last completed cycle.
type SessionStateResponse struct {
	State string        `json:"state"`
	Plan  *PlanResponse `json:"plan,omitempty"`
	Error string        `json:"error,omitempty"`
}

// MarketInfo - one entry of GET /v1/markets
type MarketInfo struct {
	Denom                string `json:"denom"`
	Symbol               string `json:"symbol"`
	Price                string `json:"price"`
	MaxLoanToValue       string `json:"max_loan_to_value"`
	LiquidationThreshold string `json:"liquidation_threshold"`
	BorrowRate           string `json:"borrow_rate"`
	SupplyRate           string `json:"supply_rate"`
	MaxLeverage          string `json:"max_leverage"` // buffer-adjusted UI ceiling
}

// MarketsResponse - GET /v1/markets
type MarketsResponse struct {
	Markets   []MarketInfo `json:"markets"`
	FetchedAt string       `json:"fetched_at"`
}
