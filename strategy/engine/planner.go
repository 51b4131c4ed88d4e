// Package engine turns leverage targets into executable plans. The planner
// computes the swap a leverage change needs and prices it through the
// routing layer; the machine sequences recomputation as user input changes.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Amber-Finance/amber-strategy-engine/assets"
	"github.com/Amber-Finance/amber-strategy-engine/markets"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/leverage"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/models"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/routing"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "engine").Logger()
}

// SnapshotSource yields the current market snapshot.
type SnapshotSource interface {
	Current() (*markets.Snapshot, error)
}

// Planner computes leverage-change plans against live market data.
type Planner struct {
	snapshots SnapshotSource
	oracle    routing.Oracle
	index     *assets.Index

	minHealthFactor    decimal.Decimal
	defaultSlippageBps uint32
	leverageBuffer     decimal.Decimal
}

// PlannerConfig carries the risk parameters the planner enforces.
type PlannerConfig struct {
	MinHealthFactor    decimal.Decimal
	DefaultSlippageBps uint32
	LeverageBuffer     decimal.Decimal
}

// NewPlanner wires a planner from its market, routing, and catalog sources.
func NewPlanner(snapshots SnapshotSource, oracle routing.Oracle, index *assets.Index, cfg PlannerConfig) *Planner {
	return &Planner{
		snapshots:          snapshots,
		oracle:             oracle,
		index:              index,
		minHealthFactor:    cfg.MinHealthFactor,
		defaultSlippageBps: cfg.DefaultSlippageBps,
		leverageBuffer:     cfg.LeverageBuffer,
	}
}

// BuildPlan computes the full plan for a target leverage: direction, token
// amounts, swap route, validation, and the broadcaster payload.
func (p *Planner) BuildPlan(ctx context.Context, req models.PlanRequest) (*models.PlanResponse, error) {
	if !p.index.PairEnabled(req.CollateralDenom, req.DebtDenom) {
		return nil, fmt.Errorf("pair %s/%s is not enabled", req.CollateralDenom, req.DebtDenom)
	}

	snap, err := p.snapshots.Current()
	if err != nil {
		return nil, fmt.Errorf("market data unavailable: %w", err)
	}
	collateralAsset, ok := snap.Asset(req.CollateralDenom)
	if !ok {
		return nil, fmt.Errorf("no market for collateral denom %s", req.CollateralDenom)
	}
	debtAsset, ok := snap.Asset(req.DebtDenom)
	if !ok {
		return nil, fmt.Errorf("no market for debt denom %s", req.DebtDenom)
	}

	collateralUSD, err := decimal.NewFromString(req.CollateralUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid collateral_usd: %w", err)
	}
	debtUSD, err := decimal.NewFromString(req.DebtUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid debt_usd: %w", err)
	}
	targetLeverage, err := decimal.NewFromString(req.TargetLeverage)
	if err != nil {
		return nil, fmt.Errorf("invalid target_leverage: %w", err)
	}

	slippage := p.slippageRatio(req.SlippageBps)

	amounts, err := leverage.ConvertLeverageChange(
		collateralUSD, debtUSD, targetLeverage,
		leverage.AssetTerms{Price: collateralAsset.Price, Decimals: collateralAsset.Decimals},
		leverage.AssetTerms{Price: debtAsset.Price, Decimals: debtAsset.Decimals},
	)
	if err != nil {
		return nil, err
	}

	resp := &models.PlanResponse{
		Success:         true,
		TargetLeverage:  targetLeverage.String(),
		CurrentLeverage: leverage.CurrentLeverage(collateralUSD, debtUSD).String(),
		EquityUSD:       leverage.Equity(collateralUSD, debtUSD).String(),
		MaxSafeLeverage: leverage.MaxSafeLeverage(collateralAsset.MaxLoanToValue, p.minHealthFactor).String(),
	}

	if amounts.IsIncreasing {
		resp.Direction = "increase"
		return p.planIncrease(ctx, req, resp, amounts, collateralUSD, debtUSD, targetLeverage, collateralAsset, slippage)
	}
	return p.planDecrease(ctx, req, resp, amounts, collateralUSD, debtUSD, targetLeverage, collateralAsset, slippage)
}

// planIncrease prices the borrowed debt asset into collateral with a forward
// quote. A zero borrow amount means the position is already at target.
func (p *Planner) planIncrease(
	ctx context.Context,
	req models.PlanRequest,
	resp *models.PlanResponse,
	amounts leverage.TokenAmounts,
	collateralUSD, debtUSD, targetLeverage decimal.Decimal,
	collateralAsset markets.AssetParams,
	slippage decimal.Decimal,
) (*models.PlanResponse, error) {
	borrowBase, ok := new(big.Int).SetString(amounts.AdditionalBorrowAmount, 10)
	if !ok || borrowBase.Sign() <= 0 {
		resp.Direction = "none"
		resp.RequiresSwap = false
		resp.NewHealthFactor = leverage.HealthFactor(collateralUSD, debtUSD, collateralAsset.LiquidationThreshold).String()
		return resp, nil
	}

	// Health factors are computed against the liquidation threshold, the
	// level at which the position is actually liquidated. MaxLoanToValue
	// only caps borrow sizing (MaxSafeLeverage, MaxLeverage).
	validation := leverage.ValidateLeverageChange(
		collateralUSD, debtUSD, targetLeverage,
		collateralAsset.LiquidationThreshold, p.minHealthFactor,
	)
	resp.NewHealthFactor = validation.NewHealthFactor.String()
	if !validation.IsValid {
		resp.Success = false
		resp.ErrorMessage = validation.Reason
		return resp, nil
	}

	info, err := routing.ForwardRoute(ctx, p.oracle, req.DebtDenom, req.CollateralDenom, borrowBase)
	if err != nil {
		return nil, err
	}

	resp.RequiresSwap = true
	resp.Swap = summarize(info)
	minOut := applySlippageFloor(info.AmountOut, slippage)

	if req.AccountID == "" {
		resp.Deploy = &models.DeployStrategyConfig{
			Address:         req.Address,
			CollateralDenom: req.CollateralDenom,
			DebtDenom:       req.DebtDenom,
			DepositAmount:   usdToBase(collateralUSD, collateralAsset),
			BorrowAmount:    amounts.AdditionalBorrowAmount,
			MinSwapOutput:   minOut,
			Route:           rawRoute(info),
		}
	} else {
		resp.Modify = &models.ModifyLeverageConfig{
			Address:                req.Address,
			AccountID:              req.AccountID,
			Direction:              "increase",
			AdditionalBorrowAmount: amounts.AdditionalBorrowAmount,
			MinSwapOutput:          minOut,
			Route:                  rawRoute(info),
		}
	}
	return resp, nil
}

// planDecrease reverse-routes collateral into exactly the debt to repay.
func (p *Planner) planDecrease(
	ctx context.Context,
	req models.PlanRequest,
	resp *models.PlanResponse,
	amounts leverage.TokenAmounts,
	collateralUSD, debtUSD, targetLeverage decimal.Decimal,
	collateralAsset markets.AssetParams,
	slippage decimal.Decimal,
) (*models.PlanResponse, error) {
	resp.Direction = "decrease"

	repayBase, ok := new(big.Int).SetString(amounts.DebtToRepay, 10)
	if !ok || repayBase.Sign() <= 0 {
		resp.Direction = "none"
		resp.RequiresSwap = false
		resp.NewHealthFactor = leverage.HealthFactor(collateralUSD, debtUSD, collateralAsset.LiquidationThreshold).String()
		return resp, nil
	}

	validation := leverage.ValidateLeverageChange(
		collateralUSD, debtUSD, targetLeverage,
		collateralAsset.LiquidationThreshold, p.minHealthFactor,
	)
	resp.NewHealthFactor = validation.NewHealthFactor.String()
	if !validation.IsValid {
		resp.Success = false
		resp.ErrorMessage = validation.Reason
		return resp, nil
	}

	info, err := routing.ReverseRoute(ctx, p.oracle, req.CollateralDenom, req.DebtDenom, repayBase, slippage)
	if err != nil {
		return nil, err
	}

	resp.RequiresSwap = true
	resp.Swap = summarize(info)
	resp.Modify = &models.ModifyLeverageConfig{
		Address:              req.Address,
		AccountID:            req.AccountID,
		Direction:            "decrease",
		CollateralToWithdraw: info.AmountIn,
		DebtToRepay:          amounts.DebtToRepay,
		MinSwapOutput:        applySlippageFloor(info.AmountOut, slippage),
		Route:                rawRoute(info),
	}
	return resp, nil
}

// Validate checks a target leverage against the minimum health factor
// without quoting a route.
func (p *Planner) Validate(req models.ValidateRequest) (*models.ValidateResponse, error) {
	snap, err := p.snapshots.Current()
	if err != nil {
		return nil, fmt.Errorf("market data unavailable: %w", err)
	}
	collateralAsset, ok := snap.Asset(req.CollateralDenom)
	if !ok {
		return nil, fmt.Errorf("no market for collateral denom %s", req.CollateralDenom)
	}
	if _, ok := snap.Asset(req.DebtDenom); !ok {
		return nil, fmt.Errorf("no market for debt denom %s", req.DebtDenom)
	}

	collateralUSD, err := decimal.NewFromString(req.CollateralUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid collateral_usd: %w", err)
	}
	debtUSD, err := decimal.NewFromString(req.DebtUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid debt_usd: %w", err)
	}
	targetLeverage, err := decimal.NewFromString(req.TargetLeverage)
	if err != nil {
		return nil, fmt.Errorf("invalid target_leverage: %w", err)
	}

	validation := leverage.ValidateLeverageChange(
		collateralUSD, debtUSD, targetLeverage,
		collateralAsset.LiquidationThreshold, p.minHealthFactor,
	)
	return &models.ValidateResponse{
		IsValid:         validation.IsValid,
		NewHealthFactor: validation.NewHealthFactor.String(),
		Reason:          validation.Reason,
	}, nil
}

func (p *Planner) slippageRatio(bps *uint32) decimal.Decimal {
	value := p.defaultSlippageBps
	if bps != nil {
		value = *bps
	}
	return decimal.NewFromInt(int64(value)).Div(decimal.NewFromInt(10_000))
}

// MaxLeverage returns the buffer-adjusted ceiling exposed to clients.
func (p *Planner) MaxLeverage(ltv decimal.Decimal) decimal.Decimal {
	return leverage.MaxLeverageWithBuffer(ltv, p.leverageBuffer)
}

func summarize(info *routing.RouteInfo) *models.RouteSummary {
	return &models.RouteSummary{
		AmountIn:        info.AmountIn,
		AmountOut:       info.AmountOut,
		PriceImpact:     info.PriceImpact.String(),
		FeeUSD:          info.FeeUSD.String(),
		WithinTolerance: info.WithinTolerance,
		Description:     info.Description,
	}
}

func rawRoute(info *routing.RouteInfo) []byte {
	if info.Route == nil {
		return nil
	}
	return info.Route.Raw
}

// applySlippageFloor scales a base-unit amount down by the slippage ratio,
// flooring toward zero.
func applySlippageFloor(amountOut string, slippage decimal.Decimal) string {
	out, err := decimal.NewFromString(amountOut)
	if err != nil {
		return "0"
	}
	floor := out.Mul(decimal.NewFromInt(1).Sub(slippage)).Floor()
	if floor.Sign() < 0 {
		return "0"
	}
	return floor.String()
}

func usdToBase(usd decimal.Decimal, asset markets.AssetParams) string {
	if usd.Sign() <= 0 || asset.Price.Sign() <= 0 {
		return "0"
	}
	scale := decimal.New(1, asset.Decimals)
	return usd.Div(asset.Price).Mul(scale).Floor().String()
}
