package routing

import (
	"context"
	"math/big"

	"github.com/Amber-Finance/amber-strategy-engine/skipquery"
)

// SkipOracle adapts the Skip API client to the Oracle interface, pinning
// both legs of every quote to a single chain and normalizing responses at
// the boundary.
type SkipOracle struct {
	client  *skipquery.Client
	chainID string
}

// NewSkipOracle creates an oracle for same-chain swaps on chainID.
func NewSkipOracle(client *skipquery.Client, chainID string) *SkipOracle {
	return &SkipOracle{
		client:  client,
		chainID: chainID,
	}
}

// Quote implements Oracle for the exact-in swap method.
func (o *SkipOracle) Quote(ctx context.Context, denomIn, denomOut string, amountIn *big.Int) (*QuoteResponse, error) {
	raw, err := o.client.Route(ctx, skipquery.RouteRequest{
		AmountIn:           amountIn.String(),
		SourceAssetDenom:   denomIn,
		SourceAssetChainID: o.chainID,
		DestAssetDenom:     denomOut,
		DestAssetChainID:   o.chainID,
		SwapVenues: []skipquery.VenueRef{
			{Name: RequiredVenueName, ChainID: o.chainID},
		},
	})
	if err != nil {
		return nil, err
	}
	return NormalizeQuoteResponse(raw)
}

// QuoteExactOut implements Oracle for the native exact-out swap method.
func (o *SkipOracle) QuoteExactOut(ctx context.Context, denomIn, denomOut string, amountOut *big.Int) (*QuoteResponse, error) {
	raw, err := o.client.Route(ctx, skipquery.RouteRequest{
		AmountOut:          amountOut.String(),
		SourceAssetDenom:   denomIn,
		SourceAssetChainID: o.chainID,
		DestAssetDenom:     denomOut,
		DestAssetChainID:   o.chainID,
		SwapVenues: []skipquery.VenueRef{
			{Name: RequiredVenueName, ChainID: o.chainID},
		},
	})
	if err != nil {
		return nil, err
	}
	return NormalizeQuoteResponse(raw)
}
