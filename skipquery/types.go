package skipquery

// VenueRef restricts a route request to specific venues.
type VenueRef struct {
	Name    string `json:"name"`
	ChainID string `json:"chain_id"`
}

// RouteRequest is the POST body of /v2/fungible/route. Exactly one of
// AmountIn/AmountOut must be set; the other selects the swap method.
type RouteRequest struct {
	AmountIn  string `json:"amount_in,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`

	SourceAssetDenom   string `json:"source_asset_denom"`
	SourceAssetChainID string `json:"source_asset_chain_id"`
	DestAssetDenom     string `json:"dest_asset_denom"`
	DestAssetChainID   string `json:"dest_asset_chain_id"`

	// AllowMultiTx stays false for loop swaps: the whole action list must
	// land in a single on-chain transaction.
	AllowMultiTx bool `json:"allow_multi_tx"`

	// SwapVenues narrows routing to the listed venues. The routing layer
	// still verifies the response against its own venue policy.
	SwapVenues []VenueRef `json:"swap_venues,omitempty"`
}
