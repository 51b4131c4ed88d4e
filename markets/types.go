package markets

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetParams is the read-only market snapshot of one asset: the oracle
// price plus the risk and rate parameters of its lending market.
type AssetParams struct {
	Denom                string          `json:"denom"`
	Symbol               string          `json:"symbol"`
	Decimals             int32           `json:"decimals"`
	Price                decimal.Decimal `json:"price"`
	MaxLoanToValue       decimal.Decimal `json:"max_loan_to_value"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	BorrowRate           decimal.Decimal `json:"borrow_rate"`
	SupplyRate           decimal.Decimal `json:"supply_rate"`
	TotalSupplied        string          `json:"total_supplied"`
}

// Snapshot is an immutable view of all markets at one fetch time. Each
// computation reads a single snapshot for its whole duration; snapshots are
// never mutated after publication.
type Snapshot struct {
	Assets    map[string]AssetParams
	FetchedAt time.Time
}

// Asset looks up the market parameters of a denom.
func (s *Snapshot) Asset(denom string) (AssetParams, bool) {
	p, ok := s.Assets[denom]
	return p, ok
}

// marketsResponse is the wire shape of the market-params endpoint.
type marketsResponse struct {
	Markets []marketEntry `json:"markets"`
}

type marketEntry struct {
	Denom                string `json:"denom"`
	Symbol               string `json:"symbol"`
	Decimals             int32  `json:"decimals"`
	Price                string `json:"price"`
	MaxLoanToValue       string `json:"max_loan_to_value"`
	LiquidationThreshold string `json:"liquidation_threshold"`
	BorrowRate           string `json:"borrow_rate"`
	SupplyRate           string `json:"supply_rate"`
	TotalSupplied        string `json:"total_supplied"`
}
