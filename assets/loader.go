package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Meta is one token's static metadata.
type Meta struct {
	Denom    string `json:"denom"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
}

// Pair is one enabled strategy: collateral asset leveraged against a
// borrowed debt asset.
type Pair struct {
	CollateralDenom string `toml:"collateral_denom"`
	DebtDenom       string `toml:"debt_denom"`
}

// Index holds the loaded token metadata and the strategy pair catalog.
type Index struct {
	byDenom map[string]Meta
	pairs   []Pair
}

type pairsFile struct {
	Pairs []Pair `toml:"pairs"`
}

// LoadIndex reads asset-list JSON files from registryDir and the pair
// catalog TOML from pairsPath. Every pair must reference known denoms.
func LoadIndex(registryDir, pairsPath string) (*Index, error) {
	byDenom, err := loadMetadata(registryDir)
	if err != nil {
		return nil, err
	}

	pairs, err := loadPairs(pairsPath)
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(byDenom))
	for _, m := range byDenom {
		metas = append(metas, m)
	}
	return NewIndex(metas, pairs)
}

// NewIndex builds an index from already-loaded metadata and pairs. Every
// pair must reference known, distinct denoms.
func NewIndex(metas []Meta, pairs []Pair) (*Index, error) {
	byDenom := make(map[string]Meta, len(metas))
	for _, m := range metas {
		if m.Denom == "" {
			return nil, fmt.Errorf("asset metadata entry without a denom")
		}
		byDenom[m.Denom] = m
	}

	for _, p := range pairs {
		if _, ok := byDenom[p.CollateralDenom]; !ok {
			return nil, fmt.Errorf("pair references unknown collateral denom %q", p.CollateralDenom)
		}
		if _, ok := byDenom[p.DebtDenom]; !ok {
			return nil, fmt.Errorf("pair references unknown debt denom %q", p.DebtDenom)
		}
		if p.CollateralDenom == p.DebtDenom {
			return nil, fmt.Errorf("pair uses the same denom %q on both sides", p.CollateralDenom)
		}
	}

	return &Index{byDenom: byDenom, pairs: pairs}, nil
}

func loadMetadata(registryDir string) (map[string]Meta, error) {
	files, err := os.ReadDir(registryDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset registry: %w", err)
	}

	byDenom := make(map[string]Meta)
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		body, err := os.ReadFile(filepath.Join(registryDir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file.Name(), err)
		}
		var metas []Meta
		if err := json.Unmarshal(body, &metas); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", file.Name(), err)
		}
		for _, m := range metas {
			if m.Denom == "" {
				return nil, fmt.Errorf("%s contains an entry without a denom", file.Name())
			}
			byDenom[m.Denom] = m
		}
	}

	if len(byDenom) == 0 {
		return nil, fmt.Errorf("no asset metadata found in %s", registryDir)
	}
	return byDenom, nil
}

func loadPairs(pairsPath string) ([]Pair, error) {
	body, err := os.ReadFile(pairsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pair catalog: %w", err)
	}
	var pf pairsFile
	if err := toml.Unmarshal(body, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse pair catalog: %w", err)
	}
	if len(pf.Pairs) == 0 {
		return nil, fmt.Errorf("pair catalog %s lists no pairs", pairsPath)
	}
	return pf.Pairs, nil
}

// Asset looks up token metadata by denom.
func (i *Index) Asset(denom string) (Meta, bool) {
	m, ok := i.byDenom[denom]
	return m, ok
}

// Pairs returns the enabled strategy pairs.
func (i *Index) Pairs() []Pair {
	return i.pairs
}

// PairEnabled reports whether the collateral/debt combination is in the
// catalog.
func (i *Index) PairEnabled(collateralDenom, debtDenom string) bool {
	for _, p := range i.pairs {
		if p.CollateralDenom == collateralDenom && p.DebtDenom == debtDenom {
			return true
		}
	}
	return false
}
