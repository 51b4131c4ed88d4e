package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/assert"
)

func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	assetList := `[
		{"denom": "untrn", "symbol": "NTRN", "name": "Neutron", "decimals": 6},
		{"denom": "ibc/usdc", "symbol": "USDC", "name": "USD Coin", "decimals": 6}
	]`
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "neutron.json"), []byte(assetList), 0o644))

	pairsPath := filepath.Join(dir, "pairs.toml")
	pairsBody := `
[[pairs]]
collateral_denom = "untrn"
debt_denom = "ibc/usdc"
`
	assert.NoError(t, os.WriteFile(pairsPath, []byte(pairsBody), 0o644))
	return dir, pairsPath
}

func TestLoadIndex(t *testing.T) {
	dir, pairsPath := writeFixtures(t)

	idx, err := LoadIndex(dir, pairsPath)
	assert.NoError(t, err)

	ntrn, ok := idx.Asset("untrn")
	assert.True(t, ok)
	assert.Equal(t, "NTRN", ntrn.Symbol)
	assert.Equal(t, int32(6), ntrn.Decimals)

	assert.Equal(t, 1, len(idx.Pairs()))
	assert.True(t, idx.PairEnabled("untrn", "ibc/usdc"))
	assert.False(t, idx.PairEnabled("ibc/usdc", "untrn"))
}

func TestLoadIndexRejectsUnknownPairDenom(t *testing.T) {
	dir, _ := writeFixtures(t)

	badPairs := filepath.Join(dir, "bad.toml")
	body := `
[[pairs]]
collateral_denom = "untrn"
debt_denom = "ibc/missing"
`
	assert.NoError(t, os.WriteFile(badPairs, []byte(body), 0o644))

	_, err := LoadIndex(dir, badPairs)
	assert.Error(t, err)
}

func TestLoadIndexRejectsSelfPair(t *testing.T) {
	dir, _ := writeFixtures(t)

	selfPairs := filepath.Join(dir, "self.toml")
	body := `
[[pairs]]
collateral_denom = "untrn"
debt_denom = "untrn"
`
	assert.NoError(t, os.WriteFile(selfPairs, []byte(body), 0o644))

	_, err := LoadIndex(dir, selfPairs)
	assert.Error(t, err)
}

func TestLoadIndexEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	pairsPath := filepath.Join(dir, "pairs.toml")
	assert.NoError(t, os.WriteFile(pairsPath, []byte("[[pairs]]\ncollateral_denom=\"a\"\ndebt_denom=\"b\"\n"), 0o644))

	_, err := LoadIndex(dir, pairsPath)
	assert.Error(t, err)
}
