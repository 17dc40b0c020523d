package common

import (
	"os"
	"path/filepath"
	"testing"

	"wallet-txengine-go/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAssets = `
assets:
  - symbol: ETH
    network: ethereum-mainnet
    precision: 18
  - symbol: USDC
    network: base-mainnet
    precision: 6
  - symbol: XRP
    network: ripple-mainnet
    precision: 6
    memo: true
  - symbol: USD
    fiat: true
`

func TestParseAssetConfig(t *testing.T) {
	assets, err := ParseAssetConfig([]byte(testAssets), "assets.yaml")
	require.NoError(t, err)
	require.Len(t, assets, 4)
	assert.Equal(t, "XRP", assets[2].Symbol)
	assert.True(t, assets[2].Memo)
	assert.True(t, assets[3].Fiat)
}

func TestParseAssetConfigRejectsIncomplete(t *testing.T) {
	tests := map[string]string{
		"missing symbol":    "assets:\n  - network: ethereum-mainnet\n    precision: 18\n",
		"missing network":   "assets:\n  - symbol: ETH\n    precision: 18\n",
		"missing precision": "assets:\n  - symbol: ETH\n    network: ethereum-mainnet\n",
		"not yaml":          "assets: [",
	}
	for name, doc := range tests {
		_, err := ParseAssetConfig([]byte(doc), "assets.yaml")
		assert.Error(t, err, name)
	}
}

func TestLoadAssetConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testAssets), 0o600))

	assets, err := LoadAssetConfig(path)
	require.NoError(t, err)
	assert.Len(t, assets, 4)

	_, err = LoadAssetConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAssetCatalog(t *testing.T) {
	assets, err := ParseAssetConfig([]byte(testAssets), "assets.yaml")
	require.NoError(t, err)
	catalog := NewAssetCatalog(assets)

	eth, err := catalog.Currency("eth")
	require.NoError(t, err)
	assert.Equal(t, money.Crypto("ETH", 18), eth)

	usd, err := catalog.Currency("USD")
	require.NoError(t, err)
	assert.True(t, usd.IsFiat())
	assert.Equal(t, int32(2), usd.Precision)

	_, err = catalog.Currency("DOGE")
	assert.Error(t, err)

	usdc, err := catalog.Asset("USDC", "")
	require.NoError(t, err)
	assert.Equal(t, "base-mainnet", usdc.Network)

	_, err = catalog.Asset("USDC", "ethereum-mainnet")
	assert.Error(t, err)
}

func TestAssetCatalogSupportsMemo(t *testing.T) {
	assets, err := ParseAssetConfig([]byte(testAssets), "assets.yaml")
	require.NoError(t, err)
	catalog := NewAssetCatalog(assets)

	assert.True(t, catalog.SupportsMemo(money.Crypto("XRP", 6), "ripple-mainnet"))
	assert.False(t, catalog.SupportsMemo(money.Crypto("XRP", 6), "other-mainnet"))
	assert.False(t, catalog.SupportsMemo(money.Crypto("ETH", 18), "ethereum-mainnet"))
}

func TestAssetCatalogWithdrawalWallet(t *testing.T) {
	catalog := NewAssetCatalog([]AssetConfig{
		{Symbol: "ETH", Network: "ethereum-mainnet", Precision: 18, WalletId: "wlt_eth"},
		{Symbol: "USDC", Network: "base-mainnet", Precision: 6},
		{Symbol: "USD", Fiat: true, WalletId: "wlt_usd"},
	})

	id, err := catalog.WithdrawalWallet("eth", "ethereum-mainnet")
	require.NoError(t, err)
	assert.Equal(t, "wlt_eth", id)

	_, err = catalog.WithdrawalWallet("ETH", "base-mainnet")
	assert.ErrorContains(t, err, "not configured on base-mainnet")
	_, err = catalog.WithdrawalWallet("USDC", "base-mainnet")
	assert.ErrorContains(t, err, "no wallet configured for USDC")
	_, err = catalog.WithdrawalWallet("USD", "")
	assert.Error(t, err)
}
