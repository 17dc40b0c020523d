package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/money"

	"gopkg.in/yaml.v2"
)

var (
	_ engine.WalletMetadata   = (*AssetCatalog)(nil)
	_ engine.CustodialWallets = (*AssetCatalog)(nil)
)

type AssetConfig struct {
	Symbol    string `yaml:"symbol"`
	Network   string `yaml:"network"`
	Precision int32  `yaml:"precision"`
	Fiat      bool   `yaml:"fiat"`
	Memo      bool   `yaml:"memo"`
	WalletId  string `yaml:"wallet_id"`
}

type AssetsConfig struct {
	Assets []AssetConfig `yaml:"assets"`
}

func LoadAssetConfig(assetsFile string) ([]AssetConfig, error) {
	var assetsPath string
	if filepath.IsAbs(assetsFile) {
		assetsPath = assetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}
	return ParseAssetConfig(data, assetsFile)
}

// ParseAssetConfig validates YAML asset metadata. Fiat entries carry no
// network and always use two decimals.
func ParseAssetConfig(data []byte, name string) ([]AssetConfig, error) {
	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", name, err)
	}

	for i, asset := range config.Assets {
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if asset.Fiat {
			continue
		}
		if asset.Network == "" {
			return nil, fmt.Errorf("asset at index %d missing network", i)
		}
		if asset.Precision <= 0 {
			return nil, fmt.Errorf("asset %s missing precision", asset.Symbol)
		}
	}

	return config.Assets, nil
}

// AssetCatalog answers currency and wallet questions from asset metadata
type AssetCatalog struct {
	assets []AssetConfig
}

func NewAssetCatalog(assets []AssetConfig) *AssetCatalog {
	return &AssetCatalog{assets: assets}
}

func (c *AssetCatalog) lookup(symbol, network string) (AssetConfig, bool) {
	for _, a := range c.assets {
		if !strings.EqualFold(a.Symbol, symbol) {
			continue
		}
		if network == "" || a.Fiat || strings.EqualFold(a.Network, network) {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// Currency resolves a symbol such as "ETH" or "usd".
func (c *AssetCatalog) Currency(symbol string) (money.Currency, error) {
	a, ok := c.lookup(symbol, "")
	if !ok {
		return money.Currency{}, fmt.Errorf("unknown asset %q", symbol)
	}
	if a.Fiat {
		return money.Fiat(a.Symbol), nil
	}
	return money.Crypto(a.Symbol, a.Precision), nil
}

// Asset returns the metadata of symbol on network, or on its first
// configured network when network is empty.
func (c *AssetCatalog) Asset(symbol, network string) (AssetConfig, error) {
	a, ok := c.lookup(symbol, network)
	if !ok {
		if network == "" {
			return AssetConfig{}, fmt.Errorf("unknown asset %q", symbol)
		}
		return AssetConfig{}, fmt.Errorf("asset %q not configured on %s", symbol, network)
	}
	return a, nil
}

func (c *AssetCatalog) SupportsMemo(currency money.Currency, network string) bool {
	a, ok := c.lookup(currency.Code, network)
	return ok && a.Memo
}

// WithdrawalWallet returns the Prime wallet configured for symbol on network.
func (c *AssetCatalog) WithdrawalWallet(symbol, network string) (string, error) {
	a, err := c.Asset(symbol, network)
	if err != nil {
		return "", err
	}
	if a.Fiat || a.WalletId == "" {
		return "", fmt.Errorf("no wallet configured for %s", a.Symbol)
	}
	return a.WalletId, nil
}

func (c *AssetCatalog) Assets() []AssetConfig {
	return append([]AssetConfig(nil), c.assets...)
}
