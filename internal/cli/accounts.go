package cli

import (
	"fmt"
	"strings"

	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/engine"
)

// tradingAccount resolves the custodial wallet holding symbol on network.
// An empty walletId falls back to the wallet_id configured for the asset.
func tradingAccount(catalog *common.AssetCatalog, symbol, network, walletId string) (engine.Account, error) {
	asset, err := catalog.Asset(symbol, network)
	if err != nil {
		return engine.Account{}, err
	}
	if asset.Fiat {
		return engine.Account{}, fmt.Errorf("%s is a fiat currency, not a trading asset", asset.Symbol)
	}
	currency, err := catalog.Currency(asset.Symbol)
	if err != nil {
		return engine.Account{}, err
	}

	if walletId == "" {
		walletId = asset.WalletId
	}
	if walletId == "" {
		return engine.Account{}, fmt.Errorf("no wallet configured for %s on %s, pass --wallet", asset.Symbol, asset.Network)
	}

	return engine.Account{
		ID:       walletId,
		Label:    fmt.Sprintf("%s trading wallet", currency.Code),
		Kind:     engine.AccountTrading,
		Currency: currency,
		Network:  asset.Network,
	}, nil
}

// fiatAccount is the custodial cash balance in symbol, or the linked bank
// bankId when one is given.
func fiatAccount(catalog *common.AssetCatalog, symbol, bankId string) (engine.Account, error) {
	currency, err := catalog.Currency(symbol)
	if err != nil {
		return engine.Account{}, err
	}
	if !currency.IsFiat() {
		return engine.Account{}, fmt.Errorf("%s is not a fiat currency", currency.Code)
	}

	if bankId != "" {
		return engine.Account{
			ID:       bankId,
			Label:    fmt.Sprintf("%s bank %s", currency.Code, bankId),
			Kind:     engine.AccountLinkedBank,
			Currency: currency,
		}, nil
	}
	return engine.Account{
		ID:       strings.ToLower(currency.Code),
		Label:    fmt.Sprintf("%s balance", currency.Code),
		Kind:     engine.AccountFiat,
		Currency: currency,
	}, nil
}

// orderAccount picks the trading wallet for crypto symbols and the cash
// balance for fiat ones.
func orderAccount(catalog *common.AssetCatalog, symbol, walletId, bankId string) (engine.Account, error) {
	currency, err := catalog.Currency(symbol)
	if err != nil {
		return engine.Account{}, err
	}
	if currency.IsFiat() {
		return fiatAccount(catalog, symbol, bankId)
	}
	return tradingAccount(catalog, symbol, "", walletId)
}

func addressTarget(source engine.Account, address, memo string) (engine.AddressTarget, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return engine.AddressTarget{}, fmt.Errorf("destination address is required")
	}
	return engine.AddressTarget{
		Address:       address,
		Network:       source.Network,
		AssetCurrency: source.Currency,
		Memo:          strings.TrimSpace(memo),
	}, nil
}
