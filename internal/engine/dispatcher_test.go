package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name   string
		source AccountKind
		target TargetKind
		action Action
		want   Kind
	}{
		{"on-chain send to address", AccountNonCustodial, TargetAddress, ActionSend, KindOnChainSend},
		{"on-chain send to own trading", AccountNonCustodial, TargetTradingAccount, ActionSend, KindOnChainSend},
		{"custodial send", AccountTrading, TargetAddress, ActionSend, KindTradingSend},
		{"custodial send to wallet", AccountTrading, TargetNonCustodialAccount, ActionSend, KindTradingSend},
		{"swap", AccountTrading, TargetTradingAccount, ActionSwap, KindTradingSwap},
		{"buy from bank", AccountLinkedBank, TargetTradingAccount, ActionBuy, KindBuy},
		{"buy into wallet", AccountFiat, TargetNonCustodialAccount, ActionBuy, KindBuy},
		{"interest from trading", AccountTrading, TargetInterestAccount, ActionInterestTransfer, KindInterestTransferLedger},
		{"interest from wallet", AccountNonCustodial, TargetInterestAccount, ActionInterestTransfer, KindInterestTransferOnChain},
		{"interest to trading", AccountInterest, TargetTradingAccount, ActionWithdraw, KindInterestWithdrawLedger},
		{"interest to wallet", AccountInterest, TargetNonCustodialAccount, ActionWithdraw, KindInterestWithdrawTradingSend},
		{"bank deposit", AccountLinkedBank, TargetFiatAccount, ActionDeposit, KindFiatDeposit},
		{"bank withdrawal", AccountFiat, TargetLinkedBank, ActionWithdraw, KindFiatWithdraw},
		{"custodial sell", AccountTrading, TargetFiatAccount, ActionSell, KindTradingSell},
		{"wallet sell", AccountNonCustodial, TargetFiatAccount, ActionSell, KindNonCustodialSell},
		{"walletconnect sign", AccountNonCustodial, TargetWalletConnect, ActionSign, KindWalletConnect},
		{"walletconnect send", AccountNonCustodial, TargetWalletConnect, ActionSend, KindWalletConnect},
		{"bitpay", AccountNonCustodial, TargetBitPayInvoice, ActionSend, KindBitPay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.source, tt.target, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestSelect_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		source AccountKind
		target TargetKind
		action Action
	}{
		{"bitpay from custody", AccountTrading, TargetBitPayInvoice, ActionSend},
		{"swap from wallet", AccountNonCustodial, TargetTradingAccount, ActionSwap},
		{"buy into address", AccountFiat, TargetAddress, ActionBuy},
		{"deposit to trading", AccountLinkedBank, TargetTradingAccount, ActionDeposit},
		{"interest to address", AccountInterest, TargetAddress, ActionWithdraw},
		{"sign from custody", AccountTrading, TargetWalletConnect, ActionSign},
		{"bank to bank", AccountLinkedBank, TargetLinkedBank, ActionWithdraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Select(tt.source, tt.target, tt.action)
			assert.ErrorIs(t, err, ErrUnsupportedCombination)
		})
	}
}

// Every selectable kind must be buildable from a fully wired factory.
func TestFactory_ValidateAllKinds(t *testing.T) {
	assert.NoError(t, NewFactory(testDeps(), usd).Validate())
}

func TestFactory_ValidateMissingDependencies(t *testing.T) {
	deps := testDeps()
	deps.OnChain = nil
	deps.Signer = nil
	f := NewFactory(deps, usd)

	err := f.Validate(KindOnChainSend, KindWalletConnect, KindTradingSend)
	require.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "on-chain client")
	assert.Contains(t, err.Error(), "message signer")

	_, err = f.New(KindBitPay, nonCustodialETH, BitPayInvoiceTarget{})
	assert.ErrorIs(t, err, ErrMissingDependency)

	assert.NoError(t, f.Validate(KindTradingSend, KindFiatDeposit))
}

func TestFactory_NewAssertsInputs(t *testing.T) {
	f := NewFactory(testDeps(), usd)

	_, err := f.New(KindOnChainSend, tradingETH, ethAddressTarget())
	assert.ErrorIs(t, err, ErrInvalidInputs)

	_, err = f.New(KindOnChainSend, nonCustodialETH, AddressTarget{Address: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", AssetCurrency: btc})
	assert.ErrorIs(t, err, ErrInvalidInputs)

	_, err = f.New(KindBitPay, nonCustodialETH, ethAddressTarget())
	assert.ErrorIs(t, err, ErrInvalidInputs)

	_, err = f.New(KindFiatDeposit, bankUSD, AccountTarget{Account: tradingETH})
	assert.ErrorIs(t, err, ErrInvalidInputs)
}
