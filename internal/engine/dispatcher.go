/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import (
	"errors"
	"fmt"

	"wallet-txengine-go/internal/money"
)

// Kind is the closed set of engines Select can choose. Wrapper kinds name
// the engine they wrap.
type Kind int

const (
	KindOnChainSend Kind = iota + 1
	KindTradingSend
	KindTradingSwap
	KindBuy
	KindInterestTransferLedger
	KindInterestTransferOnChain
	KindInterestWithdrawLedger
	KindInterestWithdrawTradingSend
	KindFiatDeposit
	KindFiatWithdraw
	KindTradingSell
	KindNonCustodialSell
	KindWalletConnect
	KindBitPay
)

// AllKinds lists every Kind, for startup validation.
var AllKinds = []Kind{
	KindOnChainSend,
	KindTradingSend,
	KindTradingSwap,
	KindBuy,
	KindInterestTransferLedger,
	KindInterestTransferOnChain,
	KindInterestWithdrawLedger,
	KindInterestWithdrawTradingSend,
	KindFiatDeposit,
	KindFiatWithdraw,
	KindTradingSell,
	KindNonCustodialSell,
	KindWalletConnect,
	KindBitPay,
}

func (k Kind) String() string {
	switch k {
	case KindOnChainSend:
		return "on_chain_send"
	case KindTradingSend:
		return "trading_send"
	case KindTradingSwap:
		return "trading_swap"
	case KindBuy:
		return "buy"
	case KindInterestTransferLedger:
		return "interest_transfer(ledger)"
	case KindInterestTransferOnChain:
		return "interest_transfer(on_chain)"
	case KindInterestWithdrawLedger:
		return "interest_withdraw(ledger)"
	case KindInterestWithdrawTradingSend:
		return "interest_withdraw(trading_send)"
	case KindFiatDeposit:
		return "fiat_deposit"
	case KindFiatWithdraw:
		return "fiat_withdraw"
	case KindTradingSell:
		return "trading_sell(order)"
	case KindNonCustodialSell:
		return "non_custodial_sell(on_chain)"
	case KindWalletConnect:
		return "walletconnect"
	case KindBitPay:
		return "bitpay(on_chain)"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Select is the total engine selection function. Combinations outside the
// supported matrix return ErrUnsupportedCombination.
func Select(source AccountKind, target TargetKind, action Action) (Kind, error) {
	if action == ActionBuy {
		if target == TargetTradingAccount || target == TargetNonCustodialAccount {
			return KindBuy, nil
		}
		return 0, unsupported(source, target, action)
	}

	switch source {
	case AccountNonCustodial:
		switch {
		case target == TargetWalletConnect && (action == ActionSign || action == ActionSend):
			return KindWalletConnect, nil
		case target == TargetBitPayInvoice && action == ActionSend:
			return KindBitPay, nil
		case action == ActionSend && (target == TargetAddress || target == TargetNonCustodialAccount || target == TargetTradingAccount):
			return KindOnChainSend, nil
		case target == TargetInterestAccount && action == ActionInterestTransfer:
			return KindInterestTransferOnChain, nil
		case action == ActionSell && (target == TargetFiatAccount || target == TargetTradingAccount):
			return KindNonCustodialSell, nil
		}

	case AccountTrading:
		switch {
		case target == TargetTradingAccount && action == ActionSwap:
			return KindTradingSwap, nil
		case action == ActionSend && (target == TargetAddress || target == TargetNonCustodialAccount):
			return KindTradingSend, nil
		case target == TargetInterestAccount && action == ActionInterestTransfer:
			return KindInterestTransferLedger, nil
		case action == ActionSell && (target == TargetFiatAccount || target == TargetTradingAccount):
			return KindTradingSell, nil
		}

	case AccountInterest:
		switch {
		case action == ActionWithdraw && target == TargetTradingAccount:
			return KindInterestWithdrawLedger, nil
		case action == ActionWithdraw && target == TargetNonCustodialAccount:
			return KindInterestWithdrawTradingSend, nil
		}

	case AccountLinkedBank:
		if action == ActionDeposit && target == TargetFiatAccount {
			return KindFiatDeposit, nil
		}

	case AccountFiat:
		if action == ActionWithdraw && target == TargetLinkedBank {
			return KindFiatWithdraw, nil
		}
	}

	return 0, unsupported(source, target, action)
}

func unsupported(source AccountKind, target TargetKind, action Action) error {
	return fmt.Errorf("%w: %s -> %s (%s)", ErrUnsupportedCombination, source, target, action)
}

// Factory builds engines for a Kind from one set of collaborators.
type Factory struct {
	deps    Dependencies
	display money.Currency
}

func NewFactory(deps Dependencies, display money.Currency) *Factory {
	return &Factory{deps: deps, display: display}
}

// Option customizes one engine instance
type Option func(*base)

// WithPredefinedAmount starts the transaction at amount when its currency
// matches the source account.
func WithPredefinedAmount(amount money.Money) Option {
	return func(b *base) { b.predefined = &amount }
}

// requirement names a collaborator and whether it is wired
type requirement struct {
	name string
	ok   bool
}

func (f *Factory) requirements(kind Kind) ([]requirement, error) {
	d := f.deps
	var (
		balances   = requirement{"balances", d.Balances != nil}
		onChain    = requirement{"on-chain client", d.OnChain != nil}
		receive    = requirement{"receive addresses", d.ReceiveAddresses != nil}
		fees       = requirement{"custodial fees", d.CustodialFees != nil}
		withdraws  = requirement{"custodial withdrawals", d.Withdrawals != nil}
		ledger     = requirement{"custodial ledger", d.Ledger != nil}
		wallets    = requirement{"custodial wallets", d.Wallets != nil}
		quotes     = requirement{"quotes", d.Quotes != nil}
		orders     = requirement{"orders", d.Orders != nil}
		interest   = requirement{"interest accounts", d.Interest != nil}
		fiat       = requirement{"fiat transfers", d.FiatTransfers != nil}
		settlement = requirement{"settlement", d.Settlement != nil}
		bitpay     = requirement{"bitpay", d.BitPay != nil}
		signer     = requirement{"message signer", d.Signer != nil}
	)

	switch kind {
	case KindOnChainSend:
		return []requirement{balances, onChain}, nil
	case KindTradingSend:
		return []requirement{balances, fees, withdraws, ledger}, nil
	case KindTradingSwap, KindBuy, KindTradingSell:
		return []requirement{balances, quotes, orders}, nil
	case KindInterestTransferLedger, KindInterestWithdrawLedger:
		return []requirement{ledger, interest}, nil
	case KindInterestTransferOnChain:
		return []requirement{balances, onChain, receive, interest}, nil
	case KindInterestWithdrawTradingSend:
		return []requirement{balances, fees, withdraws, ledger, wallets, receive, interest}, nil
	case KindFiatDeposit:
		return []requirement{balances, fiat, settlement}, nil
	case KindFiatWithdraw:
		return []requirement{balances, fees, fiat}, nil
	case KindNonCustodialSell:
		return []requirement{balances, onChain, quotes, orders}, nil
	case KindWalletConnect:
		return []requirement{signer}, nil
	case KindBitPay:
		return []requirement{balances, onChain, bitpay}, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine kind %d", ErrUnsupportedCombination, int(kind))
	}
}

// Validate checks that every collaborator the given kinds need is wired.
// With no kinds it checks all of them. Run it at startup so a missing
// collaborator is a configuration error rather than a panic mid-flow.
func (f *Factory) Validate(kinds ...Kind) error {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	var errs []error
	for _, kind := range kinds {
		reqs, err := f.requirements(kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, r := range reqs {
			if !r.ok {
				errs = append(errs, fmt.Errorf("%w: %s needs %s", ErrMissingDependency, kind, r.name))
			}
		}
	}
	return errors.Join(errs...)
}

// New builds the engine for kind and checks its inputs.
func (f *Factory) New(kind Kind, source Account, target Target, opts ...Option) (Engine, error) {
	if err := f.Validate(kind); err != nil {
		return nil, err
	}

	b := base{source: source, target: target, deps: &f.deps, display: f.display}
	for _, opt := range opts {
		opt(&b)
	}

	var eng Engine
	switch kind {
	case KindOnChainSend:
		eng = newOnChainEngine(b)
	case KindTradingSend:
		eng = newTradingSendEngine(b)
	case KindTradingSwap:
		eng = newOrderEngine(b, ProductSwap)
	case KindBuy:
		eng = newOrderEngine(b, ProductBuy)
	case KindInterestTransferLedger:
		eng = newInterestTransferEngine(newLedgerTransferEngine(b, productInterest), &f.deps)
	case KindInterestTransferOnChain:
		eng = newInterestTransferEngine(newOnChainEngine(b), &f.deps)
	case KindInterestWithdrawLedger:
		eng = newInterestWithdrawEngine(newLedgerTransferEngine(b, productInterest), &f.deps)
	case KindInterestWithdrawTradingSend:
		eng = newInterestWithdrawEngine(newTradingSendEngine(b), &f.deps)
	case KindFiatDeposit:
		eng = newFiatDepositEngine(b)
	case KindFiatWithdraw:
		eng = newFiatWithdrawEngine(b)
	case KindTradingSell:
		eng = newTradingSellEngine(newOrderEngine(b, ProductSell))
	case KindNonCustodialSell:
		inner := b
		inner.target = pendingDepositTarget(source.Currency)
		eng = newNonCustodialSellEngine(newOnChainEngine(inner), &f.deps, target)
	case KindWalletConnect:
		eng = newWalletConnectEngine(b)
	case KindBitPay:
		invoice, ok := target.(BitPayInvoiceTarget)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a BitPay invoice target", ErrInvalidInputs, kind)
		}
		inner := b
		inner.target = invoiceAddressTarget(invoice)
		eng = newBitPayEngine(newOnChainEngine(inner), &f.deps, invoice)
	default:
		return nil, fmt.Errorf("%w: unknown engine kind %d", ErrUnsupportedCombination, int(kind))
	}

	if err := eng.AssertInputsValid(); err != nil {
		return nil, err
	}
	return eng, nil
}
