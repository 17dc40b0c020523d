package engine

import (
	"fmt"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/money"
)

// FeeLevel is a network fee tier
type FeeLevel int

const (
	FeeNone FeeLevel = iota
	FeeRegular
	FeePriority
	FeeCustom
)

func (l FeeLevel) String() string {
	switch l {
	case FeeNone:
		return "none"
	case FeeRegular:
		return "regular"
	case FeePriority:
		return "priority"
	case FeeCustom:
		return "custom"
	default:
		return fmt.Sprintf("fee_level(%d)", int(l))
	}
}

// FeeSelection is the chosen fee tier and the tiers on offer
type FeeSelection struct {
	Selected     FeeLevel
	Available    []FeeLevel
	CustomAmount *money.Money
}

func (s FeeSelection) Offers(level FeeLevel) bool {
	for _, l := range s.Available {
		if l == level {
			return true
		}
	}
	return false
}

// Limits are the min/max caps applied to the amount
type Limits = brokerage.TransactionLimits

// PendingTransaction is the in-flight record of one attempt. Engines never
// mutate a value they were given; they return an updated copy.
type PendingTransaction struct {
	Amount                  money.Money
	Available               money.Money
	FeeAmount               money.Money
	FeeForFullAvailable     money.Money
	FeeSelection            FeeSelection
	SelectedDisplayCurrency money.Currency
	Limits                  *Limits
	Confirmations           []Confirmation
	Extension               Extension
}

func newPendingTransaction(source, display money.Currency) PendingTransaction {
	return PendingTransaction{
		Amount:                  money.Zero(source),
		Available:               money.Zero(source),
		FeeAmount:               money.Zero(source),
		FeeForFullAvailable:     money.Zero(source),
		FeeSelection:            FeeSelection{Selected: FeeNone, Available: []FeeLevel{FeeNone}},
		SelectedDisplayCurrency: display,
	}
}

// checkCurrency enforces that every amount is denominated in the source asset.
func (pt PendingTransaction) checkCurrency(source money.Currency) error {
	for _, f := range []struct {
		name  string
		value money.Money
	}{
		{"amount", pt.Amount},
		{"available", pt.Available},
		{"fee amount", pt.FeeAmount},
		{"fee for full available", pt.FeeForFullAvailable},
	} {
		if f.value.Currency.Code != source.Code {
			return fmt.Errorf("%w: %s is in %s, source is %s", ErrInvalidInputs, f.name, f.value.Currency, source)
		}
	}
	return nil
}

// Confirmation returns the first line item of kind.
func (pt PendingTransaction) Confirmation(kind ConfirmationKind) (Confirmation, bool) {
	for _, c := range pt.Confirmations {
		if c.Kind == kind {
			return c, true
		}
	}
	return Confirmation{}, false
}

func (pt PendingTransaction) withConfirmations(items []Confirmation) PendingTransaction {
	pt.Confirmations = append([]Confirmation(nil), items...)
	return pt
}

// upsertConfirmation replaces the line item of the same kind or appends it.
func (pt PendingTransaction) upsertConfirmation(item Confirmation) PendingTransaction {
	items := make([]Confirmation, 0, len(pt.Confirmations)+1)
	replaced := false
	for _, c := range pt.Confirmations {
		if c.Kind == item.Kind {
			if !replaced {
				items = append(items, item)
				replaced = true
			}
			continue
		}
		items = append(items, c)
	}
	if !replaced {
		items = append(items, item)
	}
	pt.Confirmations = items
	return pt
}

func (pt PendingTransaction) removeConfirmation(kind ConfirmationKind) PendingTransaction {
	items := make([]Confirmation, 0, len(pt.Confirmations))
	for _, c := range pt.Confirmations {
		if c.Kind != kind {
			items = append(items, c)
		}
	}
	pt.Confirmations = items
	return pt
}

// Extension is the engine family's private part of a PendingTransaction.
// Each family reads only its own variant.
type Extension interface {
	isExtension()
}

// OnChainExtension belongs to the non-custodial send family
type OnChainExtension struct {
	Memo    string
	SendMax bool
	// FeeRates caches the per-tier fee estimates, keyed by level.
	FeeRates map[FeeLevel]money.Money
	// ForcedFeeLevel pins the tier; UpdateFeeLevel rejects other tiers.
	ForcedFeeLevel *FeeLevel
}

// QuoteExtension belongs to quote-backed custodial orders
type QuoteExtension struct {
	Product Product
	Quote   *brokerage.Quote
}

// SellOnChainExtension carries the sell quote next to the untouched
// extension of the inner on-chain engine.
type SellOnChainExtension struct {
	Quote *brokerage.Quote
	Inner Extension
}

// WalletConnectExtension holds the material a signing session signs
type WalletConnectExtension struct {
	Method  SignMethod
	Message []byte
}

func (OnChainExtension) isExtension()       {}
func (QuoteExtension) isExtension()         {}
func (SellOnChainExtension) isExtension()   {}
func (WalletConnectExtension) isExtension() {}

func onChainExtension(pt PendingTransaction) OnChainExtension {
	if ext, ok := pt.Extension.(OnChainExtension); ok {
		return ext
	}
	return OnChainExtension{}
}

func quoteExtension(pt PendingTransaction) QuoteExtension {
	if ext, ok := pt.Extension.(QuoteExtension); ok {
		return ext
	}
	return QuoteExtension{}
}
