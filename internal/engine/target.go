package engine

import (
	"fmt"
	"time"

	"wallet-txengine-go/internal/money"
)

// TargetKind classifies a destination for engine selection
type TargetKind int

const (
	TargetNonCustodialAccount TargetKind = iota + 1
	TargetTradingAccount
	TargetInterestAccount
	TargetFiatAccount
	TargetLinkedBank
	TargetAddress
	TargetBitPayInvoice
	TargetWalletConnect
)

func (k TargetKind) String() string {
	switch k {
	case TargetNonCustodialAccount:
		return "non_custodial_account"
	case TargetTradingAccount:
		return "trading_account"
	case TargetInterestAccount:
		return "interest_account"
	case TargetFiatAccount:
		return "fiat_account"
	case TargetLinkedBank:
		return "linked_bank"
	case TargetAddress:
		return "address"
	case TargetBitPayInvoice:
		return "bitpay_invoice"
	case TargetWalletConnect:
		return "walletconnect"
	default:
		return fmt.Sprintf("target_kind(%d)", int(k))
	}
}

// Action is what the user asked to do with the source balance
type Action int

const (
	ActionSend Action = iota + 1
	ActionSwap
	ActionDeposit
	ActionWithdraw
	ActionInterestTransfer
	ActionBuy
	ActionSell
	ActionSign
)

func (a Action) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionSwap:
		return "swap"
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	case ActionInterestTransfer:
		return "interest_transfer"
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	case ActionSign:
		return "sign"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Target is a transaction destination. The set of implementations is closed.
type Target interface {
	Kind() TargetKind
	Currency() money.Currency
	Label() string
	isTarget()
}

// AccountTarget sends to another account the user owns
type AccountTarget struct {
	Account Account
}

func (t AccountTarget) Kind() TargetKind {
	switch t.Account.Kind {
	case AccountNonCustodial:
		return TargetNonCustodialAccount
	case AccountTrading:
		return TargetTradingAccount
	case AccountInterest:
		return TargetInterestAccount
	case AccountFiat:
		return TargetFiatAccount
	case AccountLinkedBank:
		return TargetLinkedBank
	default:
		return 0
	}
}

func (t AccountTarget) Currency() money.Currency { return t.Account.Currency }
func (t AccountTarget) Label() string            { return t.Account.String() }
func (AccountTarget) isTarget()                  {}

// AddressTarget is a raw receive address, optionally carrying a payment
// request amount and memo (e.g. parsed from a QR code).
type AddressTarget struct {
	Address       string
	Network       string
	AssetCurrency money.Currency
	Memo          string
	Amount        *money.Money
}

func (t AddressTarget) Kind() TargetKind         { return TargetAddress }
func (t AddressTarget) Currency() money.Currency { return t.AssetCurrency }
func (t AddressTarget) Label() string            { return t.Address }
func (AddressTarget) isTarget()                  {}

// BitPayInvoiceTarget is a merchant invoice with a fixed amount and deadline
type BitPayInvoiceTarget struct {
	InvoiceID string
	Merchant  string
	Address   string
	Network   string
	Amount    money.Money
	ExpiresAt time.Time
}

func (t BitPayInvoiceTarget) Kind() TargetKind         { return TargetBitPayInvoice }
func (t BitPayInvoiceTarget) Currency() money.Currency { return t.Amount.Currency }
func (t BitPayInvoiceTarget) Label() string            { return t.Merchant + " (" + t.InvoiceID + ")" }
func (BitPayInvoiceTarget) isTarget()                  {}

// SignMethod is the WalletConnect request being answered
type SignMethod string

const (
	SignPersonal SignMethod = "personal_sign"
	SignEth      SignMethod = "eth_sign"
)

// WalletConnectTarget is a dApp signing request
type WalletConnectTarget struct {
	SessionID     string
	DAppName      string
	DAppURL       string
	Method        SignMethod
	Message       []byte
	SignerAddress string
	AssetCurrency money.Currency
}

func (t WalletConnectTarget) Kind() TargetKind         { return TargetWalletConnect }
func (t WalletConnectTarget) Currency() money.Currency { return t.AssetCurrency }
func (t WalletConnectTarget) Label() string            { return t.DAppName }
func (WalletConnectTarget) isTarget()                  {}
