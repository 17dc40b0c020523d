package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/money"
)

// Product names used for custodial fee and limit lookups.
const (
	productSend     = "SEND"
	productWithdraw = "WALLET"
	productInterest = "SAVINGS"
	productDeposit  = "DEPOSIT"
	productFiatOut  = "FIAT_WITHDRAW"
)

// Product is the brokerage order type an OrderEngine executes
type Product string

const (
	ProductBuy  Product = "BUY"
	ProductSwap Product = "SWAP"
	ProductSell Product = "SELL"
)

// BalanceProvider serves spendable balances for any account kind. For
// linked banks this is the amount the link can pull.
type BalanceProvider interface {
	Balance(ctx context.Context, account Account) (money.Money, error)
}

// ReceiveAddressProvider resolves an account's current receive address
type ReceiveAddressProvider interface {
	ReceiveAddress(ctx context.Context, account Account) (string, error)
}

type ExchangeRates interface {
	ExchangeRate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}

type LimitsRepository interface {
	TransactionLimits(ctx context.Context, currency money.Currency, product string) (*brokerage.TransactionLimits, error)
}

// CustodialFees serves the flat fee and minimum of custodial withdrawals
type CustodialFees interface {
	WithdrawalFee(ctx context.Context, currency money.Currency, product string) (fee, minAmount money.Money, err error)
}

// Settlement checks whether a bank rail can move amount right now
type Settlement interface {
	CheckSettlement(ctx context.Context, bank Account, amount money.Money) (brokerage.SettlementDetails, error)
}

// FiatDepositTerms is what a bank deposit costs and when it clears
type FiatDepositTerms struct {
	Fee   money.Money
	Terms *brokerage.DepositTerms
}

type FiatTransfers interface {
	DepositTerms(ctx context.Context, bank Account, amount money.Money) (FiatDepositTerms, error)
	Deposit(ctx context.Context, bank, to Account, amount money.Money, idempotencyKey string) (string, error)
	Withdraw(ctx context.Context, from, bank Account, amount money.Money, idempotencyKey string) (string, error)
}

// OnChainTransfer is the payload handed to the signer
type OnChainTransfer struct {
	From     Account
	To       string
	Amount   money.Money
	Fee      money.Money
	FeeLevel FeeLevel
	Memo     string
	SendMax  bool
}

// OnChainClient is the opaque per-chain signer and broadcaster
type OnChainClient interface {
	// FeeEstimates returns the fee of each tier the chain offers.
	FeeEstimates(ctx context.Context, account Account) (map[FeeLevel]money.Money, error)
	Sign(ctx context.Context, transfer OnChainTransfer) ([]byte, error)
	Broadcast(ctx context.Context, account Account, signedTx []byte) (string, error)
}

// WalletMetadata exposes per-asset wallet flags
type WalletMetadata interface {
	SupportsMemo(currency money.Currency, network string) bool
}

// CustodialWithdrawal moves custodial funds to an on-chain address
type CustodialWithdrawal struct {
	WalletId       string
	Symbol         string
	Network        string
	Address        string
	Memo           string
	Amount         money.Money
	IdempotencyKey string
}

type CustodialWithdrawals interface {
	Withdraw(ctx context.Context, req CustodialWithdrawal) (string, error)
}

// CustodialLedger books movements between custodial accounts
type CustodialLedger interface {
	Balance(ctx context.Context, account Account) (money.Money, error)
	Transfer(ctx context.Context, from, to Account, amount money.Money, reference string) (string, error)
	// Hold debits amount from an account that is about to pay out through a
	// custodial withdrawal. Replaying a reference books nothing new.
	Hold(ctx context.Context, from Account, amount money.Money, reference string) (string, error)
	// Release reverts the hold booked under reference. Releasing twice, or
	// releasing a hold that was never booked, is not an error.
	Release(ctx context.Context, reference string) error
}

// CustodialWallets names the backend wallet that holds an asset. Interest
// balances are ledger accounts backed by that wallet.
type CustodialWallets interface {
	WithdrawalWallet(symbol, network string) (string, error)
}

// HoldReference is the ledger reference of the hold an attempt books
// before its custodial withdrawal.
func HoldReference(attemptId string) string {
	return attemptId + "-hold"
}

type Orders interface {
	CreateOrder(ctx context.Context, req brokerage.OrderRequest) (*brokerage.Order, error)
	UpdateOrder(ctx context.Context, orderId, txHash string) error
}

type QuoteSource interface {
	CreateQuote(ctx context.Context, req brokerage.Request) (*brokerage.Quote, error)
	// GetQuote re-reads a quote the brokerage already issued.
	GetQuote(ctx context.Context, id string, req brokerage.Request) (*brokerage.Quote, error)
}

// BitPayClient talks to the invoice server
type BitPayClient interface {
	Verify(ctx context.Context, invoiceId string, signedTx []byte) error
	Pay(ctx context.Context, invoiceId string, signedTx []byte) (string, error)
}

// MessageSigner signs a 32 byte digest with the key behind address and
// returns the 65 byte [R || S || V] signature.
type MessageSigner interface {
	SignHash(ctx context.Context, address string, hash []byte) ([]byte, error)
}

// InterestTerms are the product terms of an interest account
type InterestTerms struct {
	Rate            decimal.Decimal
	LockUpDays      int
	MinimumDeposit  *money.Money
	Withdrawable    *money.Money
	NextPaymentDate time.Time
}

type InterestAccounts interface {
	Terms(ctx context.Context, account Account) (InterestTerms, error)
}

// Dependencies are the collaborators engines are built from. Only the ones a
// Kind needs must be set; Factory.Validate checks that.
type Dependencies struct {
	Balances         BalanceProvider
	ReceiveAddresses ReceiveAddressProvider
	Rates            ExchangeRates
	Limits           LimitsRepository
	CustodialFees    CustodialFees
	Settlement       Settlement
	FiatTransfers    FiatTransfers
	OnChain          OnChainClient
	Metadata         WalletMetadata
	Withdrawals      CustodialWithdrawals
	Ledger           CustodialLedger
	Wallets          CustodialWallets
	Orders           Orders
	Quotes           QuoteSource
	BitPay           BitPayClient
	Signer           MessageSigner
	Interest         InterestAccounts
	Now              func() time.Time
}
