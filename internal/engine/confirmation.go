package engine

import (
	"fmt"
	"time"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/money"
)

// ConfirmationKind tags a line item shown for review before execute
type ConfirmationKind int

const (
	ConfirmSource ConfirmationKind = iota + 1
	ConfirmDestination
	ConfirmNetworkFee
	ConfirmFiatTransactionFee
	ConfirmTotal
	ConfirmMemo
	ConfirmAvailableToTradeDate
	ConfirmAvailableToWithdrawDate
	ConfirmDepositTerms
	ConfirmQuotePrice
	ConfirmInvoiceCountdown
	ConfirmSignMessage
	ConfirmInterestTerms
)

var confirmationNames = map[ConfirmationKind]string{
	ConfirmSource:                  "Source",
	ConfirmDestination:             "Destination",
	ConfirmNetworkFee:              "NetworkFee",
	ConfirmFiatTransactionFee:      "FiatTransactionFee",
	ConfirmTotal:                   "Total",
	ConfirmMemo:                    "Memo",
	ConfirmAvailableToTradeDate:    "AvailableToTradeDate",
	ConfirmAvailableToWithdrawDate: "AvailableToWithdrawDate",
	ConfirmDepositTerms:            "DepositTerms",
	ConfirmQuotePrice:              "QuotePrice",
	ConfirmInvoiceCountdown:        "InvoiceCountdown",
	ConfirmSignMessage:             "SignMessage",
	ConfirmInterestTerms:           "InterestTerms",
}

func (k ConfirmationKind) String() string {
	if name, ok := confirmationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("confirmation(%d)", int(k))
}

// Confirmation is one tagged review line. Only the fields relevant to Kind
// are set.
type Confirmation struct {
	Kind         ConfirmationKind
	Text         string
	Amount       *money.Money
	Display      *money.Money
	Time         *time.Time
	DepositTerms *brokerage.DepositTerms
}

func textConfirmation(kind ConfirmationKind, text string) Confirmation {
	return Confirmation{Kind: kind, Text: text}
}

func amountConfirmation(kind ConfirmationKind, amount money.Money, display *money.Money) Confirmation {
	return Confirmation{Kind: kind, Amount: &amount, Display: display}
}

func timeConfirmation(kind ConfirmationKind, at time.Time) Confirmation {
	return Confirmation{Kind: kind, Time: &at}
}

// WithdrawalLockDays is the lock carried by a DepositTerms line, or zero.
func (c Confirmation) WithdrawalLockDays() int {
	if c.DepositTerms == nil {
		return 0
	}
	return c.DepositTerms.WithdrawalLockDays()
}
