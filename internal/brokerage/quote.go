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

package brokerage

import (
	"time"

	"github.com/shopspring/decimal"
	"wallet-txengine-go/internal/money"
)

// PaymentMethod is how the base side of a quote is funded
type PaymentMethod string

const (
	PaymentMethodFunds        PaymentMethod = "FUNDS"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCard         PaymentMethod = "PAYMENT_CARD"
)

// Profile selects the brokerage product a quote is priced for
type Profile string

const (
	ProfileBuy         Profile = "SIMPLEBUY"
	ProfileSell        Profile = "SIMPLETRADE"
	ProfileSwapTrading Profile = "SWAP_INTERNAL"
	ProfileSwapOnChain Profile = "SWAP_FROM_USERKEY"
)

// Request is the immutable half of a quote
type Request struct {
	Amount        money.Money
	Base          money.Currency
	Quote         money.Currency
	PaymentMethod PaymentMethod
	Profile       Profile
}

func (r Request) Pair() string {
	return r.Base.Code + "-" + r.Quote.Code
}

// FeeDetails breaks down what the customer pays for a quote
type FeeDetails struct {
	Fee             money.Money
	FeeWithoutPromo money.Money
	Flags           []string
}

// SettlementDetails tells whether the payment rail can settle the order now
type SettlementDetails struct {
	Availability string
}

const (
	SettlementInstant     = "INSTANT"
	SettlementRegular     = "REGULAR"
	SettlementUnavailable = "UNAVAILABLE"
)

// DepositTerms describes when deposited funds become usable
type DepositTerms struct {
	CreditCurrency                 string
	AvailableToTradeMinutesMin     int
	AvailableToTradeMinutesMax     int
	AvailableToTradeDisplayMode    string
	AvailableToWithdrawMinutesMin  int
	AvailableToWithdrawMinutesMax  int
	AvailableToWithdrawDisplayMode string
	SettlementType                 string
	SettlementReason               string
}

// WithdrawalLockDays is the number of whole days a deposit stays locked
// for withdrawal, rounded up.
func (t DepositTerms) WithdrawalLockDays() int {
	const minutesPerDay = 24 * 60
	return (t.AvailableToWithdrawMinutesMax + minutesPerDay - 1) / minutesPerDay
}

func (t DepositTerms) AvailableToTradeAt(from time.Time) time.Time {
	return from.Add(time.Duration(t.AvailableToTradeMinutesMax) * time.Minute)
}

func (t DepositTerms) AvailableToWithdrawAt(from time.Time) time.Time {
	return from.Add(time.Duration(t.AvailableToWithdrawMinutesMax) * time.Minute)
}

// Response is the part of a quote that changes on every refresh
type Response struct {
	Id            string
	MarginPercent decimal.Decimal
	Price         money.Money
	Fee           FeeDetails
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Settlement    SettlementDetails
	DepositTerms  *DepositTerms
}

// Quote pairs a Response with the exact Request that produced it
type Quote struct {
	Request  Request
	Response Response
}

func (q *Quote) Id() string { return q.Response.Id }

func (q *Quote) IsExpired(now time.Time) bool {
	return !q.Response.ExpiresAt.After(now)
}

// clampExpiry caps ExpiresAt at now+max. A non-positive max leaves it alone.
func (q *Quote) clampExpiry(now time.Time, max time.Duration) {
	if max <= 0 {
		return
	}
	limit := now.Add(max)
	if q.Response.ExpiresAt.IsZero() || q.Response.ExpiresAt.After(limit) {
		q.Response.ExpiresAt = limit
	}
}

// Price is an indicative, non-executable price for a request
type Price struct {
	Request   Request
	Price     money.Money
	Fee       money.Money
	Result    money.Money
	Timestamp time.Time
}

// Order is a brokerage order created from a quote
type Order struct {
	Id             string
	QuoteId        string
	State          string
	InputAmount    money.Money
	OutputAmount   money.Money
	DepositAddress string
	CreatedAt      time.Time
}
