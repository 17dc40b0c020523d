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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"wallet-txengine-go/internal/money"
)

// Timestamps go out in UTC with as much fractional precision as they carry,
// so a time sent back to the server is the time it issued.
const wireTimeLayout = time.RFC3339Nano

type wireTime time.Time

func (t wireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(wireTimeLayout))
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = wireTime{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*t = wireTime(parsed)
	return nil
}

type quoteRequestWire struct {
	Profile       string `json:"profile"`
	InputValue    string `json:"inputValue"`
	Pair          string `json:"pair"`
	PaymentMethod string `json:"paymentMethod"`
}

type feeDetailsWire struct {
	Fee             string   `json:"fee"`
	FeeWithoutPromo string   `json:"feeWithoutPromo"`
	FeeFlags        []string `json:"feeFlags"`
}

type settlementDetailsWire struct {
	Availability string `json:"availability"`
}

type depositTermsWire struct {
	CreditCurrency                 string `json:"creditCurrency"`
	AvailableToTradeMinutesMin     int    `json:"availableToTradeMinutesMin"`
	AvailableToTradeMinutesMax     int    `json:"availableToTradeMinutesMax"`
	AvailableToTradeDisplayMode    string `json:"availableToTradeDisplayMode"`
	AvailableToWithdrawMinutesMin  int    `json:"availableToWithdrawMinutesMin"`
	AvailableToWithdrawMinutesMax  int    `json:"availableToWithdrawMinutesMax"`
	AvailableToWithdrawDisplayMode string `json:"availableToWithdrawDisplayMode"`
	SettlementType                 string `json:"settlementType"`
	SettlementReason               string `json:"settlementReason"`
}

type quoteWire struct {
	QuoteId            string                `json:"quoteId"`
	QuoteMarginPercent decimal.Decimal       `json:"quoteMarginPercent"`
	QuoteCreatedAt     wireTime              `json:"quoteCreatedAt"`
	QuoteExpiresAt     wireTime              `json:"quoteExpiresAt"`
	Price              string                `json:"price"`
	FeeDetails         feeDetailsWire        `json:"feeDetails"`
	SettlementDetails  settlementDetailsWire `json:"settlementDetails"`
	DepositTerms       *depositTermsWire     `json:"depositTerms,omitempty"`
}

type priceWire struct {
	Price        string   `json:"price"`
	NetworkFee   string   `json:"networkFee"`
	StaticFee    string   `json:"staticFee"`
	ResultAmount string   `json:"resultAmount"`
	Timestamp    wireTime `json:"timestamp"`
}

type orderRequestWire struct {
	QuoteId            string `json:"quoteId"`
	Pair               string `json:"pair"`
	InputValue         string `json:"inputValue"`
	PaymentMethod      string `json:"paymentMethod"`
	Profile            string `json:"profile"`
	IdempotencyKey     string `json:"idempotencyKey"`
	RefundAddress      string `json:"refundAddress,omitempty"`
	DestinationAddress string `json:"destinationAddress,omitempty"`
}

type orderWire struct {
	Id             string   `json:"id"`
	QuoteId        string   `json:"quoteId"`
	State          string   `json:"state"`
	InputAmount    string   `json:"inputValue"`
	OutputAmount   string   `json:"outputValue"`
	DepositAddress string   `json:"depositAddress"`
	CreatedAt      wireTime `json:"createdAt"`
}

type withdrawalFeesWire struct {
	Fee       string `json:"fee"`
	MinAmount string `json:"minAmount"`
}

type limitsWire struct {
	Min    string  `json:"minOrder"`
	Max    *string `json:"maxOrder,omitempty"`
	Daily  *string `json:"dailyAvailable,omitempty"`
	Annual *string `json:"annualAvailable,omitempty"`
}

type rateWire struct {
	Rate decimal.Decimal `json:"rate"`
}

// EncodeQuote renders a quote in the brokerage wire format.
func EncodeQuote(q *Quote) ([]byte, error) {
	w := quoteWire{
		QuoteId:            q.Response.Id,
		QuoteMarginPercent: q.Response.MarginPercent,
		QuoteCreatedAt:     wireTime(q.Response.CreatedAt),
		QuoteExpiresAt:     wireTime(q.Response.ExpiresAt),
		Price:              q.Response.Price.Minor(),
		FeeDetails: feeDetailsWire{
			Fee:             q.Response.Fee.Fee.Minor(),
			FeeWithoutPromo: q.Response.Fee.FeeWithoutPromo.Minor(),
			FeeFlags:        q.Response.Fee.Flags,
		},
		SettlementDetails: settlementDetailsWire{Availability: q.Response.Settlement.Availability},
	}
	if t := q.Response.DepositTerms; t != nil {
		w.DepositTerms = &depositTermsWire{
			CreditCurrency:                 t.CreditCurrency,
			AvailableToTradeMinutesMin:     t.AvailableToTradeMinutesMin,
			AvailableToTradeMinutesMax:     t.AvailableToTradeMinutesMax,
			AvailableToTradeDisplayMode:    t.AvailableToTradeDisplayMode,
			AvailableToWithdrawMinutesMin:  t.AvailableToWithdrawMinutesMin,
			AvailableToWithdrawMinutesMax:  t.AvailableToWithdrawMinutesMax,
			AvailableToWithdrawDisplayMode: t.AvailableToWithdrawDisplayMode,
			SettlementType:                 t.SettlementType,
			SettlementReason:               t.SettlementReason,
		}
	}
	return json.Marshal(w)
}

// DecodeQuote parses a wire quote and pairs it with the request it answers.
// Price is in minor units of the quote currency, fees in minor units of the
// base currency.
func DecodeQuote(data []byte, req Request) (*Quote, error) {
	var w quoteWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unable to decode quote: %w", err)
	}
	if w.QuoteId == "" {
		return nil, fmt.Errorf("quote response missing quoteId")
	}

	price, err := money.FromMinor(w.Price, req.Quote)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", w.QuoteId, err)
	}
	fee, err := minorOrZero(w.FeeDetails.Fee, req.Base)
	if err != nil {
		return nil, fmt.Errorf("quote %s fee: %w", w.QuoteId, err)
	}
	feeWithoutPromo, err := minorOrZero(w.FeeDetails.FeeWithoutPromo, req.Base)
	if err != nil {
		return nil, fmt.Errorf("quote %s fee without promo: %w", w.QuoteId, err)
	}

	resp := Response{
		Id:            w.QuoteId,
		MarginPercent: w.QuoteMarginPercent,
		Price:         price,
		Fee: FeeDetails{
			Fee:             fee,
			FeeWithoutPromo: feeWithoutPromo,
			Flags:           w.FeeDetails.FeeFlags,
		},
		CreatedAt:  time.Time(w.QuoteCreatedAt),
		ExpiresAt:  time.Time(w.QuoteExpiresAt),
		Settlement: SettlementDetails{Availability: w.SettlementDetails.Availability},
	}
	if t := w.DepositTerms; t != nil {
		resp.DepositTerms = &DepositTerms{
			CreditCurrency:                 t.CreditCurrency,
			AvailableToTradeMinutesMin:     t.AvailableToTradeMinutesMin,
			AvailableToTradeMinutesMax:     t.AvailableToTradeMinutesMax,
			AvailableToTradeDisplayMode:    t.AvailableToTradeDisplayMode,
			AvailableToWithdrawMinutesMin:  t.AvailableToWithdrawMinutesMin,
			AvailableToWithdrawMinutesMax:  t.AvailableToWithdrawMinutesMax,
			AvailableToWithdrawDisplayMode: t.AvailableToWithdrawDisplayMode,
			SettlementType:                 t.SettlementType,
			SettlementReason:               t.SettlementReason,
		}
	}

	return &Quote{Request: req, Response: resp}, nil
}

func encodeQuoteRequest(req Request) quoteRequestWire {
	return quoteRequestWire{
		Profile:       string(req.Profile),
		InputValue:    req.Amount.Minor(),
		Pair:          req.Pair(),
		PaymentMethod: string(req.PaymentMethod),
	}
}

func minorOrZero(value string, c money.Currency) (money.Money, error) {
	if strings.TrimSpace(value) == "" {
		return money.Zero(c), nil
	}
	return money.FromMinor(value, c)
}
