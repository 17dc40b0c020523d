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

// Package money holds currency-tagged decimal amounts.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrCurrencyMismatch = errors.New("currency mismatch")

// Kind distinguishes crypto assets from fiat currencies
type Kind int

const (
	KindCrypto Kind = iota
	KindFiat
)

// Currency identifies an asset and the number of minor units it carries
type Currency struct {
	Code      string
	Precision int32
	Kind      Kind
}

func Crypto(code string, precision int32) Currency {
	return Currency{Code: strings.ToUpper(code), Precision: precision, Kind: KindCrypto}
}

func Fiat(code string) Currency {
	return Currency{Code: strings.ToUpper(code), Precision: 2, Kind: KindFiat}
}

func (c Currency) IsFiat() bool   { return c.Kind == KindFiat }
func (c Currency) IsCrypto() bool { return c.Kind == KindCrypto }
func (c Currency) String() string { return c.Code }

// Money is an amount denominated in a single currency
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

func New(amount decimal.Decimal, c Currency) Money {
	return Money{Amount: amount, Currency: c}
}

func Zero(c Currency) Money {
	return Money{Amount: decimal.Zero, Currency: c}
}

// Parse reads a major-unit decimal string such as "1.25".
func Parse(value string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return New(d, c), nil
}

// FromMinor reads an integer string of minor units (satoshi, wei, cents).
func FromMinor(minor string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(minor))
	if err != nil {
		return Money{}, fmt.Errorf("invalid minor amount %q: %w", minor, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return Money{}, fmt.Errorf("minor amount %q is not an integer", minor)
	}
	return New(d.Shift(-c.Precision), c), nil
}

// Minor renders the amount as an integer string of minor units, truncating
// anything below the currency precision.
func (m Money) Minor() string {
	return m.Amount.Shift(m.Currency.Precision).Truncate(0).String()
}

func (m Money) SameCurrency(o Money) bool {
	return m.Currency.Code == o.Currency.Code
}

func (m Money) Add(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return New(m.Amount.Add(o.Amount), m.Currency), nil
}

func (m Money) Sub(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return New(m.Amount.Sub(o.Amount), m.Currency), nil
}

// Comparisons look at amounts only; callers compare like currencies.
func (m Money) LessThan(o Money) bool           { return m.Amount.LessThan(o.Amount) }
func (m Money) GreaterThan(o Money) bool        { return m.Amount.GreaterThan(o.Amount) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Amount.GreaterThanOrEqual(o.Amount) }
func (m Money) Equal(o Money) bool              { return m.SameCurrency(o) && m.Amount.Equal(o.Amount) }

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsZero() bool     { return m.Amount.IsZero() }

// NonNegative clamps negative amounts to zero.
func (m Money) NonNegative() Money {
	if m.Amount.IsNegative() {
		return Zero(m.Currency)
	}
	return m
}

// Convert applies rate (units of to per unit of m) and rounds to the target
// precision.
func (m Money) Convert(rate decimal.Decimal, to Currency) Money {
	return New(m.Amount.Mul(rate).Round(to.Precision), to)
}

func (m Money) String() string {
	return m.Amount.StringFixed(displayPlaces(m)) + " " + m.Currency.Code
}

func displayPlaces(m Money) int32 {
	if m.Currency.IsFiat() {
		return m.Currency.Precision
	}
	exp := -m.Amount.Exponent()
	if exp < 0 {
		return 0
	}
	if exp > m.Currency.Precision {
		return m.Currency.Precision
	}
	return exp
}
