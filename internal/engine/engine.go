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
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"
)

// Engine builds, validates and executes one transfer for one
// (source, target) pair. An engine is single-writer: callers serialize
// lifecycle calls, which Processor does for them.
type Engine interface {
	Source() Account
	Target() Target

	// AssertInputsValid fails with ErrInvalidInputs when source or target
	// cannot be served. A failure is a dispatch bug, not a user error.
	AssertInputsValid() error

	InitializeTransaction(ctx context.Context) (PendingTransaction, error)
	Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error)
	BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error)
	// ValidateAll returns a *ValidationError for user-fixable failures.
	ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error)
	UpdateFeeLevel(ctx context.Context, pt PendingTransaction, level FeeLevel, custom *money.Money) (PendingTransaction, error)
	// Execute performs the single external transfer. It must not be
	// called twice for one attempt.
	Execute(ctx context.Context, pt PendingTransaction) (Result, error)
	Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error)
}

// base holds what every concrete engine shares
type base struct {
	source     Account
	target     Target
	deps       *Dependencies
	display    money.Currency
	predefined *money.Money
}

func (b *base) Source() Account { return b.source }
func (b *base) Target() Target  { return b.target }

func (b *base) now() time.Time {
	if b.deps.Now != nil {
		return b.deps.Now()
	}
	return time.Now()
}

// initialAmount is the predefined amount when it matches the source
// currency, zero otherwise.
func (b *base) initialAmount() money.Money {
	if b.predefined != nil && b.predefined.Currency.Code == b.source.Currency.Code {
		return *b.predefined
	}
	if t, ok := b.target.(AddressTarget); ok && t.Amount != nil && t.Amount.Currency.Code == b.source.Currency.Code {
		return *t.Amount
	}
	return money.Zero(b.source.Currency)
}

func (b *base) checkAmountCurrency(amount money.Money) error {
	if amount.Currency.Code != b.source.Currency.Code {
		return fmt.Errorf("%w: amount in %s, source account holds %s", ErrInvalidInputs, amount.Currency, b.source.Currency)
	}
	return nil
}

func (b *base) balance(ctx context.Context) (money.Money, error) {
	bal, err := b.deps.Balances.Balance(ctx, b.source)
	if err != nil {
		return money.Money{}, fmt.Errorf("unable to fetch balance of %s: %w", b.source, err)
	}
	return bal, nil
}

// limits fetches product limits; a failed lookup leaves the transaction
// without limits rather than blocking it.
func (b *base) limits(ctx context.Context, product string) *Limits {
	if b.deps.Limits == nil {
		return nil
	}
	l, err := b.deps.Limits.TransactionLimits(ctx, b.source.Currency, product)
	if err != nil {
		zap.L().Warn("Unable to fetch transaction limits",
			zap.String("currency", b.source.Currency.Code),
			zap.String("product", product),
			zap.Error(err))
		return nil
	}
	return l
}

// toDisplay converts m into the display currency. Rate failures only drop
// the display value.
func (b *base) toDisplay(ctx context.Context, m money.Money, display money.Currency) *money.Money {
	if b.deps.Rates == nil || display.Code == "" {
		return nil
	}
	if m.Currency.Code == display.Code {
		return &m
	}
	rate, err := b.deps.Rates.ExchangeRate(ctx, m.Currency, display)
	if err != nil {
		zap.L().Debug("Exchange rate unavailable",
			zap.String("from", m.Currency.Code),
			zap.String("to", display.Code),
			zap.Error(err))
		return nil
	}
	converted := m.Convert(rate, display)
	return &converted
}

func (b *base) amountLine(ctx context.Context, kind ConfirmationKind, m money.Money, pt PendingTransaction) Confirmation {
	return amountConfirmation(kind, m, b.toDisplay(ctx, m, pt.SelectedDisplayCurrency))
}

// validateAmount runs the checks shared by every transfer engine, in order:
// positive, within available, at or above the minimum, at or below each cap.
func (b *base) validateAmount(pt PendingTransaction) error {
	amount := pt.Amount
	if !amount.IsPositive() {
		return b.limitError(StateBelowMinimumLimit, amount, nil)
	}
	if amount.GreaterThan(pt.Available) {
		available := pt.Available
		return &ValidationError{
			State:          StateInsufficientFunds,
			Available:      &available,
			Requested:      &amount,
			SourceCurrency: b.source.Currency,
			TargetCurrency: b.target.Currency(),
		}
	}
	if pt.Limits == nil {
		return nil
	}
	if pt.Limits.Min.IsPositive() && amount.LessThan(pt.Limits.Min) {
		return b.limitError(StateBelowMinimumLimit, amount, &pt.Limits.Min)
	}
	for _, c := range []struct {
		state ValidationState
		limit *money.Money
	}{
		{StateOverMaximumLimit, pt.Limits.Max},
		{StateOverDailyLimit, pt.Limits.Daily},
		{StateOverAnnualLimit, pt.Limits.Annual},
	} {
		if c.limit != nil && amount.GreaterThan(*c.limit) {
			return b.limitError(c.state, amount, c.limit)
		}
	}
	return nil
}

func (b *base) limitError(state ValidationState, requested money.Money, limit *money.Money) *ValidationError {
	e := &ValidationError{
		State:          state,
		Requested:      &requested,
		SourceCurrency: b.source.Currency,
		TargetCurrency: b.target.Currency(),
	}
	if limit != nil {
		e.Reason = "limit " + limit.String()
	}
	return e
}

// idempotencyKey is the processor's attempt id, so a backend sees the same
// key for the journal row and the transfer.
func idempotencyKey(ctx context.Context) string {
	if ac := models.GetAttemptContext(ctx); ac != nil && ac.AttemptId != "" {
		return ac.AttemptId
	}
	return uuid.New().String()
}

func subtractOrZero(a, b money.Money) money.Money {
	diff, err := a.Sub(b)
	if err != nil {
		return a
	}
	return diff.NonNegative()
}
