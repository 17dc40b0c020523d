package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/money"
)

// FiatDepositEngine pulls fiat from a linked bank into a fiat account. The
// fee is taken out of the deposited amount, so Total equals the amount.
type FiatDepositEngine struct {
	base
}

func newFiatDepositEngine(b base) *FiatDepositEngine {
	return &FiatDepositEngine{base: b}
}

func (e *FiatDepositEngine) AssertInputsValid() error {
	if e.source.Kind != AccountLinkedBank {
		return fmt.Errorf("%w: deposit needs a linked bank source, got %s", ErrInvalidInputs, e.source.Kind)
	}
	t, ok := e.target.(AccountTarget)
	if !ok || t.Account.Kind != AccountFiat {
		return fmt.Errorf("%w: deposit must target a fiat account", ErrInvalidInputs)
	}
	if t.Account.Currency.Code != e.source.Currency.Code {
		return fmt.Errorf("%w: bank is %s, account is %s", ErrInvalidInputs, e.source.Currency, t.Account.Currency)
	}
	return nil
}

func (e *FiatDepositEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	available, err := e.balance(ctx)
	if err != nil {
		return PendingTransaction{}, err
	}
	pt := newPendingTransaction(e.source.Currency, e.display)
	pt.Amount = e.initialAmount()
	pt.Available = available
	pt.Limits = e.limits(ctx, productDeposit)
	return pt, pt.checkCurrency(e.source.Currency)
}

func (e *FiatDepositEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.checkAmountCurrency(amount); err != nil {
		return pt, err
	}
	available, err := e.balance(ctx)
	if err != nil {
		return pt, err
	}
	pt.Amount = amount
	pt.Available = available
	return pt, nil
}

func (e *FiatDepositEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	terms, err := e.deps.FiatTransfers.DepositTerms(ctx, e.source, pt.Amount)
	if err != nil {
		return pt, fmt.Errorf("unable to fetch deposit terms: %w", err)
	}
	pt.FeeAmount = terms.Fee
	pt.FeeForFullAvailable = terms.Fee

	items := []Confirmation{
		textConfirmation(ConfirmSource, e.source.String()),
		textConfirmation(ConfirmDestination, e.target.Label()),
		amountConfirmation(ConfirmFiatTransactionFee, terms.Fee, nil),
		amountConfirmation(ConfirmTotal, pt.Amount, nil),
	}
	if terms.Terms != nil {
		items = append(items, depositTermLines(e.now(), terms.Terms)...)
	}
	return pt.withConfirmations(items), pt.checkCurrency(e.source.Currency)
}

func (e *FiatDepositEngine) ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.validateAmount(pt); err != nil {
		return pt, err
	}
	if e.deps.Settlement == nil {
		return pt, nil
	}
	details, err := e.deps.Settlement.CheckSettlement(ctx, e.source, pt.Amount)
	if err != nil {
		return pt, fmt.Errorf("unable to check settlement: %w", err)
	}
	if details.Availability == brokerage.SettlementUnavailable {
		return pt, &ValidationError{
			State:          StateSettlementNotReady,
			SourceCurrency: e.source.Currency,
			TargetCurrency: e.target.Currency(),
			Reason:         "bank link cannot settle right now",
		}
	}
	return pt, nil
}

func (e *FiatDepositEngine) UpdateFeeLevel(_ context.Context, pt PendingTransaction, _ FeeLevel, _ *money.Money) (PendingTransaction, error) {
	return pt, nil
}

func (e *FiatDepositEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	key := idempotencyKey(ctx)
	reference, err := e.deps.FiatTransfers.Deposit(ctx, e.source, e.target.(AccountTarget).Account, pt.Amount, key)
	if err != nil {
		return Result{}, executionFailed("deposit", err)
	}
	if reference == "" {
		return Result{}, executionAmbiguous("deposit", key, errors.New("deposit accepted without a reference"))
	}
	zap.L().Info("Bank deposit initiated",
		zap.String("bank", e.source.ID),
		zap.String("amount", pt.Amount.String()),
		zap.String("reference", reference))
	return Unhashed(reference, pt.Amount), nil
}

func (e *FiatDepositEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	prev := e.target
	e.target = target
	if err := e.AssertInputsValid(); err != nil {
		e.target = prev
		return pt, err
	}
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}

// FiatWithdrawEngine pays a fiat balance out to a linked bank. The flat fee
// is deducted from the amount, which must exceed it.
type FiatWithdrawEngine struct {
	base
	fee        money.Money
	minimum    money.Money
	feeFetched bool
}

func newFiatWithdrawEngine(b base) *FiatWithdrawEngine {
	return &FiatWithdrawEngine{base: b}
}

func (e *FiatWithdrawEngine) AssertInputsValid() error {
	if e.source.Kind != AccountFiat {
		return fmt.Errorf("%w: fiat withdrawal needs a fiat source, got %s", ErrInvalidInputs, e.source.Kind)
	}
	t, ok := e.target.(AccountTarget)
	if !ok || t.Account.Kind != AccountLinkedBank {
		return fmt.Errorf("%w: fiat withdrawal must target a linked bank", ErrInvalidInputs)
	}
	if t.Account.Currency.Code != e.source.Currency.Code {
		return fmt.Errorf("%w: account is %s, bank is %s", ErrInvalidInputs, e.source.Currency, t.Account.Currency)
	}
	return nil
}

func (e *FiatWithdrawEngine) loadFee(ctx context.Context) error {
	if e.feeFetched {
		return nil
	}
	fee, minimum, err := e.deps.CustodialFees.WithdrawalFee(ctx, e.source.Currency, productFiatOut)
	if err != nil {
		return fmt.Errorf("unable to fetch withdrawal fee for %s: %w", e.source.Currency, err)
	}
	e.fee, e.minimum, e.feeFetched = fee, minimum, true
	return nil
}

func (e *FiatWithdrawEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	if err := e.loadFee(ctx); err != nil {
		return PendingTransaction{}, err
	}
	balance, err := e.balance(ctx)
	if err != nil {
		return PendingTransaction{}, err
	}
	pt := newPendingTransaction(e.source.Currency, e.display)
	pt.Amount = e.initialAmount()
	pt.Available = balance
	pt.FeeAmount = e.fee
	pt.FeeForFullAvailable = e.fee
	pt.Limits = e.limits(ctx, productFiatOut)
	if e.minimum.IsPositive() {
		if pt.Limits == nil {
			pt.Limits = &Limits{Min: e.minimum}
		} else if e.minimum.GreaterThan(pt.Limits.Min) {
			l := *pt.Limits
			l.Min = e.minimum
			pt.Limits = &l
		}
	}
	return pt, pt.checkCurrency(e.source.Currency)
}

func (e *FiatWithdrawEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.checkAmountCurrency(amount); err != nil {
		return pt, err
	}
	balance, err := e.balance(ctx)
	if err != nil {
		return pt, err
	}
	pt.Amount = amount
	pt.Available = balance
	return pt, nil
}

func (e *FiatWithdrawEngine) BuildConfirmations(_ context.Context, pt PendingTransaction) (PendingTransaction, error) {
	return pt.withConfirmations([]Confirmation{
		textConfirmation(ConfirmSource, e.source.String()),
		textConfirmation(ConfirmDestination, e.target.Label()),
		amountConfirmation(ConfirmFiatTransactionFee, pt.FeeAmount, nil),
		amountConfirmation(ConfirmTotal, pt.Amount, nil),
	}), nil
}

func (e *FiatWithdrawEngine) ValidateAll(_ context.Context, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.validateAmount(pt); err != nil {
		return pt, err
	}
	if !pt.Amount.GreaterThan(pt.FeeAmount) {
		requested := pt.Amount
		return pt, &ValidationError{
			State:          StateInsufficientFundsForFees,
			Requested:      &requested,
			SourceCurrency: e.source.Currency,
			TargetCurrency: e.target.Currency(),
			Reason:         "amount does not cover the fee of " + pt.FeeAmount.String(),
		}
	}
	return pt, nil
}

func (e *FiatWithdrawEngine) UpdateFeeLevel(_ context.Context, pt PendingTransaction, _ FeeLevel, _ *money.Money) (PendingTransaction, error) {
	return pt, nil
}

func (e *FiatWithdrawEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	key := idempotencyKey(ctx)
	reference, err := e.deps.FiatTransfers.Withdraw(ctx, e.source, e.target.(AccountTarget).Account, pt.Amount, key)
	if err != nil {
		return Result{}, executionFailed("fiat withdraw", err)
	}
	if reference == "" {
		return Result{}, executionAmbiguous("fiat withdraw", key, errors.New("withdrawal accepted without a reference"))
	}
	return Unhashed(reference, pt.Amount), nil
}

func (e *FiatWithdrawEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	prev := e.target
	e.target = target
	if err := e.AssertInputsValid(); err != nil {
		e.target = prev
		return pt, err
	}
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}
