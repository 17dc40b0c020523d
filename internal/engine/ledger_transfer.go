package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wallet-txengine-go/internal/money"
)

// LedgerTransferEngine moves funds between two custodial accounts of the
// same asset by booking a ledger transaction. There is no network fee.
type LedgerTransferEngine struct {
	base
	product string
}

func newLedgerTransferEngine(b base, product string) *LedgerTransferEngine {
	return &LedgerTransferEngine{base: b, product: product}
}

func (e *LedgerTransferEngine) AssertInputsValid() error {
	if !e.source.Kind.IsCustodial() || e.source.Kind == AccountFiat {
		return fmt.Errorf("%w: ledger transfer needs a trading or interest source, got %s", ErrInvalidInputs, e.source.Kind)
	}
	return e.assertTarget(e.target)
}

func (e *LedgerTransferEngine) assertTarget(target Target) error {
	t, ok := target.(AccountTarget)
	if !ok {
		return fmt.Errorf("%w: ledger transfer cannot target %s", ErrInvalidInputs, target.Kind())
	}
	if t.Account.Kind != AccountTrading && t.Account.Kind != AccountInterest {
		return fmt.Errorf("%w: ledger transfer to %s", ErrInvalidInputs, t.Account.Kind)
	}
	if t.Account.ID == e.source.ID {
		return fmt.Errorf("%w: source and target are the same account", ErrInvalidInputs)
	}
	if t.Account.Currency.Code != e.source.Currency.Code {
		return fmt.Errorf("%w: target is %s, source is %s", ErrInvalidInputs, t.Account.Currency, e.source.Currency)
	}
	return nil
}

func (e *LedgerTransferEngine) ledgerBalance(ctx context.Context) (money.Money, error) {
	bal, err := e.deps.Ledger.Balance(ctx, e.source)
	if err != nil {
		return money.Money{}, fmt.Errorf("unable to fetch ledger balance of %s: %w", e.source, err)
	}
	return bal, nil
}

func (e *LedgerTransferEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	balance, err := e.ledgerBalance(ctx)
	if err != nil {
		return PendingTransaction{}, err
	}
	pt := newPendingTransaction(e.source.Currency, e.display)
	pt.Available = balance
	pt.Amount = e.initialAmount()
	pt.Limits = e.limits(ctx, e.product)
	return pt, pt.checkCurrency(e.source.Currency)
}

func (e *LedgerTransferEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.checkAmountCurrency(amount); err != nil {
		return pt, err
	}
	balance, err := e.ledgerBalance(ctx)
	if err != nil {
		return pt, err
	}
	pt.Amount = amount
	pt.Available = balance
	return pt, nil
}

func (e *LedgerTransferEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	return pt.withConfirmations([]Confirmation{
		textConfirmation(ConfirmSource, e.source.String()),
		textConfirmation(ConfirmDestination, e.target.Label()),
		e.amountLine(ctx, ConfirmTotal, pt.Amount, pt),
	}), nil
}

func (e *LedgerTransferEngine) ValidateAll(_ context.Context, pt PendingTransaction) (PendingTransaction, error) {
	return pt, e.validateAmount(pt)
}

func (e *LedgerTransferEngine) UpdateFeeLevel(_ context.Context, pt PendingTransaction, _ FeeLevel, _ *money.Money) (PendingTransaction, error) {
	return pt, nil
}

func (e *LedgerTransferEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	to := e.target.(AccountTarget).Account
	reference := idempotencyKey(ctx)

	txId, err := e.deps.Ledger.Transfer(ctx, e.source, to, pt.Amount, reference)
	if err != nil {
		return Result{}, executionFailed("ledger transfer", err)
	}
	if txId == "" {
		return Result{}, executionAmbiguous("ledger transfer", reference, errors.New("ledger returned no transaction id"))
	}

	zap.L().Info("Booked custodial transfer",
		zap.String("from", e.source.ID),
		zap.String("to", to.ID),
		zap.String("amount", pt.Amount.String()),
		zap.String("ledger_tx", txId))

	return Unhashed(txId, pt.Amount), nil
}

func (e *LedgerTransferEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.assertTarget(target); err != nil {
		return pt, err
	}
	e.target = target
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}
