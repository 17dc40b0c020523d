package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wallet-txengine-go/internal/chainaddr"
	"wallet-txengine-go/internal/money"
)

// TradingSendEngine withdraws a custodial balance to an on-chain address.
// The custodial fee is flat and the backend minimum raises the limit floor.
type TradingSendEngine struct {
	base
	fee        money.Money
	minimum    money.Money
	feeFetched bool
}

func newTradingSendEngine(b base) *TradingSendEngine {
	return &TradingSendEngine{base: b}
}

func (e *TradingSendEngine) AssertInputsValid() error {
	if e.source.Kind != AccountTrading && e.source.Kind != AccountInterest {
		return fmt.Errorf("%w: custodial send needs a trading or interest source, got %s", ErrInvalidInputs, e.source.Kind)
	}
	if !e.source.Currency.IsCrypto() {
		return fmt.Errorf("%w: custodial send of fiat %s", ErrInvalidInputs, e.source.Currency)
	}
	return e.assertTarget(e.target)
}

func (e *TradingSendEngine) assertTarget(target Target) error {
	switch t := target.(type) {
	case AddressTarget:
	case AccountTarget:
		if t.Account.Kind != AccountNonCustodial {
			return fmt.Errorf("%w: custodial send to %s", ErrInvalidInputs, t.Account.Kind)
		}
	default:
		return fmt.Errorf("%w: custodial send cannot target %s", ErrInvalidInputs, target.Kind())
	}
	if target.Currency().Code != e.source.Currency.Code {
		return fmt.Errorf("%w: target is %s, source is %s", ErrInvalidInputs, target.Currency(), e.source.Currency)
	}
	return nil
}

func (e *TradingSendEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	if err := e.loadFee(ctx); err != nil {
		return PendingTransaction{}, err
	}
	balance, err := e.balance(ctx)
	if err != nil {
		return PendingTransaction{}, err
	}

	pt := newPendingTransaction(e.source.Currency, e.display)
	pt.Limits = e.withMinimum(e.limits(ctx, productSend))
	return e.recompute(e.initialAmount(), balance, pt)
}

func (e *TradingSendEngine) loadFee(ctx context.Context) error {
	if e.feeFetched {
		return nil
	}
	fee, minimum, err := e.deps.CustodialFees.WithdrawalFee(ctx, e.source.Currency, productWithdraw)
	if err != nil {
		return fmt.Errorf("unable to fetch withdrawal fee for %s: %w", e.source.Currency, err)
	}
	e.fee, e.minimum, e.feeFetched = fee, minimum, true
	return nil
}

// withMinimum raises the limit floor to the custodial withdrawal minimum.
func (e *TradingSendEngine) withMinimum(l *Limits) *Limits {
	if !e.minimum.IsPositive() {
		return l
	}
	if l == nil {
		return &Limits{Min: e.minimum}
	}
	cp := *l
	if e.minimum.GreaterThan(cp.Min) {
		cp.Min = e.minimum
	}
	return &cp
}

func (e *TradingSendEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.checkAmountCurrency(amount); err != nil {
		return pt, err
	}
	balance, err := e.balance(ctx)
	if err != nil {
		return pt, err
	}
	return e.recompute(amount, balance, pt)
}

func (e *TradingSendEngine) recompute(amount, balance money.Money, pt PendingTransaction) (PendingTransaction, error) {
	pt.Amount = amount
	pt.FeeAmount = e.fee
	pt.FeeForFullAvailable = e.fee
	pt.Available = subtractOrZero(balance, e.fee)
	return pt, pt.checkCurrency(e.source.Currency)
}

func (e *TradingSendEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	address, err := e.resolveAddress(ctx)
	if err != nil {
		return pt, err
	}
	total, err := pt.Amount.Add(pt.FeeAmount)
	if err != nil {
		return pt, err
	}

	destination := address
	if _, ok := e.target.(AccountTarget); ok {
		destination = fmt.Sprintf("%s (%s)", e.target.Label(), address)
	}

	items := []Confirmation{
		textConfirmation(ConfirmSource, e.source.String()),
		textConfirmation(ConfirmDestination, destination),
		e.amountLine(ctx, ConfirmNetworkFee, pt.FeeAmount, pt),
		e.amountLine(ctx, ConfirmTotal, total, pt),
	}
	if memo := targetMemo(e.target); memo != "" && e.deps.Metadata != nil && e.deps.Metadata.SupportsMemo(e.source.Currency, e.source.Network) {
		items = append(items, textConfirmation(ConfirmMemo, memo))
	}
	return pt.withConfirmations(items), nil
}

func (e *TradingSendEngine) resolveAddress(ctx context.Context) (string, error) {
	switch t := e.target.(type) {
	case AddressTarget:
		return t.Address, nil
	case AccountTarget:
		if e.deps.ReceiveAddresses == nil {
			return "", fmt.Errorf("%w: receive address provider", ErrMissingDependency)
		}
		address, err := e.deps.ReceiveAddresses.ReceiveAddress(ctx, t.Account)
		if err != nil {
			return "", fmt.Errorf("unable to resolve receive address of %s: %w", t.Account, err)
		}
		return address, nil
	default:
		return "", fmt.Errorf("%w: custodial send cannot target %s", ErrInvalidInputs, e.target.Kind())
	}
}

func (e *TradingSendEngine) ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.validateAmount(pt); err != nil {
		return pt, err
	}
	address, err := e.resolveAddress(ctx)
	if err != nil {
		return pt, err
	}
	if err := chainaddr.Validate(e.source.Network, address); err != nil {
		if errors.Is(err, chainaddr.ErrInvalidAddress) {
			return pt, &ValidationError{
				State:          StateInvalidAddress,
				SourceCurrency: e.source.Currency,
				TargetCurrency: e.target.Currency(),
				Reason:         err.Error(),
			}
		}
		return pt, err
	}
	return pt, nil
}

// UpdateFeeLevel is a no-op: custodial withdrawals have a single fee.
func (e *TradingSendEngine) UpdateFeeLevel(_ context.Context, pt PendingTransaction, _ FeeLevel, _ *money.Money) (PendingTransaction, error) {
	return pt, nil
}

// Execute holds amount plus fee in the ledger, then asks the backend to pay
// out. A refused withdrawal releases the hold. An ambiguous one keeps it
// until the reconciler learns the outcome.
func (e *TradingSendEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	address, err := e.resolveAddress(ctx)
	if err != nil {
		return Result{}, executionFailed("withdraw", err)
	}
	walletId, err := e.withdrawalWallet()
	if err != nil {
		return Result{}, executionFailed("withdraw", err)
	}
	total, err := pt.Amount.Add(pt.FeeAmount)
	if err != nil {
		return Result{}, executionFailed("hold", err)
	}

	key := idempotencyKey(ctx)
	hold := HoldReference(key)
	if _, err := e.deps.Ledger.Hold(ctx, e.source, total, hold); err != nil {
		return Result{}, executionFailed("hold", err)
	}

	reference, err := e.deps.Withdrawals.Withdraw(ctx, CustodialWithdrawal{
		WalletId:       walletId,
		Symbol:         e.source.Currency.Code,
		Network:        e.source.Network,
		Address:        address,
		Memo:           targetMemo(e.target),
		Amount:         pt.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		if rerr := e.deps.Ledger.Release(ctx, hold); rerr != nil {
			zap.L().Error("Failed to release ledger hold after refused withdrawal",
				zap.String("reference", hold),
				zap.Error(rerr))
			return Result{}, executionAmbiguous("withdraw", key, fmt.Errorf("%w (hold %s not released: %v)", err, hold, rerr))
		}
		return Result{}, executionFailed("withdraw", err)
	}
	if reference == "" {
		return Result{}, executionAmbiguous("withdraw", key, errors.New("withdrawal accepted without an activity id"))
	}

	zap.L().Info("Custodial withdrawal submitted",
		zap.String("wallet_id", walletId),
		zap.String("source", e.source.ID),
		zap.String("currency", e.source.Currency.Code),
		zap.String("amount", pt.Amount.Amount.String()),
		zap.String("activity_id", reference),
		zap.String("idempotency_key", key))

	return Unhashed(reference, pt.Amount), nil
}

// withdrawalWallet is the backend wallet the funds leave from. A trading
// account is that wallet; an interest account pays out of the trading
// wallet of its asset.
func (e *TradingSendEngine) withdrawalWallet() (string, error) {
	if e.source.Kind == AccountTrading {
		return e.source.ID, nil
	}
	if e.deps.Wallets == nil {
		return "", fmt.Errorf("%w: custodial wallets", ErrMissingDependency)
	}
	walletId, err := e.deps.Wallets.WithdrawalWallet(e.source.Currency.Code, e.source.Network)
	if err != nil {
		return "", fmt.Errorf("unable to resolve wallet backing %s: %w", e.source, err)
	}
	return walletId, nil
}

func (e *TradingSendEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.assertTarget(target); err != nil {
		return pt, err
	}
	e.target = target
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}
