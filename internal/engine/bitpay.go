package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wallet-txengine-go/internal/money"
)

// BitPayEngine pays a BitPay invoice from a non-custodial account. The
// invoice fixes the amount and the fee tier is pinned to priority so the
// payment confirms before the invoice expires. The signed transaction goes
// to the invoice server instead of the network.
type BitPayEngine struct {
	inner   *OnChainEngine
	deps    *Dependencies
	invoice BitPayInvoiceTarget
}

func newBitPayEngine(inner *OnChainEngine, deps *Dependencies, invoice BitPayInvoiceTarget) *BitPayEngine {
	return &BitPayEngine{inner: inner, deps: deps, invoice: invoice}
}

// invoiceAddressTarget is what the wrapped engine sends to.
func invoiceAddressTarget(invoice BitPayInvoiceTarget) AddressTarget {
	amount := invoice.Amount
	return AddressTarget{
		Address:       invoice.Address,
		Network:       invoice.Network,
		AssetCurrency: invoice.Amount.Currency,
		Amount:        &amount,
	}
}

func (e *BitPayEngine) Source() Account { return e.inner.Source() }
func (e *BitPayEngine) Target() Target  { return e.invoice }

func (e *BitPayEngine) AssertInputsValid() error {
	if e.invoice.InvoiceID == "" {
		return fmt.Errorf("%w: invoice without an id", ErrInvalidInputs)
	}
	if e.invoice.Amount.Currency.Code != e.Source().Currency.Code {
		return fmt.Errorf("%w: invoice is in %s, source holds %s", ErrInvalidInputs, e.invoice.Amount.Currency, e.Source().Currency)
	}
	return e.inner.AssertInputsValid()
}

func (e *BitPayEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	pt, err := e.inner.InitializeTransaction(ctx)
	if err != nil {
		return pt, err
	}
	pt, err = e.inner.forceFeeLevel(pt, FeePriority)
	if err != nil {
		return pt, err
	}
	return e.inner.Update(ctx, e.invoice.Amount, pt)
}

// Update keeps the invoice amount whatever the caller asks for.
func (e *BitPayEngine) Update(ctx context.Context, _ money.Money, pt PendingTransaction) (PendingTransaction, error) {
	return e.inner.Update(ctx, e.invoice.Amount, pt)
}

func (e *BitPayEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.BuildConfirmations(ctx, pt)
	if err != nil {
		return pt, err
	}
	pt = pt.upsertConfirmation(textConfirmation(ConfirmDestination, fmt.Sprintf("%s (invoice %s)", e.invoice.Merchant, e.invoice.InvoiceID)))
	return pt.upsertConfirmation(timeConfirmation(ConfirmInvoiceCountdown, e.invoice.ExpiresAt)), nil
}

func (e *BitPayEngine) ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.ValidateAll(ctx, pt)
	if err != nil {
		return pt, err
	}
	if !pt.Amount.Equal(e.invoice.Amount) {
		requested := pt.Amount
		return pt, &ValidationError{
			State:          StateInvalidAmount,
			Requested:      &requested,
			SourceCurrency: e.Source().Currency,
			TargetCurrency: e.invoice.Amount.Currency,
			Reason:         "invoice requires exactly " + e.invoice.Amount.String(),
		}
	}
	return pt, e.checkExpiry()
}

func (e *BitPayEngine) checkExpiry() error {
	if !e.invoice.ExpiresAt.After(e.inner.now()) {
		return &ValidationError{
			State:          StateInvoiceExpired,
			SourceCurrency: e.Source().Currency,
			TargetCurrency: e.invoice.Amount.Currency,
			Reason:         fmt.Sprintf("invoice %s expired at %s", e.invoice.InvoiceID, e.invoice.ExpiresAt.Format(time.RFC3339)),
		}
	}
	return nil
}

// UpdateFeeLevel leaves the pinned priority tier in place.
func (e *BitPayEngine) UpdateFeeLevel(ctx context.Context, pt PendingTransaction, level FeeLevel, custom *money.Money) (PendingTransaction, error) {
	return e.inner.UpdateFeeLevel(ctx, pt, level, custom)
}

func (e *BitPayEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	if err := e.checkExpiry(); err != nil {
		return Result{}, executionFailed("pay invoice", err)
	}

	signed, err := e.inner.Sign(ctx, pt)
	if err != nil {
		return Result{}, executionFailed("sign invoice payment", err)
	}
	if err := e.deps.BitPay.Verify(ctx, e.invoice.InvoiceID, signed); err != nil {
		return Result{}, executionFailed("verify invoice payment", err)
	}

	hash, err := e.deps.BitPay.Pay(ctx, e.invoice.InvoiceID, signed)
	if err != nil {
		return Result{}, executionFailed("pay invoice", err)
	}
	if hash == "" {
		return Result{}, executionAmbiguous("pay invoice", e.invoice.InvoiceID, errors.New("invoice server returned no transaction hash"))
	}

	zap.L().Info("Paid BitPay invoice",
		zap.String("invoice_id", e.invoice.InvoiceID),
		zap.String("merchant", e.invoice.Merchant),
		zap.String("tx_hash", hash))

	return Hashed(hash, pt.Amount), nil
}

// Restart accepts only another invoice; the amount follows the new invoice.
func (e *BitPayEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	invoice, ok := target.(BitPayInvoiceTarget)
	if !ok {
		return pt, fmt.Errorf("%w: BitPay payment cannot retarget to %s", ErrInvalidInputs, target.Kind())
	}
	if invoice.Amount.Currency.Code != e.Source().Currency.Code {
		return pt, fmt.Errorf("%w: invoice is in %s", ErrInvalidInputs, invoice.Amount.Currency)
	}
	e.invoice = invoice

	hadConfirmations := len(pt.Confirmations) > 0
	pt, err := e.inner.Restart(ctx, invoiceAddressTarget(invoice), pt)
	if err != nil {
		return pt, err
	}
	pt, err = e.inner.Update(ctx, invoice.Amount, pt)
	if err != nil || !hadConfirmations {
		return pt, err
	}
	return e.BuildConfirmations(ctx, pt)
}
