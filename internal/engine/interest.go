package engine

import (
	"context"
	"fmt"

	"wallet-txengine-go/internal/money"
)

// interestWrapper forwards the whole contract to the wrapped engine and
// adds the interest product's terms on top.
type interestWrapper struct {
	inner Engine
	deps  *Dependencies
	terms *InterestTerms
}

func (w *interestWrapper) Source() Account { return w.inner.Source() }
func (w *interestWrapper) Target() Target  { return w.inner.Target() }

func (w *interestWrapper) loadTerms(ctx context.Context, account Account) error {
	terms, err := w.deps.Interest.Terms(ctx, account)
	if err != nil {
		return fmt.Errorf("unable to fetch interest terms for %s: %w", account, err)
	}
	w.terms = &terms
	return nil
}

func (w *interestWrapper) termsLine() Confirmation {
	t := w.terms
	text := fmt.Sprintf("%s%% annual rate", t.Rate.StringFixed(2))
	if t.LockUpDays > 0 {
		text += fmt.Sprintf(", %d day lock-up", t.LockUpDays)
	}
	if !t.NextPaymentDate.IsZero() {
		text += ", next payment " + t.NextPaymentDate.Format("2006-01-02")
	}
	return textConfirmation(ConfirmInterestTerms, text)
}

func (w *interestWrapper) withTerms(pt PendingTransaction) PendingTransaction {
	if w.terms == nil {
		return pt
	}
	return pt.upsertConfirmation(w.termsLine())
}

func (w *interestWrapper) UpdateFeeLevel(ctx context.Context, pt PendingTransaction, level FeeLevel, custom *money.Money) (PendingTransaction, error) {
	return w.inner.UpdateFeeLevel(ctx, pt, level, custom)
}

func (w *interestWrapper) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	return w.inner.Execute(ctx, pt)
}

// InterestTransferEngine deposits into an interest account, through a
// ledger transfer from trading or an on-chain send from a non-custodial
// account.
type InterestTransferEngine struct {
	interestWrapper
}

func newInterestTransferEngine(inner Engine, deps *Dependencies) *InterestTransferEngine {
	return &InterestTransferEngine{interestWrapper{inner: inner, deps: deps}}
}

func (e *InterestTransferEngine) interestAccount(target Target) (Account, error) {
	t, ok := target.(AccountTarget)
	if !ok || t.Account.Kind != AccountInterest {
		return Account{}, fmt.Errorf("%w: interest transfer must target an interest account", ErrInvalidInputs)
	}
	return t.Account, nil
}

func (e *InterestTransferEngine) AssertInputsValid() error {
	if _, err := e.interestAccount(e.inner.Target()); err != nil {
		return err
	}
	return e.inner.AssertInputsValid()
}

func (e *InterestTransferEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	pt, err := e.inner.InitializeTransaction(ctx)
	if err != nil {
		return pt, err
	}
	account, err := e.interestAccount(e.inner.Target())
	if err != nil {
		return pt, err
	}
	return pt, e.loadTerms(ctx, account)
}

func (e *InterestTransferEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	return e.inner.Update(ctx, amount, pt)
}

func (e *InterestTransferEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.BuildConfirmations(ctx, pt)
	if err != nil {
		return pt, err
	}
	return e.withTerms(pt), nil
}

// ValidateAll adds the product's minimum deposit after the inner checks.
func (e *InterestTransferEngine) ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.ValidateAll(ctx, pt)
	if err != nil {
		return pt, err
	}
	if e.terms != nil && e.terms.MinimumDeposit != nil && pt.Amount.LessThan(*e.terms.MinimumDeposit) {
		requested := pt.Amount
		return pt, &ValidationError{
			State:          StateBelowMinimumLimit,
			Requested:      &requested,
			SourceCurrency: e.Source().Currency,
			TargetCurrency: e.Target().Currency(),
			Reason:         "minimum interest deposit is " + e.terms.MinimumDeposit.String(),
		}
	}
	return pt, nil
}

func (e *InterestTransferEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	account, err := e.interestAccount(target)
	if err != nil {
		return pt, err
	}
	pt, err = e.inner.Restart(ctx, target, pt)
	if err != nil {
		return pt, err
	}
	if err := e.loadTerms(ctx, account); err != nil {
		return pt, err
	}
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.withTerms(pt), nil
}

// InterestWithdrawEngine moves funds out of an interest account, to trading
// through the ledger or on-chain through a custodial send. Funds still in
// their lock-up period are not available.
type InterestWithdrawEngine struct {
	interestWrapper
}

func newInterestWithdrawEngine(inner Engine, deps *Dependencies) *InterestWithdrawEngine {
	return &InterestWithdrawEngine{interestWrapper{inner: inner, deps: deps}}
}

func (e *InterestWithdrawEngine) AssertInputsValid() error {
	if e.inner.Source().Kind != AccountInterest {
		return fmt.Errorf("%w: interest withdrawal needs an interest source, got %s", ErrInvalidInputs, e.inner.Source().Kind)
	}
	return e.inner.AssertInputsValid()
}

// capAvailable limits Available to the withdrawable part of the balance.
func (e *InterestWithdrawEngine) capAvailable(pt PendingTransaction) PendingTransaction {
	if e.terms == nil || e.terms.Withdrawable == nil {
		return pt
	}
	if w := *e.terms.Withdrawable; w.LessThan(pt.Available) {
		pt.Available = w
	}
	return pt
}

func (e *InterestWithdrawEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	pt, err := e.inner.InitializeTransaction(ctx)
	if err != nil {
		return pt, err
	}
	if err := e.loadTerms(ctx, e.Source()); err != nil {
		return pt, err
	}
	return e.capAvailable(pt), nil
}

func (e *InterestWithdrawEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.Update(ctx, amount, pt)
	if err != nil {
		return pt, err
	}
	return e.capAvailable(pt), nil
}

func (e *InterestWithdrawEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.BuildConfirmations(ctx, pt)
	if err != nil {
		return pt, err
	}
	return e.withTerms(pt), nil
}

func (e *InterestWithdrawEngine) ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	return e.inner.ValidateAll(ctx, e.capAvailable(pt))
}

func (e *InterestWithdrawEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.Restart(ctx, target, pt)
	if err != nil {
		return pt, err
	}
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.withTerms(pt), nil
}
