package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wallet-txengine-go/internal/chainaddr"
	"wallet-txengine-go/internal/money"
)

// OnChainEngine sends from a non-custodial account to an address or to the
// receive address of another account.
type OnChainEngine struct {
	base
	balance money.Money
	fees    map[FeeLevel]money.Money
}

func newOnChainEngine(b base) *OnChainEngine {
	return &OnChainEngine{base: b}
}

func (e *OnChainEngine) AssertInputsValid() error {
	if e.source.Kind != AccountNonCustodial {
		return fmt.Errorf("%w: on-chain send needs a non-custodial source, got %s", ErrInvalidInputs, e.source.Kind)
	}
	return e.assertTarget(e.target)
}

func (e *OnChainEngine) assertTarget(target Target) error {
	switch t := target.(type) {
	case AddressTarget:
	case AccountTarget:
		if t.Account.Kind == AccountFiat || t.Account.Kind == AccountLinkedBank {
			return fmt.Errorf("%w: cannot send on-chain to %s", ErrInvalidInputs, t.Account.Kind)
		}
	default:
		return fmt.Errorf("%w: on-chain send cannot target %s", ErrInvalidInputs, target.Kind())
	}
	if target.Currency().Code != e.source.Currency.Code {
		return fmt.Errorf("%w: target is %s, source is %s", ErrInvalidInputs, target.Currency(), e.source.Currency)
	}
	return nil
}

func (e *OnChainEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	balance, err := e.base.balance(ctx)
	if err != nil {
		return PendingTransaction{}, err
	}
	fees, err := e.deps.OnChain.FeeEstimates(ctx, e.source)
	if err != nil {
		return PendingTransaction{}, fmt.Errorf("unable to estimate fees: %w", err)
	}
	e.balance = balance
	e.fees = fees

	pt := newPendingTransaction(e.source.Currency, e.display)
	pt.FeeSelection = FeeSelection{Selected: defaultFeeLevel(fees), Available: offeredLevels(fees)}
	pt.Extension = OnChainExtension{Memo: targetMemo(e.target), FeeRates: fees}
	return e.recompute(e.initialAmount(), pt)
}

func (e *OnChainEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.checkAmountCurrency(amount); err != nil {
		return pt, err
	}
	balance, err := e.base.balance(ctx)
	if err != nil {
		return pt, err
	}
	e.balance = balance
	return e.recompute(amount, pt)
}

// recompute derives the fee and available balance for amount under the
// current fee selection.
func (e *OnChainEngine) recompute(amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	fee, err := e.feeFor(pt.FeeSelection)
	if err != nil {
		return pt, err
	}
	pt.Amount = amount
	pt.FeeAmount = fee
	pt.FeeForFullAvailable = fee
	pt.Available = subtractOrZero(e.balance, fee)

	ext := onChainExtension(pt)
	ext.SendMax = amount.IsPositive() && amount.Amount.Equal(pt.Available.Amount)
	pt.Extension = ext
	return pt, pt.checkCurrency(e.source.Currency)
}

func (e *OnChainEngine) feeFor(sel FeeSelection) (money.Money, error) {
	switch sel.Selected {
	case FeeNone:
		return money.Zero(e.source.Currency), nil
	case FeeCustom:
		if sel.CustomAmount == nil {
			return money.Money{}, fmt.Errorf("%w: custom fee level without an amount", ErrInvalidInputs)
		}
		return *sel.CustomAmount, nil
	}
	fee, ok := e.fees[sel.Selected]
	if !ok {
		return money.Money{}, fmt.Errorf("%w: fee level %s not offered", ErrInvalidInputs, sel.Selected)
	}
	return fee, nil
}

func (e *OnChainEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	destination, err := e.destinationLabel(ctx)
	if err != nil {
		return pt, err
	}
	total, err := pt.Amount.Add(pt.FeeAmount)
	if err != nil {
		return pt, err
	}

	items := []Confirmation{
		textConfirmation(ConfirmSource, e.source.String()),
		textConfirmation(ConfirmDestination, destination),
		e.amountLine(ctx, ConfirmNetworkFee, pt.FeeAmount, pt),
		e.amountLine(ctx, ConfirmTotal, total, pt),
	}
	if memo := onChainExtension(pt).Memo; memo != "" && e.supportsMemo() {
		items = append(items, textConfirmation(ConfirmMemo, memo))
	}
	return pt.withConfirmations(items), nil
}

func (e *OnChainEngine) supportsMemo() bool {
	return e.deps.Metadata != nil && e.deps.Metadata.SupportsMemo(e.source.Currency, e.source.Network)
}

func (e *OnChainEngine) destinationLabel(ctx context.Context) (string, error) {
	if t, ok := e.target.(AccountTarget); ok {
		address, err := e.resolveAddress(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (%s)", t.Label(), address), nil
	}
	return e.target.Label(), nil
}

// resolveAddress is the address funds are sent to.
func (e *OnChainEngine) resolveAddress(ctx context.Context) (string, error) {
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
		return "", fmt.Errorf("%w: on-chain send cannot target %s", ErrInvalidInputs, e.target.Kind())
	}
}

func (e *OnChainEngine) ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.validateAmount(pt); err != nil {
		return pt, err
	}
	if err := e.validateDestination(ctx); err != nil {
		return pt, err
	}
	return pt, nil
}

func (e *OnChainEngine) validateDestination(ctx context.Context) error {
	address, err := e.resolveAddress(ctx)
	if err != nil {
		return err
	}
	if err := chainaddr.Validate(e.source.Network, address); err != nil {
		if errors.Is(err, chainaddr.ErrInvalidAddress) {
			return &ValidationError{
				State:          StateInvalidAddress,
				SourceCurrency: e.source.Currency,
				TargetCurrency: e.target.Currency(),
				Reason:         err.Error(),
			}
		}
		return err
	}
	return nil
}

func (e *OnChainEngine) UpdateFeeLevel(ctx context.Context, pt PendingTransaction, level FeeLevel, custom *money.Money) (PendingTransaction, error) {
	ext := onChainExtension(pt)
	if ext.ForcedFeeLevel != nil {
		return pt, nil
	}
	if level != FeeCustom && !pt.FeeSelection.Offers(level) {
		return pt, fmt.Errorf("%w: fee level %s not offered", ErrInvalidInputs, level)
	}
	if level == FeeCustom {
		if custom == nil {
			return pt, fmt.Errorf("%w: custom fee level without an amount", ErrInvalidInputs)
		}
		if err := e.checkAmountCurrency(*custom); err != nil {
			return pt, err
		}
	}

	sel := FeeSelection{Selected: level, Available: append([]FeeLevel(nil), pt.FeeSelection.Available...)}
	if level == FeeCustom {
		c := *custom
		sel.CustomAmount = &c
	}
	pt.FeeSelection = sel
	return e.recompute(pt.Amount, pt)
}

// forceFeeLevel pins the fee tier for wrappers that require one.
func (e *OnChainEngine) forceFeeLevel(pt PendingTransaction, level FeeLevel) (PendingTransaction, error) {
	if _, ok := e.fees[level]; !ok {
		return pt, fmt.Errorf("%w: fee level %s not offered", ErrInvalidInputs, level)
	}
	pt.FeeSelection = FeeSelection{Selected: level, Available: []FeeLevel{level}}
	ext := onChainExtension(pt)
	ext.ForcedFeeLevel = &level
	pt.Extension = ext
	return e.recompute(pt.Amount, pt)
}

// Sign produces the signed transaction without broadcasting it.
func (e *OnChainEngine) Sign(ctx context.Context, pt PendingTransaction) ([]byte, error) {
	to, err := e.resolveAddress(ctx)
	if err != nil {
		return nil, err
	}
	ext := onChainExtension(pt)
	signed, err := e.deps.OnChain.Sign(ctx, OnChainTransfer{
		From:     e.source,
		To:       to,
		Amount:   pt.Amount,
		Fee:      pt.FeeAmount,
		FeeLevel: pt.FeeSelection.Selected,
		Memo:     ext.Memo,
		SendMax:  ext.SendMax,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to sign transfer: %w", err)
	}
	return signed, nil
}

func (e *OnChainEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	signed, err := e.Sign(ctx, pt)
	if err != nil {
		return Result{}, executionFailed("sign", err)
	}

	hash, err := e.deps.OnChain.Broadcast(ctx, e.source, signed)
	if err != nil {
		return Result{}, executionFailed("broadcast", err)
	}
	if hash == "" {
		return Result{}, executionAmbiguous("broadcast", "", errors.New("broadcast returned no transaction hash"))
	}

	zap.L().Info("Broadcast on-chain transfer",
		zap.String("source", e.source.ID),
		zap.String("currency", e.source.Currency.Code),
		zap.String("amount", pt.Amount.Amount.String()),
		zap.String("tx_hash", hash))

	return Hashed(hash, pt.Amount), nil
}

func (e *OnChainEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.assertTarget(target); err != nil {
		return pt, err
	}
	e.target = target

	ext := onChainExtension(pt)
	ext.Memo = targetMemo(target)
	pt.Extension = ext

	pt, err := e.recompute(pt.Amount, pt)
	if err != nil {
		return pt, err
	}
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}

func targetMemo(t Target) string {
	if a, ok := t.(AddressTarget); ok {
		return a.Memo
	}
	return ""
}

func defaultFeeLevel(fees map[FeeLevel]money.Money) FeeLevel {
	if _, ok := fees[FeeRegular]; ok {
		return FeeRegular
	}
	if _, ok := fees[FeePriority]; ok {
		return FeePriority
	}
	return FeeNone
}

func offeredLevels(fees map[FeeLevel]money.Money) []FeeLevel {
	var levels []FeeLevel
	for _, l := range []FeeLevel{FeeRegular, FeePriority} {
		if _, ok := fees[l]; ok {
			levels = append(levels, l)
		}
	}
	if len(levels) == 0 {
		return []FeeLevel{FeeNone}
	}
	return append(levels, FeeCustom)
}
