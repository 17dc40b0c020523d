package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/money"
)

// TradingSellEngine sells a trading balance into fiat through a SELL order
// and shows the estimated fiat proceeds on the Total line.
type TradingSellEngine struct {
	inner *OrderEngine
}

func newTradingSellEngine(inner *OrderEngine) *TradingSellEngine {
	return &TradingSellEngine{inner: inner}
}

func (e *TradingSellEngine) Source() Account { return e.inner.Source() }
func (e *TradingSellEngine) Target() Target  { return e.inner.Target() }

func (e *TradingSellEngine) AssertInputsValid() error {
	if k := e.Source().Kind; k != AccountTrading {
		return fmt.Errorf("%w: custodial sell needs a trading source, got %s", ErrInvalidInputs, k)
	}
	return e.inner.AssertInputsValid()
}

func (e *TradingSellEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	return e.inner.InitializeTransaction(ctx)
}

func (e *TradingSellEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	return e.inner.Update(ctx, amount, pt)
}

// proceeds is what the target account receives: the amount net of fees at
// the quoted price.
func proceeds(pt PendingTransaction, quote *brokerage.Quote) (money.Money, error) {
	net, err := pt.Amount.Sub(pt.FeeAmount)
	if err != nil {
		return money.Money{}, err
	}
	return net.NonNegative().Convert(quote.Response.Price.Amount, quote.Request.Quote), nil
}

func (e *TradingSellEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.BuildConfirmations(ctx, pt)
	if err != nil {
		return pt, err
	}
	quote := quoteExtension(pt).Quote
	if quote == nil {
		return pt, nil
	}
	out, err := proceeds(pt, quote)
	if err != nil {
		return pt, err
	}
	total, _ := pt.Confirmation(ConfirmTotal)
	total.Kind = ConfirmTotal
	if total.Amount == nil {
		amount := pt.Amount
		total.Amount = &amount
	}
	total.Display = &out
	return pt.upsertConfirmation(total), nil
}

func (e *TradingSellEngine) ValidateAll(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	pt, err := e.inner.ValidateAll(ctx, pt)
	if err != nil {
		return pt, err
	}
	out, err := proceeds(pt, quoteExtension(pt).Quote)
	if err != nil {
		return pt, err
	}
	if !out.IsPositive() {
		requested := pt.Amount
		return pt, &ValidationError{
			State:          StateBelowMinimumLimit,
			Requested:      &requested,
			SourceCurrency: e.Source().Currency,
			TargetCurrency: e.Target().Currency(),
			Reason:         "sale proceeds round to zero after fees",
		}
	}
	return pt, nil
}

func (e *TradingSellEngine) UpdateFeeLevel(ctx context.Context, pt PendingTransaction, level FeeLevel, custom *money.Money) (PendingTransaction, error) {
	return e.inner.UpdateFeeLevel(ctx, pt, level, custom)
}

func (e *TradingSellEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	return e.inner.Execute(ctx, pt)
}

func (e *TradingSellEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	hadConfirmations := len(pt.Confirmations) > 0
	pt, err := e.inner.Restart(ctx, target, pt)
	if err != nil || !hadConfirmations {
		return pt, err
	}
	return e.BuildConfirmations(ctx, pt)
}

// NonCustodialSellEngine sells from a non-custodial account. The order, and
// with it the deposit address, only exists at execute time: the wrapped
// on-chain engine is restarted at that address, broadcasts, and the hash is
// attached to the order.
type NonCustodialSellEngine struct {
	inner  *OnChainEngine
	deps   *Dependencies
	target Target
}

func newNonCustodialSellEngine(inner *OnChainEngine, deps *Dependencies, target Target) *NonCustodialSellEngine {
	return &NonCustodialSellEngine{inner: inner, deps: deps, target: target}
}

// pendingDepositTarget stands in for the order deposit address until the
// order is created.
func pendingDepositTarget(currency money.Currency) AddressTarget {
	return AddressTarget{AssetCurrency: currency}
}

func (e *NonCustodialSellEngine) Source() Account { return e.inner.Source() }
func (e *NonCustodialSellEngine) Target() Target  { return e.target }

func (e *NonCustodialSellEngine) AssertInputsValid() error {
	if err := e.assertTarget(e.target); err != nil {
		return err
	}
	return e.inner.AssertInputsValid()
}

func (e *NonCustodialSellEngine) assertTarget(target Target) error {
	t, ok := target.(AccountTarget)
	if !ok {
		return fmt.Errorf("%w: sell cannot target %s", ErrInvalidInputs, target.Kind())
	}
	if !t.Account.Currency.IsFiat() {
		return fmt.Errorf("%w: sell into crypto %s", ErrInvalidInputs, t.Account.Currency)
	}
	return nil
}

func (e *NonCustodialSellEngine) request(amount money.Money) brokerage.Request {
	return brokerage.Request{
		Amount:        amount,
		Base:          e.Source().Currency,
		Quote:         e.target.Currency(),
		PaymentMethod: brokerage.PaymentMethodFunds,
		Profile:       brokerage.ProfileSwapOnChain,
	}
}

// unwrap hands the inner engine its own extension back.
func unwrapSell(pt PendingTransaction) (PendingTransaction, *brokerage.Quote) {
	ext, _ := pt.Extension.(SellOnChainExtension)
	pt.Extension = ext.Inner
	return pt, ext.Quote
}

func wrapSell(pt PendingTransaction, quote *brokerage.Quote) PendingTransaction {
	pt.Extension = SellOnChainExtension{Quote: quote, Inner: pt.Extension}
	return pt
}

func (e *NonCustodialSellEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	pt, err := e.inner.InitializeTransaction(ctx)
	if err != nil {
		return pt, err
	}
	pt.Limits = e.inner.limits(ctx, string(ProductSell))
	return wrapSell(pt, nil), nil
}

func (e *NonCustodialSellEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	inner, quote := unwrapSell(pt)
	inner, err := e.inner.Update(ctx, amount, inner)
	if err != nil {
		return pt, err
	}
	if quote != nil && !quote.Request.Amount.Equal(amount) {
		quote = nil
	}
	return wrapSell(inner, quote), nil
}

func (e *NonCustodialSellEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	inner, _ := unwrapSell(pt)
	inner, err := e.inner.BuildConfirmations(ctx, inner)
	if err != nil {
		return pt, err
	}
	inner = inner.upsertConfirmation(textConfirmation(ConfirmDestination, e.target.Label()))

	var quote *brokerage.Quote
	if inner.Amount.IsPositive() {
		quote, err = e.deps.Quotes.CreateQuote(ctx, e.request(inner.Amount))
		if err != nil {
			return pt, fmt.Errorf("unable to quote sell order: %w", err)
		}
		price := quote.Response.Price
		inner = inner.upsertConfirmation(Confirmation{
			Kind:   ConfirmQuotePrice,
			Amount: &price,
			Text:   fmt.Sprintf("1 %s = %s", quote.Request.Base, price),
		})
	}
	return wrapSell(inner, quote), nil
}

// ValidateAll skips destination checks: the deposit address does not exist
// until the order is created.
func (e *NonCustodialSellEngine) ValidateAll(_ context.Context, pt PendingTransaction) (PendingTransaction, error) {
	inner, quote := unwrapSell(pt)
	if err := e.inner.validateAmount(inner); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.TargetCurrency = e.target.Currency()
		}
		return pt, err
	}
	return pt, checkQuote(quote, e.inner.now())
}

func (e *NonCustodialSellEngine) UpdateFeeLevel(ctx context.Context, pt PendingTransaction, level FeeLevel, custom *money.Money) (PendingTransaction, error) {
	inner, quote := unwrapSell(pt)
	inner, err := e.inner.UpdateFeeLevel(ctx, inner, level, custom)
	if err != nil {
		return pt, err
	}
	return wrapSell(inner, quote), nil
}

func (e *NonCustodialSellEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	inner, quote := unwrapSell(pt)
	if quote == nil {
		return Result{}, executionFailed("create sell order", errors.New("no quote"))
	}
	quote, err := currentQuote(ctx, e.deps.Quotes, quote, e.inner.now())
	if err != nil {
		return Result{}, executionFailed("create sell order", err)
	}

	req := brokerage.OrderRequest{Quote: quote, IdempotencyKey: idempotencyKey(ctx)}
	if e.deps.ReceiveAddresses != nil {
		refund, err := e.deps.ReceiveAddresses.ReceiveAddress(ctx, e.Source())
		if err != nil {
			return Result{}, executionFailed("create sell order", err)
		}
		req.RefundAddress = refund
	}

	order, err := e.deps.Orders.CreateOrder(ctx, req)
	if err != nil {
		return Result{}, executionFailed("create sell order", err)
	}
	if order == nil || order.DepositAddress == "" {
		return Result{}, executionFailed("create sell order", errors.New("order has no deposit address"))
	}

	deposit := AddressTarget{
		Address:       order.DepositAddress,
		Network:       e.Source().Network,
		AssetCurrency: e.Source().Currency,
	}
	inner, err = e.inner.Restart(ctx, deposit, inner)
	if err != nil {
		return Result{}, executionFailed("prepare sell deposit", err)
	}
	if err := e.inner.validateDestination(ctx); err != nil {
		return Result{}, executionFailed("prepare sell deposit", err)
	}

	result, err := e.inner.Execute(ctx, inner)
	if err != nil {
		return Result{}, err
	}

	if err := e.deps.Orders.UpdateOrder(ctx, order.Id, result.TxHash); err != nil {
		zap.L().Error("Sell deposit broadcast but order update failed",
			zap.String("order_id", order.Id),
			zap.String("tx_hash", result.TxHash),
			zap.Error(err))
		return Result{}, executionAmbiguous("update sell order", result.TxHash, err)
	}
	return result, nil
}

func (e *NonCustodialSellEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.assertTarget(target); err != nil {
		return pt, err
	}
	e.target = target
	inner, _ := unwrapSell(pt)
	pt = wrapSell(inner, nil)
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}
