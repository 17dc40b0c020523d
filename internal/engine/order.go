package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/money"
)

// OrderEngine executes a quote-backed custodial order: a buy, a swap
// between trading accounts or a sell into fiat.
type OrderEngine struct {
	base
	product Product
}

func newOrderEngine(b base, product Product) *OrderEngine {
	return &OrderEngine{base: b, product: product}
}

func (e *OrderEngine) AssertInputsValid() error {
	return e.assertTarget(e.target)
}

func (e *OrderEngine) assertTarget(target Target) error {
	t, ok := target.(AccountTarget)
	if !ok {
		return fmt.Errorf("%w: %s order cannot target %s", ErrInvalidInputs, e.product, target.Kind())
	}
	if t.Account.Currency.Code == e.source.Currency.Code {
		return fmt.Errorf("%w: %s order from %s into itself", ErrInvalidInputs, e.product, e.source.Currency)
	}

	switch e.product {
	case ProductBuy:
		if t.Account.Kind != AccountTrading && t.Account.Kind != AccountNonCustodial {
			return fmt.Errorf("%w: buy into %s", ErrInvalidInputs, t.Account.Kind)
		}
		if !t.Account.Currency.IsCrypto() {
			return fmt.Errorf("%w: buy of fiat %s", ErrInvalidInputs, t.Account.Currency)
		}
	case ProductSwap:
		if e.source.Kind != AccountTrading || t.Account.Kind != AccountTrading {
			return fmt.Errorf("%w: swap needs trading accounts on both sides", ErrInvalidInputs)
		}
	case ProductSell:
		if !e.source.Currency.IsCrypto() {
			return fmt.Errorf("%w: sell of fiat %s", ErrInvalidInputs, e.source.Currency)
		}
		if !t.Account.Currency.IsFiat() {
			return fmt.Errorf("%w: sell into crypto %s", ErrInvalidInputs, t.Account.Currency)
		}
	default:
		return fmt.Errorf("%w: unknown product %q", ErrInvalidInputs, e.product)
	}
	return nil
}

func (e *OrderEngine) targetAccount() Account {
	return e.target.(AccountTarget).Account
}

func (e *OrderEngine) request(amount money.Money) brokerage.Request {
	method := brokerage.PaymentMethodFunds
	if e.source.Kind == AccountLinkedBank {
		method = brokerage.PaymentMethodBankTransfer
	}

	profile := brokerage.ProfileBuy
	switch e.product {
	case ProductSwap:
		profile = brokerage.ProfileSwapTrading
	case ProductSell:
		profile = brokerage.ProfileSell
	}

	return brokerage.Request{
		Amount:        amount,
		Base:          e.source.Currency,
		Quote:         e.targetAccount().Currency,
		PaymentMethod: method,
		Profile:       profile,
	}
}

func (e *OrderEngine) InitializeTransaction(ctx context.Context) (PendingTransaction, error) {
	balance, err := e.balance(ctx)
	if err != nil {
		return PendingTransaction{}, err
	}
	pt := newPendingTransaction(e.source.Currency, e.display)
	pt.Amount = e.initialAmount()
	pt.Available = balance
	pt.Limits = e.limits(ctx, string(e.product))
	pt.Extension = QuoteExtension{Product: e.product}
	return pt, pt.checkCurrency(e.source.Currency)
}

// Update drops a quote priced for a different amount.
func (e *OrderEngine) Update(ctx context.Context, amount money.Money, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.checkAmountCurrency(amount); err != nil {
		return pt, err
	}
	balance, err := e.balance(ctx)
	if err != nil {
		return pt, err
	}

	ext := quoteExtension(pt)
	ext.Product = e.product
	if ext.Quote != nil && !ext.Quote.Request.Amount.Equal(amount) {
		ext.Quote = nil
		pt.FeeAmount = money.Zero(e.source.Currency)
	}
	pt.Extension = ext
	pt.Amount = amount
	pt.Available = balance
	return pt, nil
}

// BuildConfirmations prices the order. A zero amount is not quoted.
func (e *OrderEngine) BuildConfirmations(ctx context.Context, pt PendingTransaction) (PendingTransaction, error) {
	ext := quoteExtension(pt)
	ext.Product = e.product
	ext.Quote = nil
	pt.FeeAmount = money.Zero(e.source.Currency)

	if pt.Amount.IsPositive() {
		quote, err := e.deps.Quotes.CreateQuote(ctx, e.request(pt.Amount))
		if err != nil {
			return pt, fmt.Errorf("unable to quote %s order: %w", e.product, err)
		}
		ext.Quote = quote
		if fee := quote.Response.Fee.Fee; fee.Currency.Code == e.source.Currency.Code {
			pt.FeeAmount = fee
		}
	}
	pt.Extension = ext
	return pt.withConfirmations(e.orderLines(ctx, pt, ext.Quote)), nil
}

func (e *OrderEngine) orderLines(ctx context.Context, pt PendingTransaction, quote *brokerage.Quote) []Confirmation {
	items := []Confirmation{
		textConfirmation(ConfirmSource, e.source.String()),
		textConfirmation(ConfirmDestination, e.target.Label()),
	}
	if quote == nil {
		return append(items, e.amountLine(ctx, ConfirmTotal, pt.Amount, pt))
	}

	price := quote.Response.Price
	items = append(items,
		Confirmation{Kind: ConfirmQuotePrice, Amount: &price, Text: fmt.Sprintf("1 %s = %s", quote.Request.Base, price)},
	)
	feeKind := ConfirmNetworkFee
	if e.source.Currency.IsFiat() {
		feeKind = ConfirmFiatTransactionFee
	}
	items = append(items,
		e.amountLine(ctx, feeKind, pt.FeeAmount, pt),
		e.amountLine(ctx, ConfirmTotal, pt.Amount, pt),
	)
	if terms := quote.Response.DepositTerms; terms != nil {
		items = append(items, depositTermLines(e.now(), terms)...)
	}
	return items
}

func depositTermLines(from time.Time, terms *brokerage.DepositTerms) []Confirmation {
	t := *terms
	return []Confirmation{
		timeConfirmation(ConfirmAvailableToTradeDate, t.AvailableToTradeAt(from)),
		timeConfirmation(ConfirmAvailableToWithdrawDate, t.AvailableToWithdrawAt(from)),
		{Kind: ConfirmDepositTerms, DepositTerms: &t, Text: fmt.Sprintf("withdrawal lock %d days", t.WithdrawalLockDays())},
	}
}

func (e *OrderEngine) ValidateAll(_ context.Context, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.validateAmount(pt); err != nil {
		return pt, err
	}
	return pt, checkQuote(quoteExtension(pt).Quote, e.now())
}

// checkQuote rejects a missing, expired or unsettleable quote.
func checkQuote(quote *brokerage.Quote, now time.Time) error {
	if quote == nil {
		return newValidationError(StateQuoteExpired, "no quote for the current amount")
	}
	if quote.IsExpired(now) {
		return newValidationError(StateQuoteExpired, fmt.Sprintf("quote %s expired at %s", quote.Id(), quote.Response.ExpiresAt))
	}
	if quote.Response.Settlement.Availability == brokerage.SettlementUnavailable {
		return newValidationError(StateSettlementNotReady, "payment method cannot settle this order")
	}
	return nil
}

// currentQuote checks quote again at execution time, which can come long
// after validation: first its own expiry, then the brokerage's view of it.
func currentQuote(ctx context.Context, quotes QuoteSource, quote *brokerage.Quote, now time.Time) (*brokerage.Quote, error) {
	if err := checkQuote(quote, now); err != nil {
		return nil, err
	}
	current, err := quotes.GetQuote(ctx, quote.Id(), quote.Request)
	if err != nil {
		return nil, fmt.Errorf("unable to re-read quote %s: %w", quote.Id(), err)
	}
	if current.Response.ExpiresAt.After(quote.Response.ExpiresAt) {
		current.Response.ExpiresAt = quote.Response.ExpiresAt
	}
	if err := checkQuote(current, now); err != nil {
		return nil, err
	}
	return current, nil
}

func (e *OrderEngine) UpdateFeeLevel(_ context.Context, pt PendingTransaction, _ FeeLevel, _ *money.Money) (PendingTransaction, error) {
	return pt, nil
}

func (e *OrderEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	quote := quoteExtension(pt).Quote
	if quote == nil {
		return Result{}, executionFailed("create order", errors.New("no quote"))
	}
	quote, err := currentQuote(ctx, e.deps.Quotes, quote, e.now())
	if err != nil {
		return Result{}, executionFailed("create order", err)
	}

	req := brokerage.OrderRequest{Quote: quote, IdempotencyKey: idempotencyKey(ctx)}
	if to := e.targetAccount(); to.Kind == AccountNonCustodial {
		if e.deps.ReceiveAddresses == nil {
			return Result{}, executionFailed("create order", fmt.Errorf("%w: receive address provider", ErrMissingDependency))
		}
		address, err := e.deps.ReceiveAddresses.ReceiveAddress(ctx, to)
		if err != nil {
			return Result{}, executionFailed("create order", err)
		}
		req.DestinationAddress = address
	}

	order, err := e.deps.Orders.CreateOrder(ctx, req)
	if err != nil {
		return Result{}, executionFailed("create order", err)
	}
	if order == nil || order.Id == "" {
		return Result{}, executionAmbiguous("create order", req.IdempotencyKey, errors.New("order accepted without an id"))
	}

	zap.L().Info("Brokerage order created",
		zap.String("product", string(e.product)),
		zap.String("order_id", order.Id),
		zap.String("quote_id", quote.Id()),
		zap.String("state", order.State))

	return Unhashed(order.Id, pt.Amount), nil
}

// Restart drops the quote, which was priced for the old destination.
func (e *OrderEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.assertTarget(target); err != nil {
		return pt, err
	}
	e.target = target
	pt.Extension = QuoteExtension{Product: e.product}
	pt.FeeAmount = money.Zero(e.source.Currency)
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}
