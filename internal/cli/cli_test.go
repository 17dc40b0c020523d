package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	eth = money.Crypto("ETH", 18)
	usd = money.Fiat("USD")
)

func testCatalog() *common.AssetCatalog {
	return common.NewAssetCatalog([]common.AssetConfig{
		{Symbol: "ETH", Network: "ethereum-mainnet", Precision: 18, WalletId: "wallet-eth"},
		{Symbol: "USDC", Network: "ethereum-mainnet", Precision: 6},
		{Symbol: "XRP", Network: "ripple-mainnet", Precision: 6, Memo: true, WalletId: "wallet-xrp"},
		{Symbol: "USD", Fiat: true},
	})
}

func TestResolveAmount(t *testing.T) {
	pt := engine.PendingTransaction{
		Amount:    money.Zero(eth),
		Available: money.New(decimal.RequireFromString("2.5"), eth),
	}

	all, err := resolveAmount("ALL", pt)
	require.NoError(t, err)
	assert.True(t, all.Equal(pt.Available))

	amount, err := resolveAmount(" 0.25 ", pt)
	require.NoError(t, err)
	assert.Equal(t, "ETH", amount.Currency.Code)
	assert.True(t, amount.Amount.Equal(decimal.RequireFromString("0.25")))

	_, err = resolveAmount("0", pt)
	assert.Error(t, err)

	_, err = resolveAmount("lots", pt)
	assert.Error(t, err)

	pt.Available = money.Zero(eth)
	_, err = resolveAmount("all", pt)
	assert.Error(t, err)
}

func TestPromptConfirmation(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"yes", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var w bytes.Buffer
		assert.Equal(t, tt.want, promptConfirmation(strings.NewReader(tt.input), &w), "input %q", tt.input)
		assert.Contains(t, w.String(), "[y/N]")
	}
}

func TestTradingAccount(t *testing.T) {
	catalog := testCatalog()

	account, err := tradingAccount(catalog, "eth", "", "")
	require.NoError(t, err)
	assert.Equal(t, "wallet-eth", account.ID)
	assert.Equal(t, engine.AccountTrading, account.Kind)
	assert.Equal(t, "ethereum-mainnet", account.Network)
	assert.Equal(t, int32(18), account.Currency.Precision)

	account, err = tradingAccount(catalog, "ETH", "ethereum-mainnet", "wallet-other")
	require.NoError(t, err)
	assert.Equal(t, "wallet-other", account.ID)

	_, err = tradingAccount(catalog, "USDC", "", "")
	assert.ErrorContains(t, err, "no wallet configured")

	_, err = tradingAccount(catalog, "USD", "", "wallet-usd")
	assert.ErrorContains(t, err, "fiat")

	_, err = tradingAccount(catalog, "ETH", "base-mainnet", "")
	assert.Error(t, err)
}

func TestFiatAccount(t *testing.T) {
	catalog := testCatalog()

	account, err := fiatAccount(catalog, "usd", "")
	require.NoError(t, err)
	assert.Equal(t, engine.AccountFiat, account.Kind)
	assert.Equal(t, "usd", account.ID)

	bank, err := fiatAccount(catalog, "USD", "bank-1")
	require.NoError(t, err)
	assert.Equal(t, engine.AccountLinkedBank, bank.Kind)
	assert.Equal(t, "bank-1", bank.ID)

	_, err = fiatAccount(catalog, "ETH", "")
	assert.Error(t, err)
}

func TestTradeAccounts(t *testing.T) {
	catalog := testCatalog()
	tradeFrom, tradeTo, tradeBank = "USD", "ETH", "bank-1"
	tradeFromWallet, tradeToWallet = "", ""
	t.Cleanup(func() { tradeFrom, tradeTo, tradeBank = "", "", "" })

	source, target, err := tradeAccounts(catalog, engine.ActionBuy)
	require.NoError(t, err)
	assert.Equal(t, engine.AccountLinkedBank, source.Kind)
	assert.Equal(t, engine.TargetTradingAccount, target.Kind())

	kind, err := engine.Select(source.Kind, target.Kind(), engine.ActionBuy)
	require.NoError(t, err)
	assert.Equal(t, engine.KindBuy, kind)

	// the bank only applies to buys
	tradeFrom, tradeTo = "ETH", "USD"
	source, target, err = tradeAccounts(catalog, engine.ActionSell)
	require.NoError(t, err)
	assert.Equal(t, engine.AccountTrading, source.Kind)
	assert.Equal(t, engine.TargetFiatAccount, target.Kind())

	kind, err = engine.Select(source.Kind, target.Kind(), engine.ActionSell)
	require.NoError(t, err)
	assert.Equal(t, engine.KindTradingSell, kind)

	tradeTo = "DOGE"
	_, _, err = tradeAccounts(catalog, engine.ActionSwap)
	assert.ErrorContains(t, err, "destination")
}

func TestAddressTarget(t *testing.T) {
	source, err := tradingAccount(testCatalog(), "XRP", "", "")
	require.NoError(t, err)

	target, err := addressTarget(source, " rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY ", " 12345 ")
	require.NoError(t, err)
	assert.Equal(t, "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY", target.Address)
	assert.Equal(t, "12345", target.Memo)
	assert.Equal(t, "ripple-mainnet", target.Network)
	assert.Equal(t, "XRP", target.Currency().Code)

	kind, err := engine.Select(source.Kind, target.Kind(), engine.ActionSend)
	require.NoError(t, err)
	assert.Equal(t, engine.KindTradingSend, kind)

	_, err = addressTarget(source, "  ", "")
	assert.Error(t, err)
}

func TestQuoteRequest(t *testing.T) {
	catalog := testCatalog()
	set := func(base, quote, amount, profile, payment string) {
		quoteBase, quoteQuote, quoteAmount, quoteProfile, quotePayment = base, quote, amount, profile, payment
	}
	t.Cleanup(func() { set("", "", "", "buy", "funds") })

	set("USD", "ETH", "250", "buy", "bank")
	req, err := quoteRequest(catalog)
	require.NoError(t, err)
	assert.Equal(t, "USD-ETH", req.Pair())
	assert.Equal(t, brokerage.ProfileBuy, req.Profile)
	assert.Equal(t, brokerage.PaymentMethodBankTransfer, req.PaymentMethod)
	assert.Equal(t, "25000", req.Amount.Minor())

	set("ETH", "USD", "1", "swap-onchain", "funds")
	req, err = quoteRequest(catalog)
	require.NoError(t, err)
	assert.Equal(t, brokerage.ProfileSwapOnChain, req.Profile)

	set("ETH", "ETH", "1", "buy", "funds")
	_, err = quoteRequest(catalog)
	assert.Error(t, err)

	set("ETH", "USD", "-1", "buy", "funds")
	_, err = quoteRequest(catalog)
	assert.Error(t, err)

	set("ETH", "USD", "1", "margin", "funds")
	_, err = quoteRequest(catalog)
	assert.ErrorContains(t, err, "unknown profile")

	set("ETH", "USD", "1", "sell", "cheque")
	_, err = quoteRequest(catalog)
	assert.ErrorContains(t, err, "unknown payment method")
}

func testQuote(id string, expiresAt time.Time) *brokerage.Quote {
	return &brokerage.Quote{
		Request: brokerage.Request{Base: eth, Quote: usd},
		Response: brokerage.Response{
			Id:         id,
			Price:      money.New(decimal.RequireFromString("3150.25"), usd),
			Fee:        brokerage.FeeDetails{Fee: money.New(decimal.RequireFromString("0.001"), eth)},
			ExpiresAt:  expiresAt,
			Settlement: brokerage.SettlementDetails{Availability: brokerage.SettlementInstant},
		},
	}
}

func TestPrintQuotes(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	stream := make(chan brokerage.QuoteResult, 3)
	stream <- brokerage.QuoteResult{Quote: testQuote("q-1", now.Add(65*time.Second))}
	stream <- brokerage.QuoteResult{Quote: testQuote("q-2", now.Add(30*time.Second))}
	stream <- brokerage.QuoteResult{Quote: testQuote("q-3", now.Add(30*time.Second))}
	close(stream)

	var w bytes.Buffer
	require.NoError(t, printQuotes(&w, stream, 2, clock))

	out := w.String()
	assert.Contains(t, out, "q-1  ETH-USD  price 3150.25 USD  fee 0.001 ETH  expires in 1m05s")
	assert.Contains(t, out, "q-2")
	assert.NotContains(t, out, "q-3")
}

func TestPrintQuotesReturnsStreamError(t *testing.T) {
	now := time.Now()
	stream := make(chan brokerage.QuoteResult, 2)
	stream <- brokerage.QuoteResult{Quote: testQuote("q-1", now.Add(time.Minute))}
	stream <- brokerage.QuoteResult{Err: brokerage.ErrBackoffExhausted}
	close(stream)

	var w bytes.Buffer
	err := printQuotes(&w, stream, 0, func() time.Time { return now })
	assert.True(t, errors.Is(err, brokerage.ErrBackoffExhausted))
	assert.Contains(t, w.String(), "q-1")
}

func TestFormatQuoteShowsSlowSettlement(t *testing.T) {
	now := time.Now()
	q := testQuote("q-1", now.Add(time.Minute))
	q.Response.Settlement.Availability = brokerage.SettlementRegular

	assert.Contains(t, formatQuote(q, now), "settlement regular")
	assert.Contains(t, formatQuote(testQuote("q-2", now), now), "expired")
}

func TestPrintPricesContinuesPastFailures(t *testing.T) {
	stream := make(chan brokerage.PriceResult, 3)
	stream <- brokerage.PriceResult{Err: errors.New("upstream 503")}
	stream <- brokerage.PriceResult{Price: &brokerage.Price{
		Request:   brokerage.Request{Base: eth, Quote: usd},
		Price:     money.New(decimal.RequireFromString("3100"), usd),
		Fee:       money.New(decimal.RequireFromString("1.5"), usd),
		Result:    money.New(decimal.RequireFromString("3098.5"), usd),
		Timestamp: time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC),
	}}
	close(stream)

	var w bytes.Buffer
	printPrices(&w, stream, 0)

	out := w.String()
	assert.Contains(t, out, "price unavailable: upstream 503")
	assert.Contains(t, out, "12:00:05  ETH-USD  price 3100.00 USD  fee 1.50 USD  you get 3098.50 USD")
}

func TestFormatExecution(t *testing.T) {
	e := models.Execution{
		AttemptId: "attempt-1",
		Engine:    "trading_send",
		Target:    "0xabc",
		Asset:     "ETH",
		Amount:    decimal.RequireFromString("0.5"),
		Status:    "ambiguous",
		Reference: "activity-9",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	line := formatExecution(e)
	assert.Contains(t, line, "2025-03-01 12:00:00")
	assert.Contains(t, line, "0.5 ETH -> 0xabc")
	assert.Contains(t, line, "activity-9")
	assert.Contains(t, line, "attempt-1")

	e.Reference = ""
	assert.Contains(t, formatExecution(e), "  -  ")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"send", "trade", "quotes", "prices", "reconcile", "status", "balances", "receive"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	sub := map[string]bool{}
	for _, c := range tradeCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.True(t, sub["buy"] && sub["sell"] && sub["swap"])
}
