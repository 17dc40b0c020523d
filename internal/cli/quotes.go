package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/money"

	"github.com/spf13/cobra"
)

var (
	quoteBase    string
	quoteQuote   string
	quoteAmount  string
	quoteProfile string
	quotePayment string
	quoteCount   int
)

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Stream executable brokerage quotes",
	Long: `Stream executable quotes for a currency pair. A new quote is requested
each time the previous one expires. Press Ctrl+C to stop.

Example:
  walletctl quotes --base USD --quote ETH --amount 250 --profile buy`,
	RunE: runQuotes,
}

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Poll indicative brokerage prices",
	Long: `Poll indicative prices for a currency pair at PRICE_POLLING_INTERVAL.
Failed polls are reported and polling continues. Press Ctrl+C to stop.

Example:
  walletctl prices --base ETH --quote USD --amount 1 --profile sell`,
	RunE: runPrices,
}

func init() {
	rootCmd.AddCommand(quotesCmd)
	rootCmd.AddCommand(pricesCmd)

	for _, c := range []*cobra.Command{quotesCmd, pricesCmd} {
		c.Flags().StringVar(&quoteBase, "base", "", "currency spent (required)")
		c.Flags().StringVar(&quoteQuote, "quote", "", "currency received (required)")
		c.Flags().StringVar(&quoteAmount, "amount", "", "amount of the base currency (required)")
		c.Flags().StringVar(&quoteProfile, "profile", "buy", "product: buy, sell, swap or swap-onchain")
		c.Flags().StringVar(&quotePayment, "payment", "funds", "payment method: funds, bank or card")
		c.Flags().IntVar(&quoteCount, "count", 0, "stop after this many results, 0 streams until interrupted")

		_ = c.MarkFlagRequired("base")
		_ = c.MarkFlagRequired("quote")
		_ = c.MarkFlagRequired("amount")
	}
}

func runQuotes(cmd *cobra.Command, _ []string) error {
	quotes, catalog, err := common.InitializeQuotesOnly(cfg)
	if err != nil {
		return err
	}
	req, err := quoteRequest(catalog)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	return printQuotes(os.Stdout, quotes.Quotes(ctx, req), quoteCount, time.Now)
}

func runPrices(cmd *cobra.Command, _ []string) error {
	quotes, catalog, err := common.InitializeQuotesOnly(cfg)
	if err != nil {
		return err
	}
	req, err := quoteRequest(catalog)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	printPrices(os.Stdout, quotes.Prices(ctx, req, cfg.Quotes.PriceInterval), quoteCount)
	return nil
}

// printQuotes drains a quote stream. It returns the error that ended the
// stream, if any; the caller cancels the stream once limit is reached.
func printQuotes(w io.Writer, stream <-chan brokerage.QuoteResult, limit int, now func() time.Time) error {
	seen := 0
	for r := range stream {
		if r.Err != nil {
			return r.Err
		}
		outln(w, formatQuote(r.Quote, now()))
		seen++
		if limit > 0 && seen >= limit {
			return nil
		}
	}
	return nil
}

func printPrices(w io.Writer, stream <-chan brokerage.PriceResult, limit int) {
	seen := 0
	for r := range stream {
		if r.Err != nil {
			outln(w, "price unavailable:", r.Err)
		} else {
			outln(w, formatPrice(r.Price))
		}
		seen++
		if limit > 0 && seen >= limit {
			return
		}
	}
}

func formatQuote(q *brokerage.Quote, now time.Time) string {
	line := fmt.Sprintf("%s  %s  price %s  fee %s  expires in %s",
		q.Id(), q.Request.Pair(), q.Response.Price, q.Response.Fee.Fee,
		common.FormatCountdown(now, q.Response.ExpiresAt))
	if s := q.Response.Settlement.Availability; s != "" && s != brokerage.SettlementInstant {
		line += "  settlement " + strings.ToLower(s)
	}
	return line
}

func formatPrice(p *brokerage.Price) string {
	return fmt.Sprintf("%s  %s  price %s  fee %s  you get %s",
		p.Timestamp.UTC().Format(time.TimeOnly), p.Request.Pair(), p.Price, p.Fee, p.Result)
}

func quoteRequest(catalog *common.AssetCatalog) (brokerage.Request, error) {
	base, err := catalog.Currency(quoteBase)
	if err != nil {
		return brokerage.Request{}, err
	}
	quote, err := catalog.Currency(quoteQuote)
	if err != nil {
		return brokerage.Request{}, err
	}
	if base.Code == quote.Code {
		return brokerage.Request{}, fmt.Errorf("base and quote are both %s", base.Code)
	}

	amount, err := money.Parse(quoteAmount, base)
	if err != nil {
		return brokerage.Request{}, err
	}
	if !amount.IsPositive() {
		return brokerage.Request{}, fmt.Errorf("amount must be positive, got %s", quoteAmount)
	}

	profile, err := parseProfile(quoteProfile)
	if err != nil {
		return brokerage.Request{}, err
	}
	payment, err := parsePaymentMethod(quotePayment)
	if err != nil {
		return brokerage.Request{}, err
	}

	return brokerage.Request{
		Amount:        amount,
		Base:          base,
		Quote:         quote,
		PaymentMethod: payment,
		Profile:       profile,
	}, nil
}

func parseProfile(value string) (brokerage.Profile, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "buy":
		return brokerage.ProfileBuy, nil
	case "sell":
		return brokerage.ProfileSell, nil
	case "swap":
		return brokerage.ProfileSwapTrading, nil
	case "swap-onchain":
		return brokerage.ProfileSwapOnChain, nil
	default:
		return "", fmt.Errorf("unknown profile %q", value)
	}
}

func parsePaymentMethod(value string) (brokerage.PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "funds":
		return brokerage.PaymentMethodFunds, nil
	case "bank":
		return brokerage.PaymentMethodBankTransfer, nil
	case "card":
		return brokerage.PaymentMethodCard, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", value)
	}
}
