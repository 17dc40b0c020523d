package cli

import (
	"fmt"
	"os"

	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/engine"

	"github.com/spf13/cobra"
)

var (
	tradeFrom       string
	tradeTo         string
	tradeAmount     string
	tradeFromWallet string
	tradeToWallet   string
	tradeBank       string
	tradeYes        bool
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Buy, sell or swap through brokerage orders",
	Long: `Place a brokerage order between two custodial balances.

The order is priced by a fresh quote when the review is built. If that
quote expires before validation, the review is rebuilt once with a new one.

Examples:
  walletctl trade buy --from USD --to ETH --amount 250
  walletctl trade sell --from ETH --to USD --amount 0.5
  walletctl trade swap --from ETH --to USDC --amount all`,
}

var tradeBuyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Buy crypto with a fiat balance or linked bank",
	RunE:  tradeRunner(engine.ActionBuy),
}

var tradeSellCmd = &cobra.Command{
	Use:   "sell",
	Short: "Sell crypto from a trading wallet",
	RunE:  tradeRunner(engine.ActionSell),
}

var tradeSwapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap between two trading wallets",
	RunE:  tradeRunner(engine.ActionSwap),
}

func init() {
	rootCmd.AddCommand(tradeCmd)

	for _, c := range []*cobra.Command{tradeBuyCmd, tradeSellCmd, tradeSwapCmd} {
		tradeCmd.AddCommand(c)

		c.Flags().StringVar(&tradeFrom, "from", "", "currency to spend (required)")
		c.Flags().StringVar(&tradeTo, "to", "", "currency to receive (required)")
		c.Flags().StringVar(&tradeAmount, "amount", "", "amount to spend, or 'all' (required)")
		c.Flags().StringVar(&tradeFromWallet, "from-wallet", "", "source wallet id, defaults to the asset's wallet_id")
		c.Flags().StringVar(&tradeToWallet, "to-wallet", "", "destination wallet id, defaults to the asset's wallet_id")
		c.Flags().BoolVar(&tradeYes, "yes", false, "skip confirmation prompt")

		_ = c.MarkFlagRequired("from")
		_ = c.MarkFlagRequired("to")
		_ = c.MarkFlagRequired("amount")
	}
	tradeBuyCmd.Flags().StringVar(&tradeBank, "bank", "", "linked bank id to pay from instead of the fiat balance")
}

func tradeRunner(action engine.Action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		services, err := common.InitializeServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer services.Close()

		source, target, err := tradeAccounts(services.Assets, action)
		if err != nil {
			return err
		}

		return runTransaction(ctx, services, transaction{
			action: action,
			source: source,
			target: target,
			amount: tradeAmount,
			yes:    tradeYes,
		}, os.Stdin, os.Stdout)
	}
}

func tradeAccounts(catalog *common.AssetCatalog, action engine.Action) (engine.Account, engine.Target, error) {
	bank := ""
	if action == engine.ActionBuy {
		bank = tradeBank
	}
	source, err := orderAccount(catalog, tradeFrom, tradeFromWallet, bank)
	if err != nil {
		return engine.Account{}, nil, fmt.Errorf("source: %w", err)
	}
	dest, err := orderAccount(catalog, tradeTo, tradeToWallet, "")
	if err != nil {
		return engine.Account{}, nil, fmt.Errorf("destination: %w", err)
	}
	return source, engine.AccountTarget{Account: dest}, nil
}
