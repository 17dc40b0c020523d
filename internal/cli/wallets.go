package cli

import (
	"fmt"
	"io"
	"os"

	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/money"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	receiveAsset   string
	receiveNetwork string
	receiveWallet  string
)

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show custodial balances for every configured asset",
	RunE:  runBalances,
}

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show the deposit address of a trading wallet",
	Long: `Show the deposit address of a trading wallet, generating one at the
custodian the first time it is asked for.

Example:
  walletctl receive --asset BTC`,
	RunE: runReceive,
}

func init() {
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVar(&receiveAsset, "asset", "", "asset symbol (required)")
	receiveCmd.Flags().StringVar(&receiveNetwork, "network", "", "network id, defaults to the asset's configured network")
	receiveCmd.Flags().StringVar(&receiveWallet, "wallet", "", "wallet id, defaults to the asset's wallet_id")

	_ = receiveCmd.MarkFlagRequired("asset")
}

type balanceLine struct {
	account engine.Account
	balance money.Money
}

func runBalances(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	var lines []balanceLine
	for _, asset := range services.Assets.Assets() {
		var account engine.Account
		if asset.Fiat {
			account, err = fiatAccount(services.Assets, asset.Symbol, "")
		} else {
			account, err = tradingAccount(services.Assets, asset.Symbol, asset.Network, "")
		}
		if err != nil {
			zap.L().Debug("Skipping asset", zap.String("asset", asset.Symbol), zap.Error(err))
			continue
		}

		balance, err := services.Ledger.Balance(ctx, account)
		if err != nil {
			zap.L().Error("Failed to read balance",
				zap.String("account", account.String()),
				zap.Error(err))
			continue
		}
		lines = append(lines, balanceLine{account: account, balance: balance})
	}

	printBalances(os.Stdout, services.DefaultPortfolio.Name, lines)
	return nil
}

func printBalances(w io.Writer, portfolio string, lines []balanceLine) {
	common.PrintHeader("Balances for "+portfolio, common.DefaultWidth)
	if len(lines) == 0 {
		outln(w, "No balances found")
	}
	for i, l := range lines {
		out(w, "%s%-24s %s\n", common.BoxPrefix(i == len(lines)-1), l.account.String(), l.balance)
	}
	common.PrintFooter(fmt.Sprintf("%d account(s)", len(lines)), common.DefaultWidth)
}

func runReceive(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	account, err := tradingAccount(services.Assets, receiveAsset, receiveNetwork, receiveWallet)
	if err != nil {
		return err
	}

	address, err := services.Prime.ReceiveAddress(ctx, account)
	if err != nil {
		return err
	}

	outln(os.Stdout, fmt.Sprintf("%s on %s: %s", account.Currency.Code, account.Network, address))
	return nil
}
