package cli

import (
	"errors"
	"fmt"
	"os"

	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sendAsset   string
	sendNetwork string
	sendWallet  string
	sendTo      string
	sendAmount  string
	sendMemo    string
	sendYes     bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Withdraw from a trading wallet to an external address",
	Long: `Send funds from a custodial trading wallet to a blockchain address.

The network fee is quoted by the custodian and shown in the review before
anything is submitted. Use --amount all to send the full available balance.

Examples:
  walletctl send --asset ETH --to 0x742d35Cc6634C0532925a3b844Bc9e7595f8b2E0 --amount 0.1
  walletctl send --asset XRP --to rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY --memo 12345 --amount all`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendAsset, "asset", "", "asset symbol, e.g. ETH (required)")
	sendCmd.Flags().StringVar(&sendNetwork, "network", "", "network id, defaults to the asset's configured network")
	sendCmd.Flags().StringVar(&sendWallet, "wallet", "", "source wallet id, defaults to the asset's wallet_id")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "destination address (required)")
	sendCmd.Flags().StringVar(&sendAmount, "amount", "", "amount to send, or 'all' (required)")
	sendCmd.Flags().StringVar(&sendMemo, "memo", "", "destination tag or memo for networks that need one")
	sendCmd.Flags().BoolVar(&sendYes, "yes", false, "skip confirmation prompt")

	_ = sendCmd.MarkFlagRequired("asset")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("amount")
}

func runSend(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	source, err := tradingAccount(services.Assets, sendAsset, sendNetwork, sendWallet)
	if err != nil {
		return err
	}
	target, err := addressTarget(source, sendTo, sendMemo)
	if err != nil {
		return err
	}

	if own, err := services.Journal.FindAccountByAddress(ctx, target.Address); err == nil {
		outln(os.Stdout, fmt.Sprintf("Note: %s is the receive address of your account %s", target.Address, own.AccountId))
	} else if !errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("Unable to check destination against the address book", zap.Error(err))
	}

	return runTransaction(ctx, services, transaction{
		action: engine.ActionSend,
		source: source,
		target: target,
		amount: sendAmount,
		yes:    sendYes,
	}, os.Stdin, os.Stdout)
}
