package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/database"
	"wallet-txengine-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var (
	reconcileOnce bool
	reconcileList bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve executions whose outcome is unknown",
	Long: `Poll the custodian and the ledger for executions journaled as ambiguous
and record their final outcome. Runs until interrupted unless --once is
given.

Examples:
  walletctl reconcile
  walletctl reconcile --once
  walletctl reconcile --list`,
	RunE: runReconcile,
}

var statusCmd = &cobra.Command{
	Use:   "status <attempt-id>",
	Short: "Show the journaled outcome of one attempt",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(statusCmd)

	reconcileCmd.Flags().BoolVar(&reconcileOnce, "once", false, "run a single reconciliation pass and exit")
	reconcileCmd.Flags().BoolVar(&reconcileList, "list", false, "list ambiguous executions without resolving them")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	if reconcileList {
		since := time.Now().Add(-cfg.Reconciler.LookbackWindow)
		rows, err := services.Journal.ListAmbiguous(ctx, since)
		if err != nil {
			return err
		}
		printExecutions(os.Stdout, rows)
		return nil
	}

	r := services.NewReconciler(cfg.Reconciler)
	if reconcileOnce {
		resolved, err := r.ReconcileOnce(ctx)
		if err != nil {
			return err
		}
		outln(os.Stdout, fmt.Sprintf("Resolved %d ambiguous execution(s)", resolved))
		return nil
	}

	if err := r.Start(ctx); err != nil {
		return err
	}
	zap.L().Info("Reconciler running, press Ctrl+C to stop")

	<-ctx.Done()
	zap.L().Info("Shutdown signal received, stopping reconciler...")

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Reconciler stopped gracefully")
	case <-time.After(shutdownTimeout):
		zap.L().Warn("Forced shutdown after timeout")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	journal, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer journal.Close()

	exec, err := journal.Get(ctx, args[0])
	if err != nil {
		return err
	}
	printExecutions(os.Stdout, []models.Execution{*exec})
	return nil
}

func printExecutions(w io.Writer, rows []models.Execution) {
	if len(rows) == 0 {
		outln(w, "No executions found")
		return
	}

	common.PrintHeader(fmt.Sprintf("%d execution(s)", len(rows)), common.WideWidth)
	for _, e := range rows {
		outln(w, formatExecution(e))
		if e.Error != "" {
			outln(w, common.BoxPrefix(true)+e.Error)
		}
	}
	common.PrintSeparator("=", common.WideWidth)
}

func formatExecution(e models.Execution) string {
	id := e.TxHash
	if id == "" {
		id = e.Reference
	}
	if id == "" {
		id = "-"
	}
	return fmt.Sprintf("%s  %-10s  %-32s  %s %s -> %s  %s  %s",
		e.CreatedAt.UTC().Format(time.DateTime), e.Status, e.Engine,
		e.Amount.String(), e.Asset, e.Target, id, e.AttemptId)
}
