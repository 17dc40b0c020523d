package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/money"

	"go.uber.org/zap"
)

// amountAll selects the whole available balance.
const amountAll = "all"

type transaction struct {
	action engine.Action
	source engine.Account
	target engine.Target
	amount string
	yes    bool
}

// runTransaction walks one attempt through the processor lifecycle and
// prints the review lines before asking for confirmation.
func runTransaction(ctx context.Context, services *common.Services, tx transaction, in io.Reader, w io.Writer) error {
	kind, err := engine.Select(tx.source.Kind, tx.target.Kind(), tx.action)
	if err != nil {
		return err
	}

	eng, err := services.Factory.New(kind, tx.source, tx.target)
	if err != nil {
		return fmt.Errorf("unable to build %s engine: %w", kind, err)
	}

	proc, err := engine.NewProcessor(kind, eng, services.Journal)
	if err != nil {
		return err
	}

	zap.L().Info("Starting transaction",
		zap.String("attempt_id", proc.AttemptId()),
		zap.String("engine", kind.String()),
		zap.String("source", tx.source.String()),
		zap.String("target", tx.target.Label()))

	pt, err := proc.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	amount, err := resolveAmount(tx.amount, pt)
	if err != nil {
		return err
	}
	if _, err := proc.UpdateAmount(ctx, amount); err != nil {
		return fmt.Errorf("update amount: %w", err)
	}

	if err := review(ctx, proc); err != nil {
		return err
	}

	if !tx.yes && !promptConfirmation(in, w) {
		outln(w, "Cancelled, nothing was sent.")
		return nil
	}

	result, err := proc.Execute(ctx)
	if err != nil {
		var execErr *engine.ExecutionError
		if errors.As(err, &execErr) && execErr.Ambiguous {
			return fmt.Errorf("%w (attempt %s recorded for reconciliation)", err, proc.AttemptId())
		}
		return err
	}

	outln(w, common.FormatResult(result))
	return nil
}

// review builds and prints the confirmations, then validates them. An
// order whose quote expired while the review was open gets one fresh quote.
func review(ctx context.Context, proc *engine.Processor) error {
	for attempt := 0; ; attempt++ {
		pt, err := proc.BuildConfirmations(ctx)
		if err != nil {
			return fmt.Errorf("build confirmations: %w", err)
		}
		common.PrintConfirmations(fmt.Sprintf("Review %s", proc.Kind()), pt)

		_, err = proc.Validate(ctx)
		if err == nil {
			return nil
		}
		if attempt > 0 || !errors.Is(err, engine.ErrQuoteExpired) {
			return err
		}
		zap.L().Info("Quote expired, requesting a new one",
			zap.String("attempt_id", proc.AttemptId()))
	}
}

// resolveAmount parses a major-unit amount in the source currency, or
// "all" for the available balance.
func resolveAmount(value string, pt engine.PendingTransaction) (money.Money, error) {
	if strings.EqualFold(strings.TrimSpace(value), amountAll) {
		if !pt.Available.IsPositive() {
			return money.Money{}, fmt.Errorf("nothing available to send")
		}
		return pt.Available, nil
	}
	amount, err := money.Parse(value, pt.Amount.Currency)
	if err != nil {
		return money.Money{}, err
	}
	if !amount.IsPositive() {
		return money.Money{}, fmt.Errorf("amount must be positive, got %s", value)
	}
	return amount, nil
}

func promptConfirmation(in io.Reader, w io.Writer) bool {
	out(w, "\nExecute this transaction? [y/N]: ")

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
