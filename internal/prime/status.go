package prime

import (
	"context"
	"fmt"
	"time"

	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"go.uber.org/zap"
)

// Prime transaction statuses that end a withdrawal.
const (
	statusDone = "TRANSACTION_DONE"
)

var terminalFailures = map[string]bool{
	"TRANSACTION_CANCELLED": true,
	"TRANSACTION_REJECTED":  true,
	"TRANSACTION_FAILED":    true,
	"TRANSACTION_EXPIRED":   true,
}

// statusLookback is how far before the journal row the withdrawal search
// starts, to absorb clock skew between us and Prime.
const statusLookback = time.Hour

// notFoundGrace is how long after the journal row a withdrawal Prime has no
// record of is still awaited. Past it the withdrawal never happened.
const notFoundGrace = time.Hour

// Handles reports whether executions of this engine went out as Prime
// withdrawals.
func (s *Service) Handles(engineName string) bool {
	return engineName == engine.KindTradingSend.String() ||
		engineName == engine.KindInterestWithdrawTradingSend.String()
}

// ExecutionStatus finds the withdrawal Prime recorded under the attempt id
// of exec. It returns an empty status while Prime has no final answer.
func (s *Service) ExecutionStatus(ctx context.Context, exec models.Execution) (string, string, error) {
	walletId, err := s.walletFor(exec)
	if err != nil {
		return "", "", err
	}
	txs, err := s.ListWalletTransactions(ctx, walletId, exec.CreatedAt.Add(-statusLookback))
	if err != nil {
		return "", "", err
	}

	tx, ok := findByIdempotencyKey(txs, exec.AttemptId)
	if !ok {
		if time.Since(exec.CreatedAt) > notFoundGrace {
			zap.L().Warn("Prime never recorded withdrawal for attempt",
				zap.String("attempt_id", exec.AttemptId),
				zap.String("wallet_id", walletId),
				zap.Time("created_at", exec.CreatedAt))
			return models.ExecutionFailed, "", nil
		}
		zap.L().Debug("No Prime withdrawal found for attempt",
			zap.String("attempt_id", exec.AttemptId),
			zap.String("wallet_id", walletId))
		return "", "", nil
	}

	status := executionStatus(tx.Status)
	zap.L().Info("Matched Prime withdrawal to attempt",
		zap.String("attempt_id", exec.AttemptId),
		zap.String("transaction_id", tx.Id),
		zap.String("prime_status", tx.Status),
		zap.String("status", status))
	return status, tx.Id, nil
}

// walletFor returns the wallet an execution paid out of. Trading sends
// journal the wallet itself; interest withdrawals journal the interest
// account and pay out of the trading wallet of the asset.
func (s *Service) walletFor(exec models.Execution) (string, error) {
	if exec.Engine != engine.KindInterestWithdrawTradingSend.String() {
		return exec.SourceAccount, nil
	}
	if s.wallets == nil {
		return "", fmt.Errorf("no wallet resolver for %s", exec.Engine)
	}
	walletId, err := s.wallets.WithdrawalWallet(exec.Asset, exec.Network)
	if err != nil {
		return "", fmt.Errorf("unable to resolve wallet for attempt %s: %w", exec.AttemptId, err)
	}
	return walletId, nil
}

// ListWalletTransactions fetches withdrawals of a wallet created after startTime.
func (s *Service) ListWalletTransactions(ctx context.Context, walletId string, startTime time.Time) ([]models.PrimeTransaction, error) {
	if err := s.requirePortfolio(); err != nil {
		return nil, err
	}
	zap.L().Debug("Making Prime API request",
		zap.String("portfolio_id", s.portfolioId),
		zap.String("wallet_id", walletId),
		zap.String("start_time", startTime.UTC().Format("2006-01-02T15:04:05Z")))

	request := &transactions.ListWalletTransactionsRequest{
		PortfolioId: s.portfolioId,
		WalletId:    walletId,
		Start:       startTime,
		Types:       []string{"WITHDRAWAL"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	}

	response, err := s.transactionsSvc.ListWalletTransactions(ctx, request)
	if err != nil {
		zap.L().Error("Failed to list wallet transactions",
			zap.String("wallet_id", walletId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to list wallet transactions: %w", err)
	}

	result := make([]models.PrimeTransaction, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		result = append(result, models.PrimeTransaction{
			Id:             tx.Id,
			WalletId:       tx.WalletId,
			Type:           tx.Type,
			Status:         tx.Status,
			Symbol:         tx.Symbol,
			Amount:         tx.Amount,
			CreatedAt:      tx.Created,
			CompletedAt:    tx.Completed,
			TransactionId:  tx.TransactionId,
			Network:        tx.Network,
			IdempotencyKey: tx.IdempotencyKey,
		})
	}

	zap.L().Debug("Prime API response received",
		zap.String("wallet_id", walletId),
		zap.Int("count", len(result)))
	return result, nil
}

func findByIdempotencyKey(txs []models.PrimeTransaction, key string) (models.PrimeTransaction, bool) {
	if key == "" {
		return models.PrimeTransaction{}, false
	}
	for _, tx := range txs {
		if tx.IdempotencyKey == key {
			return tx, true
		}
	}
	return models.PrimeTransaction{}, false
}

// executionStatus maps a Prime status onto a journal status. In-flight
// statuses map to "".
func executionStatus(primeStatus string) string {
	switch {
	case primeStatus == statusDone:
		return models.ExecutionCompleted
	case terminalFailures[primeStatus]:
		return models.ExecutionFailed
	default:
		return ""
	}
}
