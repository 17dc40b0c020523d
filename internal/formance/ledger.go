package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInsufficientFunds is returned when the ledger refuses a transfer because
// the source account cannot cover it.
var ErrInsufficientFunds = errors.New("insufficient ledger funds")

// numscriptTransfer moves funds between two custodial accounts. Custodial
// accounts never overdraw.
const numscriptTransfer = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $attempt_id
  string $asset_symbol
}

send [$asset $amount] (
  source = $source
  destination = $destination
)

set_tx_meta("event_type", "custodial_transfer")
set_tx_meta("attempt_id", $attempt_id)
set_tx_meta("asset_symbol", $asset_symbol)
`

// withdrawalsPending holds custodial funds between the ledger debit and the
// backend confirming the payout.
const withdrawalsPending = "withdrawals:pending"

// numscriptHold debits a custodial account ahead of a backend withdrawal.
const numscriptHold = `vars {
  asset $asset
  number $amount
  account $source
  account $pending
  string $attempt_id
  string $asset_symbol
}

send [$asset $amount] (
  source = $source
  destination = $pending
)

set_tx_meta("event_type", "withdrawal_hold")
set_tx_meta("attempt_id", $attempt_id)
set_tx_meta("asset_symbol", $asset_symbol)
`

// Balance returns the custodial balance of account. An account the ledger
// has never seen holds zero.
func (s *Service) Balance(ctx context.Context, account engine.Account) (money.Money, error) {
	addr, err := accountAddress(account)
	if err != nil {
		return money.Money{}, err
	}

	zap.L().Debug("Getting ledger balance from Formance",
		zap.String("address", addr), zap.String("asset", account.Currency.Code))

	vols, err := s.getAccountVolumes(ctx, addr)
	if err != nil {
		return money.Money{}, err
	}
	bal := volumeBalance(vols, formanceAsset(account.Currency))
	return money.New(bigIntToDecimal(bal, account.Currency.Precision), account.Currency), nil
}

// Transfer books amount from one custodial account to another under
// reference. Replaying a reference returns the transaction booked the first
// time instead of moving funds twice.
func (s *Service) Transfer(ctx context.Context, from, to engine.Account, amount money.Money, reference string) (string, error) {
	if reference == "" {
		return "", fmt.Errorf("ledger transfer requires a reference")
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("ledger transfer amount must be positive, got %s", amount)
	}
	if from.Currency.Code != amount.Currency.Code || to.Currency.Code != amount.Currency.Code {
		return "", fmt.Errorf("%w: %s from %s to %s", money.ErrCurrencyMismatch, amount.Currency, from.Currency, to.Currency)
	}
	source, err := accountAddress(from)
	if err != nil {
		return "", err
	}
	destination, err := accountAddress(to)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(reference),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptTransfer,
				Vars: map[string]string{
					"asset":        formanceAsset(amount.Currency),
					"amount":       amount.Minor(),
					"source":       source,
					"destination":  destination,
					"attempt_id":   reference,
					"asset_symbol": amount.Currency.Code,
				},
			},
		},
	})
	if err != nil {
		switch {
		case isConflictError(err):
			zap.L().Info("Ledger transfer already booked, looking up original",
				zap.String("reference", reference))
			tx, lookupErr := s.transactionByReference(ctx, reference)
			if lookupErr != nil {
				return "", fmt.Errorf("reference %s already used: %w", reference, lookupErr)
			}
			if tx == nil {
				return "", fmt.Errorf("reference %s already used but not found", reference)
			}
			return tx.ID.String(), nil
		case isInsufficientFundsError(err):
			return "", fmt.Errorf("%w: %s from %s", ErrInsufficientFunds, amount, source)
		default:
			return "", fmt.Errorf("error booking ledger transfer: %w", err)
		}
	}

	tx := resp.V2CreateTransactionResponse.Data
	zap.L().Info("Ledger transfer booked in Formance",
		zap.String("source", source),
		zap.String("destination", destination),
		zap.String("amount", amount.String()),
		zap.String("reference", reference))
	if tx.ID == nil {
		return "", nil
	}
	return tx.ID.String(), nil
}

// Hold moves amount from an account into withdrawals:pending under reference
// before the backend pays it out. Replaying a reference returns the hold
// booked the first time.
func (s *Service) Hold(ctx context.Context, from engine.Account, amount money.Money, reference string) (string, error) {
	if reference == "" {
		return "", fmt.Errorf("ledger hold requires a reference")
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("ledger hold amount must be positive, got %s", amount)
	}
	if from.Currency.Code != amount.Currency.Code {
		return "", fmt.Errorf("%w: %s from %s", money.ErrCurrencyMismatch, amount.Currency, from.Currency)
	}
	source, err := accountAddress(from)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(reference),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptHold,
				Vars: map[string]string{
					"asset":        formanceAsset(amount.Currency),
					"amount":       amount.Minor(),
					"source":       source,
					"pending":      withdrawalsPending,
					"attempt_id":   reference,
					"asset_symbol": amount.Currency.Code,
				},
			},
		},
	})
	if err != nil {
		switch {
		case isConflictError(err):
			tx, lookupErr := s.transactionByReference(ctx, reference)
			if lookupErr != nil {
				return "", fmt.Errorf("hold %s already booked: %w", reference, lookupErr)
			}
			if tx == nil {
				return "", fmt.Errorf("hold %s already booked but not found", reference)
			}
			return tx.ID.String(), nil
		case isInsufficientFundsError(err):
			return "", fmt.Errorf("%w: hold of %s from %s", ErrInsufficientFunds, amount, source)
		default:
			return "", fmt.Errorf("error booking ledger hold: %w", err)
		}
	}

	tx := resp.V2CreateTransactionResponse.Data
	zap.L().Info("Withdrawal hold booked in Formance",
		zap.String("source", source),
		zap.String("amount", amount.String()),
		zap.String("reference", reference))
	if tx.ID == nil {
		return "", nil
	}
	return tx.ID.String(), nil
}

// Release reverts the hold booked under reference, crediting the account
// back. A missing or already reverted hold is left alone.
func (s *Service) Release(ctx context.Context, reference string) error {
	tx, err := s.transactionByReference(ctx, reference)
	if err != nil {
		return err
	}
	if tx == nil {
		zap.L().Info("No ledger hold to release", zap.String("reference", reference))
		return nil
	}
	if tx.Reverted {
		zap.L().Info("Ledger hold already released",
			zap.String("reference", reference),
			zap.String("tx_id", tx.ID.String()))
		return nil
	}

	_, err = s.client.Ledger.V2.RevertTransaction(ctx, operations.V2RevertTransactionRequest{
		Ledger:          s.ledger,
		ID:              tx.ID,
		AtEffectiveDate: ptrBool(true),
	})
	if err != nil {
		if isConflictError(err) || isAlreadyRevertedError(err) {
			zap.L().Info("Ledger hold already released (race)",
				zap.String("reference", reference))
			return nil
		}
		return fmt.Errorf("failed to release hold %s: %w", reference, err)
	}

	zap.L().Info("Ledger hold released in Formance",
		zap.String("reference", reference),
		zap.String("tx_id", tx.ID.String()))
	return nil
}

// CompensateFailure releases the hold of a custodial withdrawal that is
// known to have failed. Other engines booked no hold.
func (s *Service) CompensateFailure(ctx context.Context, exec models.Execution) error {
	if !holdsFunds(exec.Engine) {
		return nil
	}
	return s.Release(ctx, engine.HoldReference(exec.AttemptId))
}

// Handles reports whether executions of this engine were booked in the ledger.
func (s *Service) Handles(engineName string) bool {
	return isLedgerEngine(engineName)
}

// ExecutionStatus resolves an ambiguous ledger execution: a transaction
// booked under the attempt id means it completed, no transaction means the
// ledger never accepted it.
func (s *Service) ExecutionStatus(ctx context.Context, exec models.Execution) (string, string, error) {
	tx, err := s.transactionByReference(ctx, exec.AttemptId)
	if err != nil {
		return "", "", err
	}
	if tx == nil || tx.Reverted {
		return models.ExecutionFailed, "", nil
	}
	return models.ExecutionCompleted, tx.ID.String(), nil
}

// ---------- helpers ----------

func isLedgerEngine(name string) bool {
	return name == engine.KindInterestTransferLedger.String() ||
		name == engine.KindInterestWithdrawLedger.String()
}

func holdsFunds(name string) bool {
	return name == engine.KindTradingSend.String() ||
		name == engine.KindInterestWithdrawTradingSend.String()
}

// transactionByReference returns nil when no transaction carries reference.
func (s *Service) transactionByReference(ctx context.Context, reference string) (*shared.V2Transaction, error) {
	pageSize := int64(1)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"reference": reference,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by reference %s: %w", reference, err)
	}
	if len(resp.V2TransactionsCursorResponse.Cursor.Data) == 0 {
		return nil, nil
	}
	tx := resp.V2TransactionsCursorResponse.Cursor.Data[0]
	return &tx, nil
}

// getAccountVolumes fetches volumes for a single account via GetAccount.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, precision int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -precision)
}
