package formance

import (
	"context"
	"errors"
	"fmt"

	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Compile-time checks: the ledger backs custodial balances and transfers.
var (
	_ engine.CustodialLedger = (*Service)(nil)
	_ engine.BalanceProvider = (*Service)(nil)
)

const defaultLedgerName = "wallet-custodial"

// Service books custodial balances and transfers in a Formance Stack ledger.
type Service struct {
	client *v3.Formance
	ledger string
}

// NewService connects to the stack, creates the ledger if it doesn't already
// exist, and returns ready to use.
func NewService(ctx context.Context, cfg models.FormanceConfig) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = defaultLedgerName
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{client: client, ledger: cfg.LedgerName}

	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance service initialized", zap.String("ledger", cfg.LedgerName))
	return svc, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "wallet-txengine",
			},
		},
	})
	if err != nil {
		if errorCode(err) == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// Close is a no-op for the Formance backend (HTTP client needs no teardown).
func (s *Service) Close() {}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "USDC/6".
func formanceAsset(c money.Currency) string {
	return fmt.Sprintf("%s/%d", c.Code, c.Precision)
}

// accountAddress maps a custodial account to its ledger address. Interest
// account ids already are ledger addresses.
func accountAddress(a engine.Account) (string, error) {
	if a.ID == "" {
		return "", fmt.Errorf("account %s has no id", a)
	}
	switch a.Kind {
	case engine.AccountInterest:
		return a.ID, nil
	case engine.AccountTrading:
		return "wallets:" + a.ID, nil
	case engine.AccountFiat:
		return "fiat:" + a.ID, nil
	default:
		return "", fmt.Errorf("%s is not a custodial account", a.Kind)
	}
}

func errorCode(err error) shared.V2ErrorsEnum {
	var apiErr *sdkerrors.V2ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode
	}
	return ""
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	return errorCode(err) == shared.V2ErrorsEnumConflict
}

// isNotFoundError checks whether a Formance SDK error is NOT_FOUND.
func isNotFoundError(err error) bool {
	return errorCode(err) == shared.V2ErrorsEnumNotFound
}

// isInsufficientFundsError checks whether a numscript run was rejected for
// lack of funds in the source account.
func isInsufficientFundsError(err error) bool {
	return errorCode(err) == shared.V2ErrorsEnumInsufficientFund
}

// isAlreadyRevertedError checks whether a revert lost a race with another
// revert of the same transaction.
func isAlreadyRevertedError(err error) bool {
	return errorCode(err) == shared.V2ErrorsEnumAlreadyRevert
}

func strPtr(s string) *string { return &s }
func ptrBool(v bool) *bool     { return &v }
