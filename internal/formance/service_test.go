package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

var (
	usdc = money.Crypto("USDC", 6)
	eth  = money.Crypto("ETH", 18)
)

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		currency money.Currency
		want     string
	}{
		{usdc, "USDC/6"},
		{money.Crypto("BTC", 8), "BTC/8"},
		{eth, "ETH/18"},
		{money.Fiat("usd"), "USD/2"},
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.currency); got != tt.want {
			t.Errorf("formanceAsset(%s) = %q, want %q", tt.currency, got, tt.want)
		}
	}
}

func TestAccountAddress(t *testing.T) {
	tests := []struct {
		account engine.Account
		want    string
		wantErr bool
	}{
		{engine.Account{ID: "wlt_001", Kind: engine.AccountTrading, Currency: usdc}, "wallets:wlt_001", false},
		{engine.Account{ID: "users:alice:interest", Kind: engine.AccountInterest, Currency: eth}, "users:alice:interest", false},
		{engine.Account{ID: "usd-1", Kind: engine.AccountFiat, Currency: money.Fiat("USD")}, "fiat:usd-1", false},
		{engine.Account{ID: "key-1", Kind: engine.AccountNonCustodial, Currency: eth}, "", true},
		{engine.Account{Kind: engine.AccountTrading, Currency: eth}, "", true},
	}
	for _, tt := range tests {
		got, err := accountAddress(tt.account)
		if tt.wantErr {
			if err == nil {
				t.Errorf("accountAddress(%s) expected error, got %q", tt.account, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("accountAddress(%s) unexpected error: %v", tt.account, err)
			continue
		}
		if got != tt.want {
			t.Errorf("accountAddress(%s) = %q, want %q", tt.account, got, tt.want)
		}
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"USDC/6": {Input: big.NewInt(5_000_000), Output: big.NewInt(1_500_000)},
		"ETH/18": {Input: big.NewInt(10), Output: big.NewInt(3), Balance: big.NewInt(7)},
	}

	if got := volumeBalance(vols, "USDC/6"); got.Cmp(big.NewInt(3_500_000)) != 0 {
		t.Errorf("USDC balance = %s, want 3500000", got)
	}
	if got := volumeBalance(vols, "ETH/18"); got.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("ETH balance = %s, want 7", got)
	}
	if got := volumeBalance(vols, "BTC/8"); got != nil {
		t.Errorf("expected nil for missing asset, got %s", got)
	}
	if got := volumeBalance(nil, "BTC/8"); got != nil {
		t.Errorf("expected nil for nil volumes, got %s", got)
	}
}

func TestBigIntToDecimal(t *testing.T) {
	// 1_000_000 smallest units of USDC (precision 6) = 1.0
	d := decimal.NewFromInt(1_000_000)
	result := bigIntToDecimal(d.BigInt(), 6)
	if !result.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1.0, got %s", result.String())
	}

	// 150_000_000 smallest units of BTC (precision 8) = 1.5
	d = decimal.NewFromInt(150_000_000)
	result = bigIntToDecimal(d.BigInt(), 8)
	if !result.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected 1.5, got %s", result.String())
	}

	// nil should return zero
	result = bigIntToDecimal(nil, 6)
	if !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestErrorClassification(t *testing.T) {
	// nil error should not be a conflict
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}

	conflict := fmt.Errorf("create: %w", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumConflict})
	if !isConflictError(conflict) {
		t.Error("wrapped CONFLICT should be a conflict error")
	}
	if isNotFoundError(conflict) {
		t.Error("CONFLICT should not be a not found error")
	}

	funds := &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumInsufficientFund}
	if !isInsufficientFundsError(funds) {
		t.Error("INSUFFICIENT_FUND should be classified")
	}
	if isInsufficientFundsError(errors.New("boom")) {
		t.Error("plain error should not be classified")
	}

	reverted := fmt.Errorf("revert: %w", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumAlreadyRevert})
	if !isAlreadyRevertedError(reverted) {
		t.Error("wrapped ALREADY_REVERT should be classified")
	}
	if isAlreadyRevertedError(conflict) {
		t.Error("CONFLICT is not ALREADY_REVERT")
	}
}

func TestIsLedgerEngine(t *testing.T) {
	svc := &Service{}
	if !svc.Handles(engine.KindInterestTransferLedger.String()) {
		t.Error("interest ledger transfer should be handled")
	}
	if !svc.Handles(engine.KindInterestWithdrawLedger.String()) {
		t.Error("interest ledger withdraw should be handled")
	}
	if svc.Handles(engine.KindTradingSend.String()) {
		t.Error("trading send is not booked in the ledger")
	}
}

func TestTransferRejectsBadInputs(t *testing.T) {
	svc := &Service{}
	ctx := context.Background()
	from := engine.Account{ID: "wlt_001", Kind: engine.AccountTrading, Currency: usdc}
	to := engine.Account{ID: "users:alice:interest", Kind: engine.AccountInterest, Currency: usdc}
	ten := money.New(decimal.NewFromInt(10), usdc)

	if _, err := svc.Transfer(ctx, from, to, ten, ""); err == nil {
		t.Error("expected error for empty reference")
	}
	if _, err := svc.Transfer(ctx, from, to, money.Zero(usdc), "attempt-1"); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := svc.Transfer(ctx, from, to, money.New(decimal.NewFromInt(1), eth), "attempt-1"); !errors.Is(err, money.ErrCurrencyMismatch) {
		t.Errorf("expected currency mismatch, got %v", err)
	}
	nonCustodial := engine.Account{ID: "key-1", Kind: engine.AccountNonCustodial, Currency: usdc}
	if _, err := svc.Transfer(ctx, nonCustodial, to, ten, "attempt-1"); err == nil {
		t.Error("expected error for non-custodial source")
	}
}

func TestHoldRejectsBadInputs(t *testing.T) {
	svc := &Service{}
	ctx := context.Background()
	from := engine.Account{ID: "wlt_001", Kind: engine.AccountTrading, Currency: usdc}
	ten := money.New(decimal.NewFromInt(10), usdc)

	if _, err := svc.Hold(ctx, from, ten, ""); err == nil {
		t.Error("expected error for empty reference")
	}
	if _, err := svc.Hold(ctx, from, money.Zero(usdc), "attempt-1-hold"); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := svc.Hold(ctx, from, money.New(decimal.NewFromInt(1), eth), "attempt-1-hold"); !errors.Is(err, money.ErrCurrencyMismatch) {
		t.Errorf("expected currency mismatch, got %v", err)
	}
	nonCustodial := engine.Account{ID: "key-1", Kind: engine.AccountNonCustodial, Currency: usdc}
	if _, err := svc.Hold(ctx, nonCustodial, ten, "attempt-1-hold"); err == nil {
		t.Error("expected error for non-custodial source")
	}
}

func TestCompensateFailureIgnoresEnginesWithoutHolds(t *testing.T) {
	svc := &Service{}
	for _, kind := range []engine.Kind{engine.KindOnChainSend, engine.KindInterestTransferLedger, engine.KindBuy} {
		exec := models.Execution{AttemptId: "attempt-1", Engine: kind.String()}
		if err := svc.CompensateFailure(context.Background(), exec); err != nil {
			t.Errorf("%s: expected no-op, got %v", kind, err)
		}
	}
	if !holdsFunds(engine.KindTradingSend.String()) || !holdsFunds(engine.KindInterestWithdrawTradingSend.String()) {
		t.Error("custodial sends hold funds")
	}
}
