package engine

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"wallet-txengine-go/internal/chainaddr"
	"wallet-txengine-go/internal/money"
)

// WalletConnectEngine answers a dApp signing request with the key of a
// non-custodial account. Nothing moves, so amount checks do not apply.
type WalletConnectEngine struct {
	base
}

func newWalletConnectEngine(b base) *WalletConnectEngine {
	return &WalletConnectEngine{base: b}
}

func (e *WalletConnectEngine) AssertInputsValid() error {
	if e.source.Kind != AccountNonCustodial {
		return fmt.Errorf("%w: signing needs a non-custodial source, got %s", ErrInvalidInputs, e.source.Kind)
	}
	return e.assertTarget(e.target)
}

func (e *WalletConnectEngine) assertTarget(target Target) error {
	t, ok := target.(WalletConnectTarget)
	if !ok {
		return fmt.Errorf("%w: signing engine cannot target %s", ErrInvalidInputs, target.Kind())
	}
	if t.Method != SignPersonal && t.Method != SignEth {
		return fmt.Errorf("%w: unsupported sign method %q", ErrInvalidInputs, t.Method)
	}
	return nil
}

func (e *WalletConnectEngine) request() WalletConnectTarget {
	return e.target.(WalletConnectTarget)
}

func (e *WalletConnectEngine) InitializeTransaction(_ context.Context) (PendingTransaction, error) {
	req := e.request()
	pt := newPendingTransaction(e.source.Currency, e.display)
	pt.Extension = WalletConnectExtension{Method: req.Method, Message: append([]byte(nil), req.Message...)}
	return pt, nil
}

// Update ignores the amount; a signing request carries none.
func (e *WalletConnectEngine) Update(_ context.Context, _ money.Money, pt PendingTransaction) (PendingTransaction, error) {
	return pt, nil
}

func (e *WalletConnectEngine) BuildConfirmations(_ context.Context, pt PendingTransaction) (PendingTransaction, error) {
	req := e.request()
	destination := req.DAppName
	if req.DAppURL != "" {
		destination = fmt.Sprintf("%s (%s)", req.DAppName, req.DAppURL)
	}
	return pt.withConfirmations([]Confirmation{
		textConfirmation(ConfirmSource, e.source.String()),
		textConfirmation(ConfirmDestination, destination),
		textConfirmation(ConfirmSignMessage, displayMessage(req.Message)),
	}), nil
}

// displayMessage shows printable messages as text and anything else as hex.
func displayMessage(msg []byte) string {
	if utf8.Valid(msg) {
		return string(msg)
	}
	return hexutil.Encode(msg)
}

func (e *WalletConnectEngine) ValidateAll(_ context.Context, pt PendingTransaction) (PendingTransaction, error) {
	req := e.request()
	if len(req.Message) == 0 {
		return pt, newValidationError(StateInvalidAmount, "empty message")
	}
	if err := chainaddr.Validate("ethereum-mainnet", req.SignerAddress); err != nil {
		return pt, &ValidationError{State: StateInvalidAddress, Reason: err.Error()}
	}
	return pt, nil
}

func (e *WalletConnectEngine) UpdateFeeLevel(_ context.Context, pt PendingTransaction, _ FeeLevel, _ *money.Money) (PendingTransaction, error) {
	return pt, nil
}

// Execute signs the message and returns the 0x-encoded signature with V in
// the 27/28 form dApps expect.
func (e *WalletConnectEngine) Execute(ctx context.Context, pt PendingTransaction) (Result, error) {
	req := e.request()
	hash := signingHash(req.Method, req.Message)

	sig, err := e.deps.Signer.SignHash(ctx, req.SignerAddress, hash)
	if err != nil {
		return Result{}, executionFailed("sign message", err)
	}
	if len(sig) != 65 {
		return Result{}, executionFailed("sign message", errors.New("signature must be 65 bytes"))
	}
	out := append([]byte(nil), sig...)
	if out[64] < 27 {
		out[64] += 27
	}

	zap.L().Info("Signed WalletConnect request",
		zap.String("session_id", req.SessionID),
		zap.String("dapp", req.DAppName),
		zap.String("method", string(req.Method)))

	return Signed(hexutil.Encode(out)), nil
}

// signingHash applies the EIP-191 prefix, except for eth_sign over a raw
// 32 byte digest.
func signingHash(method SignMethod, msg []byte) []byte {
	if method == SignEth && len(msg) == 32 {
		return msg
	}
	return accounts.TextHash(msg)
}

func (e *WalletConnectEngine) Restart(ctx context.Context, target Target, pt PendingTransaction) (PendingTransaction, error) {
	if err := e.assertTarget(target); err != nil {
		return pt, err
	}
	e.target = target
	req := e.request()
	pt.Extension = WalletConnectExtension{Method: req.Method, Message: append([]byte(nil), req.Message...)}
	if len(pt.Confirmations) == 0 {
		return pt, nil
	}
	return e.BuildConfirmations(ctx, pt)
}
