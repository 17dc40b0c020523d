package engine

import "wallet-txengine-go/internal/money"

type ResultKind int

const (
	ResultHashed ResultKind = iota + 1
	ResultUnhashed
	ResultSigned
)

// Result is the terminal outcome of a successful Execute. Failures are
// returned as errors.
type Result struct {
	Kind      ResultKind
	TxHash    string
	Reference string
	Signature string
	Amount    money.Money
}

// Hashed is an on-chain broadcast identified by its transaction hash.
func Hashed(txHash string, amount money.Money) Result {
	return Result{Kind: ResultHashed, TxHash: txHash, Amount: amount}
}

// Unhashed is a custodial movement identified by a backend reference.
func Unhashed(reference string, amount money.Money) Result {
	return Result{Kind: ResultUnhashed, Reference: reference, Amount: amount}
}

func Signed(signature string) Result {
	return Result{Kind: ResultSigned, Signature: signature}
}

// ID is the identifier worth persisting for the result.
func (r Result) ID() string {
	switch r.Kind {
	case ResultHashed:
		return r.TxHash
	case ResultUnhashed:
		return r.Reference
	default:
		return r.Signature
	}
}
