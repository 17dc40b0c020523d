package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution statuses
const (
	ExecutionPending   = "pending"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
	ExecutionAmbiguous = "ambiguous"
)

// Execution is one journaled execute call. AttemptId is unique, which is
// what keeps execute to a single call per attempt.
type Execution struct {
	Id            string          `db:"id"`
	AttemptId     string          `db:"attempt_id"`
	Engine        string          `db:"engine"`
	SourceAccount string          `db:"source_account"`
	Target        string          `db:"target"`
	Asset         string          `db:"asset"`
	Network       string          `db:"network"`
	Amount        decimal.Decimal `db:"amount"`
	Status        string          `db:"status"`
	TxHash        string          `db:"tx_hash"`
	Reference     string          `db:"reference"`
	Error         string          `db:"error"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// ReceiveAddress caches a deposit address generated for a custodial or
// non-custodial account, so one account keeps one address per network.
type ReceiveAddress struct {
	Id        string    `db:"id"`
	AccountId string    `db:"account_id"`
	Asset     string    `db:"asset"`
	Network   string    `db:"network"`
	Address   string    `db:"address"`
	WalletId  string    `db:"wallet_id"`
	CreatedAt time.Time `db:"created_at"`
}
