package store

import (
	"context"
	"errors"
	"time"

	"wallet-txengine-go/internal/models"
)

// Sentinel errors shared across all journal implementations.
var (
	ErrDuplicateExecution = errors.New("duplicate execution")
	ErrNotFound           = errors.New("execution not found")
	ErrNotAmbiguous       = errors.New("execution is not ambiguous")
)

// BeginParams describes the execute call about to be made for one attempt.
type BeginParams struct {
	AttemptId     string
	Engine        string
	SourceAccount string
	Target        string
	Asset         string
	Network       string
	Amount        string
}

// Journal records every execute call so an attempt can only execute once and
// ambiguous outcomes can be reconciled later.
type Journal interface {
	// Begin inserts a pending row. A second Begin for the same attempt fails
	// with ErrDuplicateExecution.
	Begin(ctx context.Context, params BeginParams) (*models.Execution, error)
	Complete(ctx context.Context, attemptId, txHash, reference string) error
	Fail(ctx context.Context, attemptId, reason string) error
	MarkAmbiguous(ctx context.Context, attemptId, reference, reason string) error

	// ListAmbiguous returns ambiguous rows created after since, oldest first.
	ListAmbiguous(ctx context.Context, since time.Time) ([]models.Execution, error)
	// Resolve moves an ambiguous row to completed or failed.
	Resolve(ctx context.Context, attemptId, status, reference string) error
	Get(ctx context.Context, attemptId string) (*models.Execution, error)

	Close()
}

// AddressBook caches receive addresses so an account reuses the address it
// was first given on each network.
type AddressBook interface {
	// StoreReceiveAddress keeps the first address stored for an account,
	// asset and network and returns whichever address is on record.
	StoreReceiveAddress(ctx context.Context, addr models.ReceiveAddress) (*models.ReceiveAddress, error)
	// GetReceiveAddress fails with ErrNotFound when nothing is cached.
	GetReceiveAddress(ctx context.Context, accountId, asset, network string) (*models.ReceiveAddress, error)
	FindAccountByAddress(ctx context.Context, address string) (*models.ReceiveAddress, error)
}
