package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupJournalTestDB(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// :memory: is per connection
	db.SetMaxOpenConns(1)

	service, err := newServiceWithDB(context.Background(), db)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return service, cleanup
}

func beginParams(attemptId string) store.BeginParams {
	return store.BeginParams{
		AttemptId:     attemptId,
		Engine:        "on_chain_send",
		SourceAccount: "key-eth",
		Target:        "0x52908400098527886E0F7030069857D2E4169EE7",
		Asset:         "ETH",
		Network:       "ethereum-mainnet",
		Amount:        "1.25",
	}
}

func TestBegin_InsertsPendingRow(t *testing.T) {
	service, cleanup := setupJournalTestDB(t)
	defer cleanup()
	ctx := context.Background()

	execution, err := service.Begin(ctx, beginParams("attempt-1"))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if execution.Status != models.ExecutionPending {
		t.Errorf("Expected status pending, got %s", execution.Status)
	}
	if !execution.Amount.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("Expected amount 1.25, got %s", execution.Amount)
	}
	if execution.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}
}

func TestBegin_RejectsSecondCallForAttempt(t *testing.T) {
	service, cleanup := setupJournalTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.Begin(ctx, beginParams("attempt-1")); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	_, err := service.Begin(ctx, beginParams("attempt-1"))
	if !errors.Is(err, store.ErrDuplicateExecution) {
		t.Fatalf("Expected ErrDuplicateExecution, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	service, cleanup := setupJournalTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.Begin(ctx, beginParams("attempt-1")); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := service.Complete(ctx, "attempt-1", "0xabc", ""); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	execution, err := service.Get(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if execution.Status != models.ExecutionCompleted || execution.TxHash != "0xabc" {
		t.Errorf("Expected completed with hash 0xabc, got %s %q", execution.Status, execution.TxHash)
	}

	// Terminal rows do not move again
	if err := service.Fail(ctx, "attempt-1", "late failure"); err == nil {
		t.Error("Expected Fail on a completed execution to error")
	}
}

func TestGet_NotFound(t *testing.T) {
	service, cleanup := setupJournalTestDB(t)
	defer cleanup()

	_, err := service.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if err := service.Complete(context.Background(), "missing", "0xabc", ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound from Complete, got %v", err)
	}
}

func TestAmbiguousLifecycle(t *testing.T) {
	service, cleanup := setupJournalTestDB(t)
	defer cleanup()
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Minute)

	for _, id := range []string{"attempt-1", "attempt-2", "attempt-3"} {
		if _, err := service.Begin(ctx, beginParams(id)); err != nil {
			t.Fatalf("Begin %s failed: %v", id, err)
		}
	}
	if err := service.MarkAmbiguous(ctx, "attempt-1", "key-1", "no activity id"); err != nil {
		t.Fatalf("MarkAmbiguous failed: %v", err)
	}
	if err := service.MarkAmbiguous(ctx, "attempt-2", "", "connection reset"); err != nil {
		t.Fatalf("MarkAmbiguous failed: %v", err)
	}
	if err := service.Fail(ctx, "attempt-3", "rejected"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	ambiguous, err := service.ListAmbiguous(ctx, start)
	if err != nil {
		t.Fatalf("ListAmbiguous failed: %v", err)
	}
	if len(ambiguous) != 2 {
		t.Fatalf("Expected 2 ambiguous executions, got %d", len(ambiguous))
	}

	if err := service.Resolve(ctx, "attempt-1", models.ExecutionCompleted, "activity-9"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := service.Resolve(ctx, "attempt-2", models.ExecutionFailed, ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := service.Resolve(ctx, "attempt-3", models.ExecutionCompleted, ""); !errors.Is(err, store.ErrNotAmbiguous) {
		t.Fatalf("Expected ErrNotAmbiguous, got %v", err)
	}
	if err := service.Resolve(ctx, "attempt-1", models.ExecutionPending, ""); err == nil {
		t.Fatal("Expected resolving to pending to fail")
	}

	first, err := service.Get(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if first.Status != models.ExecutionCompleted || first.Reference != "activity-9" {
		t.Errorf("Expected completed with reference activity-9, got %s %q", first.Status, first.Reference)
	}
	second, err := service.Get(ctx, "attempt-2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second.Status != models.ExecutionFailed || second.Error != "connection reset" {
		t.Errorf("Expected failed keeping its error, got %s %q", second.Status, second.Error)
	}

	ambiguous, err = service.ListAmbiguous(ctx, start)
	if err != nil {
		t.Fatalf("ListAmbiguous failed: %v", err)
	}
	if len(ambiguous) != 0 {
		t.Errorf("Expected no ambiguous executions after resolve, got %d", len(ambiguous))
	}
}

func TestListAmbiguous_RespectsSince(t *testing.T) {
	service, cleanup := setupJournalTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.Begin(ctx, beginParams("attempt-1")); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := service.MarkAmbiguous(ctx, "attempt-1", "", "timeout"); err != nil {
		t.Fatalf("MarkAmbiguous failed: %v", err)
	}

	ambiguous, err := service.ListAmbiguous(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListAmbiguous failed: %v", err)
	}
	if len(ambiguous) != 0 {
		t.Errorf("Expected rows older than since to be skipped, got %d", len(ambiguous))
	}
}
