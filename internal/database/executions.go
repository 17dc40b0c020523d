package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var e models.Execution
	err := row.Scan(&e.Id, &e.AttemptId, &e.Engine, &e.SourceAccount, &e.Target, &e.Asset, &e.Network, &e.Amount,
		&e.Status, &e.TxHash, &e.Reference, &e.Error, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) Begin(ctx context.Context, params store.BeginParams) (*models.Execution, error) {
	if params.AttemptId == "" {
		return nil, fmt.Errorf("attempt id cannot be empty")
	}
	now := time.Now().UTC()

	execution, err := scanExecution(s.db.QueryRowContext(ctx, queryInsertExecution,
		uuid.New().String(), params.AttemptId, params.Engine, params.SourceAccount, params.Target,
		params.Asset, params.Network, params.Amount, models.ExecutionPending, now, now))
	if err != nil {
		if isUniqueViolation(err) {
			zap.L().Warn("Execution already journaled", zap.String("attempt_id", params.AttemptId))
			return nil, fmt.Errorf("%w: attempt %s", store.ErrDuplicateExecution, params.AttemptId)
		}
		return nil, fmt.Errorf("unable to insert execution: %w", err)
	}

	zap.L().Debug("Execution journaled",
		zap.String("attempt_id", params.AttemptId),
		zap.String("engine", params.Engine),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount))
	return execution, nil
}

func (s *Service) Complete(ctx context.Context, attemptId, txHash, reference string) error {
	return s.transition(ctx, attemptId, queryCompleteExecution, txHash, reference, time.Now().UTC(), attemptId)
}

func (s *Service) Fail(ctx context.Context, attemptId, reason string) error {
	return s.transition(ctx, attemptId, queryFailExecution, reason, time.Now().UTC(), attemptId)
}

func (s *Service) MarkAmbiguous(ctx context.Context, attemptId, reference, reason string) error {
	if err := s.transition(ctx, attemptId, queryMarkAmbiguous, reference, reason, time.Now().UTC(), attemptId); err != nil {
		return err
	}
	zap.L().Warn("Execution outcome unknown, queued for reconciliation",
		zap.String("attempt_id", attemptId),
		zap.String("reference", reference),
		zap.String("reason", reason))
	return nil
}

// Resolve settles an ambiguous row. An empty reference keeps the one on record.
func (s *Service) Resolve(ctx context.Context, attemptId, status, reference string) error {
	if status != models.ExecutionCompleted && status != models.ExecutionFailed {
		return fmt.Errorf("cannot resolve execution to status %q", status)
	}
	res, err := s.db.ExecContext(ctx, queryResolveExecution, status, reference, reference, time.Now().UTC(), attemptId)
	if err != nil {
		return fmt.Errorf("unable to resolve execution %s: %w", attemptId, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to resolve execution %s: %w", attemptId, err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, attemptId); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", store.ErrNotAmbiguous, attemptId)
	}

	zap.L().Info("Ambiguous execution resolved",
		zap.String("attempt_id", attemptId),
		zap.String("status", status),
		zap.String("reference", reference))
	return nil
}

// transition applies an update that only moves pending rows.
func (s *Service) transition(ctx context.Context, attemptId, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("unable to update execution %s: %w", attemptId, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to update execution %s: %w", attemptId, err)
	}
	if n == 0 {
		existing, err := s.Get(ctx, attemptId)
		if err != nil {
			return err
		}
		return fmt.Errorf("execution %s is already %s", attemptId, existing.Status)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, attemptId string) (*models.Execution, error) {
	execution, err := scanExecution(s.db.QueryRowContext(ctx, queryGetExecution, attemptId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: execution %s", store.ErrNotFound, attemptId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query execution %s: %w", attemptId, err)
	}
	return execution, nil
}

func (s *Service) ListAmbiguous(ctx context.Context, since time.Time) ([]models.Execution, error) {
	rows, err := s.db.QueryContext(ctx, queryListAmbiguous, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("unable to query ambiguous executions: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var executions []models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan execution row: %w", err)
		}
		executions = append(executions, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}

	zap.L().Debug("Retrieved ambiguous executions", zap.Int("count", len(executions)))
	return executions, nil
}
