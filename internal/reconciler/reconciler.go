/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package reconciler resolves executions whose outcome was unknown when the
// engine returned, by asking the backend that carried them.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/monitor"
	"wallet-txengine-go/internal/store"

	"go.uber.org/zap"
)

// StatusChecker looks up the final outcome of an execution at the backend
// that carried it.
type StatusChecker interface {
	// Handles reports whether executions of the named engine go through
	// this backend.
	Handles(engine string) bool
	// ExecutionStatus returns models.ExecutionCompleted or
	// models.ExecutionFailed with the backend reference, or an empty status
	// while the backend has no final answer yet.
	ExecutionStatus(ctx context.Context, exec models.Execution) (status, reference string, err error)
}

// Compensator undoes what a failed execution left booked elsewhere, such
// as a ledger hold taken before a withdrawal. It must be safe to call twice
// and must ignore engines it booked nothing for.
type Compensator interface {
	CompensateFailure(ctx context.Context, exec models.Execution) error
}

// Config contains configuration for Reconciler
type Config struct {
	Journal         store.Journal
	Checkers        []StatusChecker
	Compensators    []Compensator
	PollingInterval time.Duration
	LookbackWindow  time.Duration
	Now             func() time.Time
}

// Reconciler polls the journal for ambiguous executions and resolves them
type Reconciler struct {
	journal         store.Journal
	checkers        []StatusChecker
	compensators    []Compensator
	pollingInterval time.Duration
	lookbackWindow  time.Duration
	now             func() time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a reconciler. Intervals default to one minute and one day.
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		journal:         cfg.Journal,
		checkers:        cfg.Checkers,
		compensators:    cfg.Compensators,
		pollingInterval: cfg.PollingInterval,
		lookbackWindow:  cfg.LookbackWindow,
		now:             cfg.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
	if r.pollingInterval <= 0 {
		r.pollingInterval = time.Minute
	}
	if r.lookbackWindow <= 0 {
		r.lookbackWindow = 24 * time.Hour
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Start begins the reconciliation loop
func (r *Reconciler) Start(ctx context.Context) error {
	if r.journal == nil {
		return fmt.Errorf("reconciler requires an execution journal")
	}
	if len(r.checkers) == 0 {
		return fmt.Errorf("reconciler requires at least one status checker")
	}

	go r.pollLoop(ctx)

	zap.L().Info("Reconciler started",
		zap.Duration("polling_interval", r.pollingInterval),
		zap.Duration("lookback_window", r.lookbackWindow),
		zap.Int("checkers", len(r.checkers)))
	return nil
}

// Stop gracefully stops the reconciler
func (r *Reconciler) Stop() {
	zap.L().Info("Stopping reconciler")
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Reconciler stopped")
}

// pollLoop runs the main polling loop
func (r *Reconciler) pollLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	r.poll(ctx)

	for {
		select {
		case <-ticker.C:
			r.poll(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) poll(ctx context.Context) {
	if _, err := r.ReconcileOnce(ctx); err != nil {
		zap.L().Error("Reconciliation pass failed", zap.Error(err))
	}
}

// ReconcileOnce makes a single pass over ambiguous executions inside the
// lookback window and returns how many it resolved. Failures on one
// execution never stop the pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	since := r.now().UTC().Add(-r.lookbackWindow)
	rows, err := r.journal.ListAmbiguous(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list ambiguous executions: %w", err)
	}
	monitor.AmbiguousExecutions.Set(float64(len(rows)))
	if len(rows) == 0 {
		return 0, nil
	}

	zap.L().Info("Reconciling ambiguous executions",
		zap.Int("count", len(rows)),
		zap.Time("since", since))

	resolved := 0
	for _, exec := range rows {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		ok, err := r.reconcile(ctx, exec)
		if err != nil {
			zap.L().Error("Failed to reconcile execution",
				zap.String("attempt_id", exec.AttemptId),
				zap.String("engine", exec.Engine),
				zap.Error(err))
			continue
		}
		if ok {
			resolved++
			monitor.AmbiguousExecutions.Dec()
		}
	}
	return resolved, nil
}

func (r *Reconciler) reconcile(ctx context.Context, exec models.Execution) (bool, error) {
	checker := r.checkerFor(exec.Engine)
	if checker == nil {
		zap.L().Warn("No status checker for engine, leaving execution ambiguous",
			zap.String("attempt_id", exec.AttemptId),
			zap.String("engine", exec.Engine))
		return false, nil
	}

	status, reference, err := checker.ExecutionStatus(ctx, exec)
	if err != nil {
		return false, err
	}
	if status == "" {
		zap.L().Debug("Execution outcome still unknown",
			zap.String("attempt_id", exec.AttemptId))
		return false, nil
	}

	// A failure stays ambiguous until every compensation went through, so
	// the next pass retries it.
	if status == models.ExecutionFailed {
		for _, c := range r.compensators {
			if err := c.CompensateFailure(ctx, exec); err != nil {
				return false, fmt.Errorf("failed to compensate failed execution: %w", err)
			}
		}
	}

	if err := r.journal.Resolve(ctx, exec.AttemptId, status, reference); err != nil {
		if errors.Is(err, store.ErrNotAmbiguous) {
			zap.L().Debug("Execution already resolved",
				zap.String("attempt_id", exec.AttemptId))
			return false, nil
		}
		return false, fmt.Errorf("failed to resolve execution: %w", err)
	}

	monitor.EngineExecutions.WithLabelValues(exec.Engine, "reconciled_"+status).Inc()
	zap.L().Info("Resolved ambiguous execution",
		zap.String("attempt_id", exec.AttemptId),
		zap.String("engine", exec.Engine),
		zap.String("status", status),
		zap.String("reference", reference))
	return true, nil
}

func (r *Reconciler) checkerFor(engine string) StatusChecker {
	for _, c := range r.checkers {
		if c.Handles(engine) {
			return c
		}
	}
	return nil
}
