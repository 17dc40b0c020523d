package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"
	"wallet-txengine-go/internal/monitor"
	"wallet-txengine-go/internal/store"
)

// State is a lifecycle state of one attempt
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateAmountEdited
	StateConfirmationsBuilt
	StateValidated
	StateValidationFailed
	StateRestarted
	StateExecuting
	StateExecuted
	StateExecutionFailed
)

var stateNames = map[State]string{
	StateUninitialized:      "uninitialized",
	StateInitialized:        "initialized",
	StateAmountEdited:       "amount_edited",
	StateConfirmationsBuilt: "confirmations_built",
	StateValidated:          "validated",
	StateValidationFailed:   "validation_failed",
	StateRestarted:          "restarted",
	StateExecuting:          "executing",
	StateExecuted:           "executed",
	StateExecutionFailed:    "execution_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further lifecycle call is accepted.
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateExecutionFailed
}

type operation string

const (
	opInitialize operation = "initialize"
	opUpdate     operation = "update"
	opFeeLevel   operation = "update_fee_level"
	opBuild      operation = "build_confirmations"
	opValidate   operation = "validate"
	opExecute    operation = "execute"
	opRestart    operation = "restart"
)

// editable are the post-initialize, non-terminal states.
var editable = []State{
	StateInitialized,
	StateAmountEdited,
	StateConfirmationsBuilt,
	StateValidated,
	StateValidationFailed,
	StateRestarted,
}

// allowedFrom lists the states each operation may start in.
var allowedFrom = map[operation][]State{
	opInitialize: {StateUninitialized},
	opUpdate:     editable,
	opFeeLevel:   editable,
	opBuild:      editable,
	opValidate:   {StateConfirmationsBuilt, StateValidated, StateValidationFailed, StateRestarted},
	opExecute:    {StateValidated},
	opRestart:    editable,
}

// Processor binds one source, target and engine for one attempt. It
// serializes lifecycle calls and rejects calls out of order with
// ErrIllegalTransition. Execute runs at most once, guarded by state and by
// the journal's unique attempt id.
type Processor struct {
	mu        sync.Mutex
	kind      Kind
	engine    Engine
	journal   store.Journal
	attemptId string
	state     State
	pending   PendingTransaction
}

// NewProcessor starts an attempt. journal may be nil, in which case only
// the state machine guards execute.
func NewProcessor(kind Kind, eng Engine, journal store.Journal) (*Processor, error) {
	if err := eng.AssertInputsValid(); err != nil {
		return nil, err
	}
	return &Processor{
		kind:      kind,
		engine:    eng,
		journal:   journal,
		attemptId: uuid.New().String(),
		state:     StateUninitialized,
	}, nil
}

func (p *Processor) AttemptId() string { return p.attemptId }
func (p *Processor) Kind() Kind        { return p.kind }

func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending returns the latest pending transaction.
func (p *Processor) Pending() PendingTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *Processor) check(op operation) error {
	for _, s := range allowedFrom[op] {
		if s == p.state {
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, op, p.state)
}

// step runs one engine call and moves to next on success.
func (p *Processor) step(op operation, next State, call func() (PendingTransaction, error)) (PendingTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(op); err != nil {
		return p.pending, err
	}
	pt, err := call()
	if err != nil {
		return p.pending, err
	}
	p.pending = pt
	p.state = next
	return pt, nil
}

func (p *Processor) Initialize(ctx context.Context) (PendingTransaction, error) {
	return p.step(opInitialize, StateInitialized, func() (PendingTransaction, error) {
		return p.engine.InitializeTransaction(ctx)
	})
}

func (p *Processor) UpdateAmount(ctx context.Context, amount money.Money) (PendingTransaction, error) {
	return p.step(opUpdate, StateAmountEdited, func() (PendingTransaction, error) {
		return p.engine.Update(ctx, amount, p.pending)
	})
}

func (p *Processor) UpdateFeeLevel(ctx context.Context, level FeeLevel, custom *money.Money) (PendingTransaction, error) {
	return p.step(opFeeLevel, StateAmountEdited, func() (PendingTransaction, error) {
		return p.engine.UpdateFeeLevel(ctx, p.pending, level, custom)
	})
}

func (p *Processor) BuildConfirmations(ctx context.Context) (PendingTransaction, error) {
	return p.step(opBuild, StateConfirmationsBuilt, func() (PendingTransaction, error) {
		return p.engine.BuildConfirmations(ctx, p.pending)
	})
}

// Restart retargets the attempt, keeping amount and fee selection. Only a
// restart that rebuilt the review may go on to validate; before the first
// BuildConfirmations the state is left where it was.
func (p *Processor) Restart(ctx context.Context, target Target) (PendingTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(opRestart); err != nil {
		return p.pending, err
	}
	pt, err := p.engine.Restart(ctx, target, p.pending)
	if err != nil {
		return p.pending, err
	}
	p.pending = pt
	if len(pt.Confirmations) > 0 {
		p.state = StateRestarted
	}
	return pt, nil
}

// Validate moves to validated, or to validation_failed when the engine
// reports a *ValidationError. Other errors leave the state unchanged.
func (p *Processor) Validate(ctx context.Context) (PendingTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(opValidate); err != nil {
		return p.pending, err
	}
	pt, err := p.engine.ValidateAll(ctx, p.pending)
	var verr *ValidationError
	switch {
	case err == nil:
		p.pending = pt
		p.state = StateValidated
	case errors.As(err, &verr):
		p.state = StateValidationFailed
	}
	return p.pending, err
}

// Execute performs the external transfer once. Ambiguous outcomes are
// journaled for the reconciler and reported as execution failures.
func (p *Processor) Execute(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(opExecute); err != nil {
		return Result{}, err
	}
	p.state = StateExecuting

	pt := p.pending
	if p.journal != nil {
		_, err := p.journal.Begin(ctx, store.BeginParams{
			AttemptId:     p.attemptId,
			Engine:        p.kind.String(),
			SourceAccount: p.engine.Source().ID,
			Target:        p.engine.Target().Label(),
			Asset:         pt.Amount.Currency.Code,
			Network:       p.engine.Source().Network,
			Amount:        pt.Amount.Amount.String(),
		})
		if err != nil {
			p.state = StateExecutionFailed
			if errors.Is(err, store.ErrDuplicateExecution) {
				return Result{}, fmt.Errorf("%w: attempt %s already executed", ErrIllegalTransition, p.attemptId)
			}
			return Result{}, fmt.Errorf("unable to journal attempt %s: %w", p.attemptId, err)
		}
	}

	ctx = models.WithAttemptContext(ctx, &models.AttemptContext{AttemptId: p.attemptId, Engine: p.kind.String()})
	start := time.Now()
	result, err := p.engine.Execute(ctx, pt)
	monitor.EngineExecutionDuration.WithLabelValues(p.kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		p.state = StateExecutionFailed
		p.recordFailure(ctx, err)
		return Result{}, err
	}

	p.state = StateExecuted
	monitor.EngineExecutions.WithLabelValues(p.kind.String(), "success").Inc()
	if p.journal != nil {
		if jerr := p.journal.Complete(ctx, p.attemptId, result.TxHash, result.Reference); jerr != nil {
			zap.L().Error("Unable to journal completed execution",
				zap.String("attempt_id", p.attemptId),
				zap.String("result", result.ID()),
				zap.Error(jerr))
		}
	}
	return result, nil
}

func (p *Processor) recordFailure(ctx context.Context, err error) {
	outcome := "failure"
	var execErr *ExecutionError
	ambiguous := errors.As(err, &execErr) && execErr.Ambiguous
	if ambiguous {
		outcome = "ambiguous"
		monitor.AmbiguousExecutions.Inc()
	}
	monitor.EngineExecutions.WithLabelValues(p.kind.String(), outcome).Inc()

	zap.L().Error("Execution failed",
		zap.String("attempt_id", p.attemptId),
		zap.String("engine", p.kind.String()),
		zap.Bool("ambiguous", ambiguous),
		zap.Error(err))

	if p.journal == nil {
		return
	}
	var jerr error
	if ambiguous {
		jerr = p.journal.MarkAmbiguous(ctx, p.attemptId, execErr.Reference, err.Error())
	} else {
		jerr = p.journal.Fail(ctx, p.attemptId, err.Error())
	}
	if jerr != nil {
		zap.L().Error("Unable to journal failed execution",
			zap.String("attempt_id", p.attemptId),
			zap.Error(jerr))
	}
}
