package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"
)

func newOnChainProcessor(t *testing.T, deps Dependencies, journal store.Journal) *Processor {
	t.Helper()
	eng := newTestEngine(t, deps, KindOnChainSend, nonCustodialETH, ethAddressTarget())
	p, err := NewProcessor(KindOnChainSend, eng, journal)
	require.NoError(t, err)
	return p
}

// validated drives p through the lifecycle up to a successful validation.
func validated(t *testing.T, p *Processor, amount string) {
	t.Helper()
	ctx := context.Background()
	_, err := p.Initialize(ctx)
	require.NoError(t, err)
	_, err = p.UpdateAmount(ctx, amt(amount, eth))
	require.NoError(t, err)
	_, err = p.BuildConfirmations(ctx)
	require.NoError(t, err)
	_, err = p.Validate(ctx)
	require.NoError(t, err)
	require.Equal(t, StateValidated, p.State())
}

func TestProcessor_RejectsOutOfOrderCalls(t *testing.T) {
	ctx := context.Background()
	p := newOnChainProcessor(t, testDeps(), newMemJournal())

	_, err := p.Execute(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = p.UpdateAmount(ctx, amt("1", eth))
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateUninitialized, p.State())

	_, err = p.Initialize(ctx)
	require.NoError(t, err)
	_, err = p.Initialize(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = p.Validate(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = p.UpdateAmount(ctx, amt("1", eth))
	require.NoError(t, err)
	_, err = p.Execute(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateAmountEdited, p.State())
}

func TestProcessor_ValidationFailureIsRecoverable(t *testing.T) {
	ctx := context.Background()
	p := newOnChainProcessor(t, testDeps(), newMemJournal())

	_, err := p.Initialize(ctx)
	require.NoError(t, err)
	_, err = p.UpdateAmount(ctx, amt("20", eth))
	require.NoError(t, err)
	_, err = p.BuildConfirmations(ctx)
	require.NoError(t, err)
	_, err = p.Validate(ctx)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, StateValidationFailed, p.State())

	_, err = p.Execute(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = p.UpdateAmount(ctx, amt("2", eth))
	require.NoError(t, err)
	_, err = p.BuildConfirmations(ctx)
	require.NoError(t, err)
	_, err = p.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateValidated, p.State())
}

func TestProcessor_ExecutesOnce(t *testing.T) {
	ctx := context.Background()
	deps := testDeps()
	onChain := deps.OnChain.(*fakeOnChain)
	journal := newMemJournal()
	p := newOnChainProcessor(t, deps, journal)
	validated(t, p, "1")

	result, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultHashed, result.Kind)
	assert.Equal(t, "0xabc", result.TxHash)
	assert.Equal(t, StateExecuted, p.State())
	assert.True(t, p.State().Terminal())

	_, err = p.Execute(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, 1, onChain.broadcasts)

	row, err := journal.Get(ctx, p.AttemptId())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, row.Status)
	assert.Equal(t, "0xabc", row.TxHash)
	assert.Equal(t, KindOnChainSend.String(), row.Engine)
}

func TestProcessor_JournaledAttemptIsNotReplayed(t *testing.T) {
	ctx := context.Background()
	deps := testDeps()
	onChain := deps.OnChain.(*fakeOnChain)
	journal := newMemJournal()
	p := newOnChainProcessor(t, deps, journal)
	validated(t, p, "1")

	_, err := journal.Begin(ctx, store.BeginParams{AttemptId: p.AttemptId(), Amount: "1"})
	require.NoError(t, err)

	_, err = p.Execute(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, 0, onChain.broadcasts)
	assert.Equal(t, StateExecutionFailed, p.State())
}

func TestProcessor_AmbiguousOutcomeIsJournaled(t *testing.T) {
	ctx := context.Background()
	deps := testDeps()
	deps.OnChain.(*fakeOnChain).hash = ""
	journal := newMemJournal()
	p := newOnChainProcessor(t, deps, journal)
	validated(t, p, "1")

	_, err := p.Execute(ctx)
	require.Error(t, err)
	assert.True(t, IsAmbiguous(err))
	assert.Equal(t, StateExecutionFailed, p.State())

	ambiguous, err := journal.ListAmbiguous(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, ambiguous, 1)
	assert.Equal(t, p.AttemptId(), ambiguous[0].AttemptId)
}

func TestProcessor_FailureIsJournaled(t *testing.T) {
	ctx := context.Background()
	deps := testDeps()
	deps.OnChain.(*fakeOnChain).signErr = assert.AnError
	journal := newMemJournal()
	p := newOnChainProcessor(t, deps, journal)
	validated(t, p, "1")

	_, err := p.Execute(ctx)
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, IsAmbiguous(err))

	row, err := journal.Get(ctx, p.AttemptId())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, row.Status)
	assert.Contains(t, row.Error, "sign")
}

func TestProcessor_AttemptIdIsIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	deps := testDeps()
	withdrawals := deps.Withdrawals.(*fakeWithdrawals)
	eng := newTestEngine(t, deps, KindTradingSend, tradingETH, ethAddressTarget())
	p, err := NewProcessor(KindTradingSend, eng, nil)
	require.NoError(t, err)

	_, err = p.Initialize(ctx)
	require.NoError(t, err)
	_, err = p.UpdateAmount(ctx, amt("1", eth))
	require.NoError(t, err)
	_, err = p.BuildConfirmations(ctx)
	require.NoError(t, err)
	_, err = p.Validate(ctx)
	require.NoError(t, err)

	result, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "activity-1", result.Reference)
	require.Len(t, withdrawals.requests, 1)
	assert.Equal(t, p.AttemptId(), withdrawals.requests[0].IdempotencyKey)
	assert.Equal(t, otherAddress, withdrawals.requests[0].Address)
}

func TestProcessor_RestartThenValidate(t *testing.T) {
	ctx := context.Background()
	p := newOnChainProcessor(t, testDeps(), nil)
	validated(t, p, "1")

	pt, err := p.Restart(ctx, AddressTarget{Address: ethAddress, Network: "ethereum-mainnet", AssetCurrency: eth})
	require.NoError(t, err)
	assert.Equal(t, StateRestarted, p.State())
	assert.True(t, pt.Amount.Equal(amt("1", eth)))

	_, err = p.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateValidated, p.State())
}

func TestProcessor_RestartBeforeReviewCannotValidate(t *testing.T) {
	ctx := context.Background()
	deps := testDeps()
	p := newOnChainProcessor(t, deps, nil)

	_, err := p.Initialize(ctx)
	require.NoError(t, err)
	_, err = p.UpdateAmount(ctx, amt("1", eth))
	require.NoError(t, err)

	pt, err := p.Restart(ctx, ethAddressTarget())
	require.NoError(t, err)
	assert.Empty(t, pt.Confirmations)
	assert.Equal(t, StateAmountEdited, p.State())

	_, err = p.Validate(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = p.Execute(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = p.BuildConfirmations(ctx)
	require.NoError(t, err)
	_, err = p.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateValidated, p.State())
}
