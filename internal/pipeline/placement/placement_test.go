package placement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/locking"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/sequencer"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/observability"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positions(values ...int64) []repository.LeadPosition {
	out := make([]repository.LeadPosition, len(values))
	for i, v := range values {
		out[i] = repository.LeadPosition{LeadID: uuid.New(), Position: v}
	}
	return out
}

func newPlanner(timeout time.Duration) (*Planner, *locking.Local) {
	locker := locking.NewLocal(timeout, nil)
	return New(locker, sequencer.New(1000), logger.Nop(), observability.New()), locker
}

func TestPlaceMidpoint(t *testing.T) {
	p, _ := newPlanner(time.Second)
	slot, err := p.Place(context.Background(), "test", uuid.New(), positions(1000, 2000), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), slot.Position)
	assert.Nil(t, slot.Renumber)
}

func TestPlaceRenumberKeepsLeadIdentity(t *testing.T) {
	p, _ := newPlanner(time.Second)
	stage := positions(5, 6, 7)
	slot, err := p.Place(context.Background(), "test", uuid.New(), stage, 1)
	require.NoError(t, err)

	require.Len(t, slot.Renumber, 3)
	for i, lp := range slot.Renumber {
		assert.Equal(t, stage[i].LeadID, lp.LeadID)
		assert.Equal(t, int64(1000*(i+1)), lp.Position)
	}
	assert.Equal(t, int64(1500), slot.Position)
}

func TestPlaceBrokenStageIsIntegrityError(t *testing.T) {
	p, _ := newPlanner(time.Second)
	_, err := p.Place(context.Background(), "test", uuid.New(), positions(2000, 1000), 0)
	require.True(t, apperr.Is(err, apperr.KindIntegrity))
	assert.ErrorIs(t, err, sequencer.ErrNotIncreasing)
}

func TestLockTimeoutIsBusy(t *testing.T) {
	p, locker := newPlanner(20 * time.Millisecond)
	stage := uuid.New()
	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	defer release()

	_, err = p.Lock(context.Background(), "test", stage)
	assert.True(t, apperr.Is(err, apperr.KindBusy))
}

func TestLockCallerCancellationPassesThrough(t *testing.T) {
	p, locker := newPlanner(time.Second)
	stage := uuid.New()
	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Lock(ctx, "test", stage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperr.Is(err, apperr.KindBusy))
}

func TestWithout(t *testing.T) {
	stage := positions(1000, 2000, 3000)
	out := Without(stage, stage[1].LeadID)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3000), out[1].Position)
	assert.Len(t, stage, 3)
}

func TestPersistedMapsRepositoryErrors(t *testing.T) {
	p, _ := newPlanner(time.Second)
	ctx := context.Background()
	stage := uuid.New()

	assert.NoError(t, p.Persisted(ctx, "test", stage, nil))
	assert.True(t, apperr.Is(p.Persisted(ctx, "test", stage, fmt.Errorf("insert: %w", repository.ErrPositionConflict)), apperr.KindIntegrity))
	assert.True(t, apperr.Is(p.Persisted(ctx, "test", stage, repository.ErrNotFound), apperr.KindNotFound))

	raced := p.Persisted(ctx, "test", stage, fmt.Errorf("insert: %w", repository.ErrPositionRace))
	assert.True(t, apperr.Is(raced, apperr.KindBusy))
	assert.False(t, apperr.Is(raced, apperr.KindIntegrity))
	assert.True(t, apperr.Is(p.Persisted(ctx, "test", stage, repository.ErrLeadClosed), apperr.KindInvalidTransition))

	raw := errors.New("connection reset")
	assert.Equal(t, raw, p.Persisted(ctx, "test", stage, raw))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, observability.OutcomeOK, Outcome(nil))
	assert.Equal(t, observability.OutcomeBusy, Outcome(apperr.Busy("x")))
	assert.Equal(t, observability.OutcomeIntegrity, Outcome(apperr.Integrity("x", nil)))
	assert.Equal(t, observability.OutcomeRejected, Outcome(apperr.InvalidPipeline("x")))
	assert.Equal(t, observability.OutcomeError, Outcome(errors.New("boom")))
}
