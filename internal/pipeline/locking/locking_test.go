package locking

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"
)

func TestCanonicalSortsAndDedupes(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	assert.Equal(t, []uuid.UUID{a, b}, Canonical([]uuid.UUID{b, a, b, uuid.Nil}))
	assert.Equal(t, Canonical([]uuid.UUID{a, b}), Canonical([]uuid.UUID{b, a}))
}

func TestLocalSerializesSameStage(t *testing.T) {
	locker := NewLocal(time.Second, nil)
	stage := uuid.New()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), stage)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalTimesOut(t *testing.T) {
	locker := NewLocal(20*time.Millisecond, nil)
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	defer release()

	_, err = locker.Acquire(context.Background(), stage)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLocalCallerCancellationIsNotTimeout(t *testing.T) {
	locker := NewLocal(time.Second, nil)
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, stage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalFailedScopeReleasesPartialKeys(t *testing.T) {
	locker := NewLocal(20*time.Millisecond, nil)
	first := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	second := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	hold, err := locker.Acquire(context.Background(), second)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), first, second)
	require.ErrorIs(t, err, ErrTimeout)
	hold()

	release, err := locker.Acquire(context.Background(), first)
	require.NoError(t, err, "first key must not stay held after a failed scope")
	release()
}

// Opposite-direction scopes over the same pair must never deadlock.
func TestLocalOppositeOrderDoesNotDeadlock(t *testing.T) {
	locker := NewLocal(time.Second, nil)
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), a, b)
			if assert.NoError(t, err) {
				release()
			}
		}()
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), b, a)
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()
}

func TestReleaseIsIdempotent(t *testing.T) {
	locker := NewLocal(20*time.Millisecond, nil)
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	release()
	release()

	again, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	again()
}

type recordingObserver struct {
	mu       sync.Mutex
	backends []string
}

func (r *recordingObserver) LockWait(backend string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, backend)
}

func newRedisLocker(t *testing.T, timeout time.Duration, observer Observer) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, timeout, 5*time.Second, observer, logger.Nop()), mr
}

func TestRedisAcquireAndRelease(t *testing.T) {
	obs := &recordingObserver{}
	locker, mr := newRedisLocker(t, 50*time.Millisecond, obs)
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey(stage)))

	_, err = locker.Acquire(context.Background(), stage)
	assert.ErrorIs(t, err, ErrTimeout)

	release()
	assert.False(t, mr.Exists(lockKey(stage)))
	assert.Equal(t, []string{"redis"}, obs.backends)
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	locker, mr := newRedisLocker(t, 50*time.Millisecond, nil)
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)

	// Simulate the TTL expiring and another instance taking the lock.
	require.NoError(t, mr.Set(lockKey(stage), "someone-else"))
	release()

	got, err := mr.Get(lockKey(stage))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisSetsTTL(t *testing.T) {
	locker, mr := newRedisLocker(t, 50*time.Millisecond, nil)
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, 5*time.Second, mr.TTL(lockKey(stage)))
}

func (l *Local) slotCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func TestLocalPrunesReleasedSlots(t *testing.T) {
	locker := NewLocal(time.Second, nil)
	a, b := uuid.New(), uuid.New()

	release, err := locker.Acquire(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, locker.slotCount())

	release()
	assert.Equal(t, 0, locker.slotCount())
}

func TestLocalPrunesAfterTimeout(t *testing.T) {
	locker := NewLocal(20*time.Millisecond, nil)
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), stage)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, locker.slotCount(), "holder keeps its slot")

	release()
	assert.Equal(t, 0, locker.slotCount())

	// A pruned slot is recreated on demand.
	release, err = locker.Acquire(context.Background(), stage)
	require.NoError(t, err)
	release()
}

func TestRedisLogsExpiredLockOnRelease(t *testing.T) {
	var buf bytes.Buffer
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedis(client, 50*time.Millisecond, time.Second, nil, logger.NewWithWriter("test", &buf))
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	release()

	assert.Contains(t, buf.String(), "stage lock expired before release")
	assert.Contains(t, buf.String(), lockKey(stage))
}

func TestRedisLogsReleaseFailure(t *testing.T) {
	var buf bytes.Buffer
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedis(client, 50*time.Millisecond, time.Second, nil, logger.NewWithWriter("test", &buf))
	stage := uuid.New()

	release, err := locker.Acquire(context.Background(), stage)
	require.NoError(t, err)

	mr.Close()
	release()

	assert.Contains(t, buf.String(), "failed to release stage lock")
	assert.Contains(t, buf.String(), lockKey(stage))
}
