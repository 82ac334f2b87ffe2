// Package locking provides the exclusive per-stage scopes taken by every
// mutation of stage membership or positions.
//
// A scope covers one or more stage ids. Keys are always acquired in canonical
// order so two moves swapping leads between the same pair of stages cannot
// deadlock. Acquisition is bounded by a timeout and fails with ErrTimeout.
package locking

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when a scope could not be acquired in time.
var ErrTimeout = errors.New("lock acquisition timed out")

// Release frees a scope. It is safe to call more than once.
type Release func()

// Locker acquires exclusive scopes keyed by stage id.
type Locker interface {
	Acquire(ctx context.Context, keys ...uuid.UUID) (Release, error)
}

// Observer receives lock wait durations.
type Observer interface {
	LockWait(backend string, d time.Duration)
}

// Canonical sorts keys by their byte representation and drops duplicates and nil ids.
func Canonical(keys []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		if k != uuid.Nil {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})

	deduped := make([]uuid.UUID, 0, len(out))
	for _, k := range out {
		if n := len(deduped); n > 0 && deduped[n-1] == k {
			continue
		}
		deduped = append(deduped, k)
	}
	return deduped
}

// withTimeout derives the acquisition deadline and maps our own deadline to ErrTimeout.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, timeout, ErrTimeout)
}

// acquireErr converts a context failure into the error returned to callers.
// A caller cancellation is reported as-is, our own deadline as ErrTimeout.
func acquireErr(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrTimeout) {
		return ErrTimeout
	}
	return ctx.Err()
}

func once(fn func()) Release {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		fn()
	}
}
