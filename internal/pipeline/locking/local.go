package locking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

const backendLocal = "local"

// Local serializes scopes inside one process with one-slot semaphores per stage.
// A slot lives only while some caller holds or waits on it.
type Local struct {
	mu       deadlock.Mutex
	slots    map[uuid.UUID]*localSlot
	timeout  time.Duration
	observer Observer
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker. A non-positive timeout defaults to 2s.
func NewLocal(timeout time.Duration, observer Observer) *Local {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Local{
		slots:    make(map[uuid.UUID]*localSlot),
		timeout:  timeout,
		observer: observer,
	}
}

func (l *Local) ref(key uuid.UUID) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key uuid.UUID, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Acquire takes every key in canonical order or none of them.
func (l *Local) Acquire(ctx context.Context, keys ...uuid.UUID) (Release, error) {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	ordered := Canonical(keys)
	held := make([]*localSlot, 0, len(ordered))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			l.unref(ordered[i], held[i])
		}
	}

	for _, key := range ordered {
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			l.unref(key, s)
			releaseHeld()
			return nil, acquireErr(ctx)
		}
	}

	if l.observer != nil {
		l.observer.LockWait(backendLocal, time.Since(start))
	}
	return once(releaseHeld), nil
}

var _ Locker = (*Local)(nil)
