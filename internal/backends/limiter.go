package backends

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

// semaphore implements a counting semaphore for rate limiting
type semaphore struct {
	permits chan struct{}
}

func newSemaphore(permits int) *semaphore {
	s := &semaphore{permits: make(chan struct{}, permits)}
	for i := 0; i < permits; i++ {
		s.permits <- struct{}{}
	}
	return s
}

// Acquire acquires a permit, blocking if none available
func (s *semaphore) Acquire(ctx context.Context) error {
	select {
	case <-s.permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a permit back to the semaphore
func (s *semaphore) Release() {
	select {
	case s.permits <- struct{}{}:
	default:
	}
}

// Limiter bounds in-flight reference queries per backend and coalesces
// identical concurrent ones.
type Limiter struct {
	semaphores map[BackendID]*semaphore
	group      singleflight.Group
}

// NewLimiter allows maxInFlight concurrent queries per backend. Zero or
// less means unbounded.
func NewLimiter(maxInFlight int, ids ...BackendID) *Limiter {
	l := &Limiter{semaphores: make(map[BackendID]*semaphore)}
	if maxInFlight > 0 {
		for _, id := range ids {
			l.semaphores[id] = newSemaphore(maxInFlight)
		}
	}
	return l
}

func referenceKey(id BackendID, uri string, pos lens.Position) string {
	return fmt.Sprintf("%s|%s|%d:%d", id, uri, pos.Line, pos.Character)
}

// References runs fn once for all concurrent callers asking the same backend
// about the same position. A caller whose own ctx is still live retries alone
// when the shared call was cancelled by another caller.
func (l *Limiter) References(
	ctx context.Context,
	id BackendID,
	uri string,
	pos lens.Position,
	fn func(context.Context) ([]lens.Location, error),
) ([]lens.Location, error) {
	run := func() (interface{}, error) {
		if sem, ok := l.semaphores[id]; ok {
			if err := sem.Acquire(ctx); err != nil {
				return nil, lenserrors.NewLensError(lenserrors.Cancelled, "waiting for a query slot", err, nil)
			}
			defer sem.Release()
		}
		return fn(ctx)
	}

	ch := l.group.DoChan(referenceKey(id, uri, pos), run)
	select {
	case res := <-ch:
		if res.Err != nil {
			if ctx.Err() != nil {
				return nil, lenserrors.NewLensError(lenserrors.Cancelled, "reference query cancelled", res.Err, nil)
			}
			if isCancellation(res.Err) {
				v, err := run()
				if err != nil {
					return nil, err
				}
				return v.([]lens.Location), nil
			}
			return nil, res.Err
		}
		return res.Val.([]lens.Location), nil
	case <-ctx.Done():
		return nil, lenserrors.NewLensError(lenserrors.Cancelled, "reference query cancelled", ctx.Err(), nil)
	}
}

func isCancellation(err error) bool {
	return lenserrors.HasCode(err, lenserrors.Cancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
