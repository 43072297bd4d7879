package dispatch

import "context"

// Limiter is a counting semaphore enforcing a handler's concurrency budget.
// Capacity is fixed at creation; the counter never goes negative and never
// exceeds capacity. Blocked acquirers wait cooperatively on the channel.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter with the given capacity. A capacity <= 0 is
// coerced to 1.
func NewLimiter(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}

	return &Limiter{slots: make(chan struct{}, capacity)}
}

// Acquire takes one slot, blocking until a slot frees or ctx is done.
// On a ctx error no slot is held and no Release is owed.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking and reports whether it succeeded.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns one slot. Releasing more than was acquired is a programming
// error and panics.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		panic("dispatch: limiter released without a matching acquire")
	}
}

// Free reports how many slots are currently available.
func (l *Limiter) Free() int { return cap(l.slots) - len(l.slots) }

// Cap reports the limiter's fixed capacity.
func (l *Limiter) Cap() int { return cap(l.slots) }
