package osal

import (
	"context"
	"math"
	"time"

	"github.com/zboralski/pteosal/internal/kernel"
	"github.com/zboralski/pteosal/internal/trace"
)

// Mutex is a kernel semaphore created with count 1. It does not track an
// owner; locking it twice from one thread deadlocks.
type Mutex struct {
	os *OS
	id kernel.SemID
}

// NewMutex creates an unlocked mutex.
func (o *OS) NewMutex() (*Mutex, error) {
	id, err := o.k.SemInit(1)
	if err != nil {
		return nil, fail(NoResources, "mutex create", err)
	}
	return &Mutex{os: o, id: id}, nil
}

// Delete destroys the mutex. Blocked lockers fail.
func (m *Mutex) Delete() error {
	if err := m.os.k.SemDestroy(m.id); err != nil {
		return fail(NoResources, "mutex delete", err)
	}
	return nil
}

// Lock blocks until the mutex is free.
func (m *Mutex) Lock() error {
	if err := m.os.k.SemWait(m.id); err != nil {
		return fail(NoResources, "mutex lock", err)
	}
	return nil
}

// TimedLock waits at most d for the mutex. Expiry is reported as Timeout,
// any other kernel failure as GeneralFailure.
func (m *Mutex) TimedLock(d time.Duration) error {
	if err := m.os.k.SemTimedWait(m.id, millis(d)); err != nil {
		r := timedResult(err)
		if r == Timeout {
			m.os.emit(nil, trace.Mutex, "timeout", d.String())
		}
		return fail(r, "mutex timed lock", err)
	}
	return nil
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() error {
	if err := m.os.k.SemPost(m.id); err != nil {
		return fail(NoResources, "mutex unlock", err)
	}
	return nil
}

// Semaphore is a kernel counting semaphore.
type Semaphore struct {
	os *OS
	id kernel.SemID
}

// NewSemaphore creates a semaphore holding initial.
func (o *OS) NewSemaphore(initial int) (*Semaphore, error) {
	id, err := o.k.SemInit(initial)
	if err != nil {
		return nil, fail(NoResources, "semaphore create", err)
	}
	return &Semaphore{os: o, id: id}, nil
}

// Delete destroys the semaphore and fails every blocked pend.
func (s *Semaphore) Delete() error {
	if err := s.os.k.SemDestroy(s.id); err != nil {
		return fail(NoResources, "semaphore delete", err)
	}
	return nil
}

// Post raises the count by count, one kernel post at a time. If a post
// fails the count stays raised by the posts that succeeded.
func (s *Semaphore) Post(count int) error {
	for i := 0; i < count; i++ {
		if err := s.os.k.SemPost(s.id); err != nil {
			return fail(NoResources, "semaphore post", err)
		}
	}
	return nil
}

// Pend takes one count. A nil or zero timeout waits forever; otherwise the
// wait gives up with Timeout after *timeout.
func (s *Semaphore) Pend(timeout *time.Duration) error {
	if timeout != nil && *timeout > 0 {
		if err := s.os.k.SemTimedWait(s.id, millis(*timeout)); err != nil {
			return fail(timedResult(err), "semaphore pend", err)
		}
		return nil
	}
	if err := s.os.k.SemWait(s.id); err != nil {
		return fail(NoResources, "semaphore pend", err)
	}
	return nil
}

// CancellablePend is Pend that gives up with Interrupted when the calling
// thread is cancelled or ctx is done. The kernel cannot interrupt a blocked
// wait, so the semaphore is polled in slices of the configured poll
// interval with the cancellation state checked between slices.
func (s *Semaphore) CancellablePend(ctx context.Context, timeout *time.Duration) error {
	o := s.os
	self := Self(ctx)

	limited := timeout != nil && *timeout > 0
	var remaining time.Duration
	if limited {
		remaining = *timeout
	}

	for {
		if (self != nil && self.cancelled.Load()) || ctx.Err() != nil {
			o.emit(self, trace.Semaphore, "cancellable-pend", "interrupted")
			return fail(Interrupted, "semaphore cancellable pend", ctx.Err())
		}

		slice := o.cfg.CancelPollInterval
		if limited && remaining < slice {
			slice = remaining
		}

		err := o.k.SemTimedWait(s.id, millis(slice))
		if err == nil {
			return nil
		}
		if timedResult(err) != Timeout {
			return fail(GeneralFailure, "semaphore cancellable pend", err)
		}

		if limited {
			remaining -= slice
			if remaining <= 0 {
				return fail(Timeout, "semaphore cancellable pend", err)
			}
		}
	}
}

// millis converts d to whole kernel milliseconds, rounding up.
func millis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}
