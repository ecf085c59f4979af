// Package kernel defines the syscall gate the OSAL runs on.
//
// The host kernel exposes a fixed set of operations: thread creation and
// exit, priority control, millisecond sleep, a tick counter, and counting
// semaphores. Each one is a method on Kernel so the rest of the layer can be
// driven by the in-memory Sim kernel in tests and by Host on Linux.
package kernel

import (
	"context"
	"fmt"
)

// TID is a kernel-assigned thread id.
type TID int32

// SemID names a kernel counting semaphore. The zero value is never issued.
type SemID uint32

// SemValueMax is the largest count a semaphore can hold.
const SemValueMax = 1<<31 - 1

// ThreadFunc is the function a cloned thread starts in. ctx identifies the
// new thread to the kernel (see GetPID).
type ThreadFunc func(ctx context.Context, arg any)

// Kernel is the syscall surface. Every call reports failure through an
// Errno; nil means success.
type Kernel interface {
	// GetPID returns the id of the thread ctx belongs to. Contexts not
	// created by Clone belong to the initial thread.
	GetPID(ctx context.Context) TID

	// Clone starts fn(ctx, arg) on a new thread and returns its id. The
	// call does not wait for the new thread to run.
	Clone(fn ThreadFunc, arg any, stackSize int) (TID, error)

	// Exit terminates the calling thread. It only returns when ctx does not
	// belong to a cloned thread.
	Exit(ctx context.Context, code int)

	GetPriority(tid TID) (int, error)
	SetPriority(tid TID, prio int) error

	// MSleep suspends the caller for ms milliseconds.
	MSleep(ms uint32)

	// Ticks returns timer ticks since boot.
	Ticks() uint64

	SemInit(count int) (SemID, error)
	SemDestroy(id SemID) error
	SemPost(id SemID) error
	SemWait(id SemID) error
	SemTimedWait(id SemID, ms uint32) error
}

// Errno is a kernel error number.
type Errno int

const (
	EPERM     Errno = 1
	ESRCH     Errno = 3
	EAGAIN    Errno = 11
	ENOMEM    Errno = 12
	EINVAL    Errno = 22
	EOVERFLOW Errno = 75
	ETIMEDOUT Errno = 110
)

var errnoNames = map[Errno]string{
	EPERM:     "operation not permitted",
	ESRCH:     "no such thread",
	EAGAIN:    "resource temporarily unavailable",
	ENOMEM:    "out of memory",
	EINVAL:    "invalid argument",
	EOVERFLOW: "value too large",
	ETIMEDOUT: "timed out",
}

func (e Errno) Error() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Timeout reports whether the error is a timed wait expiring.
func (e Errno) Timeout() bool {
	return e == ETIMEDOUT
}

type tidKey struct{}

// WithTID returns a context that identifies thread tid.
func WithTID(ctx context.Context, tid TID) context.Context {
	return context.WithValue(ctx, tidKey{}, tid)
}

// TIDFrom returns the thread id carried by ctx, if any.
func TIDFrom(ctx context.Context) (TID, bool) {
	if ctx == nil {
		return 0, false
	}
	tid, ok := ctx.Value(tidKey{}).(TID)
	return tid, ok
}
