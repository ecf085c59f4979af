package osal

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zboralski/pteosal/internal/kernel"
	glog "github.com/zboralski/pteosal/internal/log"
	"github.com/zboralski/pteosal/internal/reent"
	"github.com/zboralski/pteosal/internal/tls"
	"github.com/zboralski/pteosal/internal/trace"
)

// EntryPoint is a thread's main function. ctx identifies the running thread
// to the layer (ThreadGetHandle, ThreadExit, TLS, cancellable pends).
type EntryPoint func(ctx context.Context, arg any) int

// Thread is a thread control block.
//
// A created thread is parked on its start semaphore until Start. Its stop
// semaphore is posted once, after done is set, when the thread exits. The
// control block of the initial thread is synthetic: it has no semaphores and
// shares the process-wide reentrant state, which it never frees.
type Thread struct {
	os  *OS
	uid uuid.UUID

	id        atomic.Int32
	entry     EntryPoint
	arg       any
	stackSize int

	reent     *reent.State
	ownsReent bool
	tls       atomic.Pointer[tls.Context]

	start kernel.SemID
	stop  kernel.SemID

	done      atomic.Bool
	cancelled atomic.Bool
	deleted   atomic.Bool
	result    atomic.Int64
}

func newUID() uuid.UUID {
	return uuid.New()
}

type threadKey struct{}

func withThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, t)
}

// Self returns the control block of the thread ctx belongs to, or nil.
func Self(ctx context.Context) *Thread {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(threadKey{}).(*Thread)
	return t
}

// ID returns the kernel thread id.
func (t *Thread) ID() kernel.TID { return kernel.TID(t.id.Load()) }

// UUID returns the identity used to correlate trace events.
func (t *Thread) UUID() uuid.UUID { return t.uid }

// Done reports whether the thread has exited.
func (t *Thread) Done() bool { return t.done.Load() }

// Result returns the entry point's return value once the thread is done.
func (t *Thread) Result() int { return int(t.result.Load()) }

// StackSize returns the stack size after clamping.
func (t *Thread) StackSize() int { return t.stackSize }

// Reent returns the thread's reentrant runtime state.
func (t *Thread) Reent() *reent.State { return t.reent }

// Initial reports whether t is the synthetic block of the initial thread.
func (t *Thread) Initial() bool { return !t.ownsReent }

// ThreadCreate creates a thread that runs entry(ctx, arg) once started.
// Stack sizes below the configured floor are raised to it. A priority inside
// the configured range is applied to the new thread before it is returned.
// The thread does not run user code until Start.
func (o *OS) ThreadCreate(entry EntryPoint, stackSize, priority int, arg any) (*Thread, error) {
	if entry == nil {
		return nil, fail(InvalidParam, "thread create", nil)
	}
	if stackSize < o.cfg.MinStackSize {
		stackSize = o.cfg.MinStackSize
	}

	t := &Thread{
		os:        o,
		uid:       newUID(),
		entry:     entry,
		arg:       arg,
		stackSize: stackSize,
		reent:     reent.New(),
		ownsReent: true,
	}
	if err := o.account(1, 1); err != nil {
		return nil, fail(NoResources, "thread create", err)
	}

	var err error
	if t.start, err = o.k.SemInit(0); err != nil {
		o.release(t)
		return nil, fail(NoResources, "thread create", err)
	}
	if t.stop, err = o.k.SemInit(0); err != nil {
		o.destroySems(t)
		o.release(t)
		return nil, fail(NoResources, "thread create", err)
	}

	tid, err := o.k.Clone(o.stubThreadEntry, t, stackSize)
	if err != nil {
		o.destroySems(t)
		o.release(t)
		o.emit(nil, trace.Thread, "create-failed", err.Error())
		return nil, fail(NoResources, "thread create", err)
	}
	t.id.Store(int32(tid))

	if priority >= o.cfg.Priority.Min && priority <= o.cfg.Priority.Max {
		if err := o.k.SetPriority(tid, priority); err != nil {
			o.log.Warn("initial priority not applied",
				glog.TID(int32(tid)),
				zap.Int("prio", priority),
				zap.Error(err),
			)
		}
	}

	o.emit(t, trace.Thread, "create", fmt.Sprintf("stack=%d prio=%d", stackSize, priority))
	return t, nil
}

// stubThreadEntry is where every created thread starts. It prepares the
// thread's runtime state and TLS, then waits for Start before running the
// user entry point.
func (o *OS) stubThreadEntry(ctx context.Context, arg any) {
	t, _ := arg.(*Thread)
	if t == nil || t.reent == nil {
		o.log.ThreadFatal(int32(o.k.GetPID(ctx)), "missing control block", ErrNoResources)
		o.k.Exit(ctx, -int(NoResources))
		select {}
	}

	ctx = reent.With(ctx, t.reent)
	t.reent.Init()

	t.id.Store(int32(o.k.GetPID(ctx)))
	ctx = withThread(ctx, t)

	tc, err := o.tlsTable.ThreadInit()
	if err != nil {
		o.log.ThreadFatal(int32(t.ID()), "tls thread init", err)
		o.emit(t, trace.Thread, "abort", err.Error())
		o.k.Exit(ctx, -int(NoResources))
		select {}
	}
	t.tls.Store(tc)
	ctx = tls.With(ctx, tc)
	_ = tc.SetValue(o.threadDataKey, t)

	if err := o.k.SemWait(t.start); err != nil {
		// Deleted before it was ever started.
		o.tlsTable.ThreadDestroy(tc)
		o.emit(t, trace.Thread, "abandoned", err.Error())
		o.k.Exit(ctx, 0)
		select {}
	}
	o.emit(t, trace.Thread, "released", "")

	t.result.Store(int64(t.entry(ctx, t.arg)))
	o.ThreadExit(ctx)

	// ThreadExit does not return on a created thread.
	select {}
}

// Start releases a created thread into its entry point. It must be called
// once per thread.
func (t *Thread) Start() error {
	if err := t.os.k.SemPost(t.start); err != nil {
		return fail(NoResources, "thread start", err)
	}
	t.os.emit(t, trace.Thread, "start", "")
	return nil
}

// ThreadExit terminates the calling thread. It marks the thread done and
// wakes a joiner before the kernel ends the thread. On the initial thread
// the kernel has nothing to terminate and ThreadExit returns.
func (o *OS) ThreadExit(ctx context.Context) {
	if t := Self(ctx); t != nil && !t.deleted.Load() {
		t.done.Store(true)
		if t.stop != 0 {
			if err := o.k.SemPost(t.stop); err != nil {
				o.log.Warn("stop signal failed", glog.TID(int32(t.ID())), zap.Error(err))
			}
		}
		o.emit(t, trace.Thread, "exit", fmt.Sprintf("result=%d", t.Result()))
	}
	o.k.Exit(ctx, 0)
}

// WaitForEnd blocks until t has exited. It returns at once if t is already
// done. The wait cannot be cancelled. Joining a deleted thread is undefined.
func (t *Thread) WaitForEnd() error {
	if t.done.Load() {
		return nil
	}
	if err := t.os.k.SemWait(t.stop); err != nil {
		return fail(GeneralFailure, "thread join", err)
	}
	t.os.emit(t, trace.Thread, "join", "")
	return nil
}

// Delete releases the control block: both semaphores, the TLS block, and
// the reentrant state unless it is the process-wide one. The thread must
// have finished or never be started; t must not be used afterwards, and
// deleting twice is undefined.
func (t *Thread) Delete() error {
	o := t.os
	t.deleted.Store(true)

	o.destroySems(t)
	o.tlsTable.ThreadDestroy(t.tls.Load())
	o.release(t)

	o.emit(t, trace.Thread, "delete", "")
	return nil
}

// ThreadExitAndDelete deletes t and then terminates the calling thread. It
// is meant for a thread releasing its own control block.
func (o *OS) ThreadExitAndDelete(ctx context.Context, t *Thread) error {
	if err := t.Delete(); err != nil {
		return err
	}
	o.ThreadExit(ctx)
	return nil
}

// ThreadGetHandle returns the control block of the calling thread.
func (o *OS) ThreadGetHandle(ctx context.Context) *Thread {
	return Self(ctx)
}

// Priority returns the kernel priority of t.
func (t *Thread) Priority() (int, error) {
	p, err := t.os.k.GetPriority(t.ID())
	if err != nil {
		return 0, fail(GeneralFailure, "get priority", err)
	}
	return p, nil
}

// SetPriority changes the kernel priority of t.
func (t *Thread) SetPriority(prio int) error {
	if err := t.os.k.SetPriority(t.ID(), prio); err != nil {
		return fail(GeneralFailure, "set priority", err)
	}
	return nil
}

// ThreadSleep suspends the calling thread for ms milliseconds.
func (o *OS) ThreadSleep(ms uint32) {
	o.k.MSleep(ms)
}

// Cancel marks t cancelled. A cancellable pend in t returns Interrupted at
// its next poll.
func (t *Thread) Cancel() error {
	t.cancelled.Store(true)
	t.os.emit(t, trace.Cancel, "cancel", "")
	return nil
}

// CheckCancel reports Interrupted if t has been cancelled.
func (t *Thread) CheckCancel() error {
	if t.cancelled.Load() {
		return fail(Interrupted, "check cancel", nil)
	}
	return nil
}

func (o *OS) destroySems(t *Thread) {
	for _, id := range []kernel.SemID{t.start, t.stop} {
		if id == 0 {
			continue
		}
		if err := o.k.SemDestroy(id); err != nil {
			o.log.Warn("semaphore destroy failed", glog.Sem("sem", uint32(id)), zap.Error(err))
		}
	}
}

// release returns a control block's accounting to the heap.
func (o *OS) release(t *Thread) {
	reents := 0
	if t.ownsReent {
		reents = 1
	}
	if err := o.account(-1, -reents); err != nil {
		o.log.Warn("heap accounting failed", zap.Error(err))
	}
}
