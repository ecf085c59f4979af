// Package osal is the operating-system abstraction layer the POSIX threads
// library runs on. It builds threads, mutexes, semaphores, thread-local
// storage and atomics out of the handful of syscalls a minimal kernel offers.
//
// The calling thread is identified by the context.Context it runs with.
// Init returns the context of the initial thread; every created thread
// receives its own context as the first argument of its entry point. That
// context carries the thread's control block, its reentrant runtime state and
// its active TLS block.
package osal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zboralski/pteosal/internal/config"
	"github.com/zboralski/pteosal/internal/kernel"
	glog "github.com/zboralski/pteosal/internal/log"
	"github.com/zboralski/pteosal/internal/reent"
	"github.com/zboralski/pteosal/internal/tls"
	"github.com/zboralski/pteosal/internal/trace"
)

var errAlreadyInit = errors.New("already initialized")

// OS is one instance of the abstraction layer bound to a kernel.
type OS struct {
	k       kernel.Kernel
	cfg     config.Config
	log     *glog.Logger
	onEvent func(*trace.Event)
	tlsOpts []tls.Option

	initialized atomic.Bool

	root          *reent.State
	mallocLock    *Mutex
	envLock       *Mutex
	tlsTable      *tls.Table
	threadDataKey tls.Key
	initial       *Thread

	// guarded by mallocLock
	heap Stats
}

// Stats counts the control data the layer has allocated and not yet freed.
type Stats struct {
	Threads int // control blocks, including the initial thread's
	Reents  int // reentrant state blocks owned by created threads
}

// Option configures an OS.
type Option func(*OS)

// WithConfig overrides the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *OS) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *glog.Logger) Option {
	return func(o *OS) { o.log = l }
}

// WithEventHook registers fn to receive every trace event.
func WithEventHook(fn func(*trace.Event)) Option {
	return func(o *OS) { o.onEvent = fn }
}

// WithTLSOptions passes options to the TLS table created by Init.
func WithTLSOptions(opts ...tls.Option) Option {
	return func(o *OS) { o.tlsOpts = append(o.tlsOpts, opts...) }
}

// New binds a layer instance to k. Nothing is allocated until Init.
func New(k kernel.Kernel, opts ...Option) *OS {
	o := &OS{
		k:   k,
		cfg: config.Default(),
		log: glog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Kernel returns the kernel the layer runs on.
func (o *OS) Kernel() kernel.Kernel {
	return o.k
}

// Config returns the active configuration.
func (o *OS) Config() config.Config {
	return o.cfg
}

// Init sets up the layer and describes the calling goroutine as the initial
// thread. It must be called once, before any other operation. The returned
// context is the initial thread's. A failed Init releases what it created
// and may be retried.
func (o *OS) Init(ctx context.Context) (_ context.Context, err error) {
	if !o.initialized.CompareAndSwap(false, true) {
		return ctx, fail(GeneralFailure, "init", errAlreadyInit)
	}
	defer func() {
		if err != nil {
			o.teardown()
		}
	}()

	o.root = reent.New()
	o.root.Init()
	ctx = reent.With(ctx, o.root)

	if o.mallocLock, err = o.NewMutex(); err != nil {
		return ctx, fmt.Errorf("heap lock: %w", err)
	}
	if o.envLock, err = o.NewMutex(); err != nil {
		return ctx, fmt.Errorf("environment lock: %w", err)
	}

	if o.tlsTable, err = tls.NewTable(o.cfg.MaxTLS, o.tlsOpts...); err != nil {
		return ctx, fail(NoResources, "tls init", err)
	}
	if o.threadDataKey, err = o.tlsTable.Alloc(); err != nil {
		return ctx, fail(NoResources, "tls key", err)
	}

	tc, err := o.tlsTable.ThreadInit()
	if err != nil {
		return ctx, fail(NoResources, "tls thread init", err)
	}

	if err := o.account(1, 0); err != nil {
		o.tlsTable.ThreadDestroy(tc)
		return ctx, fail(NoResources, "initial thread", err)
	}

	t := &Thread{
		os:        o,
		uid:       newUID(),
		reent:     o.root,
		ownsReent: false,
		stackSize: o.cfg.MinStackSize,
	}
	t.id.Store(int32(o.k.GetPID(ctx)))
	t.tls.Store(tc)
	_ = tc.SetValue(o.threadDataKey, t)
	o.initial = t

	ctx = withThread(ctx, t)
	ctx = tls.With(ctx, tc)

	o.emit(t, trace.Init, "init", fmt.Sprintf("max_tls=%d", o.tlsTable.Max()))
	return ctx, nil
}

// teardown undoes a partial Init.
func (o *OS) teardown() {
	for _, m := range []*Mutex{o.mallocLock, o.envLock} {
		if m == nil {
			continue
		}
		if err := m.Delete(); err != nil {
			o.log.Warn("init cleanup failed", glog.Sem("sem", uint32(m.id)), zap.Error(err))
		}
	}
	o.mallocLock, o.envLock = nil, nil
	o.tlsTable, o.threadDataKey = nil, 0
	o.root = nil
	o.heap = Stats{}
	o.initialized.Store(false)
}

// InitialThread returns the synthetic control block of the initial thread.
func (o *OS) InitialThread() *Thread {
	return o.initial
}

// Stats reports outstanding control-data allocations.
func (o *OS) Stats() (Stats, error) {
	if err := o.MallocLock(); err != nil {
		return Stats{}, err
	}
	s := o.heap
	return s, o.MallocUnlock()
}

// account records control-data allocations under the heap lock.
func (o *OS) account(threads, reents int) error {
	if err := o.MallocLock(); err != nil {
		return err
	}
	o.heap.Threads += threads
	o.heap.Reents += reents
	return o.MallocUnlock()
}

// MinPriority is the lowest priority a thread may have.
func (o *OS) MinPriority() int { return o.cfg.Priority.Min }

// MaxPriority is the highest priority a thread may have.
func (o *OS) MaxPriority() int { return o.cfg.Priority.Max }

// DefaultPriority is the priority threads get when none is requested.
func (o *OS) DefaultPriority() int { return o.cfg.Priority.Default }

func (o *OS) emit(t *Thread, cat trace.Tag, name, detail string) {
	var tid int32
	if t != nil {
		tid = int32(t.ID())
	}
	o.log.Trace(tid, string(cat), name, detail)

	if o.onEvent == nil {
		return
	}
	e := trace.NewEvent(tid, string(cat), name, detail)
	if t != nil {
		e.Annotate("tcb", t.uid.String())
	}
	trace.DefaultEnricher(e)
	o.onEvent(e)
}

// fail wraps a result code with the operation and the kernel cause.
func fail(r Result, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, r)
	}
	return fmt.Errorf("%s: %w: %w", op, r, cause)
}
