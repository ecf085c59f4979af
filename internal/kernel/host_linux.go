//go:build linux

package kernel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Host runs threads on real Linux threads. Each cloned thread is a goroutine
// locked to its OS thread for its whole life; since it never unlocks, the OS
// thread is torn down when the goroutine ends. Priorities are applied as nice
// values. Semaphores use the same in-process table as Sim.
type Host struct {
	cfg  hostConfig
	sems *semTable

	mu   sync.Mutex
	prio map[TID]int

	boot int64
}

// The main goroutine keeps the process's main thread, so no cloned thread
// can report the process id as its own.
func init() { runtime.LockOSThread() }

// NewHost returns the Linux host kernel.
func NewHost(opts ...HostOption) (Kernel, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &Host{
		cfg:  cfg,
		sems: newSemTable(0),
		prio: make(map[TID]int),
		boot: monotonic(),
	}
	h.prio[TID(unix.Getpid())] = cfg.defaultPrio
	return h, nil
}

func monotonic() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Now().UnixNano()
	}
	return ts.Nano()
}

func (h *Host) GetPID(ctx context.Context) TID {
	if tid, ok := TIDFrom(ctx); ok {
		return tid
	}
	return TID(unix.Getpid())
}

// Clone starts fn on a fresh OS thread. The Go runtime owns thread stacks,
// so stackSize is only advisory here.
func (h *Host) Clone(fn ThreadFunc, arg any, stackSize int) (TID, error) {
	if fn == nil {
		return 0, EINVAL
	}

	ready := make(chan TID, 1)
	go func() {
		runtime.LockOSThread()
		tid := TID(unix.Gettid())

		h.mu.Lock()
		h.prio[tid] = h.cfg.defaultPrio
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.prio, tid)
			h.mu.Unlock()
		}()

		ready <- tid
		fn(WithTID(context.Background(), tid), arg)
	}()

	return <-ready, nil
}

func (h *Host) Exit(ctx context.Context, code int) {
	if _, ok := TIDFrom(ctx); !ok {
		return
	}
	runtime.Goexit()
}

func (h *Host) GetPriority(tid TID) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.prio[tid]
	if !ok {
		return 0, ESRCH
	}
	return p, nil
}

func (h *Host) SetPriority(tid TID, prio int) error {
	h.mu.Lock()
	_, ok := h.prio[tid]
	h.mu.Unlock()
	if !ok {
		return ESRCH
	}

	if err := unix.Setpriority(unix.PRIO_PROCESS, int(tid), h.cfg.niceFor(prio)); err != nil {
		return hostErrno(err)
	}

	h.mu.Lock()
	h.prio[tid] = prio
	h.mu.Unlock()
	return nil
}

func (h *Host) MSleep(ms uint32) {
	ts := unix.NsecToTimespec(int64(ms) * int64(time.Millisecond))
	for {
		var rem unix.Timespec
		err := unix.Nanosleep(&ts, &rem)
		if !errors.Is(err, unix.EINTR) {
			return
		}
		ts = rem
	}
}

func (h *Host) Ticks() uint64 {
	return uint64(monotonic()-h.boot) * h.cfg.timerFreq / uint64(time.Second)
}

func (h *Host) SemInit(count int) (SemID, error)      { return h.sems.init(count) }
func (h *Host) SemDestroy(id SemID) error             { return h.sems.destroy(id) }
func (h *Host) SemPost(id SemID) error                { return h.sems.post(id) }
func (h *Host) SemWait(id SemID) error                { return h.sems.wait(id) }
func (h *Host) SemTimedWait(id SemID, ms uint32) error { return h.sems.timedWait(id, ms) }

func hostErrno(err error) error {
	var en unix.Errno
	if !errors.As(err, &en) {
		return EINVAL
	}
	switch en {
	case unix.EPERM, unix.EACCES:
		return EPERM
	case unix.ESRCH:
		return ESRCH
	default:
		return EINVAL
	}
}
