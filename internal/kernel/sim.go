package kernel

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Sim is an in-memory kernel. Threads are goroutines, semaphores live in a
// process-local table, and ticks come from the monotonic clock. Limits on
// threads and semaphores let tests drive the failure paths of the layer
// above.
type Sim struct {
	sems *semTable

	mu          sync.Mutex
	nextTID     TID
	initial     TID
	prio        map[TID]int
	stacks      map[TID]int
	exits       map[TID]int
	live        int
	maxThreads  int
	defaultPrio int
	wg          sync.WaitGroup

	boot time.Time
	freq uint64
}

// SimOption configures a Sim.
type SimOption func(*simConfig)

type simConfig struct {
	maxThreads    int
	maxSemaphores int
	timerFreq     uint64
	defaultPrio   int
}

// WithMaxThreads makes Clone fail with EAGAIN once n cloned threads are
// alive.
func WithMaxThreads(n int) SimOption {
	return func(c *simConfig) { c.maxThreads = n }
}

// WithMaxSemaphores makes SemInit fail with ENOMEM once n semaphores exist.
func WithMaxSemaphores(n int) SimOption {
	return func(c *simConfig) { c.maxSemaphores = n }
}

// WithTimerFreq sets the tick rate in Hz.
func WithTimerFreq(hz uint64) SimOption {
	return func(c *simConfig) { c.timerFreq = hz }
}

// WithDefaultPriority sets the priority new threads start with.
func WithDefaultPriority(prio int) SimOption {
	return func(c *simConfig) { c.defaultPrio = prio }
}

// NewSim creates a simulated kernel. The calling goroutine acts as the
// initial thread, id 1.
func NewSim(opts ...SimOption) *Sim {
	cfg := simConfig{timerFreq: 100, defaultPrio: 8}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timerFreq == 0 {
		cfg.timerFreq = 100
	}

	s := &Sim{
		sems:        newSemTable(cfg.maxSemaphores),
		nextTID:     1,
		initial:     1,
		prio:        make(map[TID]int),
		stacks:      make(map[TID]int),
		exits:       make(map[TID]int),
		maxThreads:  cfg.maxThreads,
		defaultPrio: cfg.defaultPrio,
		boot:        time.Now(),
		freq:        cfg.timerFreq,
	}
	s.prio[s.initial] = cfg.defaultPrio
	return s
}

func (s *Sim) GetPID(ctx context.Context) TID {
	if tid, ok := TIDFrom(ctx); ok {
		return tid
	}
	return s.initial
}

func (s *Sim) Clone(fn ThreadFunc, arg any, stackSize int) (TID, error) {
	if fn == nil {
		return 0, EINVAL
	}

	s.mu.Lock()
	if s.maxThreads > 0 && s.live >= s.maxThreads {
		s.mu.Unlock()
		return 0, EAGAIN
	}
	s.nextTID++
	tid := s.nextTID
	s.prio[tid] = s.defaultPrio
	s.stacks[tid] = stackSize
	s.live++
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(tid, fn, arg)
	return tid, nil
}

func (s *Sim) run(tid TID, fn ThreadFunc, arg any) {
	defer func() {
		s.mu.Lock()
		if _, ok := s.exits[tid]; !ok {
			s.exits[tid] = 0
		}
		delete(s.prio, tid)
		s.live--
		s.mu.Unlock()
		s.wg.Done()
	}()

	fn(WithTID(context.Background(), tid), arg)
}

// Exit ends the calling cloned thread with runtime.Goexit. It must be called
// from the goroutine the thread runs on.
func (s *Sim) Exit(ctx context.Context, code int) {
	tid, ok := TIDFrom(ctx)
	if !ok {
		return
	}
	s.mu.Lock()
	s.exits[tid] = code
	s.mu.Unlock()
	runtime.Goexit()
}

func (s *Sim) GetPriority(tid TID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prio[tid]
	if !ok {
		return 0, ESRCH
	}
	return p, nil
}

func (s *Sim) SetPriority(tid TID, prio int) error {
	if prio < 0 {
		return EINVAL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prio[tid]; !ok {
		return ESRCH
	}
	s.prio[tid] = prio
	return nil
}

func (s *Sim) MSleep(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (s *Sim) Ticks() uint64 {
	return uint64(time.Since(s.boot)) * s.freq / uint64(time.Second)
}

func (s *Sim) SemInit(count int) (SemID, error)      { return s.sems.init(count) }
func (s *Sim) SemDestroy(id SemID) error             { return s.sems.destroy(id) }
func (s *Sim) SemPost(id SemID) error                { return s.sems.post(id) }
func (s *Sim) SemWait(id SemID) error                { return s.sems.wait(id) }
func (s *Sim) SemTimedWait(id SemID, ms uint32) error { return s.sems.timedWait(id, ms) }

// SemValue returns the current count of a semaphore.
func (s *Sim) SemValue(id SemID) (int, error) {
	return s.sems.value(id)
}

// Semaphores returns the number of live semaphores.
func (s *Sim) Semaphores() int {
	return s.sems.len()
}

// Threads returns the number of cloned threads still running.
func (s *Sim) Threads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// ExitStatus returns the code a finished thread exited with.
func (s *Sim) ExitStatus(tid TID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.exits[tid]
	return code, ok
}

// StackSize returns the stack size a thread was cloned with.
func (s *Sim) StackSize(tid TID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stacks[tid]
}

// Wait blocks until every cloned thread has finished or ctx is done.
func (s *Sim) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
