package osal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zboralski/pteosal/internal/kernel"
	"github.com/zboralski/pteosal/internal/reent"
	"github.com/zboralski/pteosal/internal/tls"
)

func returns(n int) EntryPoint {
	return func(ctx context.Context, arg any) int { return n }
}

func TestCreateWaitsForStart(t *testing.T) {
	o, _, _ := newTestOS(t, nil)

	var ran atomic.Bool
	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		ran.Store(true)
		return 7
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("Failed to create thread: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if ran.Load() {
		t.Fatal("entry point ran before Start")
	}
	if th.Done() {
		t.Fatal("thread done before Start")
	}

	if err := th.Start(); err != nil {
		t.Fatalf("Failed to start thread: %v", err)
	}
	if err := th.WaitForEnd(); err != nil {
		t.Fatalf("Failed to join thread: %v", err)
	}
	if !ran.Load() || !th.Done() {
		t.Error("join returned before the thread finished")
	}
	if th.Result() != 7 {
		t.Errorf("Expected result 7, got %d", th.Result())
	}
	if err := th.Delete(); err != nil {
		t.Errorf("Failed to delete thread: %v", err)
	}
}

func TestCreateRejectsNilEntry(t *testing.T) {
	o, _, _ := newTestOS(t, nil)
	if _, err := o.ThreadCreate(nil, 0, 0, nil); ResultOf(err) != InvalidParam {
		t.Errorf("Expected InvalidParam, got %v", err)
	}
}

func TestJoinAfterExit(t *testing.T) {
	o, k, _ := newTestOS(t, nil)

	th, err := o.ThreadCreate(returns(0), 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := th.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitThreads(t, k)

	joined := make(chan error, 2)
	go func() {
		joined <- th.WaitForEnd()
		joined <- th.WaitForEnd()
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-joined:
			if err != nil {
				t.Errorf("join %d: %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("join %d blocked on an exited thread", i)
		}
	}
	_ = th.Delete()
}

func TestThreadSeesOwnState(t *testing.T) {
	o, k, mainCtx := newTestOS(t, nil)

	type seen struct {
		self  *Thread
		pid   kernel.TID
		reent *reent.State
		tls   *tls.Context
	}
	ch := make(chan seen, 1)

	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		ch <- seen{
			self:  o.ThreadGetHandle(ctx),
			pid:   k.GetPID(ctx),
			reent: reent.Current(ctx),
			tls:   tls.From(ctx),
		}
		return 0
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := th.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	got := <-ch
	if err := th.WaitForEnd(); err != nil {
		t.Fatalf("join: %v", err)
	}

	if got.self != th {
		t.Error("ThreadGetHandle inside the thread did not return its own block")
	}
	if got.pid != th.ID() {
		t.Errorf("Expected kernel id %d, got %d", th.ID(), got.pid)
	}
	if got.reent == nil || got.reent == reent.Current(mainCtx) || got.reent != th.Reent() {
		t.Error("created thread should run on its own reentrant state")
	}
	if got.reent.Locale != "C" {
		t.Error("thread reentrant state not initialized")
	}
	if got.tls == nil || got.tls == tls.From(mainCtx) {
		t.Error("created thread should run with its own TLS block")
	}
	if th.Initial() {
		t.Error("created thread reported as initial")
	}
	_ = th.Delete()
}

func TestStackClamp(t *testing.T) {
	o, k, _ := newTestOS(t, nil)
	floor := o.Config().MinStackSize

	for _, size := range []int{0, 1, floor} {
		th, err := o.ThreadCreate(returns(0), size, 0, nil)
		if err != nil {
			t.Fatalf("create with stack %d: %v", size, err)
		}
		if th.StackSize() != floor {
			t.Errorf("stack %d: Expected clamp to %d, got %d", size, floor, th.StackSize())
		}
		if got := k.StackSize(th.ID()); got != floor {
			t.Errorf("stack %d: kernel saw %d", size, got)
		}
		_ = th.Start()
		_ = th.WaitForEnd()
		_ = th.Delete()
	}

	th, err := o.ThreadCreate(returns(0), floor*4, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if th.StackSize() != floor*4 {
		t.Errorf("Expected larger stack kept, got %d", th.StackSize())
	}
	_ = th.Start()
	_ = th.WaitForEnd()
	_ = th.Delete()
}

func TestCreateCloneFailureReleasesResources(t *testing.T) {
	o, k, _ := newTestOS(t, []kernel.SimOption{kernel.WithMaxThreads(1)})

	parked, err := o.ThreadCreate(returns(0), 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sems := k.Semaphores()
	before, _ := o.Stats()

	_, err = o.ThreadCreate(returns(0), 0, 0, nil)
	if !errors.Is(err, ErrNoResources) {
		t.Fatalf("Expected NoResources when the kernel refuses, got %v", err)
	}
	if !errors.Is(err, kernel.EAGAIN) {
		t.Errorf("Expected kernel cause EAGAIN, got %v", err)
	}

	if k.Semaphores() != sems {
		t.Errorf("Semaphores leaked: %d before, %d after", sems, k.Semaphores())
	}
	if after, _ := o.Stats(); after != before {
		t.Errorf("control data leaked: %+v before, %+v after", before, after)
	}
	_ = parked.Delete()
}

func TestCreateSemaphoreFailureReleasesResources(t *testing.T) {
	// Two semaphores for the libc locks, one left for the start semaphore.
	o, k, _ := newTestOS(t, []kernel.SimOption{kernel.WithMaxSemaphores(3)})
	before, _ := o.Stats()

	if _, err := o.ThreadCreate(returns(0), 0, 0, nil); !errors.Is(err, ErrNoResources) {
		t.Fatalf("Expected NoResources, got %v", err)
	}
	if k.Semaphores() != 2 {
		t.Errorf("Expected start semaphore destroyed, %d live", k.Semaphores())
	}
	if after, _ := o.Stats(); after != before {
		t.Errorf("control data leaked: %+v before, %+v after", before, after)
	}
	if k.Threads() != 0 {
		t.Errorf("Expected no thread cloned, got %d", k.Threads())
	}
}

func TestDeleteUnstarted(t *testing.T) {
	o, k, _ := newTestOS(t, nil)
	sems := k.Semaphores()
	before, _ := o.Stats()

	var ran atomic.Bool
	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		ran.Store(true)
		return 0
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := th.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitThreads(t, k)

	if ran.Load() {
		t.Error("deleted thread ran its entry point")
	}
	if k.Semaphores() != sems {
		t.Errorf("Expected %d semaphores, got %d", sems, k.Semaphores())
	}
	if after, _ := o.Stats(); after != before {
		t.Errorf("control data leaked: %+v before, %+v after", before, after)
	}
	if o.tlsTable.Contexts() != 1 {
		t.Errorf("Expected only the initial TLS block, got %d", o.tlsTable.Contexts())
	}
}

func TestDeleteAfterJoinReleasesEverything(t *testing.T) {
	o, k, _ := newTestOS(t, nil)
	sems := k.Semaphores()
	before, _ := o.Stats()

	th, err := o.ThreadCreate(returns(0), 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	during, _ := o.Stats()
	if during.Threads != before.Threads+1 || during.Reents != before.Reents+1 {
		t.Errorf("create not accounted: %+v", during)
	}

	_ = th.Start()
	_ = th.WaitForEnd()
	waitThreads(t, k)
	if err := th.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if k.Semaphores() != sems {
		t.Errorf("Expected %d semaphores, got %d", sems, k.Semaphores())
	}
	if after, _ := o.Stats(); after != before {
		t.Errorf("control data leaked: %+v before, %+v after", before, after)
	}
	if o.tlsTable.Contexts() != 1 {
		t.Errorf("Expected only the initial TLS block, got %d", o.tlsTable.Contexts())
	}
}

func TestExitAndDelete(t *testing.T) {
	o, k, _ := newTestOS(t, nil)
	sems := k.Semaphores()
	before, _ := o.Stats()

	var after atomic.Bool
	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		_ = o.ThreadExitAndDelete(ctx, Self(ctx))
		after.Store(true)
		return 1
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := th.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitThreads(t, k)

	if after.Load() {
		t.Error("thread kept running after ThreadExitAndDelete")
	}
	if k.Semaphores() != sems {
		t.Errorf("Expected %d semaphores, got %d", sems, k.Semaphores())
	}
	if st, _ := o.Stats(); st != before {
		t.Errorf("control data leaked: %+v before, %+v after", before, st)
	}
}

func TestExplicitExit(t *testing.T) {
	o, k, _ := newTestOS(t, nil)

	var after atomic.Bool
	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		o.ThreadExit(ctx)
		after.Store(true)
		return 0
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = th.Start()
	if err := th.WaitForEnd(); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitThreads(t, k)

	if after.Load() {
		t.Error("ThreadExit returned on a created thread")
	}
	if !th.Done() {
		t.Error("thread not marked done")
	}
	_ = th.Delete()
}

func TestTrampolineWithoutControlBlock(t *testing.T) {
	o, k, _ := newTestOS(t, nil)

	tid, err := k.Clone(o.stubThreadEntry, nil, 0)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	waitThreads(t, k)

	code, ok := k.ExitStatus(tid)
	if !ok || code != -int(NoResources) {
		t.Errorf("Expected exit status %d, got %d (recorded %v)", -int(NoResources), code, ok)
	}
}

func TestTrampolineTLSFailure(t *testing.T) {
	// The initial thread takes the only TLS block.
	o, k, _ := newTestOS(t, nil, WithTLSOptions(tls.WithContextLimit(1)))

	var ran atomic.Bool
	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		ran.Store(true)
		return 0
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitThreads(t, k)

	code, _ := k.ExitStatus(th.ID())
	if code != -int(NoResources) {
		t.Errorf("Expected exit status %d, got %d", -int(NoResources), code)
	}
	if ran.Load() || th.Done() {
		t.Error("thread without TLS ran its entry point")
	}
	_ = th.Delete()
}

func TestPriority(t *testing.T) {
	o, k, _ := newTestOS(t, nil)

	gate := make(chan struct{})
	block := func(ctx context.Context, arg any) int {
		<-gate
		return 0
	}

	th, err := o.ThreadCreate(block, 0, 12, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p, err := th.Priority(); err != nil || p != 12 {
		t.Errorf("Expected priority 12, got %d (%v)", p, err)
	}
	if err := th.SetPriority(3); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if p, _ := th.Priority(); p != 3 {
		t.Errorf("Expected priority 3, got %d", p)
	}

	other, err := o.ThreadCreate(block, 0, 99, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p, _ := other.Priority(); p != o.DefaultPriority() {
		t.Errorf("out-of-range priority: Expected default %d, got %d", o.DefaultPriority(), p)
	}

	close(gate)
	for _, x := range []*Thread{th, other} {
		_ = x.Start()
		_ = x.WaitForEnd()
	}
	waitThreads(t, k)

	if _, err := th.Priority(); ResultOf(err) != GeneralFailure {
		t.Errorf("Expected GeneralFailure for an exited thread, got %v", err)
	}
	if err := th.SetPriority(5); ResultOf(err) != GeneralFailure {
		t.Errorf("Expected GeneralFailure for an exited thread, got %v", err)
	}
	_ = th.Delete()
	_ = other.Delete()
}

func TestPriorityRange(t *testing.T) {
	o, _, _ := newTestOS(t, nil)
	if o.MinPriority() != 1 || o.MaxPriority() != 31 || o.DefaultPriority() != 8 {
		t.Errorf("Unexpected range %d..%d default %d", o.MinPriority(), o.MaxPriority(), o.DefaultPriority())
	}
}

func TestThreadSleep(t *testing.T) {
	o, _, _ := newTestOS(t, nil)
	start := time.Now()
	o.ThreadSleep(20)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected at least 20ms, slept %v", elapsed)
	}
}

func TestCheckCancel(t *testing.T) {
	_, _, ctx := newTestOS(t, nil)
	self := Self(ctx)
	if err := self.CheckCancel(); err != nil {
		t.Errorf("Expected no cancel, got %v", err)
	}
	_ = self.Cancel()
	if err := self.CheckCancel(); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Expected Interrupted, got %v", err)
	}
}
