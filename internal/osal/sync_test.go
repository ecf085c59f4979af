package osal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zboralski/pteosal/internal/kernel"
)

func dur(d time.Duration) *time.Duration { return &d }

func TestMutexLockUnlock(t *testing.T) {
	o, k, _ := newTestOS(t, nil)

	m, err := o.NewMutex()
	if err != nil {
		t.Fatalf("Failed to create mutex: %v", err)
	}
	if err := m.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	var counter int32
	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		if err := m.Lock(); err != nil {
			return -1
		}
		AtomicIncrement(&counter)
		_ = m.Unlock()
		return 0
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = th.Start()

	time.Sleep(30 * time.Millisecond)
	if AtomicExchangeAdd(&counter, 0) != 0 {
		t.Fatal("thread entered a held mutex")
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := th.WaitForEnd(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if counter != 1 || th.Result() != 0 {
		t.Errorf("Expected one entry, got counter=%d result=%d", counter, th.Result())
	}
	_ = th.Delete()
	waitThreads(t, k)

	if err := m.Delete(); err != nil {
		t.Errorf("delete: %v", err)
	}
}

func TestMutexTimedLockTimeout(t *testing.T) {
	o, _, _ := newTestOS(t, nil)

	m, err := o.NewMutex()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		return int(ResultOf(m.TimedLock(20 * time.Millisecond)))
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = th.Start()
	_ = th.WaitForEnd()

	if Result(th.Result()) != Timeout {
		t.Errorf("Expected Timeout, got %v", Result(th.Result()))
	}
	_ = th.Delete()

	_ = m.Unlock()
	if err := m.TimedLock(20 * time.Millisecond); err != nil {
		t.Errorf("Expected free mutex to lock, got %v", err)
	}
	_ = m.Unlock()
	_ = m.Delete()
}

func TestMutexAfterDelete(t *testing.T) {
	o, _, _ := newTestOS(t, nil)

	m, _ := o.NewMutex()
	_ = m.Delete()
	if err := m.TimedLock(10 * time.Millisecond); ResultOf(err) != GeneralFailure {
		t.Errorf("Expected GeneralFailure on a deleted mutex, got %v", err)
	}
	if err := m.Lock(); !errors.Is(err, ErrNoResources) {
		t.Errorf("Expected NoResources on a deleted mutex, got %v", err)
	}
}

func TestSemaphorePostPend(t *testing.T) {
	o, _, _ := newTestOS(t, nil)

	s, err := o.NewSemaphore(0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Post(3); err != nil {
		t.Fatalf("post: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Pend(dur(10 * time.Millisecond)); err != nil {
			t.Fatalf("pend %d: %v", i, err)
		}
	}
	if err := s.Pend(dur(20 * time.Millisecond)); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected fourth pend to time out, got %v", err)
	}

	released := make(chan error, 1)
	go func() { released <- s.Pend(nil) }()
	select {
	case err := <-released:
		t.Fatalf("untimed pend returned early: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	_ = s.Post(1)
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("pend: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("untimed pend not released by post")
	}
	_ = s.Delete()
}

func TestSemaphoreZeroTimeoutWaitsForever(t *testing.T) {
	o, _, _ := newTestOS(t, nil)

	s, _ := o.NewSemaphore(0)
	released := make(chan error, 1)
	go func() { released <- s.Pend(dur(0)) }()

	select {
	case err := <-released:
		t.Fatalf("zero timeout returned early: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	_ = s.Post(1)
	if err := <-released; err != nil {
		t.Errorf("pend: %v", err)
	}
	_ = s.Delete()
}

func TestSemaphoreInitialCount(t *testing.T) {
	o, k, _ := newTestOS(t, nil)

	s, err := o.NewSemaphore(2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v, _ := k.SemValue(s.id); v != 2 {
		t.Errorf("Expected count 2, got %d", v)
	}
	_ = s.Pend(nil)
	_ = s.Pend(nil)
	if err := s.Pend(dur(5 * time.Millisecond)); ResultOf(err) != Timeout {
		t.Errorf("Expected Timeout, got %v", err)
	}
	_ = s.Delete()
}

func TestSemaphorePostOverflow(t *testing.T) {
	o, k, _ := newTestOS(t, nil)

	s, err := o.NewSemaphore(kernel.SemValueMax - 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = s.Post(3)
	if ResultOf(err) != NoResources {
		t.Errorf("Expected NoResources past the count limit, got %v", err)
	}
	if !errors.Is(err, kernel.EOVERFLOW) {
		t.Errorf("Expected the overflow cause kept, got %v", err)
	}
	if v, _ := k.SemValue(s.id); v != kernel.SemValueMax {
		t.Errorf("Expected the successful post kept at %d, got %d", kernel.SemValueMax, v)
	}

	if err := s.Pend(dur(10 * time.Millisecond)); err != nil {
		t.Fatalf("pend: %v", err)
	}
	if err := s.Post(1); err != nil {
		t.Errorf("Expected post below the limit to succeed, got %v", err)
	}
	_ = s.Delete()
}

func TestCancellablePendInterrupted(t *testing.T) {
	o, _, _ := newTestOS(t, nil)

	s, _ := o.NewSemaphore(0)
	th, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		return int(ResultOf(s.CancellablePend(ctx, nil)))
	}, 0, 0, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = th.Start()

	time.Sleep(30 * time.Millisecond)
	if th.Done() {
		t.Fatal("cancellable pend returned before cancel")
	}
	_ = th.Cancel()
	_ = th.WaitForEnd()

	if Result(th.Result()) != Interrupted {
		t.Errorf("Expected Interrupted, got %v", Result(th.Result()))
	}
	_ = th.Delete()
	_ = s.Delete()
}

func TestCancellablePendContext(t *testing.T) {
	o, _, mainCtx := newTestOS(t, nil)

	s, _ := o.NewSemaphore(0)
	ctx, cancel := context.WithTimeout(mainCtx, 20*time.Millisecond)
	defer cancel()

	err := s.CancellablePend(ctx, nil)
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("Expected Interrupted, got %v", err)
	}
	_ = s.Delete()
}

func TestCancellablePendTimeoutAndSuccess(t *testing.T) {
	o, _, ctx := newTestOS(t, nil)

	s, _ := o.NewSemaphore(0)
	if err := s.CancellablePend(ctx, dur(25*time.Millisecond)); ResultOf(err) != Timeout {
		t.Errorf("Expected Timeout, got %v", err)
	}

	_ = s.Post(1)
	if err := s.CancellablePend(ctx, dur(25*time.Millisecond)); err != nil {
		t.Errorf("Expected posted pend to succeed, got %v", err)
	}

	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = s.Post(1)
	}()
	if err := s.CancellablePend(ctx, nil); err != nil {
		t.Errorf("Expected untimed pend to be released, got %v", err)
	}
	_ = s.Delete()
}

func TestMillis(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want uint32
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{time.Second, 1000},
	}
	for _, tt := range tests {
		if got := millis(tt.in); got != tt.want {
			t.Errorf("millis(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
