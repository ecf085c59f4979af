package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zboralski/pteosal/internal/osal"
)

func init() {
	Register(Def{
		Name:        "mutex/timed-lock",
		Category:    "mutex",
		Description: "a timed lock on a held mutex gives up with Timeout",
		Run:         timedLock,
	})
	Register(Def{
		Name:        "mutex/exclusion",
		Category:    "mutex",
		Description: "a mutex serializes read-modify-write across threads",
		Run:         mutexExclusion,
	})
	Register(Def{
		Name:        "semaphore/post-pend",
		Category:    "semaphore",
		Description: "post(3) allows three pends; the fourth waits",
		Run:         postPend,
	})
	Register(Def{
		Name:        "semaphore/cancellable-pend",
		Category:    "semaphore",
		Description: "cancelling a thread interrupts its cancellable pend",
		Run:         cancellablePend,
	})
	Register(Def{
		Name:        "atomic/counters",
		Category:    "atomic",
		Description: "atomic increments from several threads are not lost",
		Run:         atomicCounters,
	})
}

func timedLock(ctx context.Context, o *osal.OS) error {
	m, err := o.NewMutex()
	if err != nil {
		return err
	}
	defer m.Delete()

	if err := m.Lock(); err != nil {
		return err
	}
	res, err := runThread(o, resultOf(func() error {
		return m.TimedLock(20 * time.Millisecond)
	}), 0, nil)
	if err != nil {
		return err
	}
	if osal.Result(res) != osal.Timeout {
		return fmt.Errorf("timed lock on a held mutex: %v, want %v", osal.Result(res), osal.Timeout)
	}
	if err := m.Unlock(); err != nil {
		return err
	}

	if err := m.TimedLock(20 * time.Millisecond); err != nil {
		return fmt.Errorf("timed lock on a free mutex: %w", err)
	}
	return m.Unlock()
}

func mutexExclusion(ctx context.Context, o *osal.OS) error {
	const workers, rounds = 4, 200

	m, err := o.NewMutex()
	if err != nil {
		return err
	}
	defer m.Delete()

	counter := 0
	entry := func(ctx context.Context, arg any) int {
		for i := 0; i < rounds; i++ {
			if err := m.Lock(); err != nil {
				return 1
			}
			v := counter
			if i%50 == 0 {
				o.ThreadSleep(1)
			}
			counter = v + 1
			if err := m.Unlock(); err != nil {
				return 1
			}
		}
		return 0
	}

	threads := make([]*osal.Thread, 0, workers)
	for i := 0; i < workers; i++ {
		t, err := o.ThreadCreate(entry, 0, 0, nil)
		if err != nil {
			return err
		}
		threads = append(threads, t)
	}
	for _, t := range threads {
		if err := t.Start(); err != nil {
			return err
		}
	}
	for _, t := range threads {
		if err := join(t); err != nil {
			return err
		}
		if t.Result() != 0 {
			return errors.New("mutex operation failed in a worker")
		}
		if err := t.Delete(); err != nil {
			return err
		}
	}
	return expect(counter == workers*rounds, "counter %d, want %d", counter, workers*rounds)
}

func postPend(ctx context.Context, o *osal.OS) error {
	s, err := o.NewSemaphore(0)
	if err != nil {
		return err
	}
	defer s.Delete()

	if err := s.Post(3); err != nil {
		return err
	}
	short := 10 * time.Millisecond
	for i := 0; i < 3; i++ {
		if err := s.Pend(&short); err != nil {
			return fmt.Errorf("pend %d: %w", i+1, err)
		}
	}
	wait := 20 * time.Millisecond
	if err := s.Pend(&wait); !errors.Is(err, osal.ErrTimeout) {
		return fmt.Errorf("fourth pend: %v, want %v", err, osal.ErrTimeout)
	}
	return nil
}

func cancellablePend(ctx context.Context, o *osal.OS) error {
	s, err := o.NewSemaphore(0)
	if err != nil {
		return err
	}
	defer s.Delete()

	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		return int(osal.ResultOf(s.CancellablePend(ctx, nil)))
	}, 0, 0, nil)
	if err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}

	o.ThreadSleep(30)
	if t.Done() {
		return errors.New("cancellable pend returned before cancel")
	}
	if err := t.Cancel(); err != nil {
		return err
	}
	if err := join(t); err != nil {
		return err
	}
	if osal.Result(t.Result()) != osal.Interrupted {
		return fmt.Errorf("cancelled pend: %v, want %v", osal.Result(t.Result()), osal.Interrupted)
	}
	return t.Delete()
}

func atomicCounters(ctx context.Context, o *osal.OS) error {
	const workers, rounds = 4, 1000

	var counter int32
	entry := func(ctx context.Context, arg any) int {
		for i := 0; i < rounds; i++ {
			osal.AtomicIncrement(&counter)
		}
		return 0
	}
	threads := make([]*osal.Thread, 0, workers)
	for i := 0; i < workers; i++ {
		t, err := o.ThreadCreate(entry, 0, 0, nil)
		if err != nil {
			return err
		}
		threads = append(threads, t)
	}
	for _, t := range threads {
		if err := t.Start(); err != nil {
			return err
		}
	}
	for _, t := range threads {
		if err := join(t); err != nil {
			return err
		}
		if err := t.Delete(); err != nil {
			return err
		}
	}
	got := osal.AtomicExchangeAdd(&counter, 0)
	return expect(got == workers*rounds, "counter %d, want %d", got, workers*rounds)
}
