package scenario

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/zboralski/pteosal/internal/osal"
)

func init() {
	Register(Def{
		Name:        "handshake/start-gate",
		Category:    "handshake",
		Description: "a created thread runs no user code until it is started",
		Run:         startGate,
	})
	Register(Def{
		Name:        "handshake/join",
		Category:    "handshake",
		Description: "start then join returns once the thread is done",
		Run:         startJoin,
	})
	Register(Def{
		Name:        "handshake/join-after-exit",
		Category:    "handshake",
		Description: "joining an exited thread returns at once, as often as asked",
		Run:         joinAfterExit,
	})
	Register(Def{
		Name:        "handshake/explicit-exit",
		Category:    "handshake",
		Description: "ThreadExit ends the thread and wakes its joiner",
		Run:         explicitExit,
	})
}

func startGate(ctx context.Context, o *osal.OS) error {
	var ran atomic.Bool
	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		ran.Store(true)
		return 0
	}, 0, 0, nil)
	if err != nil {
		return err
	}

	o.ThreadSleep(30)
	if ran.Load() {
		return errors.New("entry point ran before start")
	}
	if t.Done() {
		return errors.New("thread done before start")
	}

	if err := t.Start(); err != nil {
		return err
	}
	if err := join(t); err != nil {
		return err
	}
	if err := expect(ran.Load(), "entry point never ran"); err != nil {
		return err
	}
	return t.Delete()
}

func startJoin(ctx context.Context, o *osal.OS) error {
	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		return arg.(int) * 2
	}, 0, 0, 21)
	if err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}
	if err := join(t); err != nil {
		return err
	}
	if err := expect(t.Done(), "join returned before done was set"); err != nil {
		return err
	}
	if err := expect(t.Result() == 42, "expected result 42, got %d", t.Result()); err != nil {
		return err
	}
	return t.Delete()
}

func joinAfterExit(ctx context.Context, o *osal.OS) error {
	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int { return 0 }, 0, 0, nil)
	if err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}

	for i := 0; !t.Done(); i++ {
		if i > 400 {
			return errors.New("thread never finished")
		}
		o.ThreadSleep(5)
	}

	for i := 0; i < 2; i++ {
		if err := joinWithin(t, 100*time.Millisecond); err != nil {
			return err
		}
	}
	return t.Delete()
}

func explicitExit(ctx context.Context, o *osal.OS) error {
	var after atomic.Bool
	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		o.ThreadExit(ctx)
		after.Store(true)
		return 1
	}, 0, 0, nil)
	if err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}
	if err := join(t); err != nil {
		return err
	}
	if after.Load() {
		return errors.New("ThreadExit returned on a created thread")
	}
	return t.Delete()
}
