package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/zboralski/pteosal/internal/osal"
)

// joinTimeout bounds every join a scenario performs. A join that does not
// return in time is reported instead of hanging the run.
const joinTimeout = 2 * time.Second

func expect(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return fmt.Errorf(format, args...)
}

func join(t *osal.Thread) error {
	return joinWithin(t, joinTimeout)
}

func joinWithin(t *osal.Thread, d time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- t.WaitForEnd() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return fmt.Errorf("join of thread %d did not return within %v", t.ID(), d)
	}
}

// runThread creates, starts, joins and deletes one thread and returns its
// entry point's result.
func runThread(o *osal.OS, entry osal.EntryPoint, prio int, arg any) (int, error) {
	t, err := o.ThreadCreate(entry, 0, prio, arg)
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	if err := t.Start(); err != nil {
		return 0, fmt.Errorf("start: %w", err)
	}
	if err := join(t); err != nil {
		return 0, err
	}
	res := t.Result()
	if err := t.Delete(); err != nil {
		return res, fmt.Errorf("delete: %w", err)
	}
	return res, nil
}

// settle polls o's heap accounting until it equals want.
func settle(o *osal.OS, want osal.Stats) error {
	deadline := time.Now().Add(joinTimeout)
	for {
		st, err := o.Stats()
		if err != nil {
			return err
		}
		if st == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("control data not released: have %+v, want %+v", st, want)
		}
		o.ThreadSleep(5)
	}
}

func resultOf(fn func() error) osal.EntryPoint {
	return func(ctx context.Context, arg any) int {
		return int(osal.ResultOf(fn()))
	}
}
