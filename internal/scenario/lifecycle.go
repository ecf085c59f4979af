package scenario

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zboralski/pteosal/internal/osal"
)

func init() {
	Register(Def{
		Name:        "lifecycle/delete-unstarted",
		Category:    "lifecycle",
		Description: "deleting a never-started thread releases it without running it",
		Run:         deleteUnstarted,
	})
	Register(Def{
		Name:        "lifecycle/exit-and-delete",
		Category:    "lifecycle",
		Description: "a thread can release its own control block on the way out",
		Run:         exitAndDelete,
	})
	Register(Def{
		Name:        "lifecycle/stack-clamp",
		Category:    "lifecycle",
		Description: "stack sizes below the floor behave exactly like the floor",
		Run:         stackClamp,
	})
	Register(Def{
		Name:        "lifecycle/heap-accounting",
		Category:    "lifecycle",
		Description: "control data is accounted on create and returned on delete",
		Run:         heapAccounting,
	})
}

func deleteUnstarted(ctx context.Context, o *osal.OS) error {
	before, err := o.Stats()
	if err != nil {
		return err
	}

	var ran atomic.Bool
	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		ran.Store(true)
		return 0
	}, 0, 0, nil)
	if err != nil {
		return err
	}
	if err := t.Delete(); err != nil {
		return err
	}
	if err := settle(o, before); err != nil {
		return err
	}

	o.ThreadSleep(20)
	return expect(!ran.Load(), "deleted thread ran its entry point")
}

func exitAndDelete(ctx context.Context, o *osal.OS) error {
	before, err := o.Stats()
	if err != nil {
		return err
	}

	var after atomic.Bool
	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		_ = o.ThreadExitAndDelete(ctx, osal.Self(ctx))
		after.Store(true)
		return 0
	}, 0, 0, nil)
	if err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}
	if err := settle(o, before); err != nil {
		return err
	}
	return expect(!after.Load(), "thread kept running after exit-and-delete")
}

func stackClamp(ctx context.Context, o *osal.OS) error {
	floor := o.Config().MinStackSize
	for _, size := range []int{0, 1, floor - 1, floor} {
		t, err := o.ThreadCreate(func(ctx context.Context, arg any) int { return 0 }, size, 0, nil)
		if err != nil {
			return fmt.Errorf("stack %d: %w", size, err)
		}
		if t.StackSize() != floor {
			return fmt.Errorf("stack %d: clamped to %d, want %d", size, t.StackSize(), floor)
		}
		if err := t.Start(); err != nil {
			return err
		}
		if err := join(t); err != nil {
			return err
		}
		if err := t.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func heapAccounting(ctx context.Context, o *osal.OS) error {
	before, err := o.Stats()
	if err != nil {
		return err
	}
	if before.Threads != 1 || before.Reents != 0 {
		return fmt.Errorf("after init: %+v, want one thread and no owned reents", before)
	}

	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int { return 0 }, 0, 0, nil)
	if err != nil {
		return err
	}
	during, err := o.Stats()
	if err != nil {
		return err
	}
	if during.Threads != before.Threads+1 || during.Reents != before.Reents+1 {
		return fmt.Errorf("create not accounted: %+v", during)
	}

	if err := t.Start(); err != nil {
		return err
	}
	if err := join(t); err != nil {
		return err
	}
	if err := t.Delete(); err != nil {
		return err
	}
	if err := settle(o, before); err != nil {
		return fmt.Errorf("after delete: %w", err)
	}
	return nil
}
