package scenario

import (
	"context"
	"fmt"

	"github.com/zboralski/pteosal/internal/osal"
)

func init() {
	Register(Def{
		Name:        "priority/explicit",
		Category:    "priority",
		Description: "a priority given at create is what the thread sees for itself",
		Run:         explicitPriority,
	})
	Register(Def{
		Name:        "priority/set",
		Category:    "priority",
		Description: "priority changes on a live thread read back",
		Run:         setPriority,
	})
}

func explicitPriority(ctx context.Context, o *osal.OS) error {
	want := o.MinPriority() + 1

	res, err := runThread(o, func(ctx context.Context, arg any) int {
		p, err := o.ThreadGetHandle(ctx).Priority()
		if err != nil {
			return -1
		}
		return p
	}, want, nil)
	if err != nil {
		return err
	}
	return expect(res == want, "thread saw priority %d, want %d", res, want)
}

func setPriority(ctx context.Context, o *osal.OS) error {
	gate, err := o.NewSemaphore(0)
	if err != nil {
		return err
	}
	defer gate.Delete()

	t, err := o.ThreadCreate(func(ctx context.Context, arg any) int {
		if err := gate.Pend(nil); err != nil {
			return 1
		}
		return 0
	}, 0, o.DefaultPriority(), nil)
	if err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}

	var failure error
	// Descending only; a host kernel needs privilege to raise priority.
	for _, p := range []int{o.MinPriority() + 2, o.MinPriority()} {
		if err := t.SetPriority(p); err != nil {
			failure = err
			break
		}
		got, err := t.Priority()
		if err != nil {
			failure = err
			break
		}
		if got != p {
			failure = fmt.Errorf("priority %d read back as %d", p, got)
			break
		}
	}

	if err := gate.Post(1); err != nil {
		return err
	}
	if err := join(t); err != nil {
		return err
	}
	if err := t.Delete(); err != nil {
		return err
	}
	return failure
}
