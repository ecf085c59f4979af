package scenario

import (
	"context"
	"fmt"

	"github.com/zboralski/pteosal/internal/osal"
)

func init() {
	Register(Def{
		Name:        "libc/environment",
		Category:    "libc",
		Description: "environment reads and writes go through the environment lock",
		Run:         environment,
	})
	Register(Def{
		Name:        "libc/ftime",
		Category:    "libc",
		Description: "ftime advances with the tick counter",
		Run:         ftime,
	})
}

func environment(ctx context.Context, o *osal.OS) error {
	const key = "PTEOSAL_SCENARIO"

	res, err := runThread(o, func(ctx context.Context, arg any) int {
		if err := o.Setenv(key, "worker"); err != nil {
			return 1
		}
		return 0
	}, 0, nil)
	if err != nil {
		return err
	}
	if res != 0 {
		return fmt.Errorf("setenv failed in a thread")
	}

	v, ok, err := o.Getenv(key)
	if err != nil {
		return err
	}
	return expect(ok && v == "worker", "getenv %s = %q, %v", key, v, ok)
}

func ftime(ctx context.Context, o *osal.OS) error {
	a := o.Ftime()
	o.ThreadSleep(50)
	b := o.Ftime()

	if a.Millitm >= 1000 || b.Millitm >= 1000 {
		return fmt.Errorf("milliseconds out of range: %d, %d", a.Millitm, b.Millitm)
	}
	ams := a.Time*1000 + int64(a.Millitm)
	bms := b.Time*1000 + int64(b.Millitm)
	return expect(bms > ams, "ftime did not advance: %d ms then %d ms", ams, bms)
}
