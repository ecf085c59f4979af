package scenario

import (
	"context"
	"fmt"

	"github.com/zboralski/pteosal/internal/osal"
)

func init() {
	Register(Def{
		Name:        "tls/isolation",
		Category:    "tls",
		Description: "a TLS key holds an independent value in every thread",
		Run:         tlsIsolation,
	})
}

func tlsIsolation(ctx context.Context, o *osal.OS) error {
	key, err := o.TLSAlloc()
	if err != nil {
		return err
	}
	defer o.TLSFree(key)

	if err := o.TLSSetValue(ctx, key, "initial"); err != nil {
		return err
	}

	res, err := runThread(o, func(ctx context.Context, arg any) int {
		if o.TLSGetValue(ctx, key) != nil {
			return 1
		}
		if err := o.TLSSetValue(ctx, key, "worker"); err != nil {
			return 2
		}
		if o.TLSGetValue(ctx, key) != "worker" {
			return 3
		}
		return 0
	}, 0, nil)
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return fmt.Errorf("new thread saw another thread's value")
	case 2, 3:
		return fmt.Errorf("thread could not round-trip its own value")
	}

	if v := o.TLSGetValue(ctx, key); v != "initial" {
		return fmt.Errorf("initial thread value changed to %v", v)
	}
	return nil
}
