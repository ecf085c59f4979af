package osal

import (
	"context"
	"errors"

	"github.com/zboralski/pteosal/internal/tls"
)

// TLSAlloc reserves a key valid in every thread.
func (o *OS) TLSAlloc() (tls.Key, error) {
	if o.tlsTable == nil {
		return 0, fail(InvalidParam, "tls alloc", nil)
	}
	key, err := o.tlsTable.Alloc()
	if err != nil {
		return 0, fail(NoResources, "tls alloc", err)
	}
	return key, nil
}

// TLSFree releases key. Its value is cleared in every thread.
func (o *OS) TLSFree(key tls.Key) error {
	if o.tlsTable == nil || key == o.threadDataKey {
		return fail(InvalidParam, "tls free", nil)
	}
	if err := o.tlsTable.Free(key); err != nil {
		return fail(InvalidParam, "tls free", err)
	}
	return nil
}

// TLSSetValue stores v under key for the calling thread only.
func (o *OS) TLSSetValue(ctx context.Context, key tls.Key, v any) error {
	c := tls.From(ctx)
	if c == nil {
		return fail(InvalidParam, "tls set", errors.New("no active tls"))
	}
	if err := c.SetValue(key, v); err != nil {
		return fail(InvalidParam, "tls set", err)
	}
	return nil
}

// TLSGetValue returns the calling thread's value for key, nil if unset.
func (o *OS) TLSGetValue(ctx context.Context, key tls.Key) any {
	c := tls.From(ctx)
	if c == nil {
		return nil
	}
	return c.GetValue(key)
}
