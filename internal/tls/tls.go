// Package tls implements thread-local storage as a fixed-size slot table.
//
// A Table is created once per process with the number of keys it supports.
// Keys are allocated globally; every thread owns a Context holding one value
// per key. A slot that was never set reads as nil.
package tls

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoKeys is returned by Alloc when every key is in use.
	ErrNoKeys = errors.New("tls: no free keys")
	// ErrBadKey is returned for keys that are out of range or not allocated.
	ErrBadKey = errors.New("tls: invalid key")
	// ErrNoContexts is returned by ThreadInit when the context limit is hit.
	ErrNoContexts = errors.New("tls: context limit reached")
)

// Key indexes a TLS slot. Valid keys start at 1.
type Key uint32

// Table is the global slot table.
type Table struct {
	mu       sync.Mutex
	max      int
	used     []bool // index 0 unused
	contexts map[*Context]struct{}
	limit    int
}

// Option configures a Table.
type Option func(*Table)

// WithContextLimit caps the number of live thread contexts.
func WithContextLimit(n int) Option {
	return func(t *Table) { t.limit = n }
}

// NewTable initializes TLS support for max keys.
func NewTable(max int, opts ...Option) (*Table, error) {
	if max <= 0 {
		return nil, fmt.Errorf("tls: invalid key count %d", max)
	}
	t := &Table{
		max:      max,
		used:     make([]bool, max+1),
		contexts: make(map[*Context]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Max returns the number of keys the table supports.
func (t *Table) Max() int {
	return t.max
}

// Alloc reserves the lowest free key.
func (t *Table) Alloc() (Key, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 1; i <= t.max; i++ {
		if !t.used[i] {
			t.used[i] = true
			return Key(i), nil
		}
	}
	return 0, ErrNoKeys
}

// Free releases key and clears its value in every live context, so a later
// Alloc of the same key starts from nil everywhere.
func (t *Table) Free(key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.validLocked(key) {
		return ErrBadKey
	}
	t.used[key] = false
	for c := range t.contexts {
		c.mu.Lock()
		c.slots[key] = nil
		c.mu.Unlock()
	}
	return nil
}

func (t *Table) validLocked(key Key) bool {
	return key >= 1 && int(key) <= t.max && t.used[key]
}

func (t *Table) valid(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.validLocked(key)
}

// ThreadInit creates the slot block for one thread.
func (t *Table) ThreadInit() (*Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && len(t.contexts) >= t.limit {
		return nil, ErrNoContexts
	}
	c := &Context{table: t, slots: make([]any, t.max+1)}
	t.contexts[c] = struct{}{}
	return c, nil
}

// ThreadDestroy releases a thread's slot block. A nil context is ignored.
func (t *Table) ThreadDestroy(c *Context) {
	if c == nil {
		return
	}
	t.mu.Lock()
	delete(t.contexts, c)
	t.mu.Unlock()
}

// Contexts returns the number of live thread contexts.
func (t *Table) Contexts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.contexts)
}

// Context is one thread's slot block.
type Context struct {
	table *Table
	mu    sync.Mutex
	slots []any
}

// SetValue stores v in the slot for key.
func (c *Context) SetValue(key Key, v any) error {
	if !c.table.valid(key) {
		return ErrBadKey
	}
	c.mu.Lock()
	c.slots[key] = v
	c.mu.Unlock()
	return nil
}

// GetValue returns the slot for key, or nil if it is unset or invalid.
func (c *Context) GetValue(key Key) any {
	if int(key) >= len(c.slots) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[key]
}

type ctxKey struct{}

// With returns ctx with c installed as the active TLS block.
func With(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From returns the active TLS block carried by ctx.
func From(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(ctxKey{}).(*Context)
	return c
}
