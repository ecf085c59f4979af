// Package reent holds the per-thread state the C runtime needs to be
// reentrant. The OSAL allocates one block per thread, initializes it, and
// installs it as the thread's current block; it never looks inside.
package reent

import "context"

// State is one thread's runtime state.
type State struct {
	Errno    int
	Locale   string
	RandNext uint64
	StrtokAt string
}

// New allocates a zeroed block.
func New() *State {
	return &State{}
}

// Init resets s to the runtime's startup values.
func (s *State) Init() {
	*s = State{Locale: "C", RandNext: 1}
}

type ctxKey struct{}

// With installs s as the current block for the thread running ctx.
func With(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Current returns the block installed in ctx, or nil.
func Current(ctx context.Context) *State {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxKey{}).(*State)
	return s
}
