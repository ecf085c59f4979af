package osal

import (
	"os"

	"github.com/zboralski/pteosal/internal/trace"
)

// MallocLock takes the heap lock the C runtime serializes its allocator
// with. Control-block accounting shares it.
func (o *OS) MallocLock() error {
	if o.mallocLock == nil {
		return fail(InvalidParam, "malloc lock", nil)
	}
	return o.mallocLock.Lock()
}

// MallocUnlock releases the heap lock.
func (o *OS) MallocUnlock() error {
	if o.mallocLock == nil {
		return fail(InvalidParam, "malloc unlock", nil)
	}
	return o.mallocLock.Unlock()
}

// EnvLock takes the lock guarding the process environment.
func (o *OS) EnvLock() error {
	if o.envLock == nil {
		return fail(InvalidParam, "env lock", nil)
	}
	return o.envLock.Lock()
}

// EnvUnlock releases the environment lock.
func (o *OS) EnvUnlock() error {
	if o.envLock == nil {
		return fail(InvalidParam, "env unlock", nil)
	}
	return o.envLock.Unlock()
}

// Getenv reads a process environment variable under the environment lock.
func (o *OS) Getenv(key string) (string, bool, error) {
	if err := o.EnvLock(); err != nil {
		return "", false, err
	}
	v, ok := os.LookupEnv(key)
	return v, ok, o.EnvUnlock()
}

// Setenv writes a process environment variable under the environment lock.
func (o *OS) Setenv(key, value string) error {
	if err := o.EnvLock(); err != nil {
		return err
	}
	if err := os.Setenv(key, value); err != nil {
		_ = o.EnvUnlock()
		return fail(GeneralFailure, "setenv", err)
	}
	o.emit(nil, trace.Libc, "setenv", key)
	return o.EnvUnlock()
}

// Timeb is the result of Ftime.
type Timeb struct {
	Time    int64  // seconds since boot
	Millitm uint16 // milliseconds past Time
}

// Ftime converts the kernel tick counter into seconds and milliseconds.
func (o *OS) Ftime() Timeb {
	ticks := o.k.Ticks()
	freq := o.cfg.TimerFreq
	return Timeb{
		Time:    int64(ticks / freq),
		Millitm: uint16((ticks % freq) * 1000 / freq),
	}
}
