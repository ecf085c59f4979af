package osal

import "sync/atomic"

// The atomics operate on 32-bit words with sequentially consistent
// ordering, as sync/atomic guarantees.

// AtomicExchange stores v in *p and returns the previous value.
func AtomicExchange(p *int32, v int32) int32 {
	return atomic.SwapInt32(p, v)
}

// AtomicCompareExchange stores exchange in *p if it holds comp. It returns
// the value *p held before the call.
func AtomicCompareExchange(p *int32, exchange, comp int32) int32 {
	for {
		old := atomic.LoadInt32(p)
		if old != comp {
			return old
		}
		if atomic.CompareAndSwapInt32(p, comp, exchange) {
			return comp
		}
	}
}

// AtomicExchangeAdd adds v to *p and returns the previous value.
func AtomicExchangeAdd(p *int32, v int32) int32 {
	return atomic.AddInt32(p, v) - v
}

// AtomicIncrement adds one to *p and returns the new value.
func AtomicIncrement(p *int32) int32 {
	return atomic.AddInt32(p, 1)
}

// AtomicDecrement subtracts one from *p and returns the new value.
func AtomicDecrement(p *int32) int32 {
	return atomic.AddInt32(p, -1)
}
