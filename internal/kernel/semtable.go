package kernel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ksem is one kernel counting semaphore. The weighted semaphore starts
// fully acquired except for the initial count, so Release is a post and
// Acquire is a wait. value tracks the count so posts can be bounded before
// Release would overflow the weight.
type ksem struct {
	w     *semaphore.Weighted
	value atomic.Int64

	// life is cancelled on destroy and wakes every blocked waiter.
	life   context.Context
	cancel context.CancelFunc
}

// semTable is the semaphore object table shared by Sim and Host.
type semTable struct {
	mu    sync.Mutex
	next  SemID
	sems  map[SemID]*ksem
	limit int // 0 means unlimited
}

func newSemTable(limit int) *semTable {
	return &semTable{
		sems:  make(map[SemID]*ksem),
		limit: limit,
	}
}

func (t *semTable) init(count int) (SemID, error) {
	if count < 0 || count > SemValueMax {
		return 0, EINVAL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit > 0 && len(t.sems) >= t.limit {
		return 0, ENOMEM
	}

	s := &ksem{w: semaphore.NewWeighted(SemValueMax)}
	if !s.w.TryAcquire(int64(SemValueMax - count)) {
		return 0, ENOMEM
	}
	s.value.Store(int64(count))
	s.life, s.cancel = context.WithCancel(context.Background())

	t.next++
	id := t.next
	t.sems[id] = s
	return id, nil
}

func (t *semTable) get(id SemID) (*ksem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sems[id]
	if !ok {
		return nil, EINVAL
	}
	return s, nil
}

func (t *semTable) destroy(id SemID) error {
	t.mu.Lock()
	s, ok := t.sems[id]
	delete(t.sems, id)
	t.mu.Unlock()

	if !ok {
		return EINVAL
	}
	s.cancel()
	return nil
}

func (t *semTable) post(id SemID) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}
	if s.value.Add(1) > SemValueMax {
		s.value.Add(-1)
		return EOVERFLOW
	}
	s.w.Release(1)
	return nil
}

func (t *semTable) wait(id SemID) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}
	if err := s.w.Acquire(s.life, 1); err != nil {
		return EINVAL
	}
	s.value.Add(-1)
	return nil
}

func (t *semTable) timedWait(id SemID, ms uint32) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}

	// Acquire fails on a done context even when a count is free.
	if ms == 0 {
		if !s.w.TryAcquire(1) {
			return ETIMEDOUT
		}
		s.value.Add(-1)
		return nil
	}

	ctx, cancel := context.WithTimeout(s.life, time.Duration(ms)*time.Millisecond)
	defer cancel()

	if err := s.w.Acquire(ctx, 1); err != nil {
		if s.life.Err() != nil {
			return EINVAL
		}
		return ETIMEDOUT
	}
	s.value.Add(-1)
	return nil
}

func (t *semTable) value(id SemID) (int, error) {
	s, err := t.get(id)
	if err != nil {
		return 0, err
	}
	return int(s.value.Load()), nil
}

func (t *semTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sems)
}
