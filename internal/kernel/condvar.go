package kernel

// Condvar is a FIFO-queued condition variable. Spurious wakeups are
// permitted; callers re-check their predicate in a loop around Wait.
type Condvar struct {
	mu      spinNoIrqLock
	waiters []*Task
}

func NewCondvar() *Condvar { return &Condvar{} }

// Wait enqueues onto the condvar's own wait list, releases the mutex,
// blocks, and only once resumed re-acquires the mutex. The enqueue
// happens before the mutex release: a Signal landing in the gap after
// release must already see this waiter queued, or the wakeup is lost.
func (c *Condvar) Wait(k *Kernel, curr *Task, mutex UserMutex) {
	c.mu.Lock()
	c.waiters = append(c.waiters, curr)
	c.mu.Unlock()

	mutex.Unlock(k, curr)
	k.manager.BlockCurrent(curr)
	mutex.Lock(k, curr)
}

// Signal wakes the oldest waiter, if any.
func (c *Condvar) Signal(k *Kernel) {
	c.mu.Lock()
	var waiter *Task
	if len(c.waiters) > 0 {
		waiter = c.waiters[0]
		c.waiters = c.waiters[1:]
	}
	c.mu.Unlock()
	if waiter != nil {
		waiter.resume(k)
	}
}
