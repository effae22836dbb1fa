package kernel

// Semaphore is a counting semaphore: a signed counter plus a FIFO wait
// queue, maintaining count + len(waiters) >= 0 at every step (a waiter
// "borrows" a unit it hasn't been granted yet, so a negative count is
// exactly the number of waiters).
type Semaphore struct {
	mu      spinNoIrqLock
	count   int64
	waiters []*Task
}

func NewSemaphore(initial int64) *Semaphore {
	return &Semaphore{count: initial}
}

// Up releases one unit, waking the oldest waiter if any is queued.
func (s *Semaphore) Up(k *Kernel) {
	s.mu.Lock()
	s.count++
	var waiter *Task
	if s.count <= 0 && len(s.waiters) > 0 {
		waiter = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	s.mu.Unlock()
	if waiter != nil {
		waiter.resume(k)
	}
}

// Down acquires one unit, blocking if none is available.
func (s *Semaphore) Down(k *Kernel, curr *Task) {
	s.mu.Lock()
	s.count--
	block := s.count < 0
	if block {
		s.waiters = append(s.waiters, curr)
	}
	s.mu.Unlock()
	if block {
		k.manager.BlockCurrent(curr)
	}
}
