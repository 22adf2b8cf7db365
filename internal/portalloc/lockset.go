package portalloc

import (
	"sync"
	"time"
)

// DefaultLockWindow is how long an issued port stays in one generation.
// A port is therefore locked for at least one window and at most two.
const DefaultLockWindow = 15 * time.Second

// Timer is the subset of *time.Timer the lock registry needs.
type Timer interface {
	Stop() bool
}

// Clock schedules generation rotation. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock schedules with the runtime timer heap.
type RealClock struct{}

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// LockRegistry tracks recently issued ports in two rotating generations.
type LockRegistry struct {
	window time.Duration
	clock  Clock

	mu     sync.Mutex
	young  map[int]struct{}
	old    map[int]struct{}
	timer  Timer
	closed bool
}

// NewLockRegistry creates a registry rotating every window.
// A zero window uses DefaultLockWindow; a nil clock uses RealClock.
func NewLockRegistry(window time.Duration, clock Clock) *LockRegistry {
	if window <= 0 {
		window = DefaultLockWindow
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &LockRegistry{
		window: window,
		clock:  clock,
		young:  make(map[int]struct{}),
		old:    make(map[int]struct{}),
	}
}

// Window returns the rotation interval.
func (r *LockRegistry) Window() time.Duration {
	return r.window
}

// Contains reports whether port was issued within the lock window.
func (r *LockRegistry) Contains(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, young := r.young[port]
	_, old := r.old[port]
	return young || old
}

// Acquire records port in the young generation. It returns false, and
// records nothing, when the port is already locked in either generation.
func (r *LockRegistry) Acquire(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.young[port]; ok {
		return false
	}
	if _, ok := r.old[port]; ok {
		return false
	}
	r.young[port] = struct{}{}
	return true
}

// Rotate discards the old generation and ages the young one.
func (r *LockRegistry) Rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotateLocked()
}

func (r *LockRegistry) rotateLocked() {
	r.old = r.young
	r.young = make(map[int]struct{})
}

// Len returns the number of locked ports across both generations.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.young) + len(r.old)
}

// ensureRotation arms the recurring rotation timer on first use.
func (r *LockRegistry) ensureRotation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil || r.closed {
		return
	}
	r.timer = r.clock.AfterFunc(r.window, r.tick)
}

func (r *LockRegistry) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.rotateLocked()
	r.timer = r.clock.AfterFunc(r.window, r.tick)
}

// Close stops rotation. Locked ports stay locked.
func (r *LockRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
