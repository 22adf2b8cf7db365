package portalloc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"
)

// fakeProber hands out ephemeral ports from a fixed sequence and fails
// specific (host, port) pairs with configured errors.
type fakeProber struct {
	mu        sync.Mutex
	ephemeral []int
	next      int
	fail      map[string]error
	calls     []string
}

func (p *fakeProber) Probe(_ context.Context, host string, port int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := fmt.Sprintf("%s/%d", host, port)
	p.calls = append(p.calls, key)

	if err, ok := p.fail[key]; ok {
		return 0, err
	}
	if err, ok := p.fail[fmt.Sprintf("*/%d", port)]; ok {
		return 0, err
	}
	if port != 0 {
		return port, nil
	}
	if p.next >= len(p.ephemeral) {
		return 0, syscall.EADDRINUSE
	}
	got := p.ephemeral[p.next]
	p.next++
	return got, nil
}

// manualClock records scheduled callbacks and fires them on demand.
type manualClock struct {
	mu      sync.Mutex
	pending []func()
	armed   int
}

type manualTimer struct {
	clock   *manualClock
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	t.clock.pending = nil
	return was
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed++
	c.pending = append(c.pending, f)
	return &manualTimer{clock: c}
}

// Fire runs every pending callback once.
func (c *manualClock) Fire() {
	c.mu.Lock()
	fns := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func staticHosts(hosts ...string) func() ([]string, error) {
	return func() ([]string, error) { return hosts, nil }
}

func newTestAllocator(prober *fakeProber, clock Clock) *Allocator {
	return New(Options{
		Clock:  clock,
		Prober: prober,
		Hosts:  staticHosts("", "0.0.0.0", "127.0.0.1"),
	})
}

func TestAllocate_EphemeralNeverRepeatsWithinWindow(t *testing.T) {
	prober := &fakeProber{ephemeral: []int{40001, 40001, 40002}}
	a := newTestAllocator(prober, &manualClock{})

	first, err := a.Allocate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, err := a.Allocate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if first == second {
		t.Errorf("Allocate() returned %d twice within one lock window", first)
	}
	if second != 40002 {
		t.Errorf("second Allocate() = %d, want 40002 (locked 40001 redrawn)", second)
	}
}

func TestAllocate_ExplicitLocked(t *testing.T) {
	prober := &fakeProber{}
	a := newTestAllocator(prober, &manualClock{})

	got, err := a.Allocate(context.Background(), Request{Ports: []int{8080}})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 8080 {
		t.Fatalf("Allocate() = %d, want 8080", got)
	}

	_, err = a.Allocate(context.Background(), Request{Ports: []int{8080}})
	if !IsLocked(err) {
		t.Fatalf("Allocate() error = %v, want locked", err)
	}

	var locked *LockedError
	if !errors.As(err, &locked) || locked.Port != 8080 {
		t.Errorf("Allocate() error = %#v, want *LockedError{Port: 8080}", err)
	}
	if errors.Is(err, ErrNoAvailablePort) {
		t.Error("locked error should not match ErrNoAvailablePort")
	}
}

func TestAllocate_UnlockedAfterRotation(t *testing.T) {
	clock := &manualClock{}
	a := newTestAllocator(&fakeProber{}, clock)
	ctx := context.Background()

	if _, err := a.Allocate(ctx, Request{Ports: []int{9000}}); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	// One rotation moves 9000 to the old generation: still locked.
	clock.Fire()
	if _, err := a.Allocate(ctx, Request{Ports: []int{9000}}); !IsLocked(err) {
		t.Fatalf("after one rotation error = %v, want locked", err)
	}

	// Second rotation discards it.
	clock.Fire()
	got, err := a.Allocate(ctx, Request{Ports: []int{9000}})
	if err != nil {
		t.Fatalf("after two rotations error = %v, want nil", err)
	}
	if got != 9000 {
		t.Errorf("Allocate() = %d, want 9000", got)
	}
}

func TestAllocate_RotationArmedOnce(t *testing.T) {
	clock := &manualClock{}
	a := newTestAllocator(&fakeProber{ephemeral: []int{1, 2, 3}}, clock)

	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(context.Background(), Request{}); err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
	}

	if clock.armed != 1 {
		t.Errorf("rotation timer armed %d times, want 1", clock.armed)
	}

	clock.Fire()
	if clock.armed != 2 {
		t.Errorf("after tick armed = %d, want 2 (timer re-arms itself)", clock.armed)
	}
}

func TestAllocate_InUseFallsBackToEphemeral(t *testing.T) {
	prober := &fakeProber{
		ephemeral: []int{41000},
		fail:      map[string]error{"*/8080": syscall.EADDRINUSE},
	}
	a := newTestAllocator(prober, &manualClock{})

	got, err := a.Allocate(context.Background(), Request{Ports: []int{8080}})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 41000 {
		t.Errorf("Allocate() = %d, want ephemeral 41000", got)
	}
}

func TestAllocate_PermissionDeniedTriesNextCandidate(t *testing.T) {
	prober := &fakeProber{fail: map[string]error{"*/80": syscall.EACCES}}
	a := newTestAllocator(prober, &manualClock{})

	got, err := a.Allocate(context.Background(), Request{Ports: []int{80, 8081}})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 8081 {
		t.Errorf("Allocate() = %d, want 8081", got)
	}
}

func TestAllocate_OtherErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	prober := &fakeProber{fail: map[string]error{"*/8080": boom}}
	a := newTestAllocator(prober, &manualClock{})

	_, err := a.Allocate(context.Background(), Request{Ports: []int{8080}})
	if !errors.Is(err, boom) {
		t.Errorf("Allocate() error = %v, want %v", err, boom)
	}
}

func TestAllocate_GenericPortChecksEveryHost(t *testing.T) {
	prober := &fakeProber{fail: map[string]error{
		// Only usable on one interface: not acceptable as a generic port.
		"127.0.0.1/8080": syscall.EADDRINUSE,
	}, ephemeral: []int{42000}}
	a := newTestAllocator(prober, &manualClock{})

	got, err := a.Allocate(context.Background(), Request{Ports: []int{8080}})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 42000 {
		t.Errorf("Allocate() = %d, want 42000", got)
	}
	if !slices.Contains(prober.calls, "0.0.0.0/8080") {
		t.Errorf("probe calls = %v, want wildcard check", prober.calls)
	}
}

func TestAllocate_SkippableHostErrorsIgnored(t *testing.T) {
	prober := &fakeProber{fail: map[string]error{
		"127.0.0.1/8080": syscall.EADDRNOTAVAIL,
		"0.0.0.0/8080":   syscall.EINVAL,
	}}
	a := newTestAllocator(prober, &manualClock{})

	got, err := a.Allocate(context.Background(), Request{Ports: []int{8080}})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 8080 {
		t.Errorf("Allocate() = %d, want 8080", got)
	}
}

func TestAllocate_ExplicitHostProbesOnlyThatHost(t *testing.T) {
	prober := &fakeProber{}
	a := newTestAllocator(prober, &manualClock{})

	if _, err := a.Allocate(context.Background(), Request{Ports: []int{7000}, Host: "127.0.0.1"}); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if len(prober.calls) != 1 || prober.calls[0] != "127.0.0.1/7000" {
		t.Errorf("probe calls = %v, want [127.0.0.1/7000]", prober.calls)
	}
}

func TestAllocate_Exclude(t *testing.T) {
	prober := &fakeProber{ephemeral: []int{43000, 43001}}
	a := newTestAllocator(prober, &manualClock{})

	got, err := a.Allocate(context.Background(), Request{Ports: []int{8080}, Exclude: []int{8080, 43000}})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 43001 {
		t.Errorf("Allocate() = %d, want 43001", got)
	}
}

func TestAllocate_Exhausted(t *testing.T) {
	prober := &fakeProber{fail: map[string]error{
		"*/8080": syscall.EADDRINUSE,
		"*/0":    syscall.EADDRINUSE,
	}}
	a := newTestAllocator(prober, &manualClock{})

	_, err := a.Allocate(context.Background(), Request{Ports: []int{8080}})
	if !errors.Is(err, ErrNoAvailablePort) {
		t.Errorf("Allocate() error = %v, want ErrNoAvailablePort", err)
	}
}

func TestAllocate_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"negative port", Request{Ports: []int{-1}}},
		{"port too large", Request{Ports: []int{70000}}},
		{"negative exclude", Request{Exclude: []int{-5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{}
			a := newTestAllocator(prober, &manualClock{})

			_, err := a.Allocate(context.Background(), tt.req)
			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("Allocate() error = %v, want *InputError", err)
			}
			if len(prober.calls) != 0 {
				t.Errorf("probe called %d times before validation failed", len(prober.calls))
			}
		})
	}
}

func TestAllocate_RealSockets(t *testing.T) {
	a := New(Options{Clock: &manualClock{}})

	first, err := a.Allocate(context.Background(), Request{Host: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, err := a.Allocate(context.Background(), Request{Host: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if first == 0 || second == 0 {
		t.Fatalf("Allocate() returned zero port (%d, %d)", first, second)
	}
	if first == second {
		t.Errorf("Allocate() returned %d twice", first)
	}
}

func TestLockRegistry_CloseStopsRotation(t *testing.T) {
	clock := &manualClock{}
	r := NewLockRegistry(time.Second, clock)
	r.ensureRotation()
	r.Acquire(5000)
	r.Close()

	clock.Fire()
	r.tick()

	if !r.Contains(5000) {
		t.Error("closed registry should not rotate")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestLockRegistry_Defaults(t *testing.T) {
	r := NewLockRegistry(0, nil)
	if r.Window() != DefaultLockWindow {
		t.Errorf("Window() = %v, want %v", r.Window(), DefaultLockWindow)
	}
	if !r.Acquire(1) {
		t.Error("first Acquire(1) = false, want true")
	}
	if r.Acquire(1) {
		t.Error("second Acquire(1) = true, want false")
	}
}
