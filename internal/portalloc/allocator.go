package portalloc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/metrics"
)

const (
	minPort = 1024
	maxPort = 65535

	// maxEphemeralDraws bounds how many OS-assigned ports are drawn while
	// looking for one outside the lock and exclusion sets.
	maxEphemeralDraws = 64
)

// Request describes a port allocation.
type Request struct {
	// Ports are tried in order before falling back to an OS-assigned port.
	// A zero entry means "any port" and is equivalent to the fallback.
	Ports []int

	// Exclude lists ports that must never be returned.
	Exclude []int

	// Host restricts the probe to one local address. Empty means the port
	// must be free on every local address.
	Host string
}

// Options configures an Allocator.
type Options struct {
	// Window is the lock generation interval (default DefaultLockWindow).
	Window time.Duration

	// Clock schedules generation rotation (default RealClock).
	Clock Clock

	// Prober checks availability (default TCPProber).
	Prober Prober

	// Hosts lists local addresses for the generic-port check (default LocalHosts).
	Hosts func() ([]string, error)
}

// Allocator hands out OS-verified free ports and refuses ports it issued
// within the lock window.
type Allocator struct {
	locks  *LockRegistry
	prober Prober
	hosts  func() ([]string, error)
}

// New creates an Allocator from opts.
func New(opts Options) *Allocator {
	a := &Allocator{
		locks:  NewLockRegistry(opts.Window, opts.Clock),
		prober: opts.Prober,
		hosts:  opts.Hosts,
	}
	if a.prober == nil {
		a.prober = &TCPProber{}
	}
	if a.hosts == nil {
		a.hosts = LocalHosts
	}
	return a
}

// Locks exposes the lock registry, mainly so callers can Close it.
func (a *Allocator) Locks() *LockRegistry {
	return a.locks
}

// Allocate returns a free port per req. It fails with *LockedError when an
// explicit port was issued within the lock window, with ErrNoAvailablePort
// when every candidate is exhausted, and with the bind error itself for any
// failure other than address-in-use or permission-denied.
func (a *Allocator) Allocate(ctx context.Context, req Request) (int, error) {
	exclude, err := req.validate()
	if err != nil {
		return 0, err
	}

	a.locks.ensureRotation()

	var hosts []string
	if req.Host == "" && req.hasExplicit() {
		hosts, err = a.hosts()
		if err != nil {
			logging.Warn("Could not enumerate local addresses, checking wildcard only", zap.Error(err))
		}
	}

	for _, port := range candidates(req.Ports) {
		if port != 0 && exclude[port] {
			continue
		}

		got, err := a.claim(ctx, req.Host, port, hosts, exclude)
		if err == nil {
			metrics.PortsAllocated.Inc()
			logging.LogPortAllocated(got, port)
			return got, nil
		}

		if IsLocked(err) {
			metrics.PortsLocked.Inc()
			return 0, err
		}
		if !IsTransient(err) {
			return 0, err
		}

		logging.Debug("Port candidate unavailable",
			zap.Int("port", port),
			zap.Error(err),
		)
	}

	return 0, ErrNoAvailablePort
}

// claim probes one candidate and records the result in the lock set.
// Ephemeral draws that collide with the lock or exclusion set are redrawn.
func (a *Allocator) claim(ctx context.Context, host string, port int, hosts []string, exclude map[int]bool) (int, error) {
	if port != 0 && a.locks.Contains(port) {
		return 0, &LockedError{Port: port}
	}

	for draw := 0; draw < maxEphemeralDraws; draw++ {
		got, err := a.available(ctx, host, port, hosts)
		if err != nil {
			return 0, err
		}

		if port == 0 && exclude[got] {
			continue
		}
		if a.locks.Acquire(got) {
			return got, nil
		}
		if port != 0 {
			return 0, &LockedError{Port: port}
		}
	}
	return 0, ErrNoAvailablePort
}

// available probes port on host, or on every local host when the port is a
// specific one and no host was given.
func (a *Allocator) available(ctx context.Context, host string, port int, hosts []string) (int, error) {
	if host != "" || port == 0 || len(hosts) == 0 {
		return a.prober.Probe(ctx, host, port)
	}

	for _, h := range hosts {
		if _, err := a.prober.Probe(ctx, h, port); err != nil && !isHostSkippable(err) {
			return 0, err
		}
	}
	return port, nil
}

func candidates(ports []int) []int {
	seq := make([]int, 0, len(ports)+1)
	seq = append(seq, ports...)
	return append(seq, 0)
}

func (r Request) hasExplicit() bool {
	for _, p := range r.Ports {
		if p != 0 {
			return true
		}
	}
	return false
}

func (r Request) validate() (map[int]bool, error) {
	for _, p := range r.Ports {
		if p < 0 || p > maxPort {
			return nil, &InputError{Field: "port", Value: p, Msg: "must be between 0 and 65535"}
		}
	}

	exclude := make(map[int]bool, len(r.Exclude))
	for _, p := range r.Exclude {
		if p < 0 || p > maxPort {
			return nil, &InputError{Field: "excluded port", Value: p, Msg: "must be between 0 and 65535"}
		}
		exclude[p] = true
	}
	return exclude, nil
}

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

// Default returns the process-wide allocator. All callers share one lock set.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultAllocator = New(Options{})
	})
	return defaultAllocator
}

// AllocatePort allocates from the process-wide allocator.
func AllocatePort(ctx context.Context, req Request) (int, error) {
	return Default().Allocate(ctx, req)
}
