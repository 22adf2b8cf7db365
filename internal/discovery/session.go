package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/descriptor"
	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/portalloc"
	"github.com/muurk/rendercast/internal/registry"
)

// State is the lifecycle position of a Session.
type State int

const (
	Idle State = iota
	Searching
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fetcher resolves a description location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*descriptor.Descriptor, error)
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	// Target is the device type searched for.
	Target string

	// Port requests a specific responder port; 0 lets the allocator pick.
	Port int

	// BindHost restricts the responder port check to one address.
	BindHost string

	// Interval re-runs the search periodically; 0 disables.
	Interval time.Duration

	Transport Transport
	Fetcher   Fetcher
	Allocator *portalloc.Allocator
	Registry  *registry.Registry

	// Validator performs the reachability check of Validate.
	Validator descriptor.Getter

	// OnError receives search and fetch failures. The session keeps running.
	OnError func(error)
}

// Session runs one discovery lifetime: Idle, then Searching, then Stopped.
// Stopped is terminal.
type Session struct {
	id   string
	opts Options

	mu       sync.Mutex
	state    State

	// observing is held shared while a result enters the registry and
	// exclusively by Stop before the registry is reset.
	observing sync.RWMutex

	port     int
	inflight map[string]struct{}
	resolved map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.Target == "" {
		opts.Target = MediaRendererType
	}
	if opts.Transport == nil {
		t := NewSSDPTransport()
		t.Target = opts.Target
		opts.Transport = t
	}
	if opts.Fetcher == nil {
		opts.Fetcher = descriptor.NewFetcher(nil)
	}
	if opts.Allocator == nil {
		opts.Allocator = portalloc.Default()
	}
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Validator == nil {
		opts.Validator = descriptor.NewHTTPGetter(descriptor.DefaultTimeout)
	}

	return &Session{
		id:       uuid.NewString(),
		opts:     opts,
		inflight: make(map[string]struct{}),
		resolved: make(map[string]struct{}),
	}
}

// ID identifies the session in logs and event streams.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the responder port, or 0 before Start.
func (s *Session) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Start allocates the responder port, starts the transport and issues the
// first search.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Searching:
		return ErrAlreadyStarted
	case Stopped:
		return ErrStopped
	}

	var ports []int
	if s.opts.Port != 0 {
		ports = []int{s.opts.Port}
	}
	port, err := s.opts.Allocator.Allocate(ctx, portalloc.Request{Ports: ports, Host: s.opts.BindHost})
	if err != nil {
		return fmt.Errorf("allocate responder port: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if err := s.opts.Transport.Start(s.ctx, port, s.handle); err != nil {
		s.cancel()
		return fmt.Errorf("start transport: %w", err)
	}

	s.port = port
	s.state = Searching

	logging.Info("Discovery started",
		zap.String("session", s.id),
		zap.String("target", s.opts.Target),
		zap.Int("port", port),
	)

	s.searchLocked()
	if s.opts.Interval > 0 {
		s.wg.Add(1)
		go s.research(s.ctx, s.opts.Interval)
	}
	return nil
}

// Update issues another search round.
func (s *Session) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Idle:
		return ErrNotStarted
	case Stopped:
		return ErrStopped
	}
	s.searchLocked()
	return nil
}

func (s *Session) searchLocked() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.opts.Transport.Search(s.opts.Target); err != nil {
			if errors.Is(err, ErrStopped) || s.State() == Stopped {
				return
			}
			s.report(err)
		}
	}()
}

func (s *Session) research(ctx context.Context, every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Update()
		}
	}
}

// Stop ends the session. Fetches still in flight complete in the
// background but their results are dropped. Stop is idempotent and must
// not be called from a subscriber.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return nil
	}
	started := s.state == Searching
	s.state = Stopped
	if s.cancel != nil {
		s.cancel()
	}
	s.inflight = make(map[string]struct{})
	s.resolved = make(map[string]struct{})
	s.mu.Unlock()

	var err error
	if started {
		err = s.opts.Transport.Close()
	}
	s.observing.Lock()
	s.opts.Registry.Reset()
	s.observing.Unlock()

	logging.Info("Discovery stopped", zap.String("session", s.id))
	return err
}

// Wait blocks until background searches and fetches have returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// handle filters an advertisement and starts at most one fetch per location.
func (s *Session) handle(adv Advertisement) {
	if adv.Type() != s.opts.Target {
		return
	}
	location := adv.Location()
	if isUnsupportedLocation(location) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Searching {
		return
	}
	if _, busy := s.inflight[location]; busy {
		return
	}
	if _, done := s.resolved[location]; done {
		return
	}
	s.inflight[location] = struct{}{}

	s.wg.Add(1)
	go s.resolve(s.ctx, location, adv)
}

func (s *Session) resolve(ctx context.Context, location string, adv Advertisement) {
	defer s.wg.Done()

	desc, err := s.opts.Fetcher.Fetch(ctx, location)

	s.mu.Lock()
	if s.state != Searching {
		s.mu.Unlock()
		return
	}
	delete(s.inflight, location)
	if err == nil || errors.Is(err, descriptor.ErrNoDevice) {
		s.resolved[location] = struct{}{}
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, descriptor.ErrNoDevice):
		logging.Debug("Description has no device", zap.String("location", location))
		return
	case err != nil:
		s.report(fmt.Errorf("fetch %s: %w", location, err))
		return
	}

	host := adv.Remote
	if host == "" {
		host = hostFromLocation(location)
	}
	s.admit(func() registry.Outcome {
		return s.opts.Registry.ObserveDescriptor(desc, host, location, adv.Headers)
	})
}

// admit runs observe unless the session has stopped. Stop waits for a
// running observe before it resets the registry.
func (s *Session) admit(observe func() registry.Outcome) registry.Outcome {
	s.observing.RLock()
	defer s.observing.RUnlock()
	if s.State() == Stopped {
		return registry.Suppressed
	}
	return observe()
}

func (s *Session) report(err error) {
	logging.Warn("Discovery error", zap.String("session", s.id), zap.Error(err))
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// Observe feeds a sighting straight into the registry, bypassing the
// fetch. It reports whether subscribers were notified.
func (s *Session) Observe(name, host, location string, headers map[string]string) bool {
	return s.admit(func() registry.Outcome {
		return s.opts.Registry.Observe(name, host, location, headers)
	}).Emitted()
}

// Validate admits a device found by another mechanism once its location
// answers HTTP 200. Names already known are ignored.
func (s *Session) Validate(ctx context.Context, name, host, location string) (bool, error) {
	if s.State() == Stopped {
		return false, ErrStopped
	}
	if s.opts.Registry.Has(name) {
		return false, nil
	}
	if _, err := s.opts.Validator.Get(ctx, location); err != nil {
		return false, err
	}
	if s.opts.Registry.Has(name) {
		return false, nil
	}
	return s.Observe(name, host, location, nil), nil
}

// Devices returns the devices delivered so far.
func (s *Session) Devices() []registry.Device {
	return s.opts.Registry.Devices()
}

// Subscribe registers fn for every delivered device. Deliveries racing
// with Stop are dropped.
func (s *Session) Subscribe(fn func(registry.Device)) (cancel func()) {
	return s.opts.Registry.Subscribe(func(d registry.Device) {
		if s.State() == Stopped {
			return
		}
		fn(d)
	})
}
