package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/registry"
)

// Service runs a fresh Session for each Serve call over one shared
// registry, so it can be restarted by a supervisor. Subscriptions made on
// the Service survive restarts.
type Service struct {
	opts         Options
	newTransport func() Transport
	mdns         *MDNSSource

	mu      sync.Mutex
	current *Session
}

// NewService creates a Service. newTransport is called once per run; nil
// builds an SSDPTransport for opts.Target. mdns may be nil.
func NewService(opts Options, newTransport func() Transport, mdns *MDNSSource) *Service {
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if newTransport == nil {
		target := opts.Target
		newTransport = func() Transport {
			t := NewSSDPTransport()
			if target != "" {
				t.Target = target
			}
			return t
		}
	}
	return &Service{opts: opts, newTransport: newTransport, mdns: mdns}
}

func (s *Service) String() string {
	return "discovery"
}

// Serve runs one session until ctx is done. It implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	opts := s.opts
	opts.Transport = s.newTransport()
	sess := NewSession(opts)

	if err := sess.Start(ctx); err != nil {
		_ = sess.Stop()
		return err
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	var wg sync.WaitGroup
	if s.mdns != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.browse(ctx, sess)
		}()
	}

	<-ctx.Done()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	err := sess.Stop()
	wg.Wait()
	sess.Wait()
	return err
}

// browse runs the mDNS source now and again every research interval.
func (s *Service) browse(ctx context.Context, sess *Session) {
	for {
		n, err := s.mdns.Browse(ctx, sess)
		if err != nil {
			logging.Warn("mDNS browse failed", zap.String("service", s.mdns.Service), zap.Error(err))
		} else {
			logging.Debug("mDNS browse finished", zap.Int("accepted", n))
		}

		if s.opts.Interval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.Interval):
		}
	}
}

// Session returns the running session, or nil between runs.
func (s *Service) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update asks the running session for another search round.
func (s *Service) Update() error {
	sess := s.Session()
	if sess == nil {
		return ErrNotStarted
	}
	return sess.Update()
}

// Devices returns the devices delivered by the current run.
func (s *Service) Devices() []registry.Device {
	return s.opts.Registry.Devices()
}

// Subscribe registers fn for deliveries from every run.
func (s *Service) Subscribe(fn func(registry.Device)) (cancel func()) {
	return s.opts.Registry.Subscribe(fn)
}
